package kg

import (
	"sort"
	"time"
)

// Entity is a typed, named node in the knowledge graph.
//
// (Type, NormalizeName(Name)) is unique across the store. Entities are
// created on first mention during ingestion, mutated only by the ingestion
// merge or a normaliser, and never deleted implicitly.
type Entity struct {
	ID           string         `json:"id"`
	Type         EntityType     `json:"type"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
	Confidence   float64        `json:"confidence"`
	Embedding    []float32      `json:"embedding,omitempty"`
	SourceChunks []string       `json:"source_chunks,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Key returns the (type, normalised name) identity of the entity.
func (e *Entity) Key() string {
	return string(e.Type) + ":" + NormalizeName(e.Name)
}

// Relation is a directed, labelled edge between two entities.
//
// (SourceID, TargetID, Type) uniquely identifies an edge; duplicates merge,
// keeping the maximum confidence and the union of provenance.
type Relation struct {
	ID           string         `json:"id"`
	SourceID     string         `json:"source_id"`
	TargetID     string         `json:"target_id"`
	Type         RelationType   `json:"type"`
	Confidence   float64        `json:"confidence"`
	Properties   map[string]any `json:"properties,omitempty"`
	SourceChunks []string       `json:"source_chunks,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Key returns the (source, target, type) identity of the relation.
func (r *Relation) Key() string {
	return r.SourceID + "->" + r.TargetID + ":" + string(r.Type)
}

// TextChunk is an immutable text fragment with provenance, the unit of
// ingestion.
type TextChunk struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata ChunkMetadata  `json:"metadata,omitempty"`
}

// ChunkMetadata carries optional document provenance for a chunk.
type ChunkMetadata struct {
	DocumentID string   `json:"document_id,omitempty"`
	Title      string   `json:"title,omitempty"`
	Authors    []string `json:"authors,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Year       int      `json:"year,omitempty"`
	Offset     int      `json:"offset,omitempty"`
}

// Concept is an NLP-derived noun phrase, distinct from an Entity, used by
// the lazy-budget engine and for concept-graph construction. Text is always
// normalised (lowercase, trimmed, stop words removed).
type Concept struct {
	Text         string   `json:"text"`
	Frequency    int      `json:"frequency"`
	Importance   float64  `json:"importance"`
	SourceChunks []string `json:"source_chunks,omitempty"`
}

// ConceptCooccurrence is a within-chunk pairing of two concepts.
type ConceptCooccurrence struct {
	A        string  `json:"a"`
	B        string  `json:"b"`
	Count    int     `json:"count"`
	Strength float64 `json:"strength"`
}

// ConceptGraph is the weighted undirected graph of concepts, with a
// hierarchical community partition and reverse indexes in both directions
// between chunks and concepts.
type ConceptGraph struct {
	Concepts      map[string]*Concept              `json:"concepts"`
	Edges         []*ConceptCooccurrence           `json:"edges"`
	Communities   []*Community                     `json:"communities"`
	ChunkConcepts map[string][]string              `json:"chunk_concepts"`
	ConceptChunks map[string][]string              `json:"concept_chunks"`
	TopConcepts   map[string][]string              `json:"top_concepts,omitempty"`
}

// Community is one partition of the graph at a hierarchical level. Level 0
// is the finest partition; parents aggregate children. Members reference the
// community by ID and the community holds member IDs; there is no owning
// pointer in either direction.
type Community struct {
	ID          string    `json:"id"`
	Level       int       `json:"level"`
	MemberIDs   []string  `json:"member_ids"`
	ParentID    string    `json:"parent_id,omitempty"`
	ChildIDs    []string  `json:"child_ids,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	MemberCount int       `json:"member_count"`
	SummarizedAt time.Time `json:"summarized_at,omitempty"`
	// MembershipHash fingerprints the member set at summarisation time so
	// re-summarising an unchanged community is a no-op.
	MembershipHash string `json:"membership_hash,omitempty"`
}

// Path is a simple (no repeated entity) sequence of entities connected by
// relations. Hops equals len(Relations).
type Path struct {
	Entities  []*Entity   `json:"entities"`
	Relations []*Relation `json:"relations"`
	Hops      int         `json:"hops"`
	Score     float64     `json:"score"`
}

// IDSequence returns the ordered entity IDs of the path, used for
// deterministic tie-breaking.
func (p *Path) IDSequence() []string {
	ids := make([]string, len(p.Entities))
	for i, e := range p.Entities {
		ids[i] = e.ID
	}
	return ids
}

// Citation attributes part of an answer to a source.
type Citation struct {
	SourceID   string  `json:"source_id"`
	SourceName string  `json:"source_name"`
	SourceType string  `json:"source_type"` // entity | community | document
	Relevance  float64 `json:"relevance"`
	Excerpt    string  `json:"excerpt,omitempty"`
}

// ContextData is the retrieval context a query answer was generated from.
type ContextData struct {
	Entities           []*Entity    `json:"entities,omitempty"`
	Relations          []*Relation  `json:"relations,omitempty"`
	CommunitySummaries []string     `json:"community_summaries,omitempty"`
	TextChunks         []*TextChunk `json:"text_chunks,omitempty"`
}

// QueryMetrics records per-query timing and context sizes.
type QueryMetrics struct {
	RetrievalMs  int64 `json:"retrieval_ms"`
	GenerationMs int64 `json:"generation_ms"`
	Entities     int   `json:"entities"`
	Relations    int   `json:"relations"`
	Communities  int   `json:"communities"`
	Tokens       int   `json:"tokens"`
}

// QueryResponse is the uniform result shape of every retrieval strategy.
type QueryResponse struct {
	Query     string       `json:"query"`
	Answer    string       `json:"answer"`
	QueryType QueryType    `json:"query_type"`
	Citations []Citation   `json:"citations"`
	Context   ContextData  `json:"context"`
	Metrics   QueryMetrics `json:"metrics"`
	Success   bool         `json:"success"`
	Error     string       `json:"error,omitempty"`
}

// APIKey is the stored metadata for one issued key. The secret itself is
// never persisted in this struct beyond its identifier.
type APIKey struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Role        UserRole     `json:"role"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	LastUsedAt  *time.Time   `json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
}

// ValidAt reports whether the key exists (non-zero) and is not past expiry.
func (k *APIKey) ValidAt(now time.Time) bool {
	if k == nil || k.ID == "" {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// HasPermission reports whether the key grants p. Admin keys pass any
// permission check.
func (k *APIKey) HasPermission(p Permission) bool {
	if k == nil {
		return false
	}
	if k.Role == RoleAdmin {
		return true
	}
	for _, have := range k.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// UnionProvenance merges two provenance chunk-ID sets, deduplicated and
// sorted for deterministic comparison.
func UnionProvenance(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
