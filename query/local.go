package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/log"
	"github.com/yagokoro-dev/yagokoro/vectorstore"
)

// Local retrieval defaults.
const (
	DefaultMinSimilarity = 0.5
	DefaultMaxEntities   = 20
	DefaultHopDepth      = 2
	DefaultMaxChunks     = 8
)

const localAnswerPrompt = `Answer the question using only the context below. Cite the entities you rely on by their ID in square brackets, e.g. [e42]. Do not mention entities absent from the context; say so if the context is insufficient.

Entities:
%s
Relations:
%s
Source passages:
%s
Question: %s`

// LocalOptions tunes entity-centric retrieval.
type LocalOptions struct {
	// MinSimilarity floors the vector seed search. Zero means
	// DefaultMinSimilarity.
	MinSimilarity float64
	// MaxEntities caps the seed set. Zero means DefaultMaxEntities.
	MaxEntities int
	// HopDepth is the neighbourhood expansion radius. Zero means
	// DefaultHopDepth.
	HopDepth int
	// MaxChunks caps the retrieved source passages. Zero means
	// DefaultMaxChunks.
	MaxChunks int
	// Mode selects how seeds are found: keyword (exact name match only),
	// semantic (vector only), or hybrid (both). Empty means hybrid.
	Mode kg.SearchMode
	// Chat options forwarded to the answer model.
	Chat *llm.ChatOptions
}

func (o LocalOptions) minSimilarity() float64 {
	if o.MinSimilarity <= 0 {
		return DefaultMinSimilarity
	}
	return o.MinSimilarity
}

func (o LocalOptions) maxEntities() int {
	if o.MaxEntities <= 0 {
		return DefaultMaxEntities
	}
	return o.MaxEntities
}

func (o LocalOptions) hopDepth() int {
	if o.HopDepth <= 0 {
		return DefaultHopDepth
	}
	return o.HopDepth
}

func (o LocalOptions) maxChunks() int {
	if o.MaxChunks <= 0 {
		return DefaultMaxChunks
	}
	return o.MaxChunks
}

func (o LocalOptions) mode() kg.SearchMode {
	if o.Mode == "" {
		return kg.SearchHybrid
	}
	return o.Mode
}

// seed is one query-relevant entity with its retrieval relevance.
type seed struct {
	entity    *kg.Entity
	relevance float64
}

// LocalEngine answers queries by expanding the graph neighbourhood around
// query-relevant entities.
type LocalEngine struct {
	graph   graphstore.Store
	vectors vectorstore.Store
	client  llm.Client
	opts    LocalOptions
	now     func() time.Time
}

// NewLocalEngine wires a local engine.
func NewLocalEngine(graph graphstore.Store, vectors vectorstore.Store, client llm.Client, opts LocalOptions) *LocalEngine {
	return &LocalEngine{graph: graph, vectors: vectors, client: client, opts: opts, now: time.Now}
}

// Query runs local retrieval: seed resolution, hop expansion, context
// assembly, answer generation, citation attachment.
func (e *LocalEngine) Query(ctx context.Context, q string) (*kg.QueryResponse, error) {
	if strings.TrimSpace(q) == "" {
		return nil, kg.NewValidation("query", "query text is required")
	}

	retrievalStart := e.now()
	seeds, err := e.resolveSeeds(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, kg.NewNotFound("entities matching query", q)
	}

	entities, relations, err := e.expand(ctx, seeds)
	if err != nil {
		return nil, err
	}
	chunks := e.retrieveChunks(ctx, q)
	retrievalMs := e.now().Sub(retrievalStart).Milliseconds()

	generationStart := e.now()
	answer, usage, err := e.generate(ctx, q, entities, relations, chunks)
	if err != nil {
		return nil, err
	}

	response := &kg.QueryResponse{
		Query:     q,
		Answer:    answer,
		QueryType: kg.QueryLocal,
		Citations: assembleCitations(seeds, entities, answer),
		Context: kg.ContextData{
			Entities:   entities,
			Relations:  relations,
			TextChunks: chunks,
		},
		Metrics: kg.QueryMetrics{
			RetrievalMs:  retrievalMs,
			GenerationMs: e.now().Sub(generationStart).Milliseconds(),
			Entities:     len(entities),
			Relations:    len(relations),
			Tokens:       usage.TotalTokens,
		},
		Success: true,
	}
	return response, nil
}

// resolveSeeds combines vector-similar and exact-name-matched entities,
// best-relevance first, capped at MaxEntities.
func (e *LocalEngine) resolveSeeds(ctx context.Context, q string) ([]seed, error) {
	mode := e.opts.mode()
	byID := make(map[string]seed)

	if mode == kg.SearchSemantic || mode == kg.SearchHybrid {
		results, err := vectorstore.SearchText(ctx, e.vectors, e.client, q, e.opts.maxEntities(), vectorstore.Filter{
			Kind:     vectorstore.KindEntity,
			MinScore: e.opts.minSimilarity(),
		})
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			entity, err := e.graph.GetEntity(ctx, r.Document.ID)
			if kg.IsKind(err, kg.KindNotFound) {
				log.Warn("query: vector hit %s has no graph entity", r.Document.ID)
				continue
			}
			if err != nil {
				return nil, err
			}
			byID[entity.ID] = seed{entity: entity, relevance: r.Score}
		}
	}

	if mode == kg.SearchKeyword || mode == kg.SearchHybrid {
		for _, candidate := range nameCandidates(q) {
			matches, err := e.graph.FindByName(ctx, candidate)
			if err != nil {
				return nil, err
			}
			// An exact name mention outranks any similarity score.
			for _, entity := range matches {
				byID[entity.ID] = seed{entity: entity, relevance: 1}
			}
		}
	}

	seeds := make([]seed, 0, len(byID))
	for _, s := range byID {
		seeds = append(seeds, s)
	}
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].relevance != seeds[j].relevance {
			return seeds[i].relevance > seeds[j].relevance
		}
		return seeds[i].entity.ID < seeds[j].entity.ID
	})
	if len(seeds) > e.opts.maxEntities() {
		seeds = seeds[:e.opts.maxEntities()]
	}
	return seeds, nil
}

// expand walks HopDepth hops out from every seed, deduplicating entities and
// relations across seeds.
func (e *LocalEngine) expand(ctx context.Context, seeds []seed) ([]*kg.Entity, []*kg.Relation, error) {
	entityByID := make(map[string]*kg.Entity)
	relationByID := make(map[string]*kg.Relation)
	for _, s := range seeds {
		neighbours, relations, err := e.graph.Neighbours(ctx, s.entity.ID, e.opts.hopDepth(), nil)
		if err != nil {
			return nil, nil, err
		}
		for _, n := range neighbours {
			entityByID[n.ID] = n
		}
		for _, r := range relations {
			relationByID[r.ID] = r
		}
	}

	entities := make([]*kg.Entity, 0, len(entityByID))
	for _, n := range entityByID {
		entities = append(entities, n)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	relations := make([]*kg.Relation, 0, len(relationByID))
	for _, r := range relationByID {
		relations = append(relations, r)
	}
	sort.Slice(relations, func(i, j int) bool { return relations[i].ID < relations[j].ID })
	return entities, relations, nil
}

// retrieveChunks pulls the closest source passages; chunk retrieval failures
// degrade the context instead of failing the query.
func (e *LocalEngine) retrieveChunks(ctx context.Context, q string) []*kg.TextChunk {
	results, err := vectorstore.SearchText(ctx, e.vectors, e.client, q, e.opts.maxChunks(), vectorstore.Filter{
		Kind: vectorstore.KindChunk,
	})
	if err != nil {
		log.Warn("query: chunk retrieval failed: %v", err)
		return nil
	}
	chunks := make([]*kg.TextChunk, len(results))
	for i, r := range results {
		chunks[i] = &kg.TextChunk{
			ID:      r.Document.ID,
			Content: r.Document.Content,
			Metadata: kg.ChunkMetadata{
				DocumentID: r.Document.Metadata["document_id"],
				Title:      r.Document.Metadata["title"],
			},
		}
	}
	return chunks
}

func (e *LocalEngine) generate(ctx context.Context, q string, entities []*kg.Entity, relations []*kg.Relation, chunks []*kg.TextChunk) (string, llm.Usage, error) {
	prompt := fmt.Sprintf(localAnswerPrompt,
		renderEntities(entities), renderRelations(relations, entities), renderChunks(chunks), q)
	result, err := e.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, e.opts.Chat)
	if err != nil {
		return "", llm.Usage{}, kg.Wrap(err, "local answer generation")
	}
	answer := strings.TrimSpace(result.Content)
	if answer == "" {
		return "", result.Usage, kg.NewValidation("response", "model returned an empty answer")
	}
	return answer, result.Usage, nil
}

// assembleCitations cites every seed at its retrieval relevance, plus any
// expanded entity the answer actually names (at half relevance), so answers
// that lean on neighbours still attribute them.
func assembleCitations(seeds []seed, entities []*kg.Entity, answer string) []kg.Citation {
	cited := make(map[string]bool, len(seeds))
	citations := make([]kg.Citation, len(seeds))
	for i, s := range seeds {
		cited[s.entity.ID] = true
		citations[i] = kg.Citation{
			SourceID:   s.entity.ID,
			SourceName: s.entity.Name,
			SourceType: "entity",
			Relevance:  s.relevance,
			Excerpt:    s.entity.Description,
		}
	}

	lowered := strings.ToLower(answer)
	for _, e := range entities {
		if cited[e.ID] || e.Name == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(e.Name)) || strings.Contains(answer, "["+e.ID+"]") {
			citations = append(citations, kg.Citation{
				SourceID:   e.ID,
				SourceName: e.Name,
				SourceType: "entity",
				Relevance:  0.5,
				Excerpt:    e.Description,
			})
		}
	}
	return citations
}

// nameCandidates lists the 1..3-gram phrases of the query worth an exact
// name lookup, skipping short function words.
func nameCandidates(q string) []string {
	words := strings.Fields(q)
	var kept []string
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) > 2 {
			kept = append(kept, w)
		}
	}

	seen := make(map[string]bool)
	var out []string
	for n := 1; n <= 3; n++ {
		for i := 0; i+n <= len(kept); i++ {
			phrase := strings.Join(kept[i:i+n], " ")
			norm := kg.NormalizeName(phrase)
			if norm == "" || seen[norm] {
				continue
			}
			seen[norm] = true
			out = append(out, phrase)
		}
	}
	return out
}

func renderEntities(entities []*kg.Entity) string {
	var b strings.Builder
	for _, e := range entities {
		fmt.Fprintf(&b, "- [%s] %s (%s)", e.ID, e.Name, e.Type)
		if e.Description != "" {
			b.WriteString(": " + e.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderRelations(relations []*kg.Relation, entities []*kg.Entity) string {
	names := make(map[string]string, len(entities))
	for _, e := range entities {
		names[e.ID] = e.Name
	}
	name := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}

	var b strings.Builder
	for _, r := range relations {
		fmt.Fprintf(&b, "- %s -%s-> %s\n", name(r.SourceID), r.Type, name(r.TargetID))
	}
	return b.String()
}

func renderChunks(chunks []*kg.TextChunk) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "[%s] %s\n", c.ID, c.Content)
	}
	return b.String()
}
