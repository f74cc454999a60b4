// Package graphstore is the graph store adapter: idempotent upserts of typed
// nodes and edges, bounded traversal, parameterised query templates, and
// projection handles for the community algorithms.
//
// Two backends ship with the package: MemoryStore, a mutex-guarded in-memory
// graph used by tests and small deployments, and FalkorStore, which speaks
// the FalkorDB GRAPH.QUERY wire protocol over go-redis. The adapter is the
// only component that knows the wire format of the underlying store;
// everything above it works with kg types.
package graphstore

import (
	"context"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// Orientation selects how a projection treats edge direction.
type Orientation string

const (
	Directed   Orientation = "directed"
	Undirected Orientation = "undirected"
)

// RelationFilter restricts traversal to a subset of relation types.
// A nil filter or empty Types slice matches every relation.
type RelationFilter struct {
	Types []kg.RelationType
}

// Matches reports whether the filter admits the given relation type.
func (f *RelationFilter) Matches(t kg.RelationType) bool {
	if f == nil || len(f.Types) == 0 {
		return true
	}
	for _, ft := range f.Types {
		if ft == t {
			return true
		}
	}
	return false
}

// Projection describes a named subgraph handle used by the community
// detector: which entities and relations to include, and whether edges are
// treated as directed.
type Projection struct {
	Name          string
	EntityTypes   []kg.EntityType
	RelationTypes []kg.RelationType
	Orientation   Orientation
}

// WeightedEdge is one adjacency entry of a projected graph.
type WeightedEdge struct {
	Peer   string
	Weight float64
}

// ProjectedGraph is the materialised view handed to graph algorithms:
// node IDs plus an adjacency map. For undirected projections each edge
// appears under both endpoints.
type ProjectedGraph struct {
	Name      string
	Nodes     []string
	Adjacency map[string][]WeightedEdge
}

// Record is one row of a parameterised traversal result.
type Record map[string]any

// Stats summarises the stored graph.
type Stats struct {
	Entities    int                   `json:"entities"`
	Relations   int                   `json:"relations"`
	Communities int                   `json:"communities"`
	ByType      map[kg.EntityType]int `json:"by_type"`
}

// Store is the graph store adapter contract.
//
// UpsertEntity is idempotent: a second call with the same
// (Type, NormalizeName(Name)) merges attributes — new property keys are
// added, existing keys are overwritten only when the incoming confidence is
// higher, provenance sets are unioned, and confidence keeps the maximum.
// UpsertRelation merges by (SourceID, TargetID, Type) with the same
// confidence/provenance rules.
//
// Error kinds: connection failures surface as TransientIO (retryable),
// constraint violations as ConflictingState, unknown traversal templates and
// missing entities as NotFound.
type Store interface {
	UpsertEntity(ctx context.Context, e *kg.Entity) (*kg.Entity, error)
	UpsertRelation(ctx context.Context, r *kg.Relation) (*kg.Relation, error)

	GetEntity(ctx context.Context, id string) (*kg.Entity, error)
	// FindByTypeName resolves the unique entity for (type, normalised name).
	FindByTypeName(ctx context.Context, t kg.EntityType, name string) (*kg.Entity, error)
	// FindByName returns every entity whose normalised name matches,
	// regardless of type.
	FindByName(ctx context.Context, name string) ([]*kg.Entity, error)

	// Neighbours expands up to depth hops from id, returning the entities
	// and relations encountered. depth 0 returns just the start entity.
	Neighbours(ctx context.Context, id string, depth int, filter *RelationFilter) ([]*kg.Entity, []*kg.Relation, error)

	// Traverse runs a registered parameterised template. Raw query strings
	// are never accepted from callers.
	Traverse(ctx context.Context, templateID string, params map[string]any) ([]Record, error)

	CreateProjection(ctx context.Context, p Projection) error
	DropProjection(ctx context.Context, name string) error
	GetProjection(ctx context.Context, name string) (*ProjectedGraph, error)

	// DeleteEntity removes the entity and cascades through its relations.
	DeleteEntity(ctx context.Context, id string) error
	DeleteRelation(ctx context.Context, id string) error

	AllEntities(ctx context.Context) ([]*kg.Entity, error)
	AllRelations(ctx context.Context) ([]*kg.Relation, error)

	UpsertCommunity(ctx context.Context, c *kg.Community) error
	GetCommunity(ctx context.Context, id string) (*kg.Community, error)
	// Communities returns the partition at one level, or every community
	// when level is negative.
	Communities(ctx context.Context, level int) ([]*kg.Community, error)
	// ReplaceCommunities atomically swaps the whole community set for the
	// result of a fresh detection run. Queries racing the swap see either
	// the old partition or the new one, never a mix.
	ReplaceCommunities(ctx context.Context, cs []*kg.Community) error
	// CommunitiesForEntity lists the communities an entity belongs to,
	// one per hierarchy level at most.
	CommunitiesForEntity(ctx context.Context, entityID string) ([]*kg.Community, error)

	GraphStats(ctx context.Context) (*Stats, error)
	Close() error
}

// Traversal template IDs accepted by Traverse. Templates are the only
// querying surface; the backends decide how each one executes.
const (
	TemplateEntitiesByType   = "entities_by_type"   // params: type
	TemplateRelationsByType  = "relations_by_type"  // params: type
	TemplateCommunityMembers = "community_members"  // params: community_id
	TemplateEntityMentions   = "entity_mentions"    // params: chunk_id
	TemplatePublicationYears = "publication_years"  // params: entity_id
)

// knownTemplate reports whether id names a registered template.
func knownTemplate(id string) bool {
	switch id {
	case TemplateEntitiesByType, TemplateRelationsByType,
		TemplateCommunityMembers, TemplateEntityMentions,
		TemplatePublicationYears:
		return true
	}
	return false
}

// mergeEntity applies the upsert merge contract onto an existing entity.
// The incoming entity's attributes win only where the contract says so.
func mergeEntity(existing, incoming *kg.Entity) {
	higher := incoming.Confidence > existing.Confidence

	if incoming.Description != "" && (existing.Description == "" || higher) {
		existing.Description = incoming.Description
	}
	if existing.Properties == nil && len(incoming.Properties) > 0 {
		existing.Properties = make(map[string]any, len(incoming.Properties))
	}
	for k, v := range incoming.Properties {
		if _, ok := existing.Properties[k]; !ok || higher {
			existing.Properties[k] = v
		}
	}
	if len(incoming.Embedding) > 0 {
		existing.Embedding = incoming.Embedding
	}
	existing.SourceChunks = kg.UnionProvenance(existing.SourceChunks, incoming.SourceChunks)
	if higher {
		existing.Confidence = incoming.Confidence
	}
}

// mergeRelation applies the upsert merge contract onto an existing relation:
// maximum confidence, union of provenance, new property keys added.
func mergeRelation(existing, incoming *kg.Relation) {
	if incoming.Confidence > existing.Confidence {
		existing.Confidence = incoming.Confidence
	}
	if existing.Properties == nil && len(incoming.Properties) > 0 {
		existing.Properties = make(map[string]any, len(incoming.Properties))
	}
	for k, v := range incoming.Properties {
		if _, ok := existing.Properties[k]; !ok {
			existing.Properties[k] = v
		}
	}
	existing.SourceChunks = kg.UnionProvenance(existing.SourceChunks, incoming.SourceChunks)
}
