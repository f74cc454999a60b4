package graphstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// MemoryStore is an in-memory Store guarded by a single RWMutex. It backs
// tests and small single-process deployments, and is the reference
// implementation of the upsert merge contract.
type MemoryStore struct {
	mu sync.RWMutex

	entities  map[string]*kg.Entity   // by ID
	byKey     map[string]string       // (type, normalised name) -> ID
	relations map[string]*kg.Relation // by ID
	relByKey  map[string]string       // (source, target, type) -> ID

	// outgoing and incoming adjacency, relation IDs per entity ID.
	outgoing map[string][]string
	incoming map[string][]string

	communities map[string]*kg.Community
	projections map[string]Projection
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:    make(map[string]*kg.Entity),
		byKey:       make(map[string]string),
		relations:   make(map[string]*kg.Relation),
		relByKey:    make(map[string]string),
		outgoing:    make(map[string][]string),
		incoming:    make(map[string][]string),
		communities: make(map[string]*kg.Community),
		projections: make(map[string]Projection),
	}
}

// UpsertEntity implements Store.
func (s *MemoryStore) UpsertEntity(_ context.Context, e *kg.Entity) (*kg.Entity, error) {
	if e == nil || e.Name == "" {
		return nil, kg.NewValidation("name", "entity name is required")
	}
	if !e.Type.Valid() {
		return nil, kg.NewValidation("type", fmt.Sprintf("unknown entity type %q", e.Type))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	key := e.Key()
	if id, ok := s.byKey[key]; ok {
		existing := s.entities[id]
		mergeEntity(existing, e)
		existing.UpdatedAt = now
		return cloneEntity(existing), nil
	}

	stored := cloneEntity(e)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if _, taken := s.entities[stored.ID]; taken {
		return nil, kg.NewConflict(fmt.Sprintf("entity id %q already in use", stored.ID))
	}
	stored.SourceChunks = kg.UnionProvenance(stored.SourceChunks, nil)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.entities[stored.ID] = stored
	s.byKey[key] = stored.ID
	return cloneEntity(stored), nil
}

// UpsertRelation implements Store. Both endpoints must already exist.
func (s *MemoryStore) UpsertRelation(_ context.Context, r *kg.Relation) (*kg.Relation, error) {
	if r == nil || r.SourceID == "" || r.TargetID == "" {
		return nil, kg.NewValidation("relation", "source and target are required")
	}
	if !r.Type.Valid() {
		return nil, kg.NewValidation("type", fmt.Sprintf("unknown relation type %q", r.Type))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[r.SourceID]; !ok {
		return nil, kg.NewNotFound("entity", r.SourceID)
	}
	if _, ok := s.entities[r.TargetID]; !ok {
		return nil, kg.NewNotFound("entity", r.TargetID)
	}

	key := r.Key()
	if id, ok := s.relByKey[key]; ok {
		existing := s.relations[id]
		mergeRelation(existing, r)
		return cloneRelation(existing), nil
	}

	stored := cloneRelation(r)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.SourceChunks = kg.UnionProvenance(stored.SourceChunks, nil)
	stored.CreatedAt = time.Now()
	s.relations[stored.ID] = stored
	s.relByKey[key] = stored.ID
	s.outgoing[stored.SourceID] = append(s.outgoing[stored.SourceID], stored.ID)
	s.incoming[stored.TargetID] = append(s.incoming[stored.TargetID], stored.ID)
	return cloneRelation(stored), nil
}

// GetEntity implements Store.
func (s *MemoryStore) GetEntity(_ context.Context, id string) (*kg.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, kg.NewNotFound("entity", id)
	}
	return cloneEntity(e), nil
}

// FindByTypeName implements Store.
func (s *MemoryStore) FindByTypeName(_ context.Context, t kg.EntityType, name string) (*kg.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[string(t)+":"+kg.NormalizeName(name)]
	if !ok {
		return nil, kg.NewNotFound("entity", name)
	}
	return cloneEntity(s.entities[id]), nil
}

// FindByName implements Store.
func (s *MemoryStore) FindByName(_ context.Context, name string) ([]*kg.Entity, error) {
	norm := kg.NormalizeName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*kg.Entity
	for _, e := range s.entities {
		if kg.NormalizeName(e.Name) == norm {
			out = append(out, cloneEntity(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Neighbours implements Store with a breadth-first expansion.
func (s *MemoryStore) Neighbours(_ context.Context, id string, depth int, filter *RelationFilter) ([]*kg.Entity, []*kg.Relation, error) {
	if depth < 0 {
		return nil, nil, kg.NewValidation("depth", "depth must be non-negative")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start, ok := s.entities[id]
	if !ok {
		return nil, nil, kg.NewNotFound("entity", id)
	}

	seenEntities := map[string]bool{id: true}
	seenRelations := map[string]bool{}
	entities := []*kg.Entity{cloneEntity(start)}
	var relations []*kg.Relation

	frontier := []string{id}
	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, cur := range frontier {
			for _, relID := range append(append([]string{}, s.outgoing[cur]...), s.incoming[cur]...) {
				rel := s.relations[relID]
				if !filter.Matches(rel.Type) {
					continue
				}
				if !seenRelations[relID] {
					seenRelations[relID] = true
					relations = append(relations, cloneRelation(rel))
				}
				peer := rel.TargetID
				if peer == cur {
					peer = rel.SourceID
				}
				if !seenEntities[peer] {
					seenEntities[peer] = true
					entities = append(entities, cloneEntity(s.entities[peer]))
					next = append(next, peer)
				}
			}
		}
		frontier = next
	}
	return entities, relations, nil
}

// Traverse implements Store by interpreting each registered template
// natively against the in-memory maps.
func (s *MemoryStore) Traverse(_ context.Context, templateID string, params map[string]any) ([]Record, error) {
	if !knownTemplate(templateID) {
		return nil, kg.NewNotFound("traversal template", templateID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	switch templateID {
	case TemplateEntitiesByType:
		t, _ := params["type"].(string)
		var out []Record
		for _, e := range s.sortedEntities() {
			if string(e.Type) == t {
				out = append(out, Record{"id": e.ID, "name": e.Name, "confidence": e.Confidence})
			}
		}
		return out, nil

	case TemplateRelationsByType:
		t, _ := params["type"].(string)
		var out []Record
		for _, r := range s.sortedRelations() {
			if string(r.Type) == t {
				out = append(out, Record{"id": r.ID, "source_id": r.SourceID, "target_id": r.TargetID, "confidence": r.Confidence})
			}
		}
		return out, nil

	case TemplateCommunityMembers:
		id, _ := params["community_id"].(string)
		c, ok := s.communities[id]
		if !ok {
			return nil, kg.NewNotFound("community", id)
		}
		var out []Record
		for _, mid := range c.MemberIDs {
			if e, ok := s.entities[mid]; ok {
				out = append(out, Record{"id": e.ID, "name": e.Name, "type": string(e.Type)})
			}
		}
		return out, nil

	case TemplateEntityMentions:
		chunkID, _ := params["chunk_id"].(string)
		var out []Record
		for _, e := range s.sortedEntities() {
			for _, src := range e.SourceChunks {
				if src == chunkID {
					out = append(out, Record{"id": e.ID, "name": e.Name, "type": string(e.Type)})
					break
				}
			}
		}
		return out, nil

	case TemplatePublicationYears:
		id, _ := params["entity_id"].(string)
		e, ok := s.entities[id]
		if !ok {
			return nil, kg.NewNotFound("entity", id)
		}
		var out []Record
		if y, ok := e.Properties["year"]; ok {
			out = append(out, Record{"id": e.ID, "year": y})
		}
		for _, relID := range s.outgoing[id] {
			rel := s.relations[relID]
			if y, ok := rel.Properties["year"]; ok {
				out = append(out, Record{"id": rel.ID, "year": y})
			}
		}
		return out, nil
	}
	return nil, kg.NewNotFound("traversal template", templateID)
}

// CreateProjection implements Store.
func (s *MemoryStore) CreateProjection(_ context.Context, p Projection) error {
	if p.Name == "" {
		return kg.NewValidation("name", "projection name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projections[p.Name]; exists {
		return kg.NewConflict(fmt.Sprintf("projection %q already exists", p.Name))
	}
	s.projections[p.Name] = p
	return nil
}

// DropProjection implements Store.
func (s *MemoryStore) DropProjection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projections[name]; !ok {
		return kg.NewNotFound("projection", name)
	}
	delete(s.projections, name)
	return nil
}

// GetProjection implements Store. The view is materialised on demand from
// the current graph, so it always reflects the latest upserts.
func (s *MemoryStore) GetProjection(_ context.Context, name string) (*ProjectedGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projections[name]
	if !ok {
		return nil, kg.NewNotFound("projection", name)
	}

	entityFilter := make(map[kg.EntityType]bool, len(p.EntityTypes))
	for _, t := range p.EntityTypes {
		entityFilter[t] = true
	}
	relFilter := &RelationFilter{Types: p.RelationTypes}

	admits := func(id string) bool {
		e, ok := s.entities[id]
		if !ok {
			return false
		}
		return len(entityFilter) == 0 || entityFilter[e.Type]
	}

	g := &ProjectedGraph{Name: name, Adjacency: make(map[string][]WeightedEdge)}
	for _, e := range s.sortedEntities() {
		if len(entityFilter) == 0 || entityFilter[e.Type] {
			g.Nodes = append(g.Nodes, e.ID)
		}
	}
	for _, r := range s.sortedRelations() {
		if !relFilter.Matches(r.Type) || !admits(r.SourceID) || !admits(r.TargetID) {
			continue
		}
		w := r.Confidence
		if w <= 0 {
			w = 1
		}
		g.Adjacency[r.SourceID] = append(g.Adjacency[r.SourceID], WeightedEdge{Peer: r.TargetID, Weight: w})
		if p.Orientation != Directed {
			g.Adjacency[r.TargetID] = append(g.Adjacency[r.TargetID], WeightedEdge{Peer: r.SourceID, Weight: w})
		}
	}
	return g, nil
}

// DeleteEntity implements Store, cascading through attached relations.
func (s *MemoryStore) DeleteEntity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return kg.NewNotFound("entity", id)
	}
	for _, relID := range append(append([]string{}, s.outgoing[id]...), s.incoming[id]...) {
		s.removeRelationLocked(relID)
	}
	delete(s.byKey, e.Key())
	delete(s.entities, id)
	delete(s.outgoing, id)
	delete(s.incoming, id)
	return nil
}

// DeleteRelation implements Store.
func (s *MemoryStore) DeleteRelation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relations[id]; !ok {
		return kg.NewNotFound("relation", id)
	}
	s.removeRelationLocked(id)
	return nil
}

func (s *MemoryStore) removeRelationLocked(id string) {
	r, ok := s.relations[id]
	if !ok {
		return
	}
	delete(s.relByKey, r.Key())
	delete(s.relations, id)
	s.outgoing[r.SourceID] = removeID(s.outgoing[r.SourceID], id)
	s.incoming[r.TargetID] = removeID(s.incoming[r.TargetID], id)
}

// AllEntities implements Store, ordered by ID for deterministic export.
func (s *MemoryStore) AllEntities(_ context.Context) ([]*kg.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*kg.Entity, 0, len(s.entities))
	for _, e := range s.sortedEntities() {
		out = append(out, cloneEntity(e))
	}
	return out, nil
}

// AllRelations implements Store, ordered by ID for deterministic export.
func (s *MemoryStore) AllRelations(_ context.Context) ([]*kg.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*kg.Relation, 0, len(s.relations))
	for _, r := range s.sortedRelations() {
		out = append(out, cloneRelation(r))
	}
	return out, nil
}

// UpsertCommunity implements Store.
func (s *MemoryStore) UpsertCommunity(_ context.Context, c *kg.Community) error {
	if c == nil || c.ID == "" {
		return kg.NewValidation("id", "community id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.communities[c.ID] = cloneCommunity(c)
	return nil
}

// GetCommunity implements Store.
func (s *MemoryStore) GetCommunity(_ context.Context, id string) (*kg.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.communities[id]
	if !ok {
		return nil, kg.NewNotFound("community", id)
	}
	return cloneCommunity(c), nil
}

// Communities implements Store.
func (s *MemoryStore) Communities(_ context.Context, level int) ([]*kg.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*kg.Community
	for _, c := range s.communities {
		if level < 0 || c.Level == level {
			out = append(out, cloneCommunity(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ReplaceCommunities implements Store with a single swap under the lock.
func (s *MemoryStore) ReplaceCommunities(_ context.Context, cs []*kg.Community) error {
	fresh := make(map[string]*kg.Community, len(cs))
	for _, c := range cs {
		if c.ID == "" {
			return kg.NewValidation("id", "community id is required")
		}
		fresh[c.ID] = cloneCommunity(c)
	}
	s.mu.Lock()
	s.communities = fresh
	s.mu.Unlock()
	return nil
}

// CommunitiesForEntity implements Store.
func (s *MemoryStore) CommunitiesForEntity(_ context.Context, entityID string) ([]*kg.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*kg.Community
	for _, c := range s.communities {
		for _, mid := range c.MemberIDs {
			if mid == entityID {
				out = append(out, cloneCommunity(c))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GraphStats implements Store.
func (s *MemoryStore) GraphStats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &Stats{
		Entities:    len(s.entities),
		Relations:   len(s.relations),
		Communities: len(s.communities),
		ByType:      make(map[kg.EntityType]int),
	}
	for _, e := range s.entities {
		st.ByType[e.Type]++
	}
	return st, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) sortedEntities() []*kg.Entity {
	out := make([]*kg.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) sortedRelations() []*kg.Relation {
	out := make([]*kg.Relation, 0, len(s.relations))
	for _, r := range s.relations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func cloneEntity(e *kg.Entity) *kg.Entity {
	cp := *e
	if e.Properties != nil {
		cp.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			cp.Properties[k] = v
		}
	}
	cp.Embedding = append([]float32(nil), e.Embedding...)
	cp.SourceChunks = append([]string(nil), e.SourceChunks...)
	return &cp
}

func cloneRelation(r *kg.Relation) *kg.Relation {
	cp := *r
	if r.Properties != nil {
		cp.Properties = make(map[string]any, len(r.Properties))
		for k, v := range r.Properties {
			cp.Properties[k] = v
		}
	}
	cp.SourceChunks = append([]string(nil), r.SourceChunks...)
	return &cp
}

func cloneCommunity(c *kg.Community) *kg.Community {
	cp := *c
	cp.MemberIDs = append([]string(nil), c.MemberIDs...)
	cp.ChildIDs = append([]string(nil), c.ChildIDs...)
	cp.Keywords = append([]string(nil), c.Keywords...)
	return &cp
}
