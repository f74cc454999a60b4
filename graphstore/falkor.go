package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// FalkorConfig configures a FalkorDB-backed store.
type FalkorConfig struct {
	Addr     string
	Password string
	Graph    string
}

// ParseFalkorURL parses a falkordb://host:port/graph connection string.
func ParseFalkorURL(connectionString string) (FalkorConfig, error) {
	u, err := url.Parse(connectionString)
	if err != nil {
		return FalkorConfig{}, kg.NewValidation("url", "invalid connection string: "+err.Error())
	}
	if u.Host == "" {
		return FalkorConfig{}, kg.NewValidation("url", "connection string is missing a host")
	}
	cfg := FalkorConfig{Addr: u.Host, Graph: strings.TrimPrefix(u.Path, "/")}
	if cfg.Graph == "" {
		cfg.Graph = "yagokoro"
	}
	if u.User != nil {
		cfg.Password, _ = u.User.Password()
	}
	return cfg, nil
}

// FalkorStore implements Store against FalkorDB over the GRAPH.QUERY wire
// protocol. Nodes are labelled with the entity type and carry every entity
// attribute as a property; edges carry their endpoints as properties so rows
// can be decoded without resolving internal graph IDs.
//
// Upserts are read-merge-write: the merge contract is applied client-side
// and the result written with MERGE ... SET. Concurrent upserts of the same
// key serialise on the server; the later write carries the union.
//
// ReplaceCommunities stages the new partition under a shadow label and
// promotes it with a single statement that deletes the old layer and flips
// the label, so readers matching :Community see either the old partition or
// the new one.
type FalkorStore struct {
	client redis.UniversalClient
	graph  string
}

var _ Store = (*FalkorStore)(nil)

// NewFalkorStore connects to FalkorDB.
func NewFalkorStore(cfg FalkorConfig) *FalkorStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})
	graph := cfg.Graph
	if graph == "" {
		graph = "yagokoro"
	}
	return &FalkorStore{client: client, graph: graph}
}

// NewFalkorStoreWithClient wraps an existing redis client, used by tests.
func NewFalkorStoreWithClient(client redis.UniversalClient, graph string) *FalkorStore {
	return &FalkorStore{client: client, graph: graph}
}

// UpsertEntity implements Store.
func (s *FalkorStore) UpsertEntity(ctx context.Context, e *kg.Entity) (*kg.Entity, error) {
	if e == nil || e.Name == "" {
		return nil, kg.NewValidation("name", "entity name is required")
	}
	if !e.Type.Valid() {
		return nil, kg.NewValidation("type", fmt.Sprintf("unknown entity type %q", e.Type))
	}

	now := time.Now()
	stored := cloneEntity(e)
	existing, err := s.FindByTypeName(ctx, e.Type, e.Name)
	switch {
	case err == nil:
		mergeEntity(existing, e)
		existing.UpdatedAt = now
		stored = existing
	case kg.IsKind(err, kg.KindNotFound):
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		stored.SourceChunks = kg.UnionProvenance(stored.SourceChunks, nil)
		stored.CreatedAt = now
		stored.UpdatedAt = now
	default:
		return nil, err
	}

	props, err := entityProps(stored)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("MERGE (n:%s {id: %s}) SET n += %s",
		sanitizeLabel(string(stored.Type)), cypherString(stored.ID), props)
	if _, err := s.query(ctx, q); err != nil {
		return nil, err
	}
	return stored, nil
}

// UpsertRelation implements Store.
func (s *FalkorStore) UpsertRelation(ctx context.Context, r *kg.Relation) (*kg.Relation, error) {
	if r == nil || r.SourceID == "" || r.TargetID == "" {
		return nil, kg.NewValidation("relation", "source and target are required")
	}
	if !r.Type.Valid() {
		return nil, kg.NewValidation("type", fmt.Sprintf("unknown relation type %q", r.Type))
	}
	if _, err := s.GetEntity(ctx, r.SourceID); err != nil {
		return nil, err
	}
	if _, err := s.GetEntity(ctx, r.TargetID); err != nil {
		return nil, err
	}

	stored := cloneRelation(r)
	existing, err := s.findRelationByKey(ctx, r)
	switch {
	case err == nil:
		mergeRelation(existing, r)
		stored = existing
	case kg.IsKind(err, kg.KindNotFound):
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		stored.SourceChunks = kg.UnionProvenance(stored.SourceChunks, nil)
		stored.CreatedAt = time.Now()
	default:
		return nil, err
	}

	props, err := relationProps(stored)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(
		"MATCH (a {id: %s}), (b {id: %s}) MERGE (a)-[r:%s]->(b) SET r += %s",
		cypherString(stored.SourceID), cypherString(stored.TargetID),
		sanitizeLabel(string(stored.Type)), props)
	if _, err := s.query(ctx, q); err != nil {
		return nil, err
	}
	return stored, nil
}

// GetEntity implements Store.
func (s *FalkorStore) GetEntity(ctx context.Context, id string) (*kg.Entity, error) {
	qr, err := s.query(ctx, fmt.Sprintf("MATCH (n {id: %s}) RETURN n", cypherString(id)))
	if err != nil {
		return nil, err
	}
	if len(qr.rows) == 0 || len(qr.rows[0]) == 0 {
		return nil, kg.NewNotFound("entity", id)
	}
	e := parseEntityNode(qr.rows[0][0])
	if e == nil {
		return nil, kg.NewFatal("unparseable node in graph response", nil)
	}
	return e, nil
}

// FindByTypeName implements Store.
func (s *FalkorStore) FindByTypeName(ctx context.Context, t kg.EntityType, name string) (*kg.Entity, error) {
	q := fmt.Sprintf("MATCH (n:%s {norm_name: %s}) RETURN n LIMIT 1",
		sanitizeLabel(string(t)), cypherString(kg.NormalizeName(name)))
	qr, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(qr.rows) == 0 || len(qr.rows[0]) == 0 {
		return nil, kg.NewNotFound("entity", name)
	}
	e := parseEntityNode(qr.rows[0][0])
	if e == nil {
		return nil, kg.NewFatal("unparseable node in graph response", nil)
	}
	return e, nil
}

// FindByName implements Store.
func (s *FalkorStore) FindByName(ctx context.Context, name string) ([]*kg.Entity, error) {
	q := fmt.Sprintf("MATCH (n {norm_name: %s}) RETURN n",
		cypherString(kg.NormalizeName(name)))
	qr, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	var out []*kg.Entity
	for _, row := range qr.rows {
		if len(row) == 0 {
			continue
		}
		if e := parseEntityNode(row[0]); e != nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Neighbours implements Store with one single-hop query per depth level, so
// edge rows decode with their endpoints and the relation filter applies on
// every hop.
func (s *FalkorStore) Neighbours(ctx context.Context, id string, depth int, filter *RelationFilter) ([]*kg.Entity, []*kg.Relation, error) {
	if depth < 0 {
		return nil, nil, kg.NewValidation("depth", "depth must be non-negative")
	}
	start, err := s.GetEntity(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	seenEntities := map[string]bool{id: true}
	seenRelations := map[string]bool{}
	entities := []*kg.Entity{start}
	var relations []*kg.Relation

	frontier := []string{id}
	for d := 0; d < depth && len(frontier) > 0; d++ {
		ids := make([]string, len(frontier))
		for i, f := range frontier {
			ids[i] = cypherString(f)
		}
		q := fmt.Sprintf("MATCH (n)-[r]-(m) WHERE n.id IN [%s] RETURN r, m",
			strings.Join(ids, ", "))
		qr, err := s.query(ctx, q)
		if err != nil {
			return nil, nil, err
		}

		var next []string
		for _, row := range qr.rows {
			if len(row) < 2 {
				continue
			}
			rel := parseRelationEdge(row[0])
			peer := parseEntityNode(row[1])
			if rel == nil || peer == nil || !filter.Matches(rel.Type) {
				continue
			}
			if !seenRelations[rel.ID] {
				seenRelations[rel.ID] = true
				relations = append(relations, rel)
			}
			if !seenEntities[peer.ID] {
				seenEntities[peer.ID] = true
				entities = append(entities, peer)
				next = append(next, peer.ID)
			}
		}
		frontier = next
	}
	return entities, relations, nil
}

// Traverse implements Store. Each template expands into a fixed Cypher shape
// with validated, escaped parameters.
func (s *FalkorStore) Traverse(ctx context.Context, templateID string, params map[string]any) ([]Record, error) {
	if !knownTemplate(templateID) {
		return nil, kg.NewNotFound("traversal template", templateID)
	}

	strParam := func(key string) string {
		v, _ := params[key].(string)
		return v
	}

	var q string
	var cols []string
	switch templateID {
	case TemplateEntitiesByType:
		t := kg.EntityType(strParam("type"))
		if !t.Valid() {
			return nil, kg.NewValidation("type", fmt.Sprintf("unknown entity type %q", t))
		}
		q = fmt.Sprintf("MATCH (n:%s) RETURN n.id, n.name, n.confidence ORDER BY n.id",
			sanitizeLabel(string(t)))
		cols = []string{"id", "name", "confidence"}

	case TemplateRelationsByType:
		t := kg.RelationType(strParam("type"))
		if !t.Valid() {
			return nil, kg.NewValidation("type", fmt.Sprintf("unknown relation type %q", t))
		}
		q = fmt.Sprintf("MATCH ()-[r:%s]->() RETURN r.id, r.source_id, r.target_id, r.confidence ORDER BY r.id",
			sanitizeLabel(string(t)))
		cols = []string{"id", "source_id", "target_id", "confidence"}

	case TemplateCommunityMembers:
		q = fmt.Sprintf("MATCH (n)-[:BELONGS_TO]->(c:Community {id: %s}) RETURN n.id, n.name, n.type ORDER BY n.id",
			cypherString(strParam("community_id")))
		cols = []string{"id", "name", "type"}

	case TemplateEntityMentions:
		q = fmt.Sprintf("MATCH (n) WHERE %s IN n.source_chunks RETURN n.id, n.name, n.type ORDER BY n.id",
			cypherString(strParam("chunk_id")))
		cols = []string{"id", "name", "type"}

	case TemplatePublicationYears:
		q = fmt.Sprintf("MATCH (n {id: %s})-[r]->() WHERE r.year IS NOT NULL RETURN r.id, r.year",
			cypherString(strParam("entity_id")))
		cols = []string{"id", "year"}
	}

	qr, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(qr.rows))
	for _, row := range qr.rows {
		rec := Record{}
		for i, col := range cols {
			if i < len(row) {
				rec[col] = scalarValue(row[i])
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// CreateProjection implements Store by recording the projection spec in a
// dedicated node. The view itself is materialised by GetProjection.
func (s *FalkorStore) CreateProjection(ctx context.Context, p Projection) error {
	if p.Name == "" {
		return kg.NewValidation("name", "projection name is required")
	}
	existing, err := s.projectionSpec(ctx, p.Name)
	if err != nil && !kg.IsKind(err, kg.KindNotFound) {
		return err
	}
	if existing != nil {
		return kg.NewConflict(fmt.Sprintf("projection %q already exists", p.Name))
	}
	spec, err := json.Marshal(p)
	if err != nil {
		return kg.NewFatal("encode projection spec", err)
	}
	q := fmt.Sprintf("CREATE (:ProjectionSpec {name: %s, spec: %s})",
		cypherString(p.Name), cypherString(string(spec)))
	_, err = s.query(ctx, q)
	return err
}

// DropProjection implements Store.
func (s *FalkorStore) DropProjection(ctx context.Context, name string) error {
	if _, err := s.projectionSpec(ctx, name); err != nil {
		return err
	}
	q := fmt.Sprintf("MATCH (p:ProjectionSpec {name: %s}) DELETE p", cypherString(name))
	_, err := s.query(ctx, q)
	return err
}

// GetProjection implements Store.
func (s *FalkorStore) GetProjection(ctx context.Context, name string) (*ProjectedGraph, error) {
	p, err := s.projectionSpec(ctx, name)
	if err != nil {
		return nil, err
	}

	entityFilter := make(map[kg.EntityType]bool, len(p.EntityTypes))
	for _, t := range p.EntityTypes {
		entityFilter[t] = true
	}
	relFilter := &RelationFilter{Types: p.RelationTypes}

	entities, err := s.AllEntities(ctx)
	if err != nil {
		return nil, err
	}
	relations, err := s.AllRelations(ctx)
	if err != nil {
		return nil, err
	}

	admitted := make(map[string]bool, len(entities))
	g := &ProjectedGraph{Name: name, Adjacency: make(map[string][]WeightedEdge)}
	for _, e := range entities {
		if len(entityFilter) == 0 || entityFilter[e.Type] {
			admitted[e.ID] = true
			g.Nodes = append(g.Nodes, e.ID)
		}
	}
	for _, r := range relations {
		if !relFilter.Matches(r.Type) || !admitted[r.SourceID] || !admitted[r.TargetID] {
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

// DeleteEntity implements Store. DETACH DELETE cascades the edges.
func (s *FalkorStore) DeleteEntity(ctx context.Context, id string) error {
	if _, err := s.GetEntity(ctx, id); err != nil {
		return err
	}
	_, err := s.query(ctx, fmt.Sprintf("MATCH (n {id: %s}) DETACH DELETE n", cypherString(id)))
	return err
}

// DeleteRelation implements Store.
func (s *FalkorStore) DeleteRelation(ctx context.Context, id string) error {
	qr, err := s.query(ctx, fmt.Sprintf("MATCH ()-[r {id: %s}]->() RETURN r.id", cypherString(id)))
	if err != nil {
		return err
	}
	if len(qr.rows) == 0 {
		return kg.NewNotFound("relation", id)
	}
	_, err = s.query(ctx, fmt.Sprintf("MATCH ()-[r {id: %s}]->() DELETE r", cypherString(id)))
	return err
}

// AllEntities implements Store.
func (s *FalkorStore) AllEntities(ctx context.Context) ([]*kg.Entity, error) {
	qr, err := s.query(ctx, "MATCH (n) WHERE n.norm_name IS NOT NULL RETURN n")
	if err != nil {
		return nil, err
	}
	out := make([]*kg.Entity, 0, len(qr.rows))
	for _, row := range qr.rows {
		if len(row) == 0 {
			continue
		}
		if e := parseEntityNode(row[0]); e != nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AllRelations implements Store.
func (s *FalkorStore) AllRelations(ctx context.Context) ([]*kg.Relation, error) {
	qr, err := s.query(ctx, "MATCH ()-[r]->() WHERE r.source_id IS NOT NULL RETURN r")
	if err != nil {
		return nil, err
	}
	out := make([]*kg.Relation, 0, len(qr.rows))
	for _, row := range qr.rows {
		if len(row) == 0 {
			continue
		}
		if r := parseRelationEdge(row[0]); r != nil {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertCommunity implements Store.
func (s *FalkorStore) UpsertCommunity(ctx context.Context, c *kg.Community) error {
	if c == nil || c.ID == "" {
		return kg.NewValidation("id", "community id is required")
	}
	props, err := communityProps(c)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("MERGE (c:Community {id: %s}) SET c += %s", cypherString(c.ID), props)
	if _, err := s.query(ctx, q); err != nil {
		return err
	}
	for _, mid := range c.MemberIDs {
		link := fmt.Sprintf(
			"MATCH (n {id: %s}), (c:Community {id: %s}) MERGE (n)-[:BELONGS_TO]->(c)",
			cypherString(mid), cypherString(c.ID))
		if _, err := s.query(ctx, link); err != nil {
			return err
		}
	}
	return nil
}

// GetCommunity implements Store.
func (s *FalkorStore) GetCommunity(ctx context.Context, id string) (*kg.Community, error) {
	qr, err := s.query(ctx, fmt.Sprintf("MATCH (c:Community {id: %s}) RETURN c", cypherString(id)))
	if err != nil {
		return nil, err
	}
	if len(qr.rows) == 0 || len(qr.rows[0]) == 0 {
		return nil, kg.NewNotFound("community", id)
	}
	c := parseCommunityNode(qr.rows[0][0])
	if c == nil {
		return nil, kg.NewFatal("unparseable community node", nil)
	}
	return c, nil
}

// Communities implements Store.
func (s *FalkorStore) Communities(ctx context.Context, level int) ([]*kg.Community, error) {
	q := "MATCH (c:Community) RETURN c"
	if level >= 0 {
		q = fmt.Sprintf("MATCH (c:Community {level: %d}) RETURN c", level)
	}
	qr, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	var out []*kg.Community
	for _, row := range qr.rows {
		if len(row) == 0 {
			continue
		}
		if c := parseCommunityNode(row[0]); c != nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// communityPromote retires the live community layer and relabels the staged
// shadow set in one statement. Each GRAPH.QUERY statement executes
// atomically, so no reader observes the layer mid-swap.
const communityPromote = "OPTIONAL MATCH (old:Community) DETACH DELETE old " +
	"WITH count(*) AS _ " +
	"MATCH (c:CommunityShadow) SET c:Community REMOVE c:CommunityShadow"

// communityStageStatements renders the MERGE statements that stage one
// community and its membership edges under the shadow label.
func communityStageStatements(c *kg.Community) ([]string, error) {
	if c == nil || c.ID == "" {
		return nil, kg.NewValidation("id", "community id is required")
	}
	props, err := communityProps(c)
	if err != nil {
		return nil, err
	}
	stmts := []string{fmt.Sprintf("MERGE (c:CommunityShadow {id: %s}) SET c += %s",
		cypherString(c.ID), props)}
	for _, mid := range c.MemberIDs {
		stmts = append(stmts, fmt.Sprintf(
			"MATCH (n {id: %s}), (c:CommunityShadow {id: %s}) MERGE (n)-[:BELONGS_TO]->(c)",
			cypherString(mid), cypherString(c.ID)))
	}
	return stmts, nil
}

// ReplaceCommunities implements Store. The new partition is built into a
// shadow set first; the live :Community layer is only touched by the final
// promote statement.
func (s *FalkorStore) ReplaceCommunities(ctx context.Context, cs []*kg.Community) error {
	// Clear any shadow left by an aborted swap.
	if _, err := s.query(ctx, "MATCH (c:CommunityShadow) DETACH DELETE c"); err != nil {
		return err
	}
	for _, c := range cs {
		stmts, err := communityStageStatements(c)
		if err != nil {
			return err
		}
		for _, q := range stmts {
			if _, err := s.query(ctx, q); err != nil {
				return err
			}
		}
	}
	_, err := s.query(ctx, communityPromote)
	return err
}

// CommunitiesForEntity implements Store.
func (s *FalkorStore) CommunitiesForEntity(ctx context.Context, entityID string) ([]*kg.Community, error) {
	q := fmt.Sprintf("MATCH (n {id: %s})-[:BELONGS_TO]->(c:Community) RETURN c",
		cypherString(entityID))
	qr, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	var out []*kg.Community
	for _, row := range qr.rows {
		if len(row) == 0 {
			continue
		}
		if c := parseCommunityNode(row[0]); c != nil {
			out = append(out, c)
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
func (s *FalkorStore) GraphStats(ctx context.Context) (*Stats, error) {
	entities, err := s.AllEntities(ctx)
	if err != nil {
		return nil, err
	}
	relations, err := s.AllRelations(ctx)
	if err != nil {
		return nil, err
	}
	communities, err := s.Communities(ctx, -1)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		Entities:    len(entities),
		Relations:   len(relations),
		Communities: len(communities),
		ByType:      make(map[kg.EntityType]int),
	}
	for _, e := range entities {
		st.ByType[e.Type]++
	}
	return st, nil
}

// Close implements Store.
func (s *FalkorStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *FalkorStore) findRelationByKey(ctx context.Context, r *kg.Relation) (*kg.Relation, error) {
	q := fmt.Sprintf("MATCH (a {id: %s})-[r:%s]->(b {id: %s}) RETURN r LIMIT 1",
		cypherString(r.SourceID), sanitizeLabel(string(r.Type)), cypherString(r.TargetID))
	qr, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(qr.rows) == 0 || len(qr.rows[0]) == 0 {
		return nil, kg.NewNotFound("relation", r.Key())
	}
	rel := parseRelationEdge(qr.rows[0][0])
	if rel == nil {
		return nil, kg.NewFatal("unparseable edge in graph response", nil)
	}
	return rel, nil
}

func (s *FalkorStore) projectionSpec(ctx context.Context, name string) (*Projection, error) {
	q := fmt.Sprintf("MATCH (p:ProjectionSpec {name: %s}) RETURN p.spec LIMIT 1", cypherString(name))
	qr, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(qr.rows) == 0 || len(qr.rows[0]) == 0 {
		return nil, kg.NewNotFound("projection", name)
	}
	raw, _ := scalarValue(qr.rows[0][0]).(string)
	var p Projection
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, kg.NewFatal("decode projection spec", err)
	}
	return &p, nil
}
