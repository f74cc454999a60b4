package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yagokoro-dev/yagokoro/community"
	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/query"
	"github.com/yagokoro-dev/yagokoro/vectorstore"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_entities",
		Description: "Search knowledge-graph entities by name or semantic similarity.",
	}, s.handleSearchEntities)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_entity",
		Description: "Create or merge an entity. Merging is idempotent on (type, normalised name).",
	}, s.handleCreateEntity)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_relations",
		Description: "List the relations around an entity, optionally filtered by type.",
	}, s.handleSearchRelations)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_relation",
		Description: "Create or merge a directed relation between two entities.",
	}, s.handleCreateRelation)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "local_search",
		Description: "Entity-centric retrieval: answer from the neighbourhood of query-relevant entities.",
	}, s.handleLocalSearch)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "global_search",
		Description: "Corpus-level retrieval: answer from community summaries via map-reduce.",
	}, s.handleGlobalSearch)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "detect_communities",
		Description: "Re-run hierarchical community detection and swap in the fresh partition.",
	}, s.handleDetectCommunities)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_entity_graph",
		Description: "Return an entity with its neighbourhood subgraph.",
	}, s.handleGetEntityGraph)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "natural_language_query",
		Description: "Answer a free-form question with hybrid local and global retrieval.",
	}, s.handleNaturalLanguageQuery)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "chain_of_thought",
		Description: "Answer a question with explicit reasoning steps grounded in the graph.",
	}, s.handleChainOfThought)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "validate_response",
		Description: "Check an answer for entity names unsupported by the graph.",
	}, s.handleValidateResponse)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "check_consistency",
		Description: "Detect temporal, numeric, and negation contradictions in a claim set.",
	}, s.handleCheckConsistency)
}

// entitySummary is the wire form of an entity in tool outputs.
type entitySummary struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
}

func summarise(e *kg.Entity) entitySummary {
	return entitySummary{
		ID:          e.ID,
		Type:        string(e.Type),
		Name:        e.Name,
		Description: e.Description,
		Confidence:  e.Confidence,
	}
}

type searchEntitiesInput struct {
	Query string `json:"query" jsonschema:"search text, matched by name and embedding"`
	Type  string `json:"type,omitempty" jsonschema:"optional entity type filter"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum results, default 10"`
}

type searchEntitiesOutput struct {
	Entities []entitySummary `json:"entities"`
}

func (s *Server) handleSearchEntities(ctx context.Context, req *mcp.CallToolRequest, in searchEntitiesInput) (*mcp.CallToolResult, searchEntitiesOutput, error) {
	out := searchEntitiesOutput{}
	if err := s.guard(ctx, "read", "entities"); err != nil {
		return nil, out, err
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, out, kg.NewValidation("query", "query is required")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}

	seen := make(map[string]bool)
	admit := func(e *kg.Entity) {
		if seen[e.ID] || len(out.Entities) >= limit {
			return
		}
		if in.Type != "" && string(e.Type) != in.Type {
			return
		}
		seen[e.ID] = true
		out.Entities = append(out.Entities, summarise(e))
	}

	// Exact name matches rank first, then semantic neighbours.
	named, err := s.graph.FindByName(ctx, in.Query)
	if err != nil {
		return nil, out, err
	}
	for _, e := range named {
		admit(e)
	}

	results, err := vectorstore.SearchText(ctx, s.vectors, s.client, in.Query, limit,
		vectorstore.Filter{Kind: vectorstore.KindEntity})
	if err == nil {
		for _, r := range results {
			if e, err := s.graph.GetEntity(ctx, r.Document.ID); err == nil {
				admit(e)
			}
		}
	}
	return nil, out, nil
}

type createEntityInput struct {
	Type        string         `json:"type" jsonschema:"entity type, e.g. AIModel or Organization"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Confidence  float64        `json:"confidence,omitempty" jsonschema:"extraction confidence in [0,1], default 1"`
}

type createEntityOutput struct {
	Entity entitySummary `json:"entity"`
}

func (s *Server) handleCreateEntity(ctx context.Context, req *mcp.CallToolRequest, in createEntityInput) (*mcp.CallToolResult, createEntityOutput, error) {
	out := createEntityOutput{}
	if err := s.guard(ctx, "write", "entities"); err != nil {
		return nil, out, err
	}
	entityType := kg.EntityType(in.Type)
	if !entityType.Valid() {
		return nil, out, kg.NewValidation("type", "unknown entity type "+in.Type)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, out, kg.NewValidation("name", "name is required")
	}
	confidence := in.Confidence
	if confidence <= 0 {
		confidence = 1
	}

	entity, err := s.graph.UpsertEntity(ctx, &kg.Entity{
		Type:        entityType,
		Name:        in.Name,
		Description: in.Description,
		Properties:  in.Properties,
		Confidence:  confidence,
	})
	if err != nil {
		return nil, out, err
	}
	out.Entity = summarise(entity)
	return nil, out, nil
}

type relationSummary struct {
	ID         string  `json:"id"`
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type searchRelationsInput struct {
	EntityID string   `json:"entity_id"`
	Types    []string `json:"types,omitempty" jsonschema:"optional relation type filter"`
}

type searchRelationsOutput struct {
	Relations []relationSummary `json:"relations"`
}

func (s *Server) handleSearchRelations(ctx context.Context, req *mcp.CallToolRequest, in searchRelationsInput) (*mcp.CallToolResult, searchRelationsOutput, error) {
	out := searchRelationsOutput{}
	if err := s.guard(ctx, "read", "relations"); err != nil {
		return nil, out, err
	}

	var filter *graphstore.RelationFilter
	if len(in.Types) > 0 {
		filter = &graphstore.RelationFilter{}
		for _, t := range in.Types {
			filter.Types = append(filter.Types, kg.RelationType(t))
		}
	}
	_, relations, err := s.graph.Neighbours(ctx, in.EntityID, 1, filter)
	if err != nil {
		return nil, out, err
	}
	for _, r := range relations {
		out.Relations = append(out.Relations, relationSummary{
			ID: r.ID, SourceID: r.SourceID, TargetID: r.TargetID,
			Type: string(r.Type), Confidence: r.Confidence,
		})
	}
	return nil, out, nil
}

type createRelationInput struct {
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       string         `json:"type" jsonschema:"relation type, e.g. DEVELOPED_BY"`
	Confidence float64        `json:"confidence,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

type createRelationOutput struct {
	Relation relationSummary `json:"relation"`
}

func (s *Server) handleCreateRelation(ctx context.Context, req *mcp.CallToolRequest, in createRelationInput) (*mcp.CallToolResult, createRelationOutput, error) {
	out := createRelationOutput{}
	if err := s.guard(ctx, "write", "relations"); err != nil {
		return nil, out, err
	}
	relationType := kg.RelationType(in.Type)
	if !relationType.Valid() {
		return nil, out, kg.NewValidation("type", "unknown relation type "+in.Type)
	}
	confidence := in.Confidence
	if confidence <= 0 {
		confidence = 1
	}

	relation, err := s.graph.UpsertRelation(ctx, &kg.Relation{
		SourceID:   in.SourceID,
		TargetID:   in.TargetID,
		Type:       relationType,
		Confidence: confidence,
		Properties: in.Properties,
	})
	if err != nil {
		return nil, out, err
	}
	out.Relation = relationSummary{
		ID: relation.ID, SourceID: relation.SourceID, TargetID: relation.TargetID,
		Type: string(relation.Type), Confidence: relation.Confidence,
	}
	return nil, out, nil
}

type queryInput struct {
	Query string `json:"query"`
}

func (s *Server) handleLocalSearch(ctx context.Context, req *mcp.CallToolRequest, in queryInput) (*mcp.CallToolResult, *kg.QueryResponse, error) {
	if err := s.guard(ctx, "read", "search"); err != nil {
		return nil, nil, err
	}
	resp, err := s.local.Query(ctx, in.Query)
	return nil, resp, err
}

func (s *Server) handleGlobalSearch(ctx context.Context, req *mcp.CallToolRequest, in queryInput) (*mcp.CallToolResult, *kg.QueryResponse, error) {
	if err := s.guard(ctx, "read", "search"); err != nil {
		return nil, nil, err
	}
	resp, err := s.global.Query(ctx, in.Query)
	return nil, resp, err
}

func (s *Server) handleNaturalLanguageQuery(ctx context.Context, req *mcp.CallToolRequest, in queryInput) (*mcp.CallToolResult, *kg.QueryResponse, error) {
	if err := s.guard(ctx, "read", "search"); err != nil {
		return nil, nil, err
	}
	resp, err := s.hybrid.Query(ctx, in.Query)
	return nil, resp, err
}

type detectCommunitiesInput struct {
	MinSize   int  `json:"min_size,omitempty" jsonschema:"minimum community size, default 2"`
	MaxLevels int  `json:"max_levels,omitempty" jsonschema:"hierarchy depth, default 3"`
	Summarize bool `json:"summarize,omitempty" jsonschema:"also summarise the level-0 partition"`
}

type detectCommunitiesOutput struct {
	Communities int `json:"communities"`
	Summarized  int `json:"summarized,omitempty"`
}

func (s *Server) handleDetectCommunities(ctx context.Context, req *mcp.CallToolRequest, in detectCommunitiesInput) (*mcp.CallToolResult, detectCommunitiesOutput, error) {
	out := detectCommunitiesOutput{}
	if err := s.guard(ctx, "write", "communities"); err != nil {
		return nil, out, err
	}

	detector := community.NewDetector(s.graph, community.Options{
		MinCommunitySize: in.MinSize,
		MaxLevels:        in.MaxLevels,
	})
	communities, err := detector.Run(ctx, graphstore.Projection{
		Name:        "mcp-detect",
		Orientation: graphstore.Undirected,
	})
	if err != nil {
		return nil, out, err
	}
	out.Communities = len(communities)

	if in.Summarize {
		summarized, err := s.summarizer.SummarizeLevel(ctx, 0, false)
		if err != nil {
			return nil, out, err
		}
		out.Summarized = summarized
	}
	return nil, out, nil
}

type entityGraphInput struct {
	EntityID string `json:"entity_id"`
	Depth    int    `json:"depth,omitempty" jsonschema:"neighbourhood radius, default 1, max 3"`
}

type entityGraphOutput struct {
	Root  entitySummary     `json:"root"`
	Nodes []entitySummary   `json:"nodes"`
	Edges []relationSummary `json:"edges"`
}

func (s *Server) handleGetEntityGraph(ctx context.Context, req *mcp.CallToolRequest, in entityGraphInput) (*mcp.CallToolResult, entityGraphOutput, error) {
	out := entityGraphOutput{}
	if err := s.guard(ctx, "read", "entities"); err != nil {
		return nil, out, err
	}

	root, err := s.graph.GetEntity(ctx, in.EntityID)
	if err != nil {
		return nil, out, err
	}
	depth := in.Depth
	if depth <= 0 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}
	neighbours, relations, err := s.graph.Neighbours(ctx, in.EntityID, depth, nil)
	if err != nil {
		return nil, out, err
	}

	out.Root = summarise(root)
	for _, e := range neighbours {
		out.Nodes = append(out.Nodes, summarise(e))
	}
	for _, r := range relations {
		out.Edges = append(out.Edges, relationSummary{
			ID: r.ID, SourceID: r.SourceID, TargetID: r.TargetID,
			Type: string(r.Type), Confidence: r.Confidence,
		})
	}
	return nil, out, nil
}

const chainOfThoughtPrompt = `Answer the question by reasoning step by step over the context below. Use only facts from the context.

Return a JSON object only, no prose:
{"steps": ["...", "..."], "answer": "..."}

Context:
%s
Question: %s`

type chainOfThoughtOutput struct {
	Steps  []string `json:"steps"`
	Answer string   `json:"answer"`
}

func (s *Server) handleChainOfThought(ctx context.Context, req *mcp.CallToolRequest, in queryInput) (*mcp.CallToolResult, chainOfThoughtOutput, error) {
	out := chainOfThoughtOutput{}
	if err := s.guard(ctx, "read", "search"); err != nil {
		return nil, out, err
	}

	// Ground the reasoning in local retrieval context.
	resp, err := s.local.Query(ctx, in.Query)
	if err != nil {
		return nil, out, err
	}
	var facts strings.Builder
	for _, e := range resp.Context.Entities {
		fmt.Fprintf(&facts, "- %s (%s): %s\n", e.Name, e.Type, e.Description)
	}
	for _, r := range resp.Context.Relations {
		fmt.Fprintf(&facts, "- %s %s %s\n", r.SourceID, r.Type, r.TargetID)
	}

	prompt := fmt.Sprintf(chainOfThoughtPrompt, facts.String(), in.Query)
	result, err := s.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil)
	if err != nil {
		return nil, out, kg.Wrap(err, "chain of thought generation")
	}
	if err := json.Unmarshal([]byte(stripCodeFence(result.Content)), &out); err != nil || out.Answer == "" {
		// Degrade to the retrieval answer without explicit steps.
		out = chainOfThoughtOutput{Answer: resp.Answer}
	}
	return nil, out, nil
}

type validateResponseInput struct {
	Answer string `json:"answer" jsonschema:"the generated answer to validate against the graph"`
}

type validateResponseOutput struct {
	Valid       bool     `json:"valid"`
	Unsupported []string `json:"unsupported,omitempty"`
}

func (s *Server) handleValidateResponse(ctx context.Context, req *mcp.CallToolRequest, in validateResponseInput) (*mcp.CallToolResult, validateResponseOutput, error) {
	out := validateResponseOutput{}
	if err := s.guard(ctx, "read", "search"); err != nil {
		return nil, out, err
	}
	if strings.TrimSpace(in.Answer) == "" {
		return nil, out, kg.NewValidation("answer", "answer is required")
	}

	entities, err := s.graph.AllEntities(ctx)
	if err != nil {
		return nil, out, err
	}
	out.Unsupported = query.ValidateAnswer(in.Answer, kg.ContextData{Entities: entities})
	out.Valid = len(out.Unsupported) == 0
	return nil, out, nil
}

type checkConsistencyInput struct {
	Claims []string `json:"claims"`
}

func (s *Server) handleCheckConsistency(ctx context.Context, req *mcp.CallToolRequest, in checkConsistencyInput) (*mcp.CallToolResult, *query.ConsistencyResult, error) {
	if err := s.guard(ctx, "read", "search"); err != nil {
		return nil, nil, err
	}
	if len(in.Claims) == 0 {
		return nil, nil, kg.NewValidation("claims", "at least one claim is required")
	}
	return nil, query.CheckConsistency(in.Claims), nil
}

// stripCodeFence removes a surrounding markdown code fence from a model
// reply.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
