package mcpserver

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yagokoro-dev/yagokoro/kg"
)

const (
	resourceSchema     = "yagokoro://ontology/schema"
	resourceStatistics = "yagokoro://graph/statistics"
	resourceEntities   = "yagokoro://graph/entities"
	resourceTimeline   = "yagokoro://graph/timeline"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         resourceSchema,
		Name:        "Ontology schema",
		Description: "The closed entity and relation type sets of the knowledge graph.",
		MIMEType:    "application/json",
	}, s.readSchema)
	s.mcp.AddResource(&mcp.Resource{
		URI:         resourceStatistics,
		Name:        "Graph statistics",
		Description: "Entity, relation, and community counts, broken down by entity type.",
		MIMEType:    "application/json",
	}, s.readStatistics)
	s.mcp.AddResource(&mcp.Resource{
		URI:         resourceEntities,
		Name:        "Entity listing",
		Description: "Every entity in the graph, sorted by type then name.",
		MIMEType:    "application/json",
	}, s.readEntities)
	s.mcp.AddResource(&mcp.Resource{
		URI:         resourceTimeline,
		Name:        "Publication timeline",
		Description: "Publication entities grouped by year.",
		MIMEType:    "application/json",
	}, s.readTimeline)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, kg.NewFatal("encode resource "+uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/json", Text: string(data)},
		},
	}, nil
}

func (s *Server) readSchema(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if err := s.guard(ctx, "read", "entities"); err != nil {
		return nil, err
	}
	return jsonResource(resourceSchema, map[string]any{
		"entity_types":   kg.AllEntityTypes,
		"relation_types": kg.AllRelationTypes,
	})
}

func (s *Server) readStatistics(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if err := s.guard(ctx, "read", "entities"); err != nil {
		return nil, err
	}
	stats, err := s.graph.GraphStats(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(resourceStatistics, stats)
}

func (s *Server) readEntities(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if err := s.guard(ctx, "read", "entities"); err != nil {
		return nil, err
	}
	entities, err := s.graph.AllEntities(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Type != entities[j].Type {
			return entities[i].Type < entities[j].Type
		}
		return entities[i].Name < entities[j].Name
	})
	listing := make([]entitySummary, 0, len(entities))
	for _, e := range entities {
		listing = append(listing, summarise(e))
	}
	return jsonResource(resourceEntities, listing)
}

// timelineEntry is one year bucket of the publication timeline.
type timelineEntry struct {
	Year   int      `json:"year"`
	Titles []string `json:"titles"`
}

func (s *Server) readTimeline(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if err := s.guard(ctx, "read", "entities"); err != nil {
		return nil, err
	}
	entities, err := s.graph.AllEntities(ctx)
	if err != nil {
		return nil, err
	}

	byYear := make(map[int][]string)
	for _, e := range entities {
		if e.Type != kg.EntityPublication {
			continue
		}
		year, ok := publicationYear(e)
		if !ok {
			continue
		}
		byYear[year] = append(byYear[year], e.Name)
	}

	timeline := make([]timelineEntry, 0, len(byYear))
	for year, titles := range byYear {
		sort.Strings(titles)
		timeline = append(timeline, timelineEntry{Year: year, Titles: titles})
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Year < timeline[j].Year })
	return jsonResource(resourceTimeline, timeline)
}

// publicationYear reads the year property, tolerating the numeric types JSON
// decoding produces.
func publicationYear(e *kg.Entity) (int, bool) {
	switch v := e.Properties["year"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
