package ingest

import (
	"sort"

	"github.com/yagokoro-dev/yagokoro/community"
	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
)

// DefaultMinEdgeWeight prunes weak co-occurrence edges before community
// detection.
const DefaultMinEdgeWeight = 0.1

// TopConceptsPerCommunity bounds the per-community concept ranking.
const TopConceptsPerCommunity = 5

// BuildOptions tunes concept-graph construction.
type BuildOptions struct {
	// MinEdgeWeight drops co-occurrence edges weaker than the threshold.
	// Zero means DefaultMinEdgeWeight.
	MinEdgeWeight float64
	// Community forwards detection options (levels, minimum size).
	Community community.Options
}

func (o BuildOptions) minEdgeWeight() float64 {
	if o.MinEdgeWeight <= 0 {
		return DefaultMinEdgeWeight
	}
	return o.MinEdgeWeight
}

// ConceptGraphBuilder assembles the weighted concept graph with its
// community partition and chunk reverse indexes.
type ConceptGraphBuilder struct{}

// NewConceptGraphBuilder creates a builder.
func NewConceptGraphBuilder() *ConceptGraphBuilder {
	return &ConceptGraphBuilder{}
}

// Build links concepts by co-occurrence strength, detects hierarchical
// communities over the resulting undirected graph, and indexes concepts by
// chunk in both directions. TopConcepts ranks each community's members by
// weighted degree centrality.
func (b *ConceptGraphBuilder) Build(concepts []*kg.Concept, cooccs []*kg.ConceptCooccurrence, chunks []*kg.TextChunk, opts BuildOptions) (*kg.ConceptGraph, error) {
	if len(concepts) == 0 {
		return nil, kg.NewValidation("concepts", "no concepts to build a graph from")
	}

	byText := make(map[string]*kg.Concept, len(concepts))
	projected := &graphstore.ProjectedGraph{
		Name:      "concept-cooccurrence",
		Nodes:     make([]string, 0, len(concepts)),
		Adjacency: make(map[string][]graphstore.WeightedEdge, len(concepts)),
	}
	for _, c := range concepts {
		byText[c.Text] = c
		projected.Nodes = append(projected.Nodes, c.Text)
		projected.Adjacency[c.Text] = nil
	}
	sort.Strings(projected.Nodes)

	edges := make([]*kg.ConceptCooccurrence, 0, len(cooccs))
	degree := make(map[string]float64, len(concepts))
	for _, e := range cooccs {
		if e.Strength < opts.minEdgeWeight() {
			continue
		}
		if _, ok := byText[e.A]; !ok {
			continue
		}
		if _, ok := byText[e.B]; !ok {
			continue
		}
		edges = append(edges, e)
		projected.Adjacency[e.A] = append(projected.Adjacency[e.A], graphstore.WeightedEdge{Peer: e.B, Weight: e.Strength})
		projected.Adjacency[e.B] = append(projected.Adjacency[e.B], graphstore.WeightedEdge{Peer: e.A, Weight: e.Strength})
		degree[e.A] += e.Strength
		degree[e.B] += e.Strength
	}

	communities, err := community.Detect(projected, opts.Community)
	if err != nil {
		return nil, err
	}

	graph := &kg.ConceptGraph{
		Concepts:      byText,
		Edges:         edges,
		Communities:   communities,
		ChunkConcepts: make(map[string][]string),
		ConceptChunks: make(map[string][]string, len(concepts)),
		TopConcepts:   make(map[string][]string, len(communities)),
	}
	for _, c := range concepts {
		graph.ConceptChunks[c.Text] = append([]string(nil), c.SourceChunks...)
		for _, chunkID := range c.SourceChunks {
			graph.ChunkConcepts[chunkID] = append(graph.ChunkConcepts[chunkID], c.Text)
		}
	}
	for _, texts := range graph.ChunkConcepts {
		sort.Strings(texts)
	}

	for _, com := range communities {
		members := append([]string(nil), com.MemberIDs...)
		sort.Slice(members, func(i, j int) bool {
			if degree[members[i]] != degree[members[j]] {
				return degree[members[i]] > degree[members[j]]
			}
			return members[i] < members[j]
		})
		if len(members) > TopConceptsPerCommunity {
			members = members[:TopConceptsPerCommunity]
		}
		graph.TopConcepts[com.ID] = members
	}
	return graph, nil
}
