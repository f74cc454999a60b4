package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

func TestConceptGraphBuild(t *testing.T) {
	concepts := []*kg.Concept{
		{Text: "graph neural networks", Frequency: 4, Importance: 1.0, SourceChunks: []string{"c1", "c2"}},
		{Text: "message passing", Frequency: 3, Importance: 0.75, SourceChunks: []string{"c1"}},
		{Text: "speech recognition", Frequency: 2, Importance: 0.5, SourceChunks: []string{"c3"}},
		{Text: "acoustic models", Frequency: 2, Importance: 0.5, SourceChunks: []string{"c3"}},
	}
	cooccs := []*kg.ConceptCooccurrence{
		{A: "graph neural networks", B: "message passing", Count: 3, Strength: 0.9},
		{A: "acoustic models", B: "speech recognition", Count: 2, Strength: 0.8},
		// Below the default edge weight threshold.
		{A: "message passing", B: "speech recognition", Count: 1, Strength: 0.05},
		// Endpoint not in the concept set.
		{A: "graph neural networks", B: "quantum computing", Count: 2, Strength: 0.7},
	}

	graph, err := NewConceptGraphBuilder().Build(concepts, cooccs, nil, BuildOptions{})
	require.NoError(t, err)

	require.Len(t, graph.Concepts, 4)
	require.Len(t, graph.Edges, 2)
	for _, e := range graph.Edges {
		assert.GreaterOrEqual(t, e.Strength, DefaultMinEdgeWeight)
	}

	// Two disconnected pairs partition into separate communities.
	require.NotEmpty(t, graph.Communities)
	for _, com := range graph.Communities {
		members := make(map[string]bool, len(com.MemberIDs))
		for _, m := range com.MemberIDs {
			members[m] = true
		}
		if members["graph neural networks"] {
			assert.False(t, members["speech recognition"])
		}
	}

	// Reverse indexes agree in both directions.
	assert.ElementsMatch(t, []string{"c1", "c2"}, graph.ConceptChunks["graph neural networks"])
	assert.Contains(t, graph.ChunkConcepts["c1"], "graph neural networks")
	assert.Contains(t, graph.ChunkConcepts["c1"], "message passing")
	assert.Equal(t, []string{"acoustic models", "speech recognition"}, graph.ChunkConcepts["c3"])

	for _, top := range graph.TopConcepts {
		assert.LessOrEqual(t, len(top), TopConceptsPerCommunity)
	}
}

func TestConceptGraphBuildValidation(t *testing.T) {
	_, err := NewConceptGraphBuilder().Build(nil, nil, nil, BuildOptions{})
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}
