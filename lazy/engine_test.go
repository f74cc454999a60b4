package lazy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
)

// conceptFixture builds a two-community concept graph over four chunks:
// an architecture cluster (transformer, attention) and an organisation
// cluster (openai, funding).
func conceptFixture() (*kg.ConceptGraph, []*kg.TextChunk) {
	chunks := []*kg.TextChunk{
		{ID: "doc1-chunk-0", Content: "The transformer relies on attention to weigh token context."},
		{ID: "doc1-chunk-1", Content: "Attention layers scale quadratically with sequence length."},
		{ID: "doc2-chunk-0", Content: "OpenAI trained its models on large compute clusters."},
		{ID: "doc2-chunk-1", Content: "Funding for frontier labs grew sharply after 2022."},
	}

	graph := &kg.ConceptGraph{
		Concepts: map[string]*kg.Concept{
			"transformer": {Text: "transformer", Frequency: 2, Importance: 0.9},
			"attention":   {Text: "attention", Frequency: 3, Importance: 0.8},
			"openai":      {Text: "openai", Frequency: 2, Importance: 0.7},
			"funding":     {Text: "funding", Frequency: 1, Importance: 0.4},
		},
		ConceptChunks: map[string][]string{
			"transformer": {"doc1-chunk-0"},
			"attention":   {"doc1-chunk-0", "doc1-chunk-1"},
			"openai":      {"doc2-chunk-0"},
			"funding":     {"doc2-chunk-1"},
		},
		ChunkConcepts: map[string][]string{
			"doc1-chunk-0": {"transformer", "attention"},
			"doc1-chunk-1": {"attention"},
			"doc2-chunk-0": {"openai"},
			"doc2-chunk-1": {"funding"},
		},
		Communities: []*kg.Community{
			{ID: "concept-c0", Level: 0, MemberIDs: []string{"transformer", "attention"}},
			{ID: "concept-c1", Level: 0, MemberIDs: []string{"openai", "funding"}},
		},
		TopConcepts: map[string][]string{
			"concept-c0": {"attention", "transformer"},
			"concept-c1": {"openai", "funding"},
		},
	}
	return graph, chunks
}

func scriptedClients() (*llm.MockClient, *llm.MockClient) {
	assessor := llm.NewMockClient()
	assessor.Respond("Decompose the question", `{"sub_queries": ["transformer architecture", "attention mechanism"]}`)
	assessor.Respond("Judge whether the passage", `{"relevant": true, "score": 0.8}`)
	assessor.Respond("Extract the factual claims", `{"claims": [{"text": "Transformers rely on attention.", "relevance": 0.9}]}`)

	generator := llm.NewMockClient()
	generator.Respond("Answer the question from the claims", "Transformers rely on attention to weigh token context.")
	return assessor, generator
}

func TestPresetByName(t *testing.T) {
	p, err := PresetByName("z500")
	require.NoError(t, err)
	assert.Equal(t, 500, p.Budget)
	assert.Equal(t, 4, p.SubQueries)

	_, err = PresetByName("Z9000")
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestLazyQueryAnswersWithinBudget(t *testing.T) {
	graph, chunks := conceptFixture()
	assessor, generator := scriptedClients()
	engine := NewEngine(assessor, generator, graph, chunks, Options{Preset: PresetZ100Lite})

	resp, err := engine.Query(context.Background(), "How does the transformer use attention?")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Answer)
	assert.Contains(t, resp.Answer, "attention")
	assert.LessOrEqual(t, resp.RelevanceTestsUsed, PresetZ100Lite.Budget)
	assert.Equal(t, PresetZ100Lite.Budget-resp.RelevanceTestsUsed, resp.BudgetRemaining)
	assert.Len(t, resp.SubQueries, 2)
	require.NotEmpty(t, resp.Claims)
	assert.NotEmpty(t, resp.Sources)
	// Generation happened on the separate generator client.
	assert.Equal(t, 1, generator.ChatCallCount())
}

func TestLazyQueryBudgetStopsAssessment(t *testing.T) {
	graph, chunks := conceptFixture()
	assessor, generator := scriptedClients()
	engine := NewEngine(assessor, generator, graph, chunks, Options{
		Preset: Preset{Name: "Z2", Budget: 2, SubQueries: 2},
	})

	resp, err := engine.Query(context.Background(), "attention and transformer and openai and funding details")
	require.NoError(t, err)

	assert.Equal(t, 2, resp.RelevanceTestsUsed)
	assert.Equal(t, 0, resp.BudgetRemaining)
	assert.NotEmpty(t, resp.Answer)
}

func TestLazyQueryBestEffortWhenAllNegative(t *testing.T) {
	graph, chunks := conceptFixture()
	assessor := llm.NewMockClient()
	assessor.Respond("Decompose the question", `{"sub_queries": ["attention"]}`)
	assessor.Respond("Judge whether the passage", `{"relevant": false, "score": 0.1}`)
	generator := llm.NewMockClient()
	generator.Respond("Answer the question from the claims", "The indexed material only hints at attention scaling.")

	engine := NewEngine(assessor, generator, graph, chunks, Options{Preset: PresetZ100Lite})
	resp, err := engine.Query(context.Background(), "What about attention?")
	require.NoError(t, err)

	assert.Empty(t, resp.Claims)
	assert.Empty(t, resp.Sources)
	assert.NotEmpty(t, resp.Answer)
	assert.Greater(t, resp.RelevanceTestsUsed, 0)
}

func TestLazyQueryExpansionFallsBackToQuery(t *testing.T) {
	graph, chunks := conceptFixture()
	assessor := llm.NewMockClient()
	assessor.Respond("Decompose the question", "not json at all")
	assessor.Respond("Judge whether the passage", `{"relevant": true, "score": 0.9}`)
	assessor.Respond("Extract the factual claims", `{"claims": [{"text": "Attention scales quadratically.", "relevance": 0.7}]}`)
	generator := llm.NewMockClient()
	generator.DefaultResponse = "Attention scales quadratically with sequence length."

	engine := NewEngine(assessor, generator, graph, chunks, Options{Preset: PresetZ100Lite})
	resp, err := engine.Query(context.Background(), "attention scaling")
	require.NoError(t, err)

	require.Len(t, resp.SubQueries, 1)
	assert.Equal(t, "attention scaling", resp.SubQueries[0])
	assert.NotEmpty(t, resp.Answer)
}

func TestLazyQuerySearchRanksDirectMatchesFirst(t *testing.T) {
	graph, chunks := conceptFixture()
	engine := NewEngine(llm.NewMockClient(), llm.NewMockClient(), graph, chunks, Options{})

	candidates := engine.search([]string{"transformer attention"})
	require.NotEmpty(t, candidates)
	// doc1-chunk-0 carries both matched concepts and ranks first.
	assert.Equal(t, "doc1-chunk-0", candidates[0].chunk.ID)

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.chunk.ID)
	}
	// Community expansion never reaches the organisation cluster.
	assert.NotContains(t, ids, "doc2-chunk-0")
	assert.NotContains(t, ids, "doc2-chunk-1")
}

func TestLazyQueryCommunityExpansion(t *testing.T) {
	graph, chunks := conceptFixture()
	engine := NewEngine(llm.NewMockClient(), llm.NewMockClient(), graph, chunks, Options{})

	// "funding" is matched directly; "openai" arrives via the shared
	// community at half weight, pulling in its chunk too.
	candidates := engine.search([]string{"funding for labs"})
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.chunk.ID)
	}
	assert.Contains(t, ids, "doc2-chunk-1")
	assert.Contains(t, ids, "doc2-chunk-0")
}

func TestLazyQueryValidation(t *testing.T) {
	graph, chunks := conceptFixture()
	engine := NewEngine(llm.NewMockClient(), llm.NewMockClient(), graph, chunks, Options{})

	_, err := engine.Query(context.Background(), "   ")
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))

	nilGraph := NewEngine(llm.NewMockClient(), llm.NewMockClient(), nil, nil, Options{})
	_, err = nilGraph.Query(context.Background(), "anything")
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestLazyQueryTrivialGraphEndToEnd(t *testing.T) {
	// A single-chunk graph under the cheapest preset still answers and
	// never exceeds its budget.
	chunks := []*kg.TextChunk{{ID: "d-chunk-0", Content: "GraphRAG combines graphs with retrieval."}}
	graph := &kg.ConceptGraph{
		Concepts:      map[string]*kg.Concept{"graphrag": {Text: "graphrag", Frequency: 1, Importance: 1}},
		ConceptChunks: map[string][]string{"graphrag": {"d-chunk-0"}},
		ChunkConcepts: map[string][]string{"d-chunk-0": {"graphrag"}},
	}

	assessor := llm.NewMockClient()
	assessor.Respond("Decompose the question", `{"sub_queries": ["graphrag"]}`)
	assessor.Respond("Judge whether the passage", `{"relevant": true, "score": 1.0}`)
	assessor.Respond("Extract the factual claims", `{"claims": [{"text": "GraphRAG combines graphs with retrieval.", "relevance": 1.0}]}`)
	generator := llm.NewMockClient()
	generator.DefaultResponse = "GraphRAG combines knowledge graphs with retrieval augmented generation."

	engine := NewEngine(assessor, generator, graph, chunks, Options{Preset: PresetZ100Lite})
	resp, err := engine.Query(context.Background(), "What is graphrag?")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Answer)
	assert.LessOrEqual(t, resp.RelevanceTestsUsed, 100)
	assert.Equal(t, []string{"d-chunk-0"}, resp.Sources)
}
