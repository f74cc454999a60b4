package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
)

func seedCommunities(t *testing.T, f *fixture, n int) {
	t.Helper()
	ctx := context.Background()
	communities := make([]*kg.Community, n)
	for i := range communities {
		communities[i] = &kg.Community{
			ID:          fmt.Sprintf("community-l0-%d", i),
			Level:       0,
			MemberIDs:   []string{"gpt4", "openai"},
			MemberCount: 2,
			Summary:     fmt.Sprintf("Cluster %d about language models and research organisations", i),
			Keywords:    []string{"language models"},
		}
	}
	require.NoError(t, f.graph.ReplaceCommunities(ctx, communities))
}

func TestGlobalQueryMapReduce(t *testing.T) {
	f := newFixture(t)
	seedCommunities(t, f, 7)
	f.client.Respond("Using only the community summaries", "Language model research is concentrated in a few organisations.")
	f.client.Respond("Combine the partial answers", "Research on language models clusters around large organisations.")

	engine := NewGlobalEngine(f.graph, f.client, GlobalOptions{BatchSize: 5})
	resp, err := engine.Query(context.Background(), "What are the main research themes?")
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, kg.QueryGlobal, resp.QueryType)
	assert.Contains(t, resp.Answer, "organisations")
	assert.Equal(t, 7, resp.Metrics.Communities)
	assert.Len(t, resp.Context.CommunitySummaries, 7)

	// 7 summaries at batch size 5 → two map calls, then one reduce.
	assert.Equal(t, 3, f.client.ChatCallCount())

	for _, c := range resp.Citations {
		assert.Equal(t, "community", c.SourceType)
		assert.NotEmpty(t, c.Excerpt)
	}
}

func TestGlobalQueryMaxCommunities(t *testing.T) {
	f := newFixture(t)
	seedCommunities(t, f, 15)
	f.client.DefaultResponse = "some answer"

	engine := NewGlobalEngine(f.graph, f.client, GlobalOptions{MaxCommunities: 4, BatchSize: 5})
	resp, err := engine.Query(context.Background(), "themes?")
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Metrics.Communities)
	assert.Len(t, resp.Citations, 4)
}

func TestGlobalQuerySkipsNoneBatches(t *testing.T) {
	f := newFixture(t)
	seedCommunities(t, f, 2)
	f.client.Respond("Using only the community summaries", "NONE")

	engine := NewGlobalEngine(f.graph, f.client, GlobalOptions{})
	resp, err := engine.Query(context.Background(), "Something unrelated?")
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "no information relevant")
}

func TestGlobalQueryNoCommunities(t *testing.T) {
	f := newFixture(t)
	engine := NewGlobalEngine(f.graph, f.client, GlobalOptions{})
	_, err := engine.Query(context.Background(), "anything")
	assert.Equal(t, kg.KindNotFound, kg.KindOf(err))
}

func TestHybridQueryMergesBothBranches(t *testing.T) {
	f := newFixture(t)
	seedCommunities(t, f, 2)
	f.client.Respond("Answer the question using only the context", "GPT-4 was developed by OpenAI.")
	f.client.Respond("Using only the community summaries", "Organisations cluster around language models.")
	f.client.Respond("Two retrieval strategies answered", "GPT-4 was developed by OpenAI, a leading organisation in the cluster.")

	local := NewLocalEngine(f.graph, f.vectors, f.client, LocalOptions{})
	global := NewGlobalEngine(f.graph, f.client, GlobalOptions{})
	hybrid := NewHybridEngine(local, global, HybridOptions{})

	resp, err := hybrid.Query(context.Background(), "Who developed GPT-4?")
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, kg.QueryHybrid, resp.QueryType)
	assert.Contains(t, resp.Answer, "OpenAI")

	var entityCited, communityCited bool
	for _, c := range resp.Citations {
		switch c.SourceType {
		case "entity":
			entityCited = true
			assert.LessOrEqual(t, c.Relevance, DefaultLocalWeight)
		case "community":
			communityCited = true
			assert.LessOrEqual(t, c.Relevance, DefaultGlobalWeight)
		}
	}
	assert.True(t, entityCited)
	assert.True(t, communityCited)
	assert.NotEmpty(t, resp.Context.CommunitySummaries)
	assert.NotEmpty(t, resp.Context.Entities)
}

func TestHybridQueryFailOpen(t *testing.T) {
	f := newFixture(t)
	// No communities: the global branch fails NotFound, the local branch
	// still answers.
	f.client.Respond("Answer the question using only the context", "OpenAI developed GPT-4.")

	local := NewLocalEngine(f.graph, f.vectors, f.client, LocalOptions{})
	global := NewGlobalEngine(f.graph, f.client, GlobalOptions{})
	hybrid := NewHybridEngine(local, global, HybridOptions{})

	resp, err := hybrid.Query(context.Background(), "Who developed GPT-4?")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, kg.QueryHybrid, resp.QueryType)
	assert.Contains(t, resp.Answer, "OpenAI")
}

func TestHybridQueryBothBranchesFail(t *testing.T) {
	f := newFixture(t)
	failing := llm.NewMockClient()
	failing.Err = fmt.Errorf("model unavailable")

	local := NewLocalEngine(f.graph, f.vectors, failing, LocalOptions{})
	global := NewGlobalEngine(f.graph, failing, GlobalOptions{})
	hybrid := NewHybridEngine(local, global, HybridOptions{})

	resp, err := hybrid.Query(context.Background(), "Who developed GPT-4?")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}
