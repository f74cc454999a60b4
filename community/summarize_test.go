package community

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
)

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()
	ids := seedClusteredGraph(t, store)

	community := &kg.Community{
		ID:        "community-l0-0",
		Level:     0,
		MemberIDs: []string{ids["m-a1"], ids["m-a2"], ids["m-a3"]},
	}
	require.NoError(t, store.UpsertCommunity(ctx, community))

	client := llm.NewMockClient().Respond("Summarise",
		`{"summary": "Transformer-lineage language models.", "keywords": ["transformer", "language model"]}`)

	s := NewSummarizer(client, store)
	fixed := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	updated, err := s.Summarize(ctx, community, false)
	require.NoError(t, err)
	assert.Equal(t, "Transformer-lineage language models.", updated.Summary)
	assert.Equal(t, []string{"transformer", "language model"}, updated.Keywords)
	assert.Equal(t, fixed, updated.SummarizedAt)
	assert.Equal(t, MembershipHash(community.MemberIDs), updated.MembershipHash)

	t.Run("persisted", func(t *testing.T) {
		stored, err := store.GetCommunity(ctx, community.ID)
		require.NoError(t, err)
		assert.Equal(t, updated.Summary, stored.Summary)
	})

	t.Run("idempotent on unchanged membership", func(t *testing.T) {
		calls := client.ChatCallCount()
		_, err := s.Summarize(ctx, updated, false)
		require.NoError(t, err)
		assert.Equal(t, calls, client.ChatCallCount())
	})

	t.Run("force re-summarises", func(t *testing.T) {
		calls := client.ChatCallCount()
		_, err := s.Summarize(ctx, updated, true)
		require.NoError(t, err)
		assert.Equal(t, calls+1, client.ChatCallCount())
	})
}

func TestSummarizeInvalidJSON(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()
	ids := seedClusteredGraph(t, store)

	client := llm.NewMockClient()
	client.DefaultResponse = "The cluster is about models."

	s := NewSummarizer(client, store)
	_, err := s.Summarize(ctx, &kg.Community{
		ID:        "community-l0-9",
		MemberIDs: []string{ids["m-a1"], ids["m-a2"]},
	}, false)
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestSummarizeCodeFencedReply(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()
	ids := seedClusteredGraph(t, store)

	client := llm.NewMockClient().Respond("Summarise",
		"```json\n{\"summary\": \"Fenced.\", \"keywords\": []}\n```")

	s := NewSummarizer(client, store)
	updated, err := s.Summarize(ctx, &kg.Community{
		ID:        "community-l0-8",
		MemberIDs: []string{ids["m-b1"], ids["m-b2"]},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "Fenced.", updated.Summary)
}

func TestSummarizeLevel(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()
	ids := seedClusteredGraph(t, store)

	require.NoError(t, store.UpsertCommunity(ctx, &kg.Community{
		ID: "community-l0-0", Level: 0, MemberIDs: []string{ids["m-a1"], ids["m-a2"]},
	}))
	require.NoError(t, store.UpsertCommunity(ctx, &kg.Community{
		ID: "community-l0-1", Level: 0, MemberIDs: []string{ids["m-b1"], ids["m-b2"]},
	}))

	client := llm.NewMockClient().Respond("Summarise",
		`{"summary": "Cluster.", "keywords": ["models"]}`)

	s := NewSummarizer(client, store)
	done, err := s.SummarizeLevel(ctx, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 2, done)

	t.Run("empty community rejected", func(t *testing.T) {
		_, err := s.Summarize(ctx, &kg.Community{ID: "empty"}, false)
		assert.Equal(t, kg.KindValidation, kg.KindOf(err))
	})
}
