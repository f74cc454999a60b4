package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/config"
	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/pathfind"
	"github.com/yagokoro-dev/yagokoro/secure"
)

func TestCommandTree(t *testing.T) {
	want := []string{
		"entity", "relation", "community", "graph", "search", "mcp",
		"seed", "normalize", "backup", "ingest", "path", "gap", "lifecycle",
	}
	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, registered[name], "missing subcommand %s", name)
	}
}

func TestParseProperties(t *testing.T) {
	props, err := parseProperties([]string{"year=2023", "score=0.95", "venue=NeurIPS"})
	require.NoError(t, err)
	assert.Equal(t, 2023, props["year"])
	assert.Equal(t, 0.95, props["score"])
	assert.Equal(t, "NeurIPS", props["venue"])

	_, err = parseProperties([]string{"no-equals-sign"})
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
	_, err = parseProperties([]string{"=value"})
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))

	props, err = parseProperties(nil)
	require.NoError(t, err)
	assert.Nil(t, props)
}

func TestAliasKey(t *testing.T) {
	assert.Equal(t, aliasKey("GPT-4"), aliasKey("GPT4"))
	assert.Equal(t, aliasKey("GPT-4"), aliasKey("gpt 4"))
	assert.NotEqual(t, aliasKey("GPT-4"), aliasKey("GPT-5"))
}

func TestDuplicateGroupsAndMerge(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()

	strong, err := store.UpsertEntity(ctx, &kg.Entity{
		Type: kg.EntityAIModel, Name: "GPT-4", Confidence: 0.95, SourceChunks: []string{"c1"},
	})
	require.NoError(t, err)
	weak, err := store.UpsertEntity(ctx, &kg.Entity{
		Type: kg.EntityAIModel, Name: "GPT4", Confidence: 0.6, SourceChunks: []string{"c2"},
	})
	require.NoError(t, err)
	org, err := store.UpsertEntity(ctx, &kg.Entity{
		Type: kg.EntityOrganization, Name: "OpenAI", Confidence: 1,
	})
	require.NoError(t, err)
	_, err = store.UpsertRelation(ctx, &kg.Relation{
		SourceID: weak.ID, TargetID: org.ID, Type: kg.RelDevelopedBy, Confidence: 0.6,
	})
	require.NoError(t, err)

	groups, err := duplicateGroups(ctx, store)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
	// Highest confidence first: it survives the merge.
	assert.Equal(t, strong.ID, groups[0][0].ID)

	require.NoError(t, mergeGroup(ctx, store, groups[0]))

	_, err = store.GetEntity(ctx, weak.ID)
	assert.Equal(t, kg.KindNotFound, kg.KindOf(err))

	// The absorbed entity's relation now hangs off the survivor.
	_, relations, err := store.Neighbours(ctx, strong.ID, 1, nil)
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, org.ID, relations[0].TargetID)

	// Provenance was unioned through the merge.
	merged, err := store.GetEntity(ctx, strong.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, merged.SourceChunks)
}

func TestSeedDataResolves(t *testing.T) {
	byKey := make(map[string]bool)
	for _, e := range seedEntities {
		byKey[string(e.Type)+"/"+e.Name] = true
	}
	for _, r := range seedRelations {
		assert.True(t, byKey[string(r.sourceType)+"/"+r.source], "unknown source %s", r.source)
		assert.True(t, byKey[string(r.targetType)+"/"+r.target], "unknown target %s", r.target)
		assert.True(t, r.relType.Valid(), "invalid relation type %s", r.relType)
	}
}

func TestRenderPath(t *testing.T) {
	p := &kg.Path{
		Entities: []*kg.Entity{
			{ID: "gpt4", Name: "GPT-4"},
			{ID: "openai", Name: "OpenAI"},
		},
		Relations: []*kg.Relation{
			{SourceID: "gpt4", TargetID: "openai", Type: kg.RelDevelopedBy},
		},
		Hops: 1,
	}
	assert.Equal(t, "GPT-4 -[DEVELOPED_BY]-> OpenAI (1 hops)", renderPath(p))
}

func TestPathQueryFlags(t *testing.T) {
	pathMaxHops = pathfind.DefaultMaxHops
	pathByID = false
	q := pathQuery("GPT-4", "Transformer")
	assert.Equal(t, "GPT-4", q.StartName)
	assert.Empty(t, q.StartID)

	pathByID = true
	defer func() { pathByID = false }()
	q = pathQuery("a", "b")
	assert.Equal(t, "a", q.StartID)
	assert.Empty(t, q.StartName)
}

func TestLimiterFromConfig(t *testing.T) {
	cfg := config.Default()
	assert.Nil(t, limiterFromConfig(cfg))

	cfg.RateLimit.Preset = "strict"
	limiter := limiterFromConfig(cfg)
	require.NotNil(t, limiter)
	_, ok := limiter.(*secure.MemoryLimiter)
	assert.True(t, ok)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Len(t, truncate("a much longer string than the limit", 10), 10+len("…")-1)
}
