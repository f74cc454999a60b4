package pathfind

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

func samplePath(ids ...string) *kg.Path {
	entities := make([]*kg.Entity, len(ids))
	for i, id := range ids {
		entities[i] = &kg.Entity{ID: id, Name: id}
	}
	return &kg.Path{Entities: entities, Hops: len(ids) - 1, Score: 0.5}
}

func TestCacheKeyNormalisation(t *testing.T) {
	a := CacheKey(Query{StartName: "  GPT-4 ", EndName: "Transformer"})
	b := CacheKey(Query{StartName: "gpt-4", EndName: "transformer"})
	assert.Equal(t, a, b)

	c := CacheKey(Query{StartName: "gpt-4", EndName: "transformer", MaxHops: 5})
	assert.NotEqual(t, a, c)
}

func TestCacheHitAndMiss(t *testing.T) {
	cache := NewCache(CacheConfig{})
	q := Query{StartID: "a", EndID: "b"}

	assert.Nil(t, cache.Get(q))
	result := &Result{Paths: []*kg.Path{samplePath("a", "b")}}
	cache.Put(q, result)

	got := cache.Get(q)
	require.NotNil(t, got)
	assert.Equal(t, result, got)
	assert.InDelta(t, 0.5, cache.HitRate(), 1e-9)
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := NewCache(CacheConfig{TTL: time.Minute})
	now := time.Now()
	cache.now = func() time.Time { return now }

	q := Query{StartID: "a", EndID: "b"}
	cache.Put(q, &Result{Paths: []*kg.Path{samplePath("a", "b")}})
	require.NotNil(t, cache.Get(q))

	now = now.Add(2 * time.Minute)
	assert.Nil(t, cache.Get(q))
	assert.Equal(t, 0, cache.Len())
}

func TestCacheInvalidateByEntity(t *testing.T) {
	cache := NewCache(CacheConfig{})
	cache.Put(Query{StartID: "a", EndID: "b"}, &Result{Paths: []*kg.Path{samplePath("a", "x", "b")}})
	cache.Put(Query{StartID: "c", EndID: "d"}, &Result{Paths: []*kg.Path{samplePath("c", "d")}})

	dropped := cache.Invalidate("x")
	assert.Equal(t, 1, dropped)
	assert.Nil(t, cache.Get(Query{StartID: "a", EndID: "b"}))
	assert.NotNil(t, cache.Get(Query{StartID: "c", EndID: "d"}))
}

func TestCacheEviction(t *testing.T) {
	cache := NewCache(CacheConfig{MaxSize: 2})
	cache.Put(Query{StartID: "a"}, &Result{Paths: []*kg.Path{samplePath("a")}})
	cache.Put(Query{StartID: "b"}, &Result{Paths: []*kg.Path{samplePath("b")}})
	cache.Put(Query{StartID: "c"}, &Result{Paths: []*kg.Path{samplePath("c")}})

	assert.Equal(t, 2, cache.Len())
	assert.Nil(t, cache.Get(Query{StartID: "a"}), "oldest entry evicted first")
	assert.NotNil(t, cache.Get(Query{StartID: "c"}))
}

// A cache hit must be structurally equal to a fresh computation over the
// same graph.
func TestReasonerCacheSoundness(t *testing.T) {
	store := researchGraph(t)
	reasoner := NewReasoner(store, nil, LocaleEN, CacheConfig{})
	ctx := context.Background()
	q := Query{StartID: "gpt4", EndID: "transformer", MaxHops: 3}

	fresh, err := NewFinder(store).FindPaths(ctx, q)
	require.NoError(t, err)

	first, err := reasoner.FindPaths(ctx, q)
	require.NoError(t, err)
	cached, err := reasoner.FindPaths(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, fresh.Paths, first.Paths)
	assert.Equal(t, first.Paths, cached.Paths)
	assert.Greater(t, reasoner.CacheHitRate(), 0.0)
}
