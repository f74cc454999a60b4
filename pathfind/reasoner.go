package pathfind

import (
	"context"
	"sort"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
)

// Reasoner is the front door of the path subsystem: a finder behind a cache,
// with an explainer attached. All the convenience derivatives live here and
// funnel through FindPaths, so every result obeys the same bounds, scoring
// and cache semantics.
type Reasoner struct {
	finder    *Finder
	cache     *Cache
	explainer *Explainer
	store     graphstore.Store
}

// NewReasoner wires a reasoner. client may be nil to disable LLM-polished
// explanations; locale defaults to English.
func NewReasoner(store graphstore.Store, client llm.Client, locale string, cacheCfg CacheConfig) *Reasoner {
	return &Reasoner{
		finder:    NewFinder(store),
		cache:     NewCache(cacheCfg),
		explainer: NewExplainer(client, locale),
		store:     store,
	}
}

// FindPaths answers the query from the cache when possible, computing and
// caching otherwise. Cached results are structurally identical to fresh
// computations for the same graph.
func (r *Reasoner) FindPaths(ctx context.Context, q Query) (*Result, error) {
	if cached := r.cache.Get(q); cached != nil {
		return cached, nil
	}
	result, err := r.finder.FindPaths(ctx, q)
	if err != nil {
		return nil, err
	}
	r.cache.Put(q, result)
	return result, nil
}

// FindShortest returns the best-scoring path among those with the fewest
// hops, or nil when the endpoints are not connected within the bound.
func (r *Reasoner) FindShortest(ctx context.Context, q Query) (*kg.Path, error) {
	result, err := r.FindPaths(ctx, q)
	if err != nil {
		return nil, err
	}
	var shortest *kg.Path
	for _, p := range result.Paths {
		if shortest == nil || p.Hops < shortest.Hops {
			shortest = p
		}
	}
	return shortest, nil
}

// AreConnected reports whether any path within the bound joins the endpoints.
func (r *Reasoner) AreConnected(ctx context.Context, q Query) (bool, error) {
	result, err := r.FindPaths(ctx, q)
	if err != nil {
		return false, err
	}
	return len(result.Paths) > 0, nil
}

// DegreesOfSeparation returns the hop count of the shortest connecting path,
// or -1 when the endpoints are not connected within the bound.
func (r *Reasoner) DegreesOfSeparation(ctx context.Context, q Query) (int, error) {
	shortest, err := r.FindShortest(ctx, q)
	if err != nil {
		return 0, err
	}
	if shortest == nil {
		return -1, nil
	}
	return shortest.Hops, nil
}

// CommonConnections intersects the one-hop neighbourhoods of two entities,
// excluding the endpoints themselves. Results are ordered by ID.
func (r *Reasoner) CommonConnections(ctx context.Context, aID, bID string) ([]*kg.Entity, error) {
	aNeigh, _, err := r.store.Neighbours(ctx, aID, 1, nil)
	if err != nil {
		return nil, err
	}
	bNeigh, _, err := r.store.Neighbours(ctx, bID, 1, nil)
	if err != nil {
		return nil, err
	}

	inA := make(map[string]bool, len(aNeigh))
	for _, e := range aNeigh {
		inA[e.ID] = true
	}
	var common []*kg.Entity
	for _, e := range bNeigh {
		if inA[e.ID] && e.ID != aID && e.ID != bID {
			common = append(common, e)
		}
	}
	sort.Slice(common, func(i, j int) bool { return common[i].ID < common[j].ID })
	return common, nil
}

// FindRelationPaths resolves both endpoints by name and searches between
// them; the options query's endpoint fields are overwritten.
func (r *Reasoner) FindRelationPaths(ctx context.Context, nameA, nameB string, opts Query) (*Result, error) {
	if nameA == "" || nameB == "" {
		return nil, kg.NewValidation("name", "both entity names are required")
	}
	opts.StartID, opts.StartName = "", nameA
	opts.EndID, opts.EndName = "", nameB
	return r.FindPaths(ctx, opts)
}

// Explain renders a path via the attached explainer.
func (r *Reasoner) Explain(ctx context.Context, p *kg.Path) (*Explanation, error) {
	return r.explainer.Explain(ctx, p)
}

// Invalidate drops cached results touching the entity. Call after mutating
// the entity or its relations.
func (r *Reasoner) Invalidate(entityID string) int {
	return r.cache.Invalidate(entityID)
}

// CacheHitRate surfaces the cache's hit rate for metrics.
func (r *Reasoner) CacheHitRate() float64 {
	return r.cache.HitRate()
}
