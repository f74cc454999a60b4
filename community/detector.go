package community

import (
	"context"
	"sort"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/log"
)

// Detector runs detection over a live graph store and persists the result.
type Detector struct {
	store graphstore.Store
	opts  Options
}

// NewDetector creates a detector over store.
func NewDetector(store graphstore.Store, opts Options) *Detector {
	return &Detector{store: store, opts: opts}
}

// Run projects the graph, detects hierarchical communities, and swaps the
// stored community set for the fresh partition. The previous partition stays
// visible until the swap; readers never observe a mix of old and new.
//
// When the projection is too sparse for propagation to find any community,
// entities fall back to one community per entity type.
func (d *Detector) Run(ctx context.Context, projection graphstore.Projection) ([]*kg.Community, error) {
	if projection.Name == "" {
		projection.Name = "community-detection"
	}
	if err := d.store.CreateProjection(ctx, projection); err != nil && !kg.IsKind(err, kg.KindConflictingState) {
		return nil, err
	}
	defer func() {
		if err := d.store.DropProjection(ctx, projection.Name); err != nil {
			log.Warn("community: drop projection %s: %v", projection.Name, err)
		}
	}()

	graph, err := d.store.GetProjection(ctx, projection.Name)
	if err != nil {
		return nil, err
	}

	communities, err := Detect(graph, d.opts)
	if err != nil {
		return nil, err
	}
	if len(communities) == 0 {
		communities, err = d.fallbackByType(ctx)
		if err != nil {
			return nil, err
		}
	}

	if err := d.store.ReplaceCommunities(ctx, communities); err != nil {
		return nil, err
	}
	log.Info("community: persisted %d communities", len(communities))
	return communities, nil
}

// fallbackByType groups every entity under its type's community. Coarse,
// but it guarantees global search has a partition to work with on sparse
// graphs.
func (d *Detector) fallbackByType(ctx context.Context) ([]*kg.Community, error) {
	entities, err := d.store.AllEntities(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[kg.EntityType][]string)
	for _, e := range entities {
		groups[e.Type] = append(groups[e.Type], e.ID)
	}

	types := make([]kg.EntityType, 0, len(groups))
	for t, members := range groups {
		if len(members) >= d.opts.minSize() {
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	communities := make([]*kg.Community, len(types))
	for i, t := range types {
		members := groups[t]
		sort.Strings(members)
		communities[i] = &kg.Community{
			ID:          "community-type-" + string(t),
			Level:       0,
			MemberIDs:   members,
			MemberCount: len(members),
			Keywords:    []string{string(t)},
		}
	}
	if len(communities) > 0 {
		log.Warn("community: propagation found no communities, fell back to %d type groups", len(communities))
	}
	return communities, nil
}
