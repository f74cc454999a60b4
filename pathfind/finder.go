// Package pathfind is the multi-hop path reasoner: bounded breadth-first
// enumeration of simple paths between entities, deterministic scoring and
// ranking, a TTL cache keyed by the normalised query, and natural-language
// explanation of the ranked paths.
package pathfind

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
)

// Enumeration bounds.
const (
	// MaxHopsCap is the hard ceiling on path length; larger requests are
	// clamped, not rejected.
	MaxHopsCap = 6
	// DefaultMaxHops applies when a query does not set MaxHops.
	DefaultMaxHops = 3
	// DefaultMaxPaths bounds the total number of paths one query may emit.
	DefaultMaxPaths = 100

	// recencyWindowYears is the span over which edge recency decays the
	// score; see Score.
	recencyWindowYears = 10
)

// Query selects the endpoints and bounds of one path search. Endpoints may
// be given as IDs or as (type, name) pairs; when both are set the ID wins.
type Query struct {
	StartID   string
	StartType kg.EntityType
	StartName string

	EndID   string
	EndType kg.EntityType
	EndName string

	// MaxHops bounds path length and is literal: 0 admits only the
	// degenerate start == end path. Values above MaxHopsCap are clamped;
	// negative values are invalid. Callers exposing MaxHops as an optional
	// knob should default it to DefaultMaxHops themselves.
	MaxHops int
	// RelationTypes restricts which edges may be traversed. Empty means all.
	RelationTypes []kg.RelationType
	// MaxPaths bounds the enumeration. Zero means DefaultMaxPaths.
	MaxPaths int
}

func (q Query) maxHops() int {
	if q.MaxHops > MaxHopsCap {
		return MaxHopsCap
	}
	return q.MaxHops
}

func (q Query) maxPaths() int {
	if q.MaxPaths <= 0 {
		return DefaultMaxPaths
	}
	return q.MaxPaths
}

// Result is the outcome of one path search, paths ordered best-first.
type Result struct {
	Paths   []*kg.Path    `json:"paths"`
	Elapsed time.Duration `json:"elapsed"`
	// Truncated reports that the enumeration hit the MaxPaths budget.
	Truncated bool `json:"truncated,omitempty"`
}

// Finder enumerates and ranks paths over a graph store.
type Finder struct {
	store graphstore.Store
	now   func() time.Time
}

// NewFinder creates a finder over store.
func NewFinder(store graphstore.Store) *Finder {
	return &Finder{store: store, now: time.Now}
}

// FindPaths enumerates simple paths from the query's start entity, breadth
// first, up to MaxHops. With an end entity set, only paths terminating there
// are returned; without one, every reachable simple path within the bound is
// emitted. MaxHops 0 yields a single zero-hop path only when start and end
// coincide.
func (f *Finder) FindPaths(ctx context.Context, q Query) (*Result, error) {
	started := f.now()

	start, err := f.resolve(ctx, q.StartID, q.StartType, q.StartName, "start")
	if err != nil {
		return nil, err
	}
	var end *kg.Entity
	if q.EndID != "" || q.EndName != "" {
		end, err = f.resolve(ctx, q.EndID, q.EndType, q.EndName, "end")
		if err != nil {
			return nil, err
		}
	}

	if q.MaxHops < 0 {
		return nil, kg.NewValidation("max_hops", "max_hops must not be negative")
	}
	maxHops := q.maxHops()

	result := &Result{}
	if maxHops == 0 {
		if end == nil || start.ID != end.ID {
			result.Elapsed = f.now().Sub(started)
			return result, nil
		}
		result.Paths = []*kg.Path{{Entities: []*kg.Entity{start}, Hops: 0, Score: 1}}
		result.Elapsed = f.now().Sub(started)
		return result, nil
	}

	filter := &graphstore.RelationFilter{Types: q.RelationTypes}
	paths, truncated, err := f.enumerate(ctx, start, end, maxHops, q.maxPaths(), filter)
	if err != nil {
		return nil, err
	}

	nowYear := f.now().Year()
	for _, p := range paths {
		p.Score = Score(p, nowYear)
	}
	sortPaths(paths)

	result.Paths = paths
	result.Truncated = truncated
	result.Elapsed = f.now().Sub(started)
	return result, nil
}

// frontierEntry is one partial path during BFS.
type frontierEntry struct {
	entities  []*kg.Entity
	relations []*kg.Relation
	visited   map[string]bool
}

// enumerate walks the graph breadth first, extending simple partial paths one
// hop at a time until the hop bound or the path budget is reached.
func (f *Finder) enumerate(ctx context.Context, start, end *kg.Entity, maxHops, maxPaths int, filter *graphstore.RelationFilter) ([]*kg.Path, bool, error) {
	frontier := []frontierEntry{{
		entities: []*kg.Entity{start},
		visited:  map[string]bool{start.ID: true},
	}}

	var paths []*kg.Path
	truncated := false

	for hop := 1; hop <= maxHops && len(frontier) > 0 && !truncated; hop++ {
		var next []frontierEntry
		for _, entry := range frontier {
			if truncated {
				break
			}
			tail := entry.entities[len(entry.entities)-1]
			neighbours, relations, err := f.store.Neighbours(ctx, tail.ID, 1, filter)
			if err != nil {
				return nil, false, err
			}
			byID := make(map[string]*kg.Entity, len(neighbours))
			for _, e := range neighbours {
				byID[e.ID] = e
			}

			for _, r := range steps(tail.ID, relations) {
				peerID := r.TargetID
				if peerID == tail.ID {
					peerID = r.SourceID
				}
				if entry.visited[peerID] {
					continue
				}
				peer := byID[peerID]
				if peer == nil {
					continue
				}

				extended := extend(entry, peer, r)
				if end == nil || peer.ID == end.ID {
					paths = append(paths, &kg.Path{
						Entities:  append([]*kg.Entity(nil), extended.entities...),
						Relations: append([]*kg.Relation(nil), extended.relations...),
						Hops:      len(extended.relations),
					})
					if len(paths) >= maxPaths {
						truncated = true
						break
					}
				}
				if hop < maxHops && (end == nil || peer.ID != end.ID) {
					next = append(next, extended)
				}
			}
		}
		frontier = next
	}
	return paths, truncated, nil
}

// steps orders the relations touching tail deterministically: outgoing edges
// first, then by relation ID.
func steps(tailID string, relations []*kg.Relation) []*kg.Relation {
	var out []*kg.Relation
	for _, r := range relations {
		if r.SourceID == tailID || r.TargetID == tailID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := out[i].SourceID == tailID, out[j].SourceID == tailID
		if oi != oj {
			return oi
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func extend(entry frontierEntry, peer *kg.Entity, r *kg.Relation) frontierEntry {
	visited := make(map[string]bool, len(entry.visited)+1)
	for id := range entry.visited {
		visited[id] = true
	}
	visited[peer.ID] = true
	return frontierEntry{
		entities:  append(append([]*kg.Entity(nil), entry.entities...), peer),
		relations: append(append([]*kg.Relation(nil), entry.relations...), r),
		visited:   visited,
	}
}

// Score is the public path-scoring formula:
//
//	score = (Σ edge confidence / hops) × RecencyFactor(latest edge year)
//
// so shorter, higher-confidence, more recent paths rank first. The formula is
// exported because it decides tie-breaks inside cached results; changing it
// invalidates comparisons against previously cached scores.
func Score(p *kg.Path, nowYear int) float64 {
	if p.Hops == 0 || len(p.Relations) == 0 {
		return 1
	}
	var sum float64
	latest := 0
	for _, r := range p.Relations {
		sum += r.Confidence
		if y := relationYear(r); y > latest {
			latest = y
		}
	}
	return sum / float64(p.Hops) * RecencyFactor(latest, nowYear)
}

// RecencyFactor linearly interpolates the latest provenance year of a path's
// edges over a 10-year window: the current year scores 1.0, the window edge
// and older score 0.5, and edges with no recorded year score the 0.75
// midpoint.
func RecencyFactor(latestYear, nowYear int) float64 {
	if latestYear <= 0 {
		return 0.75
	}
	age := nowYear - latestYear
	if age <= 0 {
		return 1
	}
	if age >= recencyWindowYears {
		return 0.5
	}
	return 1 - 0.5*float64(age)/float64(recencyWindowYears)
}

// relationYear reads the publication year recorded on a relation, if any.
func relationYear(r *kg.Relation) int {
	v, ok := r.Properties["year"]
	if !ok {
		return 0
	}
	switch y := v.(type) {
	case int:
		return y
	case int64:
		return int(y)
	case float64:
		return int(y)
	case string:
		n, err := strconv.Atoi(y)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// sortPaths orders best-first: higher score, then fewer hops, then the
// lexicographically smaller entity-ID sequence.
func sortPaths(paths []*kg.Path) {
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Score != paths[j].Score {
			return paths[i].Score > paths[j].Score
		}
		if paths[i].Hops != paths[j].Hops {
			return paths[i].Hops < paths[j].Hops
		}
		a, b := paths[i].IDSequence(), paths[j].IDSequence()
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
}

// resolve turns an endpoint spec into a stored entity.
func (f *Finder) resolve(ctx context.Context, id string, t kg.EntityType, name, field string) (*kg.Entity, error) {
	if id != "" {
		return f.store.GetEntity(ctx, id)
	}
	if name == "" {
		return nil, kg.NewValidation(field, "entity id or name is required")
	}
	if t != "" {
		return f.store.FindByTypeName(ctx, t, name)
	}
	matches, err := f.store.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, kg.NewNotFound("entity", name)
	}
	// Multiple types sharing a name: take the highest-confidence match,
	// ties by ID for determinism.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].ID < matches[j].ID
	})
	return matches[0], nil
}
