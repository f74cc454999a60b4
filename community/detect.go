package community

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/log"
)

// Detection defaults.
const (
	DefaultMinCommunitySize = 2
	DefaultMaxLevels        = 3

	// maxIterations bounds label propagation before the components
	// fallback takes over.
	maxIterations = 20
)

// Options tunes community detection.
type Options struct {
	// MinCommunitySize drops communities with fewer members at each level.
	// Zero means DefaultMinCommunitySize.
	MinCommunitySize int
	// MaxLevels bounds the agglomeration hierarchy. Zero means
	// DefaultMaxLevels.
	MaxLevels int
}

func (o Options) minSize() int {
	if o.MinCommunitySize <= 0 {
		return DefaultMinCommunitySize
	}
	return o.MinCommunitySize
}

func (o Options) maxLevels() int {
	if o.MaxLevels <= 0 {
		return DefaultMaxLevels
	}
	return o.MaxLevels
}

// Detect partitions the projected graph into hierarchical communities.
// Level 0 is the finest partition; each higher level is detected over the
// contracted super-node graph of the level below. Identical inputs always
// produce identical partitions: node processing order is fixed by an FNV
// hash of the node ID, and ties break towards the smaller label.
func Detect(g *graphstore.ProjectedGraph, opts Options) ([]*kg.Community, error) {
	if g == nil || len(g.Nodes) == 0 {
		return nil, kg.NewValidation("projection", "projected graph has no nodes")
	}

	var all []*kg.Community
	current := g
	// parents[i] maps a node of the level-i graph to its community.
	var previous []*kg.Community

	for level := 0; level < opts.maxLevels(); level++ {
		groups := propagate(current)
		communities := buildLevel(groups, level, opts.minSize())
		if len(communities) == 0 {
			break
		}

		done := len(communities) <= 1 || len(communities) == len(current.Nodes)
		var next *graphstore.ProjectedGraph
		if !done {
			// Contract before linking: member IDs still name nodes of the
			// current graph here, afterwards they are entity IDs.
			next = contract(current, communities)
		}
		if level > 0 {
			linkLevels(previous, communities)
		}
		all = append(all, communities...)

		if done {
			break
		}
		current = next
		previous = communities
	}

	log.Debug("community: detected %d communities across levels", len(all))
	return all, nil
}

// propagate runs weighted label propagation and returns label → members.
// Falls back to connected components when the labels fail to stabilise.
func propagate(g *graphstore.ProjectedGraph) map[string][]string {
	order := append([]string(nil), g.Nodes...)
	sort.Slice(order, func(i, j int) bool {
		hi, hj := fnvHash(order[i]), fnvHash(order[j])
		if hi != hj {
			return hi < hj
		}
		return order[i] < order[j]
	})

	labels := make(map[string]string, len(order))
	for _, n := range order {
		labels[n] = n
	}

	converged := false
	for iter := 0; iter < maxIterations && !converged; iter++ {
		converged = true
		for _, n := range order {
			weight := make(map[string]float64)
			for _, e := range g.Adjacency[n] {
				w := e.Weight
				if w <= 0 {
					w = 1
				}
				weight[labels[e.Peer]] += w
			}
			if len(weight) == 0 {
				continue
			}
			best := labels[n]
			bestWeight := weight[best]
			for label, w := range weight {
				if w > bestWeight || (w == bestWeight && label < best) {
					best, bestWeight = label, w
				}
			}
			if best != labels[n] {
				labels[n] = best
				converged = false
			}
		}
	}
	if !converged {
		return components(g)
	}

	groups := make(map[string][]string)
	for node, label := range labels {
		groups[label] = append(groups[label], node)
	}
	return groups
}

// components is the convergence fallback: plain connected components.
func components(g *graphstore.ProjectedGraph) map[string][]string {
	visited := make(map[string]bool, len(g.Nodes))
	groups := make(map[string][]string)
	for _, start := range g.Nodes {
		if visited[start] {
			continue
		}
		var member []string
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			member = append(member, n)
			for _, e := range g.Adjacency[n] {
				if !visited[e.Peer] {
					visited[e.Peer] = true
					queue = append(queue, e.Peer)
				}
			}
		}
		groups[start] = member
	}
	return groups
}

// buildLevel turns label groups into Community values with stable IDs,
// dropping groups below the size floor.
func buildLevel(groups map[string][]string, level, minSize int) []*kg.Community {
	labels := make([]string, 0, len(groups))
	for label, members := range groups {
		if len(members) >= minSize {
			labels = append(labels, label)
		}
	}
	// Order by size, then label, so IDs are stable across runs.
	sort.Slice(labels, func(i, j int) bool {
		if len(groups[labels[i]]) != len(groups[labels[j]]) {
			return len(groups[labels[i]]) > len(groups[labels[j]])
		}
		return labels[i] < labels[j]
	})

	communities := make([]*kg.Community, len(labels))
	for i, label := range labels {
		members := append([]string(nil), groups[label]...)
		sort.Strings(members)
		communities[i] = &kg.Community{
			ID:          fmt.Sprintf("community-l%d-%d", level, i),
			Level:       level,
			MemberIDs:   members,
			MemberCount: len(members),
		}
	}
	return communities
}

// contract builds the super-node graph for the next level: one node per
// community, edge weights summed across member edges between communities.
func contract(g *graphstore.ProjectedGraph, communities []*kg.Community) *graphstore.ProjectedGraph {
	owner := make(map[string]string)
	for _, c := range communities {
		for _, m := range c.MemberIDs {
			owner[m] = c.ID
		}
	}

	weights := make(map[string]map[string]float64)
	for node, edges := range g.Adjacency {
		from, ok := owner[node]
		if !ok {
			continue
		}
		for _, e := range edges {
			to, ok := owner[e.Peer]
			if !ok || to == from {
				continue
			}
			if weights[from] == nil {
				weights[from] = make(map[string]float64)
			}
			w := e.Weight
			if w <= 0 {
				w = 1
			}
			weights[from][to] += w
		}
	}

	next := &graphstore.ProjectedGraph{
		Name:      g.Name,
		Nodes:     make([]string, 0, len(communities)),
		Adjacency: make(map[string][]graphstore.WeightedEdge, len(communities)),
	}
	for _, c := range communities {
		next.Nodes = append(next.Nodes, c.ID)
		peers := make([]string, 0, len(weights[c.ID]))
		for peer := range weights[c.ID] {
			peers = append(peers, peer)
		}
		sort.Strings(peers)
		for _, peer := range peers {
			next.Adjacency[c.ID] = append(next.Adjacency[c.ID], graphstore.WeightedEdge{
				Peer:   peer,
				Weight: weights[c.ID][peer],
			})
		}
	}
	return next
}

// linkLevels wires parent/child pointers between consecutive levels. A
// parent is detected over the contracted graph, so its members arrive as
// child community IDs; they are expanded here to the union of the child
// entity sets.
func linkLevels(children, parents []*kg.Community) {
	byID := make(map[string]*kg.Community, len(children))
	for _, c := range children {
		byID[c.ID] = c
	}
	for _, p := range parents {
		var members []string
		for _, childID := range p.MemberIDs {
			child, ok := byID[childID]
			if !ok {
				continue
			}
			child.ParentID = p.ID
			p.ChildIDs = append(p.ChildIDs, child.ID)
			members = append(members, child.MemberIDs...)
		}
		sort.Strings(p.ChildIDs)
		sort.Strings(members)
		p.MemberIDs = members
		p.MemberCount = len(members)
	}
}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
