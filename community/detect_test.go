package community

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
)

// twoClusters builds two dense triangles joined by a single weak bridge.
func twoClusters() *graphstore.ProjectedGraph {
	g := &graphstore.ProjectedGraph{
		Name:      "test",
		Nodes:     []string{"a1", "a2", "a3", "b1", "b2", "b3"},
		Adjacency: map[string][]graphstore.WeightedEdge{},
	}
	link := func(x, y string, w float64) {
		g.Adjacency[x] = append(g.Adjacency[x], graphstore.WeightedEdge{Peer: y, Weight: w})
		g.Adjacency[y] = append(g.Adjacency[y], graphstore.WeightedEdge{Peer: x, Weight: w})
	}
	link("a1", "a2", 1)
	link("a2", "a3", 1)
	link("a1", "a3", 1)
	link("b1", "b2", 1)
	link("b2", "b3", 1)
	link("b1", "b3", 1)
	link("a3", "b1", 0.1)
	return g
}

func TestDetectTwoClusters(t *testing.T) {
	communities, err := Detect(twoClusters(), Options{MaxLevels: 1})
	require.NoError(t, err)

	level0 := make(map[string][]string)
	for _, c := range communities {
		require.Equal(t, 0, c.Level)
		level0[c.ID] = c.MemberIDs
	}
	require.Len(t, level0, 2)

	members := make(map[string]string)
	for id, ms := range level0 {
		for _, m := range ms {
			members[m] = id
		}
	}
	assert.Equal(t, members["a1"], members["a2"])
	assert.Equal(t, members["a1"], members["a3"])
	assert.Equal(t, members["b1"], members["b2"])
	assert.Equal(t, members["b1"], members["b3"])
	assert.NotEqual(t, members["a1"], members["b1"])
}

func TestDetectDeterministic(t *testing.T) {
	first, err := Detect(twoClusters(), Options{})
	require.NoError(t, err)
	second, err := Detect(twoClusters(), Options{})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].MemberIDs, second[i].MemberIDs)
	}
}

func TestDetectMinCommunitySize(t *testing.T) {
	g := twoClusters()
	g.Nodes = append(g.Nodes, "loner")
	g.Adjacency["loner"] = nil

	communities, err := Detect(g, Options{MinCommunitySize: 2, MaxLevels: 1})
	require.NoError(t, err)
	for _, c := range communities {
		assert.GreaterOrEqual(t, c.MemberCount, 2)
		assert.NotContains(t, c.MemberIDs, "loner")
	}
}

func TestDetectHierarchy(t *testing.T) {
	// Four triangles: two pairs bridged strongly within the pair, weakly
	// across pairs, so level 1 should merge the pairs.
	g := &graphstore.ProjectedGraph{
		Name:      "test",
		Adjacency: map[string][]graphstore.WeightedEdge{},
	}
	link := func(x, y string, w float64) {
		g.Adjacency[x] = append(g.Adjacency[x], graphstore.WeightedEdge{Peer: y, Weight: w})
		g.Adjacency[y] = append(g.Adjacency[y], graphstore.WeightedEdge{Peer: x, Weight: w})
	}
	triangle := func(p string) {
		link(p+"1", p+"2", 1)
		link(p+"2", p+"3", 1)
		link(p+"1", p+"3", 1)
		g.Nodes = append(g.Nodes, p+"1", p+"2", p+"3")
	}
	triangle("a")
	triangle("b")
	triangle("c")
	triangle("d")
	link("a1", "b1", 0.9)
	link("c1", "d1", 0.9)
	link("b3", "c3", 0.05)

	communities, err := Detect(g, Options{MaxLevels: 3})
	require.NoError(t, err)

	var level0, higher []*kg.Community
	for _, c := range communities {
		if c.Level == 0 {
			level0 = append(level0, c)
		} else {
			higher = append(higher, c)
		}
	}
	require.NotEmpty(t, level0)

	for _, p := range higher {
		assert.NotEmpty(t, p.ChildIDs)
		for _, childID := range p.ChildIDs {
			var child *kg.Community
			for _, c := range communities {
				if c.ID == childID {
					child = c
					break
				}
			}
			require.NotNil(t, child)
			assert.Equal(t, p.ID, child.ParentID)
			// Parent members are entity IDs, the union of child members.
			for _, m := range child.MemberIDs {
				assert.Contains(t, p.MemberIDs, m)
			}
		}
	}
}

func TestDetectEmptyGraph(t *testing.T) {
	_, err := Detect(nil, Options{})
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))

	_, err = Detect(&graphstore.ProjectedGraph{}, Options{})
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestMembershipHashOrderIndependent(t *testing.T) {
	a := MembershipHash([]string{"x", "y", "z"})
	b := MembershipHash([]string{"z", "x", "y"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, MembershipHash([]string{"x", "y"}))
}
