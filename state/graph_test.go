package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraphEdgesAreSymmetric(t *testing.T) {
	g := NewGraph()
	assert.True(t, g.AddEdge(1, 2))
	assert.False(t, g.AddEdge(2, 1))
	assert.False(t, g.AddEdge(3, 3))

	assert.True(t, g.HasEdge(1, 2))
	assert.True(t, g.HasEdge(2, 1))
	assert.Equal(t, []NodeId{2}, g.Neighbours(1))
	assert.Equal(t, []NodeId{1}, g.Neighbours(2))

	assert.True(t, g.RemoveEdge(2, 1))
	assert.False(t, g.HasEdge(1, 2))
	assert.False(t, g.RemoveEdge(1, 2))
}

func TestGraphVersion(t *testing.T) {
	g := NewGraph()
	v := g.Version()
	g.AddEdge(1, 2)
	assert.Greater(t, g.Version(), v)

	v = g.Version()
	g.AddEdge(1, 2)
	g.SetRole(1, RoleRelay)
	assert.Greater(t, g.Version(), v)

	v = g.Version()
	g.SetRole(1, RoleRelay)
	g.SetRole(1, RoleUnknown)
	assert.Equal(t, v, g.Version())
	assert.Equal(t, RoleRelay, g.Role(1))
}

func TestGraphRemoveNode(t *testing.T) {
	g := NewGraph()
	g.AddEdge(1, 2)
	g.AddEdge(1, 3)
	g.AddEdge(2, 3)
	g.SetRole(1, RoleRelay)
	g.RemoveNode(1)

	assert.Empty(t, g.Neighbours(1))
	assert.Equal(t, []NodeId{3}, g.Neighbours(2))
	assert.Equal(t, []Pair[NodeId, NodeId]{{2, 3}}, g.Edges())
	assert.Equal(t, []NodeId{1, 2, 3}, g.Nodes())
	assert.Equal(t, []NodeId{1}, g.NodesWithRole(RoleRelay))
}

func TestGraphView(t *testing.T) {
	g := NewGraph()
	g.AddEdge(5, 9)
	g.AddEdge(5, 1)
	g.SetRole(9, RoleMediaServer)
	g.View(func(v GraphView) {
		assert.Equal(t, []NodeId{1, 9}, v.Neighbours(5))
		assert.Equal(t, RoleMediaServer, v.Role(9))
		assert.Equal(t, RoleUnknown, v.Role(5))
	})
}
