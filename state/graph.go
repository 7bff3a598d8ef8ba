package state

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Graph is the locally learned view of the network topology. Edges are always symmetric.
// Mutations bump Version so derived data (routes) can detect staleness.
type Graph struct {
	mu      sync.RWMutex
	adj     map[NodeId]map[NodeId]struct{}
	roles   map[NodeId]NodeRole
	version uint64
}

func NewGraph() *Graph {
	return &Graph{
		adj:   make(map[NodeId]map[NodeId]struct{}),
		roles: make(map[NodeId]NodeRole),
	}
}

func (g *Graph) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// AddEdge records a <-> b, returning true if the edge is new
func (g *Graph) AddEdge(a, b NodeId) bool {
	if a == b {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.adj[a][b]; ok {
		return false
	}
	g.link(a, b)
	g.link(b, a)
	g.version++
	return true
}

func (g *Graph) link(a, b NodeId) {
	n, ok := g.adj[a]
	if !ok {
		n = make(map[NodeId]struct{})
		g.adj[a] = n
	}
	n[b] = struct{}{}
}

// RemoveEdge drops a <-> b, returning true if the edge existed
func (g *Graph) RemoveEdge(a, b NodeId) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.adj[a][b]; !ok {
		return false
	}
	delete(g.adj[a], b)
	delete(g.adj[b], a)
	g.version++
	return true
}

// RemoveNode drops every edge touching id, the role is kept
func (g *Graph) RemoveNode(id NodeId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for n := range g.adj[id] {
		delete(g.adj[n], id)
	}
	delete(g.adj, id)
	g.version++
}

func (g *Graph) HasEdge(a, b NodeId) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.adj[a][b]
	return ok
}

// SetRole records the role of a node. Unknown never overwrites a known role.
func (g *Graph) SetRole(id NodeId, role NodeRole) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	cur, ok := g.roles[id]
	if (ok && cur == role) || (ok && role == RoleUnknown) {
		return false
	}
	g.roles[id] = role
	g.version++
	return true
}

func (g *Graph) Role(id NodeId) NodeRole {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.roles[id]
}

// Neighbours returns the neighbours of id in ascending order
func (g *Graph) Neighbours(id NodeId) []NodeId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Sorted(maps.Keys(g.adj[id]))
}

// Nodes returns every node with an edge or a known role, in ascending order
func (g *Graph) Nodes() []NodeId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := make(map[NodeId]struct{}, len(g.adj)+len(g.roles))
	for n := range g.adj {
		set[n] = struct{}{}
	}
	for n := range g.roles {
		set[n] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

func (g *Graph) NodesWithRole(role NodeRole) []NodeId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]NodeId, 0)
	for n, r := range g.roles {
		if r == role {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

// Edges returns every edge once, as sorted pairs
func (g *Graph) Edges() []Pair[NodeId, NodeId] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Pair[NodeId, NodeId], 0)
	for a, ns := range g.adj {
		for b := range ns {
			if a < b {
				out = append(out, Pair[NodeId, NodeId]{a, b})
			}
		}
	}
	SortPairs(out)
	return out
}

// View runs fun while holding the read lock. fun must not call other Graph methods.
func (g *Graph) View(fun func(v GraphView)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fun(graphView{g})
}

// GraphView is a lock-free read interface used while the read lock is held
type GraphView interface {
	Neighbours(id NodeId) []NodeId
	Role(id NodeId) NodeRole
}

type graphView struct {
	g *Graph
}

func (v graphView) Neighbours(id NodeId) []NodeId {
	return slices.Sorted(maps.Keys(v.g.adj[id]))
}

func (v graphView) Role(id NodeId) NodeRole {
	return v.g.roles[id]
}

func (g *Graph) String() string {
	sb := strings.Builder{}
	for _, n := range g.Nodes() {
		sb.WriteString(fmt.Sprintf(" - %s (%s):", n, g.Role(n)))
		for _, x := range g.Neighbours(n) {
			sb.WriteString(" " + x.String())
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
