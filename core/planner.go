package core

import (
	"slices"

	"github.com/encodeous/dronet/state"
)

// ComputeRoute finds a minimum hop route with a breadth-first search. Neighbours are explored in
// ascending id order, so the result only depends on the graph. Only relays (or nodes of unknown
// role) may appear as intermediate hops.
func ComputeRoute(g state.GraphView, from, to state.NodeId) (state.SourceRoute, bool) {
	if from == to {
		return state.SourceRoute{Hops: []state.NodeId{from}}, true
	}
	prev := map[state.NodeId]state.NodeId{from: from}
	queue := []state.NodeId{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.Neighbours(cur) {
			if _, seen := prev[n]; seen {
				continue
			}
			prev[n] = cur
			if n == to {
				return buildRoute(prev, from, to), true
			}
			if !canForward(g.Role(n)) {
				continue
			}
			queue = append(queue, n)
		}
	}
	return state.SourceRoute{}, false
}

func canForward(role state.NodeRole) bool {
	return role == state.RoleRelay || role == state.RoleUnknown
}

func buildRoute(prev map[state.NodeId]state.NodeId, from, to state.NodeId) state.SourceRoute {
	hops := []state.NodeId{to}
	for cur := to; cur != from; {
		cur = prev[cur]
		hops = append(hops, cur)
	}
	slices.Reverse(hops)
	return state.NewRoute(hops...)
}

// Router caches computed routes and drops the cache whenever the graph changes
type Router struct {
	*state.State
	routes  map[state.NodeId]state.SourceRoute
	version uint64
}

func (r *Router) Init(s *state.State) error {
	s.Log.Debug("init router")
	r.State = s
	r.routes = make(map[state.NodeId]state.SourceRoute)
	return nil
}

func (r *Router) Cleanup(s *state.State) error {
	clear(r.routes)
	return nil
}

func (r *Router) Route(to state.NodeId) (state.SourceRoute, bool) {
	if v := r.Graph.Version(); v != r.version {
		clear(r.routes)
		r.version = v
	}
	if route, ok := r.routes[to]; ok {
		return route.Clone(), true
	}
	var route state.SourceRoute
	ok := false
	r.Graph.View(func(g state.GraphView) {
		route, ok = ComputeRoute(g, r.Id, to)
	})
	if !ok || !route.Valid() {
		return state.SourceRoute{}, false
	}
	r.routes[to] = route
	return route.Clone(), true
}

// InvalidateEdge forgets a <-> b until discovery learns it again
func (r *Router) InvalidateEdge(a, b state.NodeId) {
	if r.Graph.RemoveEdge(a, b) {
		r.Log.Debug("invalidated edge", "a", a, "b", b)
	}
}

// CachedRoutes returns a copy of the route cache
func (r *Router) CachedRoutes() map[state.NodeId]state.SourceRoute {
	out := make(map[state.NodeId]state.SourceRoute, len(r.routes))
	for k, v := range r.routes {
		out[k] = v.Clone()
	}
	return out
}
