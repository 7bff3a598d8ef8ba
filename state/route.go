package state

import (
	"slices"
	"strings"
)

// SourceRoute is the full hop sequence of a packet. HopIndex points at the node the packet is addressed to.
type SourceRoute struct {
	Hops     []NodeId
	HopIndex int
}

// NewRoute creates a route ready to be sent by Hops[0]
func NewRoute(hops ...NodeId) SourceRoute {
	return SourceRoute{
		Hops:     hops,
		HopIndex: 1,
	}
}

func (r SourceRoute) Valid() bool {
	return len(r.Hops) >= 2 && r.HopIndex >= 0 && r.HopIndex < len(r.Hops)
}

func (r SourceRoute) Source() NodeId {
	return r.Hops[0]
}

func (r SourceRoute) Destination() NodeId {
	return r.Hops[len(r.Hops)-1]
}

// Current returns the node the packet is currently addressed to
func (r SourceRoute) Current() (NodeId, bool) {
	if r.HopIndex < 0 || r.HopIndex >= len(r.Hops) {
		return 0, false
	}
	return r.Hops[r.HopIndex], true
}

// NextHop returns the hop after the current one
func (r SourceRoute) NextHop() (NodeId, bool) {
	if r.HopIndex+1 >= len(r.Hops) || r.HopIndex < 0 {
		return 0, false
	}
	return r.Hops[r.HopIndex+1], true
}

func (r SourceRoute) AtDestination() bool {
	return r.HopIndex == len(r.Hops)-1
}

func (r *SourceRoute) Advance() {
	r.HopIndex++
}

// Reverse returns a fresh route from the current hop back to the source
func (r SourceRoute) Reverse() SourceRoute {
	end := min(r.HopIndex, len(r.Hops)-1)
	hops := slices.Clone(r.Hops[:end+1])
	slices.Reverse(hops)
	return NewRoute(hops...)
}

func (r SourceRoute) IndexOf(id NodeId) int {
	return slices.Index(r.Hops, id)
}

func (r SourceRoute) Clone() SourceRoute {
	return SourceRoute{
		Hops:     slices.Clone(r.Hops),
		HopIndex: r.HopIndex,
	}
}

func (r SourceRoute) Equal(o SourceRoute) bool {
	return slices.Equal(r.Hops, o.Hops)
}

func (r SourceRoute) String() string {
	parts := make([]string, 0, len(r.Hops))
	for i, h := range r.Hops {
		if i == r.HopIndex {
			parts = append(parts, "["+h.String()+"]")
		} else {
			parts = append(parts, h.String())
		}
	}
	return strings.Join(parts, " -> ")
}
