package state

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"
)

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// Link is the sending half of a connection to a neighbour. Packets are encoded frames.
type Link chan<- []byte

// State access must be done only on a single Goroutine
type State struct {
	*Env
	Modules    map[string]NyModule
	Neighbours map[NodeId]Link
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan func(s *State) error
	EndpointCfg
	Tunables
	Graph    *Graph
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Log      *slog.Logger
	Started  atomic.Bool
	Stopping atomic.Bool
}

// SortedNeighbours returns the ids of directly connected nodes in ascending order
func (s *State) SortedNeighbours() []NodeId {
	return slices.Sorted(maps.Keys(s.Neighbours))
}
