package core

import (
	"fmt"

	"github.com/encodeous/dronet/perf"
	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
)

// Transport owns the links to directly connected nodes. Sends never block the actor.
type Transport struct {
	*state.State
}

func (t *Transport) Init(s *state.State) error {
	s.Log.Debug("init transport")
	t.State = s
	return nil
}

func (t *Transport) Cleanup(s *state.State) error {
	clear(t.Neighbours)
	return nil
}

// Send forwards pkt to the hop its header currently points at
func (t *Transport) Send(pkt *protocol.Packet) error {
	next, ok := pkt.Header.Current()
	if !ok {
		return fmt.Errorf("%w: %s has no current hop", ErrNoRoute, pkt)
	}
	return t.SendTo(next, pkt)
}

func (t *Transport) SendTo(id state.NodeId, pkt *protocol.Packet) error {
	link, ok := t.Neighbours[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotNeighbour, id)
	}
	b, err := protocol.Marshal(pkt)
	if err != nil {
		return err
	}
	select {
	case link <- b:
	default:
		return fmt.Errorf("%w: %s", ErrLinkCongested, id)
	}
	perf.SentPacketPerSecond.Add(1)
	perf.SentBytesPerSecond.Add(float64(len(b)))
	Get[*Trace](t.State).Emit(Event{
		Kind:    PacketSent,
		Node:    t.Id,
		Peer:    id,
		Session: pkt.Session,
		Packet:  pkt,
	})
	return nil
}

// Broadcast sends pkt to every neighbour not listed in except
func (t *Transport) Broadcast(pkt *protocol.Packet, except ...state.NodeId) {
	for _, n := range t.SortedNeighbours() {
		skip := false
		for _, e := range except {
			skip = skip || e == n
		}
		if skip {
			continue
		}
		if err := t.SendTo(n, pkt); err != nil {
			t.Log.Debug("broadcast failed", "to", n, "err", err)
		}
	}
}

func (t *Transport) AddNeighbour(id state.NodeId, link state.Link) {
	t.Neighbours[id] = link
	t.Graph.AddEdge(t.Id, id)
	t.Log.Debug("added neighbour", "neigh", id)
	Get[*Trace](t.State).Emit(Event{Kind: NeighbourAdded, Node: t.Id, Peer: id})
}

func (t *Transport) RemoveNeighbour(id state.NodeId) {
	if _, ok := t.Neighbours[id]; !ok {
		return
	}
	delete(t.Neighbours, id)
	t.Graph.RemoveEdge(t.Id, id)
	t.Log.Debug("removed neighbour", "neigh", id)
	Get[*Trace](t.State).Emit(Event{Kind: NeighbourRemoved, Node: t.Id, Peer: id})
}
