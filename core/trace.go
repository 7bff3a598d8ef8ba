package core

import (
	"fmt"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
)

// Trace publishes observability events to any registered listener.
// Listeners must drain their channel; events are dropped when the broadcaster is backed up.
type Trace struct {
	broadcast.Broadcaster
}

type EventKind int

const (
	PacketSent EventKind = iota
	FloodStarted
	MessageDelivered
	RequestCompleted
	RequestFailed
	NeighbourAdded
	NeighbourRemoved
)

func (k EventKind) String() string {
	switch k {
	case PacketSent:
		return "PacketSent"
	case FloodStarted:
		return "FloodStarted"
	case MessageDelivered:
		return "MessageDelivered"
	case RequestCompleted:
		return "RequestCompleted"
	case RequestFailed:
		return "RequestFailed"
	case NeighbourAdded:
		return "NeighbourAdded"
	case NeighbourRemoved:
		return "NeighbourRemoved"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is a single observable action of an endpoint
type Event struct {
	Kind    EventKind
	Node    state.NodeId
	Peer    state.NodeId
	Session protocol.SessionId
	Packet  *protocol.Packet
	Err     error
}

func (e Event) String() string {
	out := fmt.Sprintf("%s node=%s peer=%s session=%s", e.Kind, e.Node, e.Peer, e.Session)
	if e.Packet != nil {
		out += " " + e.Packet.Kind()
	}
	if e.Err != nil {
		out += " err=" + e.Err.Error()
	}
	return out
}

func (t *Trace) Init(s *state.State) error {
	t.Broadcaster = broadcast.NewBroadcaster(1024)
	return nil
}

func (t *Trace) Cleanup(s *state.State) error {
	return t.Broadcaster.Close()
}

func (t *Trace) Emit(e Event) {
	t.TrySubmit(e)
}
