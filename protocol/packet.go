package protocol

import (
	"fmt"

	"github.com/encodeous/dronet/state"
)

// SessionId identifies one logical message. Responses reuse the id of the request.
type SessionId uint64

func (s SessionId) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// Packet is the unit exchanged between neighbours. Exactly one body is set.
type Packet struct {
	Session SessionId
	Header  state.SourceRoute

	Fragment      *Fragment
	Ack           *Ack
	Nack          *Nack
	FloodRequest  *FloodRequest
	FloodResponse *FloodResponse
}

type Fragment struct {
	Index uint64
	Total uint64
	Data  []byte
}

type Ack struct {
	Index uint64
}

type NackKind uint8

const (
	// NackErrorInRouting is sent when the next hop is not a neighbour of the reporting node
	NackErrorInRouting NackKind = iota + 1
	// NackDestinationIsDrone is sent when a packet terminates at a relay
	NackDestinationIsDrone
	// NackDropped is sent when a relay drops a fragment
	NackDropped
	// NackUnexpectedRecipient is sent when a node receives a packet not addressed to it
	NackUnexpectedRecipient
)

func (k NackKind) String() string {
	switch k {
	case NackErrorInRouting:
		return "ErrorInRouting"
	case NackDestinationIsDrone:
		return "DestinationIsDrone"
	case NackDropped:
		return "Dropped"
	case NackUnexpectedRecipient:
		return "UnexpectedRecipient"
	}
	return fmt.Sprintf("NackKind(%d)", uint8(k))
}

type Nack struct {
	Index uint64
	Kind  NackKind
	// Node is the unreachable hop for ErrorInRouting, the reporting node for UnexpectedRecipient
	Node state.NodeId
}

func (n Nack) String() string {
	switch n.Kind {
	case NackErrorInRouting, NackUnexpectedRecipient:
		return fmt.Sprintf("%s(%s) idx=%d", n.Kind, n.Node, n.Index)
	}
	return fmt.Sprintf("%s idx=%d", n.Kind, n.Index)
}

type TraceEntry struct {
	Node state.NodeId
	Role state.NodeRole
}

type FloodRequest struct {
	FloodId   uint64
	Initiator state.NodeId
	PathTrace []TraceEntry
}

type FloodResponse struct {
	FloodId   uint64
	PathTrace []TraceEntry
}

// Kind names the body of the packet
func (p *Packet) Kind() string {
	switch {
	case p.Fragment != nil:
		return "fragment"
	case p.Ack != nil:
		return "ack"
	case p.Nack != nil:
		return "nack"
	case p.FloodRequest != nil:
		return "flood_request"
	case p.FloodResponse != nil:
		return "flood_response"
	}
	return "empty"
}

// Droppable reports whether relays may drop this packet when simulating loss
func (p *Packet) Droppable() bool {
	return p.Fragment != nil
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s session=%s route=%s", p.Kind(), p.Session, p.Header)
}

// RespondFlood turns a flood request into the response travelling back along the trace.
// The responder must already be the last trace entry.
func RespondFlood(session SessionId, req *FloodRequest) *Packet {
	hops := make([]state.NodeId, 0, len(req.PathTrace)+1)
	for i := len(req.PathTrace) - 1; i >= 0; i-- {
		hops = append(hops, req.PathTrace[i].Node)
	}
	if len(hops) == 0 || hops[len(hops)-1] != req.Initiator {
		hops = append(hops, req.Initiator)
	}
	return &Packet{
		Session: session,
		Header:  state.NewRoute(hops...),
		FloodResponse: &FloodResponse{
			FloodId:   req.FloodId,
			PathTrace: append([]TraceEntry(nil), req.PathTrace...),
		},
	}
}

// NackFor builds the NACK a node sends back to the source of pkt. The reporter must be pkt's current hop.
func NackFor(pkt *Packet, nack Nack) *Packet {
	return &Packet{
		Session: pkt.Session,
		Header:  pkt.Header.Reverse(),
		Nack:    &nack,
	}
}
