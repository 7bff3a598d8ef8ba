package core

import (
	"errors"

	"github.com/encodeous/dronet/perf"
	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
)

// Role is the application logic running on an endpoint
type Role interface {
	Kind() state.NodeRole
	// HandleMessage processes a message that is not the answer to one of our own requests.
	// Returning protocol.ErrUnsupportedRequest makes the endpoint answer with a typed error.
	HandleMessage(r Responder, from state.NodeId, msg protocol.Message) error
}

// Responder lets a role answer the message being handled or message other endpoints
type Responder interface {
	Self() state.NodeId
	// Reply answers on the session of the message being handled
	Reply(msg protocol.Message) error
	// Send delivers msg to another endpoint on a fresh session without waiting for the outcome
	Send(to state.NodeId, msg protocol.Message) error
}

// Adapter turns inbound frames into protocol actions and reassembled messages into role calls
type Adapter struct {
	*state.State
	Role Role
}

func (a *Adapter) Init(s *state.State) error {
	s.Log.Debug("init adapter")
	a.State = s
	return nil
}

func (a *Adapter) Cleanup(s *state.State) error {
	return nil
}

// HandleFrame processes one encoded packet received from a neighbour
func (a *Adapter) HandleFrame(frame []byte) {
	perf.RecvPacketPerSecond.Add(1)
	perf.RecvBytesPerSecond.Add(float64(len(frame)))
	pkt, err := protocol.Unmarshal(frame)
	if err != nil {
		a.Log.Warn("dropping malformed packet", "err", err)
		return
	}
	if pkt.FloodRequest != nil {
		Get[*Discovery](a.State).HandleFloodRequest(pkt)
		return
	}
	cur, ok := pkt.Header.Current()
	if !ok || cur != a.Id || !pkt.Header.AtDestination() {
		// endpoints never forward
		a.Log.Warn("packet not addressed to us", "pkt", pkt)
		if pkt.Fragment != nil && ok && cur == a.Id {
			a.nack(pkt, protocol.Nack{Index: pkt.Fragment.Index, Kind: protocol.NackUnexpectedRecipient, Node: a.Id})
		}
		return
	}
	from := pkt.Header.Source()
	switch {
	case pkt.FloodResponse != nil:
		Get[*Discovery](a.State).HandleFloodResponse(pkt)
	case pkt.Ack != nil:
		Get[*Reliability](a.State).OnAck(pkt.Session, pkt.Ack.Index, from)
	case pkt.Nack != nil:
		Get[*Reliability](a.State).OnNack(pkt.Session, *pkt.Nack, from)
	case pkt.Fragment != nil:
		a.handleFragment(pkt, from)
	}
}

func (a *Adapter) nack(pkt *protocol.Packet, nack protocol.Nack) {
	if pkt.Header.HopIndex == 0 {
		return
	}
	if err := Get[*Transport](a.State).Send(protocol.NackFor(pkt, nack)); err != nil {
		a.Log.Debug("failed to send nack", "err", err)
	}
}

func (a *Adapter) handleFragment(pkt *protocol.Packet, from state.NodeId) {
	payload, complete, err := Get[*Assembler](a.State).Add(SessionKey{pkt.Session, from}, *pkt.Fragment)
	if err != nil {
		a.Log.Warn("discarding session", "from", from, "err", err)
		return
	}
	ack := &protocol.Packet{
		Session: pkt.Session,
		Header:  pkt.Header.Reverse(),
		Ack:     &protocol.Ack{Index: pkt.Fragment.Index},
	}
	if err := Get[*Transport](a.State).Send(ack); err != nil {
		a.Log.Debug("failed to send ack", "to", from, "err", err)
	}
	if complete {
		a.deliver(pkt.Session, from, payload)
	}
}

func (a *Adapter) deliver(session protocol.SessionId, from state.NodeId, payload []byte) {
	perf.MessagesDelivered.Add(1)
	Get[*Trace](a.State).Emit(Event{Kind: MessageDelivered, Node: a.Id, Peer: from, Session: session})
	if Get[*Reliability](a.State).OnResponse(session, from, payload) {
		return
	}
	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		a.Log.Warn("undecodable message", "from", from, "session", session, "err", err)
		a.reply(session, from, protocol.Unsupported(err.Error()))
		return
	}
	a.Log.Debug("received message", "from", from, "msg", msg)
	if a.Role == nil {
		err = protocol.ErrUnsupportedRequest
	} else {
		err = a.Role.HandleMessage(&responder{a: a, session: session, to: from}, from, msg)
	}
	if err == nil {
		return
	}
	if errors.Is(err, protocol.ErrUnsupportedRequest) && msg.Type.IsRequest() {
		a.reply(session, from, protocol.Unsupported(string(msg.Type)))
		return
	}
	a.Log.Warn("role failed to handle message", "from", from, "msg", msg, "err", err)
}

// reply answers on session without waiting for delivery
func (a *Adapter) reply(session protocol.SessionId, to state.NodeId, msg protocol.Message) error {
	payload, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	Get[*Reliability](a.State).Submit(session, to, payload, false)
	return nil
}

type responder struct {
	a       *Adapter
	session protocol.SessionId
	to      state.NodeId
}

func (r *responder) Self() state.NodeId {
	return r.a.Id
}

func (r *responder) Reply(msg protocol.Message) error {
	return r.a.reply(r.session, r.to, msg)
}

func (r *responder) Send(to state.NodeId, msg protocol.Message) error {
	return r.a.reply(Get[*Reliability](r.a.State).NewSession(), to, msg)
}
