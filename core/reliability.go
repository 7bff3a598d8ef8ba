package core

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/encodeous/dronet/perf"
	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
)

type RequestState int

const (
	Sending RequestState = iota
	AwaitingAck
	AwaitingResponse
	Complete
	Failed
)

func (s RequestState) String() string {
	switch s {
	case Sending:
		return "Sending"
	case AwaitingAck:
		return "AwaitingAck"
	case AwaitingResponse:
		return "AwaitingResponse"
	case Complete:
		return "Complete"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("RequestState(%d)", int(s))
}

// Result is delivered exactly once for every submitted message
type Result struct {
	Payload []byte
	Err     error
}

// PendingRequest tracks one outgoing message until it completes or fails
type PendingRequest struct {
	Session        protocol.SessionId
	Dest           state.NodeId
	Fragments      []protocol.Fragment
	Unacked        map[uint64]struct{}
	Route          state.SourceRoute
	Retries        int
	State          RequestState
	ExpectResponse bool
	Deadline       time.Time
	LastSend       time.Time
	done           chan Result
}

// Parked reports whether the request is waiting for a route
func (p *PendingRequest) Parked() bool {
	return !p.Route.Valid()
}

type ProtocolEvent int

const (
	FragmentsSent ProtocolEvent = iota
	RouteChanged
	RequestParked
	RetryConsumed
	StaleAck
	StaleNack
)

func (e ProtocolEvent) String() string {
	switch e {
	case FragmentsSent:
		return "FragmentsSent"
	case RouteChanged:
		return "RouteChanged"
	case RequestParked:
		return "RequestParked"
	case RetryConsumed:
		return "RetryConsumed"
	case StaleAck:
		return "StaleAck"
	case StaleNack:
		return "StaleNack"
	}
	return fmt.Sprintf("ProtocolEvent(%d)", int(e))
}

// Network is the set of side effects the reliability state machine performs
type Network interface {
	Self() state.NodeId
	Send(pkt *protocol.Packet) error
	Route(to state.NodeId) (state.SourceRoute, bool)
	InvalidateEdge(a, b state.NodeId)
	SetRole(id state.NodeId, role state.NodeRole)
	Discover()
	Finished(p *PendingRequest, err error)
	Log(event ProtocolEvent, desc string, args ...any)
}

// Reliability delivers fragmented messages with ACK/NACK feedback, retransmission and rerouting
type Reliability struct {
	Net      Network
	Tunables state.Tunables
	Pending  map[protocol.SessionId]*PendingRequest
	counter  uint64
}

func NewReliability(net Network, tun state.Tunables) *Reliability {
	return &Reliability{
		Net:      net,
		Tunables: tun.WithDefaults(),
		Pending:  make(map[protocol.SessionId]*PendingRequest),
	}
}

func (r *Reliability) Init(s *state.State) error {
	s.Log.Debug("init reliability")
	*r = *NewReliability(&stateNetwork{s}, s.Tunables)
	return nil
}

func (r *Reliability) Cleanup(s *state.State) error {
	for _, sess := range slices.Sorted(maps.Keys(r.Pending)) {
		r.fail(r.Pending[sess], ErrStopped)
	}
	return nil
}

// NewSession returns a network-wide unique session id
func (r *Reliability) NewSession() protocol.SessionId {
	r.counter++
	return protocol.SessionId(uint64(r.Net.Self())<<48 | r.counter&(1<<48-1))
}

// Submit starts delivering payload to dest. The returned channel receives exactly one Result.
func (r *Reliability) Submit(session protocol.SessionId, dest state.NodeId, payload []byte, expectResponse bool) <-chan Result {
	now := time.Now()
	frags := FragmentMessage(payload)
	p := &PendingRequest{
		Session:        session,
		Dest:           dest,
		Fragments:      frags,
		Unacked:        make(map[uint64]struct{}, len(frags)),
		State:          Sending,
		ExpectResponse: expectResponse,
		Deadline:       now.Add(r.Tunables.RequestTimeout),
		done:           make(chan Result, 1),
	}
	for _, f := range frags {
		p.Unacked[f.Index] = struct{}{}
	}
	if dest == r.Net.Self() {
		r.fail(p, ErrSelfDestination)
		return p.done
	}
	if old, ok := r.Pending[session]; ok {
		r.fail(old, fmt.Errorf("%w: session %s reused", ErrCancelled, session))
	}
	r.Pending[session] = p
	r.transmit(p, now)
	return p.done
}

// transmit sends every unacked fragment, computing a route first if the request has none
func (r *Reliability) transmit(p *PendingRequest, now time.Time) {
	p.LastSend = now
	for attempt := 0; attempt < state.MaxRouteAttempts; attempt++ {
		if p.Parked() {
			route, ok := r.Net.Route(p.Dest)
			if !ok {
				p.State = Sending
				r.Net.Log(RequestParked, "no route, waiting for discovery", "session", p.Session, "dest", p.Dest)
				r.Net.Discover()
				return
			}
			r.Net.Log(RouteChanged, "using route", "session", p.Session, "route", route)
			p.Route = route
		}
		err := r.sendAll(p)
		if errors.Is(err, ErrNotNeighbour) {
			// our own link to the first hop is gone
			r.Net.InvalidateEdge(r.Net.Self(), p.Route.Hops[1])
			p.Route = state.SourceRoute{}
			continue
		}
		break
	}
	if p.State == Sending {
		p.State = AwaitingAck
	}
}

func (r *Reliability) sendAll(p *PendingRequest) error {
	idxs := slices.Sorted(maps.Keys(p.Unacked))
	for _, idx := range idxs {
		if err := r.sendFragment(p, idx); errors.Is(err, ErrNotNeighbour) {
			return err
		}
	}
	r.Net.Log(FragmentsSent, "sent fragments", "session", p.Session, "count", len(idxs), "route", p.Route)
	return nil
}

func (r *Reliability) sendFragment(p *PendingRequest, idx uint64) error {
	pkt := &protocol.Packet{
		Session:  p.Session,
		Header:   p.Route.Clone(),
		Fragment: &p.Fragments[idx],
	}
	return r.Net.Send(pkt)
}

// consumeRetry charges one retry against the request, failing it once the budget is spent
func (r *Reliability) consumeRetry(p *PendingRequest) bool {
	p.Retries++
	if p.Retries > r.Tunables.MaxRetries {
		r.fail(p, fmt.Errorf("%w: %s unreachable after %d retries", ErrDeliveryFailed, p.Dest, r.Tunables.MaxRetries))
		return false
	}
	perf.Retransmits.Add(1)
	r.Net.Log(RetryConsumed, "retrying", "session", p.Session, "retries", p.Retries)
	return true
}

func (r *Reliability) OnAck(session protocol.SessionId, index uint64, from state.NodeId) {
	p, ok := r.Pending[session]
	if !ok || p.Dest != from {
		r.Net.Log(StaleAck, "ack for unknown session", "session", session, "from", from)
		return
	}
	delete(p.Unacked, index)
	if len(p.Unacked) > 0 || p.State == AwaitingResponse {
		return
	}
	if p.ExpectResponse {
		p.State = AwaitingResponse
		return
	}
	r.complete(p, nil)
}

func (r *Reliability) OnNack(session protocol.SessionId, nack protocol.Nack, reporter state.NodeId) {
	p, ok := r.Pending[session]
	if !ok {
		r.Net.Log(StaleNack, "nack for unknown session", "session", session, "nack", nack)
		return
	}
	switch nack.Kind {
	case protocol.NackDestinationIsDrone:
		r.Net.SetRole(p.Dest, state.RoleRelay)
		r.fail(p, fmt.Errorf("%w: %s", ErrDestinationIsRelay, p.Dest))
	case protocol.NackDropped:
		if _, ok := p.Unacked[nack.Index]; !ok || p.Parked() {
			return
		}
		if r.consumeRetry(p) {
			_ = r.sendFragment(p, nack.Index)
		}
	case protocol.NackErrorInRouting, protocol.NackUnexpectedRecipient:
		idx := p.Route.IndexOf(nack.Node)
		stale := p.Parked() || idx <= 0
		switch {
		case stale:
		case nack.Kind == protocol.NackErrorInRouting:
			// reported by the hop before the failed one, or by a crashing node about itself
			stale = p.Route.Hops[idx-1] != reporter && nack.Node != reporter
		default:
			// only the misaddressed node itself can report it
			stale = nack.Node != reporter
		}
		if stale {
			// refers to a route we no longer use
			r.Net.Log(StaleNack, "nack for an old route", "session", session, "nack", nack, "reporter", reporter)
			if _, ok := p.Unacked[nack.Index]; ok && !p.Parked() {
				_ = r.sendFragment(p, nack.Index)
			}
			return
		}
		r.Net.InvalidateEdge(p.Route.Hops[idx-1], nack.Node)
		if !r.consumeRetry(p) {
			return
		}
		p.Route = state.SourceRoute{}
		r.transmit(p, time.Now())
	default:
		r.Net.Log(StaleNack, "unknown nack", "session", session, "nack", nack)
	}
}

// OnResponse completes the request a reassembled message answers, if any
func (r *Reliability) OnResponse(session protocol.SessionId, from state.NodeId, payload []byte) bool {
	p, ok := r.Pending[session]
	if !ok || !p.ExpectResponse || p.Dest != from {
		return false
	}
	r.complete(p, payload)
	return true
}

// Tick enforces deadlines and retransmits requests that have not been acknowledged in time
func (r *Reliability) Tick(now time.Time) {
	for _, sess := range slices.Sorted(maps.Keys(r.Pending)) {
		p, ok := r.Pending[sess]
		if !ok {
			continue
		}
		if now.After(p.Deadline) {
			r.fail(p, fmt.Errorf("%w: no answer from %s within %s", ErrTimeout, p.Dest, r.Tunables.RequestTimeout))
			continue
		}
		if p.State == AwaitingResponse || now.Sub(p.LastSend) < r.Tunables.AckTimeout {
			continue
		}
		if !r.consumeRetry(p) {
			continue
		}
		// recompute, the cached route is reused if the graph has not changed
		p.Route = state.SourceRoute{}
		r.transmit(p, now)
	}
}

// Resume retries every parked request, called when the topology grows
func (r *Reliability) Resume(now time.Time) {
	for _, sess := range slices.Sorted(maps.Keys(r.Pending)) {
		p := r.Pending[sess]
		if p != nil && p.Parked() {
			if _, ok := r.Net.Route(p.Dest); ok {
				r.transmit(p, now)
			}
		}
	}
}

// Cancel abandons a request without waiting for its outcome
func (r *Reliability) Cancel(session protocol.SessionId) {
	if p, ok := r.Pending[session]; ok {
		r.fail(p, ErrCancelled)
	}
}

func (r *Reliability) complete(p *PendingRequest, payload []byte) {
	p.State = Complete
	r.resolve(p, Result{Payload: payload})
}

func (r *Reliability) fail(p *PendingRequest, err error) {
	p.State = Failed
	perf.RequestsFailed.Add(1)
	r.resolve(p, Result{Err: err})
}

func (r *Reliability) resolve(p *PendingRequest, res Result) {
	if cur, ok := r.Pending[p.Session]; ok && cur == p {
		delete(r.Pending, p.Session)
	}
	select {
	case p.done <- res:
	default:
	}
	r.Net.Finished(p, res.Err)
}

// stateNetwork wires the state machine to the endpoint modules
type stateNetwork struct {
	s *state.State
}

func (n *stateNetwork) Self() state.NodeId {
	return n.s.Id
}

func (n *stateNetwork) Send(pkt *protocol.Packet) error {
	err := Get[*Transport](n.s).Send(pkt)
	if err != nil && !errors.Is(err, ErrNotNeighbour) {
		n.s.Log.Debug("send failed", "pkt", pkt, "err", err)
	}
	return err
}

func (n *stateNetwork) Route(to state.NodeId) (state.SourceRoute, bool) {
	return Get[*Router](n.s).Route(to)
}

func (n *stateNetwork) InvalidateEdge(a, b state.NodeId) {
	Get[*Router](n.s).InvalidateEdge(a, b)
}

func (n *stateNetwork) SetRole(id state.NodeId, role state.NodeRole) {
	n.s.Graph.SetRole(id, role)
}

func (n *stateNetwork) Discover() {
	Get[*Discovery](n.s).Discover(false)
}

func (n *stateNetwork) Finished(p *PendingRequest, err error) {
	ev := Event{Kind: RequestCompleted, Node: n.s.Id, Peer: p.Dest, Session: p.Session, Err: err}
	if err != nil {
		ev.Kind = RequestFailed
		n.s.Log.Warn("request failed", "session", p.Session, "dest", p.Dest, "err", err)
	}
	Get[*Trace](n.s).Emit(ev)
}

func (n *stateNetwork) Log(event ProtocolEvent, desc string, args ...any) {
	n.s.Log.Debug(fmt.Sprintf("%s %s", event, desc), args...)
}
