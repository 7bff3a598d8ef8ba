package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"reflect"

	"github.com/encodeous/dronet/core"
	"github.com/encodeous/dronet/perf"
	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
	"github.com/jellydator/ttlcache/v3"
)

type floodKey struct {
	FloodId   uint64
	Initiator state.NodeId
}

// Drone is the reference relay. It forwards source routed packets, drops fragments with
// probability Pdr and takes part in floods. Like an endpoint, all of its state lives on one goroutine.
type Drone struct {
	*state.Env
	s     *state.State
	pdr   float64
	rng   *rand.Rand
	seen  *ttlcache.Cache[floodKey, struct{}]
	input chan []byte
	done  chan struct{}
}

func NewDrone(cfg state.DroneCfg, tun state.Tunables, seed uint64, logger *slog.Logger) (*Drone, error) {
	if cfg.Pdr < 0 || cfg.Pdr > 1 {
		return nil, fmt.Errorf("drone %s: %w", cfg.Id, ErrInvalidPdr)
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	env := &state.Env{
		DispatchChannel: make(chan func(s *state.State) error, state.DispatchBuffer),
		EndpointCfg:     state.EndpointCfg{Id: cfg.Id, Role: state.RoleRelay},
		Tunables:        tun.WithDefaults(),
		Graph:           state.NewGraph(),
		Context:         ctx,
		Cancel:          cancel,
		Log:             logger.With("drone", cfg.Id),
	}
	s := &state.State{
		Env:        env,
		Modules:    make(map[string]state.NyModule),
		Neighbours: make(map[state.NodeId]state.Link),
	}
	trace := &core.Trace{}
	s.Modules[reflect.TypeOf(trace).String()] = trace
	if err := trace.Init(s); err != nil {
		cancel(err)
		return nil, err
	}
	return &Drone{
		Env: env,
		s:   s,
		pdr: cfg.Pdr,
		rng: rand.New(rand.NewPCG(seed, uint64(cfg.Id))),
		seen: ttlcache.New[floodKey, struct{}](
			ttlcache.WithTTL[floodKey, struct{}](state.FloodSeenTTL),
			ttlcache.WithDisableTouchOnHit[floodKey, struct{}](),
		),
		input: make(chan []byte, state.LinkBuffer),
		done:  make(chan struct{}),
	}, nil
}

func (d *Drone) Input() state.Link {
	return d.input
}

func (d *Drone) Done() <-chan struct{} {
	return d.done
}

// Events publishes the packets this drone sends
func (d *Drone) Events() *core.Trace {
	return core.Get[*core.Trace](d.s)
}

func (d *Drone) Run() error {
	defer close(d.done)
	if d.Context.Err() != nil {
		d.stop()
		return nil
	}
	d.RepeatTask(func(s *state.State) error {
		d.seen.DeleteExpired()
		return nil
	}, d.GcDelay)

	d.Log.Debug("drone started", "pdr", d.pdr)
	d.Started.Store(true)
	for {
		select {
		case fun := <-d.DispatchChannel:
			if err := fun(d.s); err != nil {
				d.Log.Error("error occurred during dispatch: ", "error", err)
				d.Cancel(err)
			}
		case frame := <-d.input:
			d.handle(frame, false)
		case <-d.Context.Done():
			d.Log.Debug("drone stopped", "reason", context.Cause(d.Context).Error())
			d.stop()
			return nil
		}
	}
}

func (d *Drone) stop() {
	if d.Stopping.Swap(true) {
		return
	}
	d.Cancel(ErrCrashed)
	d.seen.DeleteAll()
	clear(d.s.Neighbours)
	if err := d.Events().Cleanup(d.s); err != nil {
		d.Log.Error("error occurred during Stop: ", "error", err)
	}
}

func (d *Drone) Shutdown() {
	d.Cancel(fmt.Errorf("%w: shutdown requested", ErrCrashed))
	if !d.Started.Load() {
		d.stop()
	}
}

func (d *Drone) AddNeighbour(id state.NodeId, link state.Link) {
	d.Dispatch(func(s *state.State) error {
		s.Neighbours[id] = link
		s.Graph.AddEdge(s.Id, id)
		d.Log.Debug("added sender", "neigh", id)
		return nil
	})
}

func (d *Drone) RemoveNeighbour(id state.NodeId) {
	d.Dispatch(func(s *state.State) error {
		if _, ok := s.Neighbours[id]; !ok {
			d.Log.Warn("cannot remove sender, not a neighbour", "neigh", id)
			return nil
		}
		delete(s.Neighbours, id)
		s.Graph.RemoveEdge(s.Id, id)
		d.Log.Debug("removed sender", "neigh", id)
		return nil
	})
}

func (d *Drone) SetPdr(pdr float64) error {
	if pdr < 0 || pdr > 1 {
		return ErrInvalidPdr
	}
	d.Dispatch(func(s *state.State) error {
		d.pdr = pdr
		d.Log.Debug("set pdr", "pdr", pdr)
		return nil
	})
	return nil
}

// Crash stops the drone. Fragments still queued are answered with ErrorInRouting, everything
// else already queued is still forwarded.
func (d *Drone) Crash() {
	d.Dispatch(func(s *state.State) error {
		for {
			select {
			case frame := <-d.input:
				d.handle(frame, true)
			default:
				d.Log.Info("crashed")
				d.Cancel(ErrCrashed)
				return nil
			}
		}
	})
}

func (d *Drone) handle(frame []byte, crashing bool) {
	pkt, err := protocol.Unmarshal(frame)
	if err != nil {
		d.Log.Warn("dropping malformed packet", "err", err)
		return
	}
	if crashing && (pkt.Fragment != nil || pkt.FloodRequest != nil) {
		if pkt.Fragment != nil {
			d.nack(pkt, protocol.NackErrorInRouting, d.Id)
		}
		return
	}
	if pkt.FloodRequest != nil {
		d.handleFlood(pkt)
		return
	}
	cur, ok := pkt.Header.Current()
	if !ok || cur != d.Id {
		d.nack(pkt, protocol.NackUnexpectedRecipient, d.Id)
		return
	}
	if pkt.Header.AtDestination() {
		d.nack(pkt, protocol.NackDestinationIsDrone, d.Id)
		return
	}
	next, _ := pkt.Header.NextHop()
	if _, ok := d.s.Neighbours[next]; !ok {
		d.nack(pkt, protocol.NackErrorInRouting, next)
		return
	}
	if pkt.Droppable() && d.rng.Float64() < d.pdr {
		perf.RelayDropped.Add(1)
		d.nack(pkt, protocol.NackDropped, d.Id)
		return
	}
	pkt.Header.Advance()
	if err := d.send(next, pkt); err != nil {
		d.Log.Debug("forward failed", "pkt", pkt, "err", err)
		if pkt.Droppable() {
			pkt.Header.HopIndex--
			d.nack(pkt, protocol.NackDropped, d.Id)
		}
		return
	}
	perf.RelayForwarded.Add(1)
}

// nack reports a problem with a fragment back to its source. Anything else that cannot be
// forwarded is dropped.
func (d *Drone) nack(pkt *protocol.Packet, kind protocol.NackKind, node state.NodeId) {
	if pkt.Fragment == nil {
		d.Log.Debug("dropping undeliverable packet", "pkt", pkt, "reason", kind)
		return
	}
	if pkt.Header.HopIndex <= 0 || len(pkt.Header.Hops) < 2 {
		d.Log.Debug("cannot route nack for malformed header", "pkt", pkt)
		return
	}
	resp := protocol.NackFor(pkt, protocol.Nack{Index: pkt.Fragment.Index, Kind: kind, Node: node})
	// the reversed prefix starts at whichever node the packet was addressed to
	resp.Header.Hops[0] = d.Id
	next, _ := resp.Header.Current()
	if err := d.send(next, resp); err != nil {
		d.Log.Debug("failed to send nack", "nack", resp.Nack, "err", err)
	}
}

func (d *Drone) handleFlood(pkt *protocol.Packet) {
	req := pkt.FloodRequest
	prev := req.Initiator
	if n := len(req.PathTrace); n > 0 {
		prev = req.PathTrace[n-1].Node
	}
	req.PathTrace = append(req.PathTrace, protocol.TraceEntry{Node: d.Id, Role: state.RoleRelay})

	key := floodKey{req.FloodId, req.Initiator}
	if d.seen.Has(key) || len(d.s.Neighbours) <= 1 {
		resp := protocol.RespondFlood(pkt.Session, req)
		next, _ := resp.Header.Current()
		if err := d.send(next, resp); err != nil {
			d.Log.Debug("failed to answer flood", "flood", req.FloodId, "initiator", req.Initiator, "err", err)
		}
		return
	}
	d.seen.Set(key, struct{}{}, ttlcache.DefaultTTL)
	for _, n := range d.s.SortedNeighbours() {
		if n == prev {
			continue
		}
		if err := d.send(n, pkt); err != nil {
			d.Log.Debug("failed to forward flood", "to", n, "err", err)
		}
	}
}

func (d *Drone) send(to state.NodeId, pkt *protocol.Packet) error {
	link, ok := d.s.Neighbours[to]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrNotNeighbour, to)
	}
	b, err := protocol.Marshal(pkt)
	if err != nil {
		return err
	}
	select {
	case link <- b:
	default:
		return fmt.Errorf("%w: %s", core.ErrLinkCongested, to)
	}
	d.Events().Emit(core.Event{Kind: core.PacketSent, Node: d.Id, Peer: to, Session: pkt.Session, Packet: pkt})
	return nil
}

// Inspect renders the drone state for humans
func (d *Drone) Inspect() (string, error) {
	v, err := d.DispatchWait(func(s *state.State) (any, error) {
		return fmt.Sprintf("drone %s pdr=%.2f neighbours=%v floods seen=%d", s.Id, d.pdr, s.SortedNeighbours(), d.seen.Len()), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
