package core

import (
	"time"

	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
	"github.com/jellydator/ttlcache/v3"
)

// FloodSession is one discovery round started by this endpoint
type FloodSession struct {
	Id        uint64
	Initiator state.NodeId
	Visited   map[state.NodeId]struct{}
	Started   time.Time
	Responses int
}

type Discovery struct {
	*state.State
	floodId  uint64
	sessions *ttlcache.Cache[uint64, *FloodSession]
	last     time.Time
}

func (d *Discovery) Init(s *state.State) error {
	s.Log.Debug("init discovery")
	d.State = s
	d.sessions = ttlcache.New[uint64, *FloodSession](
		ttlcache.WithTTL[uint64, *FloodSession](s.DiscoveryTimeout),
		ttlcache.WithDisableTouchOnHit[uint64, *FloodSession](),
	)
	return nil
}

func (d *Discovery) Cleanup(s *state.State) error {
	d.sessions.DeleteAll()
	return nil
}

// Discover floods a discovery request to every neighbour. Unless forced, it is a no-op while a
// recent flood is still live.
func (d *Discovery) Discover(force bool) {
	now := time.Now()
	if !force && now.Sub(d.last) < d.DiscoveryCooldown && d.sessions.Len() > 0 {
		return
	}
	if len(d.Neighbours) == 0 {
		d.Log.Debug("no neighbours to discover through")
		return
	}
	d.last = now
	d.floodId++
	d.sessions.Set(d.floodId, &FloodSession{
		Id:        d.floodId,
		Initiator: d.Id,
		Visited:   map[state.NodeId]struct{}{d.Id: {}},
		Started:   now,
	}, ttlcache.DefaultTTL)

	pkt := &protocol.Packet{
		Session: Get[*Reliability](d.State).NewSession(),
		FloodRequest: &protocol.FloodRequest{
			FloodId:   d.floodId,
			Initiator: d.Id,
			PathTrace: []protocol.TraceEntry{{Node: d.Id, Role: d.Role}},
		},
	}
	d.Log.Debug("starting flood", "flood", d.floodId)
	Get[*Trace](d.State).Emit(Event{Kind: FloodStarted, Node: d.Id, Session: pkt.Session, Packet: pkt})
	Get[*Transport](d.State).Broadcast(pkt)
}

// HandleFloodRequest answers a flood that reached this endpoint. Endpoints never rebroadcast.
func (d *Discovery) HandleFloodRequest(pkt *protocol.Packet) {
	req := pkt.FloodRequest
	d.learn(req.PathTrace)
	if req.Initiator == d.Id {
		return
	}
	req.PathTrace = append(req.PathTrace, protocol.TraceEntry{Node: d.Id, Role: d.Role})
	resp := protocol.RespondFlood(pkt.Session, req)
	if err := Get[*Transport](d.State).Send(resp); err != nil {
		d.Log.Debug("failed to answer flood", "flood", req.FloodId, "initiator", req.Initiator, "err", err)
	}
}

// HandleFloodResponse records the topology carried by a response to one of our floods
func (d *Discovery) HandleFloodResponse(pkt *protocol.Packet) {
	resp := pkt.FloodResponse
	item := d.sessions.Get(resp.FloodId)
	if item == nil {
		d.Log.Debug("ignoring stale flood response", "flood", resp.FloodId)
		return
	}
	sess := item.Value()
	sess.Responses++
	for _, e := range resp.PathTrace {
		sess.Visited[e.Node] = struct{}{}
	}
	if d.learn(resp.PathTrace) {
		Get[*Reliability](d.State).Resume(time.Now())
	}
}

// learn adds the edges and roles of a path trace, returning true if the graph changed
func (d *Discovery) learn(trace []protocol.TraceEntry) bool {
	changed := false
	for i, e := range trace {
		if e.Node != d.Id && d.Graph.SetRole(e.Node, e.Role) {
			changed = true
		}
		if i > 0 && d.linkable(trace[i-1].Node, e.Node) && d.Graph.AddEdge(trace[i-1].Node, e.Node) {
			changed = true
		}
	}
	return changed
}

// linkable reports whether a traced edge may enter the graph. Edges touching this endpoint must
// be backed by a live link.
func (d *Discovery) linkable(a, b state.NodeId) bool {
	switch d.Id {
	case a:
		_, ok := d.Neighbours[b]
		return ok
	case b:
		_, ok := d.Neighbours[a]
		return ok
	}
	return true
}

// Gc drops expired flood sessions
func (d *Discovery) Gc() {
	d.sessions.DeleteExpired()
}

func (d *Discovery) ActiveFloods() int {
	return d.sessions.Len()
}
