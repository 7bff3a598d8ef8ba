package core

import (
	"testing"
	"time"

	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// link attaches a buffered neighbour link to s
func link(s *state.State, id state.NodeId) chan []byte {
	ch := make(chan []byte, 16)
	Get[*Transport](s).AddNeighbour(id, ch)
	return ch
}

func entry(id state.NodeId, role state.NodeRole) protocol.TraceEntry {
	return protocol.TraceEntry{Node: id, Role: role}
}

func floodResponse(flood uint64, trace ...protocol.TraceEntry) *protocol.Packet {
	return &protocol.Packet{
		FloodResponse: &protocol.FloodResponse{FloodId: flood, PathTrace: trace},
	}
}

func TestDiscoverFloodsEveryNeighbour(t *testing.T) {
	s := newTestState(t, 10, state.RoleClient)
	l1, l2 := link(s, 1), link(s, 2)
	d := Get[*Discovery](s)

	d.Discover(true)
	d.Discover(true)
	for _, l := range []chan []byte{l1, l2} {
		for _, want := range []uint64{1, 2} {
			pkt := readPacket(t, l)
			require.NotNil(t, pkt.FloodRequest)
			assert.Equal(t, want, pkt.FloodRequest.FloodId)
			assert.Equal(t, state.NodeId(10), pkt.FloodRequest.Initiator)
			assert.Equal(t, []protocol.TraceEntry{entry(10, state.RoleClient)}, pkt.FloodRequest.PathTrace)
		}
	}
	assert.Equal(t, 2, d.ActiveFloods())
}

func TestDiscoverCooldown(t *testing.T) {
	s := newTestState(t, 10, state.RoleClient)
	l := link(s, 1)
	d := Get[*Discovery](s)

	d.Discover(false)
	d.Discover(false)
	assert.Len(t, l, 1)

	d.Discover(true)
	assert.Len(t, l, 2)
}

func TestDiscoverWithoutNeighbours(t *testing.T) {
	s := newTestState(t, 10, state.RoleClient)
	d := Get[*Discovery](s)
	d.Discover(true)
	assert.Equal(t, 0, d.ActiveFloods())
}

func TestFloodResponseLearnsTopology(t *testing.T) {
	s := newTestState(t, 10, state.RoleClient)
	link(s, 1)
	d := Get[*Discovery](s)
	d.Discover(true)

	d.HandleFloodResponse(floodResponse(1,
		entry(10, state.RoleClient),
		entry(1, state.RoleRelay),
		entry(2, state.RoleRelay),
		entry(20, state.RoleTextServer),
	))
	assert.True(t, s.Graph.HasEdge(1, 2))
	assert.True(t, s.Graph.HasEdge(2, 1))
	assert.True(t, s.Graph.HasEdge(20, 2))
	assert.Equal(t, state.RoleRelay, s.Graph.Role(1))
	assert.Equal(t, state.RoleRelay, s.Graph.Role(2))
	assert.Equal(t, state.RoleTextServer, s.Graph.Role(20))
	assert.Equal(t, state.RoleClient, s.Graph.Role(10))

	r, ok := Get[*Router](s).Route(20)
	require.True(t, ok)
	assert.Equal(t, hops(10, 1, 2, 20), r.Hops)
}

func TestStaleFloodResponseIgnored(t *testing.T) {
	s := newTestState(t, 10, state.RoleClient)
	link(s, 1)
	d := Get[*Discovery](s)
	s.DiscoveryTimeout = 20 * time.Millisecond
	require.NoError(t, d.Init(s))

	// never started
	d.HandleFloodResponse(floodResponse(5, entry(10, state.RoleClient), entry(1, state.RoleRelay), entry(20, state.RoleTextServer)))
	assert.False(t, s.Graph.HasEdge(1, 20))

	// expired
	d.Discover(true)
	time.Sleep(50 * time.Millisecond)
	d.Gc()
	d.HandleFloodResponse(floodResponse(1, entry(10, state.RoleClient), entry(1, state.RoleRelay), entry(20, state.RoleTextServer)))
	assert.False(t, s.Graph.HasEdge(1, 20))
	assert.Equal(t, state.RoleUnknown, s.Graph.Role(20))
}

func TestRediscoveryRestoresInvalidatedLink(t *testing.T) {
	s := newTestState(t, 10, state.RoleClient)
	link(s, 1)
	d := Get[*Discovery](s)
	router := Get[*Router](s)
	trace := []protocol.TraceEntry{entry(10, state.RoleClient), entry(1, state.RoleRelay), entry(20, state.RoleTextServer)}

	d.Discover(true)
	d.HandleFloodResponse(floodResponse(1, trace...))
	_, ok := router.Route(20)
	require.True(t, ok)

	router.InvalidateEdge(10, 1)
	_, ok = router.Route(20)
	require.False(t, ok)

	d.Discover(true)
	d.HandleFloodResponse(floodResponse(2, trace...))
	r, ok := router.Route(20)
	require.True(t, ok)
	assert.Equal(t, hops(10, 1, 20), r.Hops)
}

func TestTraceCannotInventOwnLinks(t *testing.T) {
	s := newTestState(t, 10, state.RoleClient)
	link(s, 1)
	d := Get[*Discovery](s)
	d.Discover(true)

	// 3 is not one of our neighbours
	d.HandleFloodResponse(floodResponse(1, entry(10, state.RoleClient), entry(3, state.RoleRelay), entry(20, state.RoleTextServer)))
	assert.False(t, s.Graph.HasEdge(10, 3))
	assert.True(t, s.Graph.HasEdge(3, 20))
}

func TestDiscoveryResumesParkedRequest(t *testing.T) {
	s := newTestState(t, 10, state.RoleClient)
	l := link(s, 1)
	r := Get[*Reliability](s)

	sess := r.NewSession()
	r.Submit(sess, 20, []byte("hello"), false)
	require.True(t, r.Pending[sess].Parked())

	flood := readPacket(t, l)
	require.NotNil(t, flood.FloodRequest)
	assert.Empty(t, l)

	Get[*Discovery](s).HandleFloodResponse(floodResponse(flood.FloodRequest.FloodId,
		entry(10, state.RoleClient), entry(1, state.RoleRelay), entry(20, state.RoleTextServer)))
	pkt := readPacket(t, l)
	require.NotNil(t, pkt.Fragment)
	assert.Equal(t, sess, pkt.Session)
	assert.Equal(t, hops(10, 1, 20), pkt.Header.Hops)
	assert.False(t, r.Pending[sess].Parked())
}
