package sim

import (
	"log/slog"
	"testing"
	"time"

	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func startDrone(t *testing.T, id state.NodeId, pdr float64) *Drone {
	d, err := NewDrone(state.DroneCfg{Id: id, Pdr: pdr}, state.DefaultTunables(), 42, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	go d.Run()
	return d
}

func stopDrone(d *Drone) {
	d.Shutdown()
	<-d.Done()
}

func link(t *testing.T, d *Drone, id state.NodeId) chan []byte {
	ch := make(chan []byte, 16)
	d.AddNeighbour(id, ch)
	_, err := d.Inspect()
	require.NoError(t, err)
	return ch
}

func send(t *testing.T, d *Drone, pkt *protocol.Packet) {
	b, err := protocol.Marshal(pkt)
	require.NoError(t, err)
	d.Input() <- b
}

func recv(t *testing.T, ch <-chan []byte) *protocol.Packet {
	t.Helper()
	select {
	case b := <-ch:
		pkt, err := protocol.Unmarshal(b)
		require.NoError(t, err)
		return pkt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a packet")
	}
	return nil
}

func assertSilent(t *testing.T, chs ...chan []byte) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	for _, ch := range chs {
		assert.Empty(t, ch)
	}
}

func fragment(session protocol.SessionId, hops ...state.NodeId) *protocol.Packet {
	return &protocol.Packet{
		Session:  session,
		Header:   state.NewRoute(hops...),
		Fragment: &protocol.Fragment{Index: 3, Total: 4, Data: []byte("data")},
	}
}

func TestDroneForwards(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := startDrone(t, 1, 0)
	defer stopDrone(d)
	a := link(t, d, 10)
	b := link(t, d, 20)

	send(t, d, fragment(7, 10, 1, 20))
	pkt := recv(t, b)
	require.NotNil(t, pkt.Fragment)
	assert.Equal(t, protocol.SessionId(7), pkt.Session)
	assert.Equal(t, []state.NodeId{10, 1, 20}, pkt.Header.Hops)
	assert.Equal(t, 2, pkt.Header.HopIndex)
	assert.True(t, pkt.Header.AtDestination())
	assertSilent(t, a)
}

func TestDroneNacks(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := startDrone(t, 1, 0)
	defer stopDrone(d)
	a := link(t, d, 10)

	for _, tc := range []struct {
		name string
		pkt  *protocol.Packet
		kind protocol.NackKind
		node state.NodeId
	}{
		{"unknown next hop", fragment(1, 10, 1, 30), protocol.NackErrorInRouting, 30},
		{"destination is drone", fragment(2, 10, 1), protocol.NackDestinationIsDrone, 1},
		{"unexpected recipient", fragment(3, 10, 5, 20), protocol.NackUnexpectedRecipient, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			send(t, d, tc.pkt)
			nack := recv(t, a)
			require.NotNil(t, nack.Nack)
			assert.Equal(t, tc.pkt.Session, nack.Session)
			assert.Equal(t, tc.kind, nack.Nack.Kind)
			assert.Equal(t, tc.node, nack.Nack.Node)
			assert.Equal(t, uint64(3), nack.Nack.Index)
			assert.Equal(t, []state.NodeId{1, 10}, nack.Header.Hops)
			assert.Equal(t, 1, nack.Header.HopIndex)
		})
	}
}

func TestDroneDropsOnlyFragments(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := startDrone(t, 1, 1)
	defer stopDrone(d)
	a := link(t, d, 10)
	b := link(t, d, 20)

	send(t, d, fragment(1, 10, 1, 20))
	nack := recv(t, a)
	require.NotNil(t, nack.Nack)
	assert.Equal(t, protocol.NackDropped, nack.Nack.Kind)
	assertSilent(t, b)

	send(t, d, &protocol.Packet{Session: 2, Header: state.NewRoute(20, 1, 10), Ack: &protocol.Ack{Index: 0}})
	ack := recv(t, a)
	require.NotNil(t, ack.Ack)
}

func TestDroneDiscardsUndeliverableControl(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := startDrone(t, 1, 0)
	defer stopDrone(d)
	a := link(t, d, 10)

	send(t, d, &protocol.Packet{Session: 2, Header: state.NewRoute(10, 1, 30), Ack: &protocol.Ack{Index: 0}})
	send(t, d, &protocol.Packet{Session: 3, Header: state.NewRoute(10, 1, 30), Nack: &protocol.Nack{Kind: protocol.NackDropped}})
	assertSilent(t, a)
}

func TestDroneFloods(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := startDrone(t, 1, 0)
	defer stopDrone(d)
	a := link(t, d, 10)
	b := link(t, d, 2)
	c := link(t, d, 3)

	req := &protocol.Packet{
		Session: 9,
		FloodRequest: &protocol.FloodRequest{
			FloodId:   1,
			Initiator: 10,
			PathTrace: []protocol.TraceEntry{{Node: 10, Role: state.RoleClient}},
		},
	}
	send(t, d, req)
	for _, ch := range []chan []byte{b, c} {
		pkt := recv(t, ch)
		require.NotNil(t, pkt.FloodRequest)
		assert.Equal(t, []protocol.TraceEntry{{Node: 10, Role: state.RoleClient}, {Node: 1, Role: state.RoleRelay}}, pkt.FloodRequest.PathTrace)
	}
	assertSilent(t, a)

	// the same flood coming back through 2 is answered instead of forwarded
	req.FloodRequest.PathTrace = []protocol.TraceEntry{{Node: 10, Role: state.RoleClient}, {Node: 1, Role: state.RoleRelay}, {Node: 2, Role: state.RoleRelay}}
	send(t, d, req)
	resp := recv(t, b)
	require.NotNil(t, resp.FloodResponse)
	assert.Equal(t, uint64(1), resp.FloodResponse.FloodId)
	assert.Equal(t, []state.NodeId{1, 2, 1, 10}, resp.Header.Hops)
	assertSilent(t, a, c)
}

func TestDroneWithSingleNeighbourAnswersFlood(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := startDrone(t, 1, 0)
	defer stopDrone(d)
	a := link(t, d, 10)

	send(t, d, &protocol.Packet{
		Session:      4,
		FloodRequest: &protocol.FloodRequest{FloodId: 5, Initiator: 10, PathTrace: []protocol.TraceEntry{{Node: 10, Role: state.RoleClient}}},
	})
	resp := recv(t, a)
	require.NotNil(t, resp.FloodResponse)
	assert.Equal(t, []state.NodeId{1, 10}, resp.Header.Hops)
	assert.Len(t, resp.FloodResponse.PathTrace, 2)
}

func TestDroneCrash(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := startDrone(t, 1, 0)
	link(t, d, 10)
	d.Crash()
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("drone did not stop")
	}
	_, err := d.Inspect()
	assert.Error(t, err)
	d.Shutdown()
}

func TestDroneRejectsInvalidPdr(t *testing.T) {
	_, err := NewDrone(state.DroneCfg{Id: 1, Pdr: 1.5}, state.DefaultTunables(), 0, slog.New(slog.DiscardHandler))
	assert.ErrorIs(t, err, ErrInvalidPdr)

	defer goleak.VerifyNone(t)
	d := startDrone(t, 2, 0)
	defer stopDrone(d)
	assert.ErrorIs(t, d.SetPdr(-1), ErrInvalidPdr)
	assert.NoError(t, d.SetPdr(0.5))
}
