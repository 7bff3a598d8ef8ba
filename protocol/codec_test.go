package protocol

import (
	"testing"

	"github.com/encodeous/dronet/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodecPreservesPackets(t *testing.T) {
	route := state.NewRoute(10, 1, 2, 20)
	pkts := []*Packet{
		{Session: 1 << 50, Header: route, Fragment: &Fragment{Index: 2, Total: 3, Data: []byte("hello")}},
		{Session: 7, Header: route, Ack: &Ack{}},
		{Session: 7, Header: route, Nack: &Nack{Index: 4, Kind: NackErrorInRouting, Node: 2}},
		{Session: 8, Header: route, FloodResponse: &FloodResponse{FloodId: 3, PathTrace: []TraceEntry{
			{10, state.RoleClient}, {1, state.RoleRelay},
		}}},
	}
	for _, pkt := range pkts {
		b, err := Marshal(pkt)
		require.NoError(t, err)
		got, err := Unmarshal(b)
		require.NoError(t, err)
		if diff := cmp.Diff(pkt, got); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", pkt.Kind(), diff)
		}
		assert.Equal(t, pkt.Kind(), got.Kind())
	}
}

func TestCodecFloodRequestWithoutRoute(t *testing.T) {
	pkt := &Packet{Session: 9, FloodRequest: &FloodRequest{FloodId: 3, Initiator: 10, PathTrace: []TraceEntry{
		{10, state.RoleClient}, {1, state.RoleRelay},
	}}}
	b, err := Marshal(pkt)
	require.NoError(t, err)
	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Empty(t, got.Header.Hops)
	assert.Equal(t, pkt.FloodRequest, got.FloodRequest)
}

func TestCodecSkipsUnknownFields(t *testing.T) {
	b, err := Marshal(&Packet{Session: 5, Header: state.NewRoute(1, 2), Ack: &Ack{Index: 3}})
	require.NoError(t, err)
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))

	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Ack.Index)
}

func TestCodecRejectsMalformed(t *testing.T) {
	_, err := Marshal(&Packet{Session: 1})
	assert.ErrorIs(t, err, ErrMalformedPacket)

	good, err := Marshal(&Packet{Session: 5, Header: state.NewRoute(1, 2), Fragment: &Fragment{Total: 1, Data: []byte{1, 2, 3}}})
	require.NoError(t, err)

	cases := map[string][]byte{
		"truncated": good[:len(good)-2],
		"garbage":   {0xff, 0xff, 0xff},
		"no body":   protowire.AppendVarint(protowire.AppendTag(nil, fieldSession, protowire.VarintType), 1),
		"wrong type": protowire.AppendBytes(
			protowire.AppendTag(nil, fieldSession, protowire.BytesType), []byte{1}),
	}
	for name, b := range cases {
		_, err := Unmarshal(b)
		assert.ErrorIs(t, err, ErrMalformedPacket, name)
	}

	twoBodies := append([]byte(nil), good...)
	twoBodies = protowire.AppendTag(twoBodies, fieldAck, protowire.BytesType)
	twoBodies = protowire.AppendBytes(twoBodies, nil)
	_, err = Unmarshal(twoBodies)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestRespondFlood(t *testing.T) {
	req := &FloodRequest{FloodId: 4, Initiator: 10, PathTrace: []TraceEntry{
		{10, state.RoleClient}, {1, state.RoleRelay}, {2, state.RoleRelay}, {20, state.RoleTextServer},
	}}
	pkt := RespondFlood(77, req)
	assert.Equal(t, []state.NodeId{20, 2, 1, 10}, pkt.Header.Hops)
	assert.Equal(t, 1, pkt.Header.HopIndex)
	assert.Equal(t, SessionId(77), pkt.Session)
	assert.Equal(t, req.PathTrace, pkt.FloodResponse.PathTrace)

	// initiator missing from the trace is appended
	pkt = RespondFlood(1, &FloodRequest{FloodId: 1, Initiator: 10, PathTrace: []TraceEntry{{1, state.RoleRelay}}})
	assert.Equal(t, []state.NodeId{1, 10}, pkt.Header.Hops)
}

func TestNackFor(t *testing.T) {
	pkt := &Packet{Session: 3, Header: state.NewRoute(10, 1, 2, 20), Fragment: &Fragment{Index: 1, Total: 2}}
	pkt.Header.Advance()
	nack := NackFor(pkt, Nack{Index: 1, Kind: NackErrorInRouting, Node: 20})
	assert.Equal(t, []state.NodeId{2, 1, 10}, nack.Header.Hops)
	assert.Equal(t, 1, nack.Header.HopIndex)
	assert.Equal(t, SessionId(3), nack.Session)
	assert.Equal(t, "ErrorInRouting(20) idx=1", nack.Nack.String())
}
