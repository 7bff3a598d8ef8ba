package protocol

import (
	"errors"
	"fmt"

	"github.com/encodeous/dronet/state"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrMalformedPacket = errors.New("malformed packet")

// packet fields
const (
	fieldSession       protowire.Number = 1
	fieldHops          protowire.Number = 2
	fieldHopIndex      protowire.Number = 3
	fieldFragment      protowire.Number = 4
	fieldAck           protowire.Number = 5
	fieldNack          protowire.Number = 6
	fieldFloodRequest  protowire.Number = 7
	fieldFloodResponse protowire.Number = 8
)

// Marshal encodes a packet using the protobuf wire format
func Marshal(p *Packet) ([]byte, error) {
	b := make([]byte, 0, 32+state.FragmentSize)
	b = protowire.AppendTag(b, fieldSession, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Session))
	hops := make([]byte, len(p.Header.Hops))
	for i, h := range p.Header.Hops {
		hops[i] = byte(h)
	}
	b = protowire.AppendTag(b, fieldHops, protowire.BytesType)
	b = protowire.AppendBytes(b, hops)
	b = protowire.AppendTag(b, fieldHopIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Header.HopIndex))

	switch {
	case p.Fragment != nil:
		var m []byte
		m = appendVarintField(m, 1, p.Fragment.Index)
		m = appendVarintField(m, 2, p.Fragment.Total)
		m = protowire.AppendTag(m, 3, protowire.BytesType)
		m = protowire.AppendBytes(m, p.Fragment.Data)
		b = appendMessageField(b, fieldFragment, m)
	case p.Ack != nil:
		b = appendMessageField(b, fieldAck, appendVarintField(nil, 1, p.Ack.Index))
	case p.Nack != nil:
		var m []byte
		m = appendVarintField(m, 1, p.Nack.Index)
		m = appendVarintField(m, 2, uint64(p.Nack.Kind))
		m = appendVarintField(m, 3, uint64(p.Nack.Node))
		b = appendMessageField(b, fieldNack, m)
	case p.FloodRequest != nil:
		var m []byte
		m = appendVarintField(m, 1, p.FloodRequest.FloodId)
		m = appendVarintField(m, 2, uint64(p.FloodRequest.Initiator))
		m = appendTrace(m, 3, p.FloodRequest.PathTrace)
		b = appendMessageField(b, fieldFloodRequest, m)
	case p.FloodResponse != nil:
		var m []byte
		m = appendVarintField(m, 1, p.FloodResponse.FloodId)
		m = appendTrace(m, 2, p.FloodResponse.PathTrace)
		b = appendMessageField(b, fieldFloodResponse, m)
	default:
		return nil, fmt.Errorf("%w: packet has no body", ErrMalformedPacket)
	}
	return b, nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessageField(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func appendTrace(b []byte, num protowire.Number, trace []TraceEntry) []byte {
	for _, e := range trace {
		var m []byte
		m = appendVarintField(m, 1, uint64(e.Node))
		m = appendVarintField(m, 2, uint64(e.Role))
		b = appendMessageField(b, num, m)
	}
	return b
}

// Unmarshal decodes a packet produced by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte) (*Packet, error) {
	p := &Packet{}
	bodies := 0
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldSession:
			v, n, err := consumeVarint(typ, b)
			p.Session = SessionId(v)
			return n, err
		case fieldHops:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			p.Header.Hops = make([]state.NodeId, len(v))
			for i, h := range v {
				p.Header.Hops[i] = state.NodeId(h)
			}
			return n, nil
		case fieldHopIndex:
			v, n, err := consumeVarint(typ, b)
			if v > 255 {
				return 0, fmt.Errorf("%w: hop index %d out of range", ErrMalformedPacket, v)
			}
			p.Header.HopIndex = int(v)
			return n, err
		case fieldFragment, fieldAck, fieldNack, fieldFloodRequest, fieldFloodResponse:
			m, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			bodies++
			return n, decodeBody(p, num, m)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	if bodies != 1 {
		return nil, fmt.Errorf("%w: expected one body, found %d", ErrMalformedPacket, bodies)
	}
	return p, nil
}

func decodeBody(p *Packet, num protowire.Number, m []byte) error {
	switch num {
	case fieldFragment:
		f := &Fragment{}
		p.Fragment = f
		return consumeFields(m, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				v, n, err := consumeVarint(typ, b)
				f.Index = v
				return n, err
			case 2:
				v, n, err := consumeVarint(typ, b)
				f.Total = v
				return n, err
			case 3:
				v, n, err := consumeBytes(typ, b)
				f.Data = append([]byte(nil), v...)
				return n, err
			}
			return 0, nil
		})
	case fieldAck:
		a := &Ack{}
		p.Ack = a
		return consumeFields(m, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num == 1 {
				v, n, err := consumeVarint(typ, b)
				a.Index = v
				return n, err
			}
			return 0, nil
		})
	case fieldNack:
		k := &Nack{}
		p.Nack = k
		return consumeFields(m, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num < 1 || num > 3 {
				return 0, nil
			}
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			switch num {
			case 1:
				k.Index = v
			case 2:
				k.Kind = NackKind(v)
			case 3:
				k.Node = state.NodeId(v)
			}
			return n, nil
		})
	case fieldFloodRequest:
		f := &FloodRequest{}
		p.FloodRequest = f
		return consumeFields(m, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				v, n, err := consumeVarint(typ, b)
				f.FloodId = v
				return n, err
			case 2:
				v, n, err := consumeVarint(typ, b)
				f.Initiator = state.NodeId(v)
				return n, err
			case 3:
				e, n, err := consumeTraceEntry(typ, b)
				f.PathTrace = append(f.PathTrace, e)
				return n, err
			}
			return 0, nil
		})
	case fieldFloodResponse:
		f := &FloodResponse{}
		p.FloodResponse = f
		return consumeFields(m, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				v, n, err := consumeVarint(typ, b)
				f.FloodId = v
				return n, err
			case 2:
				e, n, err := consumeTraceEntry(typ, b)
				f.PathTrace = append(f.PathTrace, e)
				return n, err
			}
			return 0, nil
		})
	}
	return nil
}

func consumeTraceEntry(typ protowire.Type, b []byte) (TraceEntry, int, error) {
	m, n, err := consumeBytes(typ, b)
	if err != nil {
		return TraceEntry{}, 0, err
	}
	e := TraceEntry{}
	err = consumeFields(m, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 && num != 2 {
			return 0, nil
		}
		v, n, err := consumeVarint(typ, b)
		if err != nil {
			return 0, err
		}
		if num == 1 {
			e.Node = state.NodeId(v)
		} else {
			e.Role = state.NodeRole(v)
		}
		return n, nil
	})
	return e, n, err
}

// consumeFields walks every field in b. fn returns the bytes it consumed, or 0 to skip the field.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformedPacket, protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("%w: %w", ErrMalformedPacket, protowire.ParseError(m))
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w: expected varint, got wire type %d", ErrMalformedPacket, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: %w", ErrMalformedPacket, protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: expected bytes, got wire type %d", ErrMalformedPacket, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformedPacket, protowire.ParseError(n))
	}
	return v, n, nil
}
