package core

import (
	"bytes"

	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
)

// FragmentMessage splits data into max(1, ceil(len/FragmentSize)) fragments indexed from 0
func FragmentMessage(data []byte) []protocol.Fragment {
	total := max(1, (len(data)+state.FragmentSize-1)/state.FragmentSize)
	frags := make([]protocol.Fragment, total)
	for i := range total {
		lo := i * state.FragmentSize
		hi := min(lo+state.FragmentSize, len(data))
		frags[i] = protocol.Fragment{
			Index: uint64(i),
			Total: uint64(total),
			Data:  bytes.Clone(data[lo:hi]),
		}
	}
	return frags
}
