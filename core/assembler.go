package core

import (
	"bytes"
	"fmt"
	"time"

	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
	"github.com/jellydator/ttlcache/v3"
)

// SessionKey scopes reassembly to the sending endpoint
type SessionKey struct {
	Session protocol.SessionId
	Source  state.NodeId
}

type ReassemblyBuffer struct {
	Total   uint64
	Parts   map[uint64][]byte
	Created time.Time
}

// Assembler rebuilds messages from fragments arriving in any order
type Assembler struct {
	buffers   *ttlcache.Cache[SessionKey, *ReassemblyBuffer]
	completed *ttlcache.Cache[SessionKey, struct{}]
}

func NewAssembler(timeout, completedTTL time.Duration) *Assembler {
	a := &Assembler{}
	a.setup(timeout, completedTTL)
	return a
}

func (a *Assembler) setup(timeout, completedTTL time.Duration) {
	// buffers expire after being idle for timeout
	a.buffers = ttlcache.New[SessionKey, *ReassemblyBuffer](
		ttlcache.WithTTL[SessionKey, *ReassemblyBuffer](timeout),
	)
	a.completed = ttlcache.New[SessionKey, struct{}](
		ttlcache.WithTTL[SessionKey, struct{}](completedTTL),
		ttlcache.WithDisableTouchOnHit[SessionKey, struct{}](),
	)
}

func (a *Assembler) Init(s *state.State) error {
	s.Log.Debug("init assembler")
	a.setup(s.ReassemblyTimeout, state.CompletedTTL)
	return nil
}

func (a *Assembler) Cleanup(s *state.State) error {
	a.buffers.DeleteAll()
	a.completed.DeleteAll()
	return nil
}

// Add stores a fragment. The payload is returned once, when the last missing fragment arrives.
// Fragments of an already completed session are ignored.
func (a *Assembler) Add(key SessionKey, f protocol.Fragment) ([]byte, bool, error) {
	if a.completed.Has(key) {
		return nil, false, nil
	}
	if f.Total == 0 || f.Index >= f.Total || len(f.Data) > state.FragmentSize {
		a.buffers.Delete(key)
		return nil, false, fmt.Errorf("%w: session %s sent fragment %d/%d with %d bytes",
			ErrReassemblyViolation, key.Session, f.Index, f.Total, len(f.Data))
	}

	var buf *ReassemblyBuffer
	if item := a.buffers.Get(key); item != nil {
		buf = item.Value()
	} else {
		buf = &ReassemblyBuffer{
			Total:   f.Total,
			Parts:   make(map[uint64][]byte),
			Created: time.Now(),
		}
		a.buffers.Set(key, buf, ttlcache.DefaultTTL)
	}
	if buf.Total != f.Total {
		a.buffers.Delete(key)
		return nil, false, fmt.Errorf("%w: session %s declared %d fragments, previously %d",
			ErrReassemblyViolation, key.Session, f.Total, buf.Total)
	}
	if _, dup := buf.Parts[f.Index]; dup {
		return nil, false, nil
	}
	buf.Parts[f.Index] = bytes.Clone(f.Data)
	if uint64(len(buf.Parts)) < buf.Total {
		return nil, false, nil
	}

	out := make([]byte, 0, int(buf.Total)*state.FragmentSize)
	for i := range buf.Total {
		out = append(out, buf.Parts[i]...)
	}
	a.buffers.Delete(key)
	a.completed.Set(key, struct{}{}, ttlcache.DefaultTTL)
	return out, true, nil
}

// Gc evicts idle buffers and forgets old completed sessions, returning the number of evicted buffers
func (a *Assembler) Gc() int {
	before := a.buffers.Len()
	a.buffers.DeleteExpired()
	a.completed.DeleteExpired()
	return before - a.buffers.Len()
}

func (a *Assembler) Pending() int {
	return a.buffers.Len()
}
