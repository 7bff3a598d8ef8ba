package core

import (
	"testing"
	"time"

	"github.com/encodeous/dronet/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemblerDuplicatesAreIdempotent(t *testing.T) {
	a := NewAssembler(time.Minute, time.Minute)
	frags := FragmentMessage(make([]byte, 200))
	key := SessionKey{Session: 5, Source: 1}

	for i := 0; i < 3; i++ {
		_, done, err := a.Add(key, frags[0])
		require.NoError(t, err)
		assert.False(t, done)
	}
	out, done, err := a.Add(key, frags[1])
	require.NoError(t, err)
	assert.True(t, done)
	assert.Len(t, out, 200)

	// late duplicates of a finished session are not delivered again
	out, done, err = a.Add(key, frags[1])
	require.NoError(t, err)
	assert.False(t, done)
	assert.Nil(t, out)
	assert.Equal(t, 0, a.Pending())
}

func TestAssemblerRejectsInconsistentTotal(t *testing.T) {
	a := NewAssembler(time.Minute, time.Minute)
	key := SessionKey{Session: 9, Source: 1}

	_, _, err := a.Add(key, protocol.Fragment{Index: 0, Total: 3, Data: []byte("a")})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Pending())

	_, _, err = a.Add(key, protocol.Fragment{Index: 1, Total: 2, Data: []byte("b")})
	assert.ErrorIs(t, err, ErrReassemblyViolation)
	assert.Equal(t, 0, a.Pending())

	// the session starts over with whatever arrives next
	_, done, err := a.Add(key, protocol.Fragment{Index: 0, Total: 1, Data: []byte("c")})
	require.NoError(t, err)
	assert.True(t, done)
}

func TestAssemblerRejectsMalformedFragments(t *testing.T) {
	a := NewAssembler(time.Minute, time.Minute)
	key := SessionKey{Session: 1, Source: 1}
	for _, f := range []protocol.Fragment{
		{Index: 0, Total: 0},
		{Index: 2, Total: 2},
		{Index: 0, Total: 1, Data: make([]byte, 129)},
	} {
		_, _, err := a.Add(key, f)
		assert.ErrorIs(t, err, ErrReassemblyViolation)
	}
}

func TestAssemblerSessionsAreScopedBySource(t *testing.T) {
	a := NewAssembler(time.Minute, time.Minute)
	_, _, err := a.Add(SessionKey{Session: 1, Source: 1}, protocol.Fragment{Index: 0, Total: 2, Data: []byte("x")})
	require.NoError(t, err)
	_, _, err = a.Add(SessionKey{Session: 1, Source: 2}, protocol.Fragment{Index: 0, Total: 3, Data: []byte("y")})
	require.NoError(t, err)
	assert.Equal(t, 2, a.Pending())
}

func TestAssemblerEvictsIdleBuffers(t *testing.T) {
	a := NewAssembler(20*time.Millisecond, time.Minute)
	_, _, err := a.Add(SessionKey{Session: 1, Source: 1}, protocol.Fragment{Index: 0, Total: 2})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, a.Gc())
	assert.Equal(t, 0, a.Pending())
}
