//go:build integration

package integration

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/encodeous/dronet/app"
	"github.com/encodeous/dronet/core"
	"github.com/encodeous/dronet/sim"
	"github.com/encodeous/dronet/state"
	"github.com/stretchr/testify/require"
)

type Signal chan bool

func NewSignal() Signal {
	return make(chan bool)
}
func (s Signal) Trigger() {
	select {
	case <-s:
	default:
		close(s)
	}
}
func (s Signal) Triggered() bool {
	select {
	case <-s:
		return true
	default:
		return false
	}
}
func (s Signal) Wait() {
	<-s
}

// FastTunables shortens every timer so scenarios finish quickly
func FastTunables() state.Tunables {
	tun := state.DefaultTunables()
	tun.AckTimeout = 100 * time.Millisecond
	tun.DiscoveryCooldown = 50 * time.Millisecond
	tun.GcDelay = 20 * time.Millisecond
	tun.RequestTimeout = 5 * time.Second
	return tun
}

type VirtualHarness struct {
	t   *testing.T
	Cfg *state.NetworkCfg
	Net *sim.Network
}

func NewHarness(t *testing.T, cfg *state.NetworkCfg) *VirtualHarness {
	if cfg.Tunables == (state.Tunables{}) {
		cfg.Tunables = FastTunables()
	}
	level := slog.LevelWarn
	if testing.Verbose() {
		level = slog.LevelDebug
	}
	log, err := core.NewLogger(t.Name(), level, "")
	require.NoError(t, err)
	n, err := sim.NewNetwork(cfg, log)
	require.NoError(t, err)
	return &VirtualHarness{t: t, Cfg: cfg, Net: n}
}

func (v *VirtualHarness) Start() {
	require.NoError(v.t, v.Net.Start())
	v.Net.DiscoverAll()
}

func (v *VirtualHarness) Stop() {
	require.NoError(v.t, v.Net.Stop())
}

func (v *VirtualHarness) Client(id state.NodeId) *app.Client {
	c, ok := v.Net.Client(id)
	require.True(v.t, ok, "no client %s", id)
	return c
}

func (v *VirtualHarness) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	v.t.Cleanup(cancel)
	return ctx
}

// WaitRoute polls until from knows a route to to
func (v *VirtualHarness) WaitRoute(from, to state.NodeId, timeout time.Duration) state.SourceRoute {
	ep, ok := v.Net.Endpoint(from)
	require.True(v.t, ok)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r, ok := ep.Route(to); ok {
			return r
		}
		time.Sleep(20 * time.Millisecond)
	}
	v.t.Fatalf("%s never learned a route to %s", from, to)
	return state.SourceRoute{}
}

// Subscription collects the events of one endpoint
type Subscription struct {
	trace *core.Trace
	ch    chan any
}

func (v *VirtualHarness) Subscribe(id state.NodeId) *Subscription {
	ep, ok := v.Net.Endpoint(id)
	require.True(v.t, ok)
	s := &Subscription{trace: ep.Events(), ch: make(chan any, 1024)}
	s.trace.Register(s.ch)
	return s
}

// WaitFor returns the first event matching pred
func (s *Subscription) WaitFor(t *testing.T, timeout time.Duration, pred func(e core.Event) bool) core.Event {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case m := <-s.ch:
			if e, ok := m.(core.Event); ok && pred(e) {
				return e
			}
		case <-timer.C:
			t.Fatal("timed out waiting for event")
			return core.Event{}
		}
	}
}

// Close must be called before the network stops
func (s *Subscription) Close() {
	done := NewSignal()
	go func() {
		for {
			select {
			case <-s.ch:
			case <-done:
				return
			}
		}
	}()
	s.trace.Unregister(s.ch)
	done.Trigger()
}
