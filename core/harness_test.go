package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
	"github.com/google/go-cmp/cmp"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// NetHarness records every side effect of the reliability state machine against an in-memory graph
type NetHarness struct {
	self       state.NodeId
	graph      *state.Graph
	neighbours map[state.NodeId]bool
	actions    []HarnessEvent
	errs       map[protocol.SessionId]error
}

func NewNetHarness(self state.NodeId, neighbours ...state.NodeId) *NetHarness {
	h := &NetHarness{
		self:       self,
		graph:      state.NewGraph(),
		neighbours: make(map[state.NodeId]bool),
		errs:       make(map[protocol.SessionId]error),
	}
	h.graph.SetRole(self, state.RoleClient)
	for _, n := range neighbours {
		h.neighbours[n] = true
		h.graph.AddEdge(self, n)
	}
	return h
}

func (h *NetHarness) Self() state.NodeId {
	return h.self
}

func (h *NetHarness) Send(pkt *protocol.Packet) error {
	next, _ := pkt.Header.Current()
	if !h.neighbours[next] {
		return fmt.Errorf("%w: %s", ErrNotNeighbour, next)
	}
	h.actions = append(h.actions, MakeEvent("SEND", pkt.Session, pkt.Fragment.Index, slices.Clone(pkt.Header.Hops)))
	return nil
}

func (h *NetHarness) Route(to state.NodeId) (state.SourceRoute, bool) {
	var r state.SourceRoute
	var ok bool
	h.graph.View(func(g state.GraphView) {
		r, ok = ComputeRoute(g, h.self, to)
	})
	return r, ok && r.Valid()
}

func (h *NetHarness) InvalidateEdge(a, b state.NodeId) {
	h.graph.RemoveEdge(a, b)
	h.actions = append(h.actions, MakeEvent("INVALIDATE", a, b))
}

func (h *NetHarness) SetRole(id state.NodeId, role state.NodeRole) {
	h.graph.SetRole(id, role)
	h.actions = append(h.actions, MakeEvent("SET_ROLE", id, role))
}

func (h *NetHarness) Discover() {
	h.actions = append(h.actions, MakeEvent("DISCOVER"))
}

func (h *NetHarness) Finished(p *PendingRequest, err error) {
	h.errs[p.Session] = err
	h.actions = append(h.actions, MakeEvent("FINISHED", p.Session, p.State))
}

func (h *NetHarness) Log(event ProtocolEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

type HarnessEvents []HarnessEvent

func (e HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range e {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	return strings.Join(out, "\n")
}

func (h *NetHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		}
	}

	h.actions = make([]HarnessEvent, 0)
	return x
}

func (e HarnessEvents) Count(msg string) int {
	n := 0
	for _, event := range e {
		if event.Message == msg {
			n++
		}
	}
	return n
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

func hops(ids ...state.NodeId) []state.NodeId {
	return ids
}

// newTestState builds an endpoint state with every module initialised but no running loop
func newTestState(t *testing.T, id state.NodeId, role state.NodeRole) *state.State {
	ctx, cancel := context.WithCancelCause(context.Background())
	env := &state.Env{
		DispatchChannel: make(chan func(s *state.State) error, state.DispatchBuffer),
		EndpointCfg:     state.EndpointCfg{Id: id, Role: role},
		Tunables:        state.DefaultTunables(),
		Graph:           state.NewGraph(),
		Context:         ctx,
		Cancel:          cancel,
		Log:             slog.New(slog.DiscardHandler),
	}
	env.Graph.SetRole(id, role)
	s := &state.State{
		Env:        env,
		Modules:    make(map[string]state.NyModule),
		Neighbours: make(map[state.NodeId]state.Link),
	}
	if err := initModules(s, nil); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { Stop(s) })
	return s
}
