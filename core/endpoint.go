package core

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"time"

	"github.com/encodeous/dronet/perf"
	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
)

// Endpoint is a client or server attached to the relay network. All protocol state lives on a
// single actor goroutine started by Run; the exported methods are safe to call from anywhere.
type Endpoint struct {
	*state.Env
	s     *state.State
	input chan []byte
	done  chan struct{}
}

func NewEndpoint(cfg state.EndpointCfg, tun state.Tunables, role Role, logger *slog.Logger) (*Endpoint, error) {
	ctx, cancel := context.WithCancelCause(context.Background())
	if role != nil {
		cfg.Role = role.Kind()
	}
	env := &state.Env{
		DispatchChannel: make(chan func(s *state.State) error, state.DispatchBuffer),
		EndpointCfg:     cfg,
		Tunables:        tun.WithDefaults(),
		Graph:           state.NewGraph(),
		Context:         ctx,
		Cancel:          cancel,
		Log:             logger.With("node", cfg.Id),
	}
	env.Graph.SetRole(cfg.Id, cfg.Role)
	s := &state.State{
		Env:        env,
		Modules:    make(map[string]state.NyModule),
		Neighbours: make(map[state.NodeId]state.Link),
	}
	if err := initModules(s, role); err != nil {
		cancel(err)
		return nil, err
	}
	return &Endpoint{
		Env:   env,
		s:     s,
		input: make(chan []byte, state.LinkBuffer),
		done:  make(chan struct{}),
	}, nil
}

func initModules(s *state.State, role Role) error {
	var modules []state.NyModule
	modules = append(modules, &Trace{})
	modules = append(modules, &Transport{})
	modules = append(modules, &Router{})
	modules = append(modules, &Discovery{})
	modules = append(modules, &Assembler{})
	modules = append(modules, &Reliability{})
	modules = append(modules, &Adapter{Role: role})

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

// Input is the channel neighbours deliver encoded packets to
func (e *Endpoint) Input() state.Link {
	return e.input
}

// Run processes events until the endpoint is shut down
func (e *Endpoint) Run() error {
	defer close(e.done)
	if e.Context.Err() != nil {
		Stop(e.s)
		return nil
	}
	e.RepeatTask(endpointGc, e.GcDelay)
	return MainLoop(e.s, e.input)
}

// Done is closed once Run has returned
func (e *Endpoint) Done() <-chan struct{} {
	return e.done
}

func MainLoop(s *state.State, input <-chan []byte) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	adapter := Get[*Adapter](s)
	for {
		select {
		case fun := <-s.DispatchChannel:
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > time.Millisecond*4 {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(s.DispatchChannel))
			}
		case frame := <-input:
			adapter.HandleFrame(frame)
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Debug("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return nil
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(ErrStopped)
	s.Log.Debug("cleaning up modules")
	// the trace goes last so cleanup events still have somewhere to go
	for moduleName, module := range s.Modules {
		if _, ok := module.(*Trace); ok {
			continue
		}
		if err := module.Cleanup(s); err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	if err := Get[*Trace](s).Cleanup(s); err != nil {
		s.Log.Error("error occurred during Stop: ", "module", "trace", "error", err)
	}
	s.Log.Debug("stopped")
}

// Shutdown stops the endpoint. Outstanding requests fail with ErrStopped.
func (e *Endpoint) Shutdown() {
	e.Cancel(fmt.Errorf("%w: shutdown requested", ErrStopped))
	if !e.Started.Load() {
		Stop(e.s)
	}
}

func (e *Endpoint) AddNeighbour(id state.NodeId, link state.Link) {
	e.Dispatch(func(s *state.State) error {
		Get[*Transport](s).AddNeighbour(id, link)
		return nil
	})
}

func (e *Endpoint) RemoveNeighbour(id state.NodeId) {
	e.Dispatch(func(s *state.State) error {
		Get[*Transport](s).RemoveNeighbour(id)
		return nil
	})
}

// Discover starts a new flood immediately
func (e *Endpoint) Discover() {
	e.Dispatch(func(s *state.State) error {
		Get[*Discovery](s).Discover(true)
		return nil
	})
}

// Events returns the broadcaster of observability events. Registered channels must be drained.
func (e *Endpoint) Events() *Trace {
	return Get[*Trace](e.s)
}

// Request sends msg to dst and waits for the correlated response
func (e *Endpoint) Request(ctx context.Context, dst state.NodeId, msg protocol.Message) (protocol.Message, error) {
	payload, err := protocol.EncodeMessage(msg)
	if err != nil {
		return protocol.Message{}, err
	}
	res, err := e.submit(ctx, dst, payload, true)
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.DecodeMessage(res)
}

// Send delivers msg to dst and waits until every fragment is acknowledged
func (e *Endpoint) Send(ctx context.Context, dst state.NodeId, msg protocol.Message) error {
	payload, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	_, err = e.submit(ctx, dst, payload, false)
	return err
}

func (e *Endpoint) submit(ctx context.Context, dst state.NodeId, payload []byte, expectResponse bool) ([]byte, error) {
	v, err := e.DispatchWait(func(s *state.State) (any, error) {
		r := Get[*Reliability](s)
		session := r.NewSession()
		return state.Pair[protocol.SessionId, <-chan Result]{
			V1: session,
			V2: r.Submit(session, dst, payload, expectResponse),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStopped, err)
	}
	pending := v.(state.Pair[protocol.SessionId, <-chan Result])
	select {
	case res := <-pending.V2:
		return res.Payload, res.Err
	case <-ctx.Done():
		e.Dispatch(func(s *state.State) error {
			Get[*Reliability](s).Cancel(pending.V1)
			return nil
		})
		return nil, ctx.Err()
	case <-e.Context.Done():
		return nil, fmt.Errorf("%w: %w", ErrStopped, context.Cause(e.Context))
	}
}

// Route returns the route the endpoint would currently use to reach dst
func (e *Endpoint) Route(dst state.NodeId) (state.SourceRoute, bool) {
	v, err := e.DispatchWait(func(s *state.State) (any, error) {
		route, ok := Get[*Router](s).Route(dst)
		return state.Pair[state.SourceRoute, bool]{V1: route, V2: ok}, nil
	})
	if err != nil {
		return state.SourceRoute{}, false
	}
	res := v.(state.Pair[state.SourceRoute, bool])
	return res.V1, res.V2
}

// Inspect renders the endpoint state for humans
func (e *Endpoint) Inspect() (string, error) {
	v, err := e.DispatchWait(func(s *state.State) (any, error) {
		return Inspect(s), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
