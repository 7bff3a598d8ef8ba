package sim

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/encodeous/dronet/app"
	"github.com/encodeous/dronet/core"
	"github.com/encodeous/dronet/state"
	"golang.org/x/sync/errgroup"
)

// Node is anything that can be wired into the simulated network
type Node interface {
	Input() state.Link
	AddNeighbour(id state.NodeId, link state.Link)
	RemoveNeighbour(id state.NodeId)
	Run() error
	Shutdown()
	Inspect() (string, error)
}

// Network is an in-process relay network built from a topology file. Links are buffered channels.
type Network struct {
	Cfg       *state.NetworkCfg
	Log       *slog.Logger
	Drones    map[state.NodeId]*Drone
	Endpoints map[state.NodeId]*core.Endpoint
	Clients   map[state.NodeId]*app.Client

	mu      sync.Mutex
	nodes   map[state.NodeId]Node
	links   map[state.NodeId]map[state.NodeId]struct{}
	group   errgroup.Group
	started bool
	stopped bool
}

func NewNetwork(cfg *state.NetworkCfg, log *slog.Logger) (*Network, error) {
	if err := state.NetworkConfigValidator(cfg); err != nil {
		return nil, err
	}
	n := &Network{
		Cfg:       cfg,
		Log:       log,
		Drones:    make(map[state.NodeId]*Drone),
		Endpoints: make(map[state.NodeId]*core.Endpoint),
		Clients:   make(map[state.NodeId]*app.Client),
		nodes:     make(map[state.NodeId]Node),
		links:     make(map[state.NodeId]map[state.NodeId]struct{}),
	}
	for _, dc := range cfg.Drones {
		d, err := NewDrone(dc, cfg.Tunables, cfg.Seed, log)
		if err != nil {
			n.shutdownAll()
			return nil, err
		}
		n.Drones[dc.Id] = d
		n.nodes[dc.Id] = d
	}
	for _, cc := range cfg.Clients {
		name := cc.Name
		if name == "" {
			name = "client-" + cc.Id.String()
		}
		client := app.NewClient(name)
		ep, err := core.NewEndpoint(state.EndpointCfg{Id: cc.Id}, cfg.Tunables, client, log)
		if err != nil {
			n.shutdownAll()
			return nil, err
		}
		client.Attach(ep)
		n.Clients[cc.Id] = client
		n.Endpoints[cc.Id] = ep
		n.nodes[cc.Id] = ep
	}
	for _, sc := range cfg.Servers {
		role, err := app.NewServer(sc, log)
		if err != nil {
			n.shutdownAll()
			return nil, err
		}
		ep, err := core.NewEndpoint(state.EndpointCfg{Id: sc.Id}, cfg.Tunables, role, log)
		if err != nil {
			n.shutdownAll()
			return nil, err
		}
		n.Endpoints[sc.Id] = ep
		n.nodes[sc.Id] = ep
	}
	return n, nil
}

// Start runs every node and wires the configured links
func (n *Network) Start() error {
	edges, err := n.Cfg.Edges()
	if err != nil {
		return err
	}
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return fmt.Errorf("network already started")
	}
	n.started = true
	for _, id := range slices.Sorted(maps.Keys(n.nodes)) {
		n.group.Go(n.nodes[id].Run)
	}
	n.mu.Unlock()

	for _, e := range edges {
		if err := n.Link(e.V1, e.V2); err != nil {
			return err
		}
	}
	n.Log.Info("network started", "drones", len(n.Drones), "endpoints", len(n.Endpoints), "links", len(edges))
	return nil
}

// Link connects a and b in both directions
func (n *Network) Link(a, b state.NodeId) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	na, ok := n.nodes[a]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, a)
	}
	nb, ok := n.nodes[b]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, b)
	}
	na.AddNeighbour(b, nb.Input())
	nb.AddNeighbour(a, na.Input())
	n.addLink(a, b)
	n.addLink(b, a)
	return nil
}

// Unlink removes the link between a and b
func (n *Network) Unlink(a, b state.NodeId) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.links[a][b]; !ok {
		return fmt.Errorf("%w: %s and %s are not linked", ErrUnknownNode, a, b)
	}
	n.nodes[a].RemoveNeighbour(b)
	n.nodes[b].RemoveNeighbour(a)
	delete(n.links[a], b)
	delete(n.links[b], a)
	return nil
}

func (n *Network) addLink(a, b state.NodeId) {
	if n.links[a] == nil {
		n.links[a] = make(map[state.NodeId]struct{})
	}
	n.links[a][b] = struct{}{}
}

// Crash stops a drone and makes every neighbour forget it
func (n *Network) Crash(id state.NodeId) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	d, ok := n.Drones[id]
	if !ok {
		if _, known := n.nodes[id]; known {
			return fmt.Errorf("%w: %s", ErrNotADrone, id)
		}
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	for _, neigh := range slices.Sorted(maps.Keys(n.links[id])) {
		n.nodes[neigh].RemoveNeighbour(id)
		delete(n.links[neigh], id)
	}
	delete(n.links, id)
	d.Crash()
	n.Log.Info("drone crashed", "drone", id)
	return nil
}

// DiscoverAll starts a flood from every endpoint
func (n *Network) DiscoverAll() {
	for _, id := range slices.Sorted(maps.Keys(n.Endpoints)) {
		n.Endpoints[id].Discover()
	}
}

func (n *Network) Endpoint(id state.NodeId) (*core.Endpoint, bool) {
	ep, ok := n.Endpoints[id]
	return ep, ok
}

func (n *Network) Client(id state.NodeId) (*app.Client, bool) {
	c, ok := n.Clients[id]
	return c, ok
}

// Neighbours returns the current links of id
func (n *Network) Neighbours(id state.NodeId) []state.NodeId {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Sorted(maps.Keys(n.links[id]))
}

// Inspect renders every node that is still running
func (n *Network) Inspect() string {
	out := ""
	for _, id := range slices.Sorted(maps.Keys(n.nodes)) {
		s, err := n.nodes[id].Inspect()
		if err != nil {
			out += fmt.Sprintf("node %s: %v\n", id, err)
			continue
		}
		out += s + "\n"
	}
	return out
}

// Stop shuts every node down and waits for them to exit
func (n *Network) Stop() error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil
	}
	n.stopped = true
	started := n.started
	n.mu.Unlock()

	n.shutdownAll()
	if !started {
		return nil
	}
	err := n.group.Wait()
	n.Log.Info("network stopped")
	return err
}

func (n *Network) shutdownAll() {
	for _, node := range n.nodes {
		node.Shutdown()
	}
}
