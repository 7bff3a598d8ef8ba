package state

import (
	"fmt"
	"slices"
	"strings"
)

// DroneCfg describes a relay
type DroneCfg struct {
	Id  NodeId  `yaml:"id"`
	Pdr float64 `yaml:"pdr,omitempty"`
}

// ClientCfg describes a client endpoint
type ClientCfg struct {
	Id   NodeId `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// ServerCfg describes a server endpoint; Kind is one of text, media or chat
type ServerCfg struct {
	Id    NodeId            `yaml:"id"`
	Kind  NodeRole          `yaml:"kind"`
	Files map[string]string `yaml:"files,omitempty"`
	// Refs lists the media embedded in each text file as "<media server>/<file name>"
	Refs map[string][]string `yaml:"refs,omitempty"`
}

// ParseMediaLocator splits a "<media server>/<file name>" reference
func ParseMediaLocator(s string) (NodeId, string, error) {
	node, name, ok := strings.Cut(s, "/")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("invalid media reference %q, expected <node>/<name>", s)
	}
	id, err := ParseNodeId(node)
	if err != nil {
		return 0, "", err
	}
	return id, name, nil
}

// NetworkCfg is the topology file consumed by the network initializer
type NetworkCfg struct {
	Drones  []DroneCfg  `yaml:"drones"`
	Clients []ClientCfg `yaml:"clients,omitempty"`
	Servers []ServerCfg `yaml:"servers,omitempty"`
	// Graph uses the group syntax understood by ParseGraph
	Graph    []string `yaml:"graph"`
	Tunables Tunables `yaml:"tunables,omitempty"`
	LogPath  string   `yaml:"logPath,omitempty"`
	// Seed makes relay packet loss reproducible
	Seed uint64 `yaml:"seed,omitempty"`
}

// EndpointCfg is the per-endpoint configuration handed to the protocol core
type EndpointCfg struct {
	Id   NodeId
	Role NodeRole
}

func (n *NetworkCfg) NodeIds() []NodeId {
	ids := make([]NodeId, 0, len(n.Drones)+len(n.Clients)+len(n.Servers))
	for _, d := range n.Drones {
		ids = append(ids, d.Id)
	}
	for _, c := range n.Clients {
		ids = append(ids, c.Id)
	}
	for _, s := range n.Servers {
		ids = append(ids, s.Id)
	}
	return ids
}

func (n *NetworkCfg) RoleOf(id NodeId) NodeRole {
	for _, d := range n.Drones {
		if d.Id == id {
			return RoleRelay
		}
	}
	for _, c := range n.Clients {
		if c.Id == id {
			return RoleClient
		}
	}
	for _, s := range n.Servers {
		if s.Id == id {
			return s.Kind
		}
	}
	return RoleUnknown
}

// Edges expands the graph section into the undirected links of the network
func (n *NetworkCfg) Edges() ([]Pair[NodeId, NodeId], error) {
	names := make([]string, 0)
	for _, id := range n.NodeIds() {
		names = append(names, id.String())
	}
	pairs, err := ParseGraph(n.Graph, names)
	if err != nil {
		return nil, err
	}
	out := make([]Pair[NodeId, NodeId], 0, len(pairs))
	for _, p := range pairs {
		a, err := ParseNodeId(p.V1)
		if err != nil {
			return nil, err
		}
		b, err := ParseNodeId(p.V2)
		if err != nil {
			return nil, err
		}
		out = append(out, MakeSortedPair(a, b))
	}
	SortPairs(out)
	return slices.Compact(out), nil
}

// Neighbours lists the configured neighbours of id
func (n *NetworkCfg) Neighbours(id NodeId) ([]NodeId, error) {
	edges, err := n.Edges()
	if err != nil {
		return nil, err
	}
	out := make([]NodeId, 0)
	for _, e := range edges {
		if e.V1 == id {
			out = append(out, e.V2)
		} else if e.V2 == id {
			out = append(out, e.V1)
		}
	}
	slices.Sort(out)
	return out, nil
}

func parseSymbolList(s string, validSymbols []string) ([]string, error) {
	spl := strings.Split(strings.TrimSpace(s), ",")
	line := make([]string, 0)
	for _, s := range spl {
		x := strings.TrimSpace(s)
		if x == "" {
			continue
		}
		if !slices.Contains(validSymbols, x) {
			return nil, fmt.Errorf(`%s is not a valid node/group`, x)
		}
		line = append(line, x)
	}
	if len(line) == 0 {
		return nil, fmt.Errorf(`node/group list must not be empty`)
	}
	slices.Sort(line)
	return line, nil
}

// ParseGraph expands graph lines into node pairs.
// "name = a, b" defines a group, any other line fully interconnects the listed nodes and groups.
func ParseGraph(graph []string, nodes []string) ([]Pair[string, string], error) {
	groups := make(map[string][]string)
	symbols := slices.Clone(nodes)

	// pass 0, collect group names
	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		if !strings.Contains(line, "=") {
			continue
		}
		spl := strings.Split(line, "=")
		if len(spl) != 2 {
			return nil, fmt.Errorf("invalid graph: %s. group definition must contain one '='", line)
		}
		grp := strings.TrimSpace(spl[0])
		if slices.Contains(nodes, grp) {
			return nil, fmt.Errorf("group name must not be a node name: %s", grp)
		}
		symbols = append(symbols, grp)
	}
	slices.Sort(symbols)
	symbols = slices.Compact(symbols)

	// group -> groups it depends on
	topo := make(map[string][]string)
	expansion := make(map[string][]string)
	links := make([]Pair[string, string], 0)

	// pass 1, parse lines
	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		if strings.Contains(line, "=") {
			spl := strings.Split(line, "=")
			grp := strings.TrimSpace(spl[0])
			if _, ok := groups[grp]; ok {
				return nil, fmt.Errorf("duplicate group name: %s", grp)
			}
			lst, err := parseSymbolList(spl[1], symbols)
			if err != nil {
				return nil, err
			}
			deps := make([]string, 0)
			for _, l := range lst {
				if slices.Contains(nodes, l) {
					expansion[grp] = append(expansion[grp], l)
				} else {
					deps = append(deps, l)
				}
			}
			slices.Sort(deps)
			topo[grp] = slices.Compact(deps)
			groups[grp] = lst
			continue
		}
		names, err := parseSymbolList(line, symbols)
		if err != nil {
			return nil, err
		}
		if len(names) < 2 {
			return nil, fmt.Errorf("invalid pairing, %v", names)
		}
		for i, a := range names {
			for _, b := range names[i+1:] {
				links = append(links, MakeSortedPair(a, b))
			}
		}
	}

	// pass 2, expand groups in topological order
	for len(topo) > 0 {
		group := ""
		for _, k := range sortedKeys(topo) {
			if len(topo[k]) == 0 {
				group = k
				break
			}
		}
		if group == "" {
			return nil, fmt.Errorf("cycle detected in graph: %v", sortedKeys(topo))
		}
		delete(topo, group)

		for k, deps := range topo {
			if !slices.Contains(deps, group) {
				continue
			}
			expansion[k] = append(expansion[k], expansion[group]...)
			slices.Sort(expansion[k])
			expansion[k] = slices.Compact(expansion[k])
			topo[k] = slices.DeleteFunc(deps, func(d string) bool { return d == group })
		}
	}

	// pass 3, rewrite links between groups into links between nodes
	expand := func(sym string) []string {
		if slices.Contains(nodes, sym) {
			return []string{sym}
		}
		return expansion[sym]
	}
	pairings := make([]Pair[string, string], 0)
	for _, link := range links {
		for _, x := range expand(link.V1) {
			for _, y := range expand(link.V2) {
				if x != y {
					pairings = append(pairings, MakeSortedPair(x, y))
				}
			}
		}
	}
	SortPairs(pairings)
	return slices.Compact(pairings), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
