package state

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// LoadNetworkConfig reads and validates a topology file
func LoadNetworkConfig(path string) (*NetworkCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg NetworkCfg
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := NetworkConfigValidator(&cfg); err != nil {
		return nil, fmt.Errorf("invalid network config %s: %w", path, err)
	}
	return &cfg, nil
}

func SaveNetworkConfig(path string, cfg *NetworkCfg) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0600)
}

// SampleNetwork is a small double chain with one server of each kind
func SampleNetwork() *NetworkCfg {
	return &NetworkCfg{
		Drones: []DroneCfg{
			{Id: 1, Pdr: 0.05},
			{Id: 2, Pdr: 0.05},
			{Id: 3, Pdr: 0.1},
			{Id: 4, Pdr: 0},
		},
		Clients: []ClientCfg{
			{Id: 10, Name: "alice"},
			{Id: 11, Name: "bob"},
		},
		Servers: []ServerCfg{
			{Id: 20, Kind: RoleTextServer, Files: map[string]string{
				"readme.txt": "dronet moves messages over unreliable relays",
				"hello.txt":  "hello, world",
			}, Refs: map[string][]string{
				"readme.txt": {"21/logo.svg"},
			}},
			{Id: 21, Kind: RoleMediaServer, Files: map[string]string{
				"logo.svg": "<svg xmlns=\"http://www.w3.org/2000/svg\"/>",
			}},
			{Id: 22, Kind: RoleChatServer},
		},
		Graph: []string{
			"left = 1, 3",
			"right = 2, 4",
			"clients = 10, 11",
			"servers = 20, 21, 22",
			"1, 2",
			"3, 4",
			"1, 3",
			"2, 4",
			"clients, left",
			"servers, right",
		},
		Tunables: DefaultTunables(),
	}
}
