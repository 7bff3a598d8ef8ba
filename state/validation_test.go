package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameValidator_Valid(t *testing.T) {
	assert.NoError(t, NameValidator("1"))
	assert.NoError(t, NameValidator("alice"))
	assert.NoError(t, NameValidator("bob-2.home"))
}

func TestNameValidator_Invalid(t *testing.T) {
	assert.Error(t, NameValidator("Alice"))
	assert.Error(t, NameValidator("client name"))
	assert.Error(t, NameValidator(""))
	assert.Error(t, NameValidator(strings.Repeat("a", 200)))
}

func TestNetworkConfigValidator(t *testing.T) {
	valid := func() *NetworkCfg {
		return &NetworkCfg{
			Drones:  []DroneCfg{{Id: 1, Pdr: 0.2}, {Id: 2}},
			Clients: []ClientCfg{{Id: 10, Name: "alice"}},
			Servers: []ServerCfg{{Id: 20, Kind: RoleTextServer}},
			Graph:   []string{"1, 2", "10, 1", "20, 2"},
		}
	}
	assert.NoError(t, NetworkConfigValidator(valid()))

	cfg := valid()
	cfg.Drones[0].Pdr = 1.5
	assert.ErrorContains(t, NetworkConfigValidator(cfg), "pdr")

	cfg = valid()
	cfg.Clients[0].Id = 2
	assert.ErrorContains(t, NetworkConfigValidator(cfg), "duplicate node id: 2")

	cfg = valid()
	cfg.Servers[0].Kind = RoleClient
	assert.ErrorContains(t, NetworkConfigValidator(cfg), "invalid kind")

	cfg = valid()
	cfg.Graph = append(cfg.Graph, "10, 20")
	assert.ErrorContains(t, NetworkConfigValidator(cfg), "must not be linked directly")

	cfg = valid()
	cfg.Graph = append(cfg.Graph, "10, 99")
	assert.ErrorContains(t, NetworkConfigValidator(cfg), "99 is not a valid node/group")
}

func TestMediaRefsValidator(t *testing.T) {
	valid := func() *NetworkCfg {
		return &NetworkCfg{
			Drones: []DroneCfg{{Id: 1}},
			Servers: []ServerCfg{
				{Id: 20, Kind: RoleTextServer, Files: map[string]string{"page": "text"},
					Refs: map[string][]string{"page": {"21/cat.png"}}},
				{Id: 21, Kind: RoleMediaServer, Files: map[string]string{"cat.png": "meow"}},
			},
			Graph: []string{"1, 20", "1, 21"},
		}
	}
	assert.NoError(t, NetworkConfigValidator(valid()))

	cfg := valid()
	cfg.Servers[0].Refs = map[string][]string{"other": {"21/cat.png"}}
	assert.ErrorContains(t, NetworkConfigValidator(cfg), "unknown file other")

	cfg = valid()
	cfg.Servers[0].Refs["page"] = []string{"21/dog.png"}
	assert.ErrorContains(t, NetworkConfigValidator(cfg), "no such media file")

	cfg = valid()
	cfg.Servers[0].Refs["page"] = []string{"20/page"}
	assert.ErrorContains(t, NetworkConfigValidator(cfg), "not a media server")

	cfg = valid()
	cfg.Servers[0].Refs["page"] = []string{"cat.png"}
	assert.ErrorContains(t, NetworkConfigValidator(cfg), "invalid media reference")

	cfg = valid()
	cfg.Servers[1].Refs = map[string][]string{"cat.png": {"21/cat.png"}}
	assert.ErrorContains(t, NetworkConfigValidator(cfg), "only text servers embed media")
}

func TestParseMediaLocator(t *testing.T) {
	node, name, err := ParseMediaLocator("21/dir/cat.png")
	assert.NoError(t, err)
	assert.Equal(t, NodeId(21), node)
	assert.Equal(t, "dir/cat.png", name)

	_, _, err = ParseMediaLocator("21/")
	assert.Error(t, err)
	_, _, err = ParseMediaLocator("x/cat.png")
	assert.Error(t, err)
}
