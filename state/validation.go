package state

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func PdrValidator(pdr float64) error {
	if pdr < 0 || pdr > 1 {
		return fmt.Errorf("pdr %v must be within [0, 1]", pdr)
	}
	return nil
}

func NetworkConfigValidator(cfg *NetworkCfg) error {
	seen := make(map[NodeId]struct{})
	for _, id := range cfg.NodeIds() {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("duplicate node id: %s", id)
		}
		seen[id] = struct{}{}
	}
	for _, d := range cfg.Drones {
		if err := PdrValidator(d.Pdr); err != nil {
			return fmt.Errorf("drone %s: %w", d.Id, err)
		}
	}
	for _, c := range cfg.Clients {
		if c.Name == "" {
			continue
		}
		if err := NameValidator(c.Name); err != nil {
			return fmt.Errorf("client %s: %w", c.Id, err)
		}
	}
	for _, s := range cfg.Servers {
		if !s.Kind.IsServer() {
			return fmt.Errorf("server %s has invalid kind %s", s.Id, s.Kind)
		}
		if err := refsValidator(cfg, s); err != nil {
			return fmt.Errorf("server %s: %w", s.Id, err)
		}
	}
	if cfg.LogPath != "" {
		if err := PathValidator(cfg.LogPath); err != nil {
			return err
		}
	}
	edges, err := cfg.Edges()
	if err != nil {
		return err
	}
	for _, e := range edges {
		// endpoints only ever connect to relays
		if cfg.RoleOf(e.V1).IsEndpoint() && cfg.RoleOf(e.V2).IsEndpoint() {
			return fmt.Errorf("endpoints %s and %s must not be linked directly", e.V1, e.V2)
		}
	}
	return nil
}

// refsValidator checks that every embedded media file exists on a configured media server
func refsValidator(cfg *NetworkCfg, s ServerCfg) error {
	if len(s.Refs) == 0 {
		return nil
	}
	if s.Kind != RoleTextServer {
		return fmt.Errorf("only text servers embed media, %s has refs", s.Kind)
	}
	media := make(map[NodeId]map[string]string)
	for _, o := range cfg.Servers {
		if o.Kind == RoleMediaServer {
			media[o.Id] = o.Files
		}
	}
	for file, refs := range s.Refs {
		if _, ok := s.Files[file]; !ok {
			return fmt.Errorf("refs for unknown file %s", file)
		}
		for _, ref := range refs {
			node, name, err := ParseMediaLocator(ref)
			if err != nil {
				return err
			}
			files, ok := media[node]
			if !ok {
				return fmt.Errorf("%s: %s is not a media server", ref, node)
			}
			if _, ok := files[name]; !ok {
				return fmt.Errorf("%s: no such media file", ref)
			}
		}
	}
	return nil
}
