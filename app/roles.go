package app

import (
	"fmt"
	"log/slog"

	"github.com/encodeous/dronet/core"
	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
)

// NewServer builds the role for a configured server
func NewServer(cfg state.ServerCfg, log *slog.Logger) (core.Role, error) {
	switch cfg.Kind {
	case state.RoleTextServer:
		refs, err := mediaRefs(cfg.Refs)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", cfg.Id, err)
		}
		return NewTextServer(cfg.Files, refs), nil
	case state.RoleMediaServer:
		return NewMediaServer(cfg.Files), nil
	case state.RoleChatServer:
		return NewChatServer(log.With("node", cfg.Id)), nil
	}
	return nil, fmt.Errorf("node %s: %q is not a server kind", cfg.Id, cfg.Kind)
}

// mediaRefs resolves configured "<media server>/<file name>" locators to content ids
func mediaRefs(locators map[string][]string) (map[string][]protocol.MediaRef, error) {
	out := make(map[string][]protocol.MediaRef, len(locators))
	for file, locs := range locators {
		for _, loc := range locs {
			node, name, err := state.ParseMediaLocator(loc)
			if err != nil {
				return nil, err
			}
			out[file] = append(out[file], protocol.MediaRef{Location: node, Id: ContentId(state.RoleMediaServer, name)})
		}
	}
	return out, nil
}
