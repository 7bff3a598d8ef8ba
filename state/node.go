package state

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeId identifies a relay or endpoint in the network
type NodeId uint8

func (n NodeId) String() string {
	return strconv.Itoa(int(n))
}

func ParseNodeId(s string) (NodeId, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return NodeId(v), nil
}

type NodeRole uint8

const (
	RoleUnknown NodeRole = iota
	RoleRelay
	RoleClient
	RoleTextServer
	RoleMediaServer
	RoleChatServer
)

var roleNames = map[NodeRole]string{
	RoleUnknown:     "unknown",
	RoleRelay:       "relay",
	RoleClient:      "client",
	RoleTextServer:  "text",
	RoleMediaServer: "media",
	RoleChatServer:  "chat",
}

func (r NodeRole) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// IsEndpoint reports whether nodes with this role originate and consume messages instead of forwarding them
func (r NodeRole) IsEndpoint() bool {
	return r != RoleRelay && r != RoleUnknown
}

// IsServer reports whether the role serves requests from clients
func (r NodeRole) IsServer() bool {
	return r == RoleTextServer || r == RoleMediaServer || r == RoleChatServer
}

func ParseNodeRole(s string) (NodeRole, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown node role %q", s)
}

func (r NodeRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *NodeRole) UnmarshalText(text []byte) error {
	role, err := ParseNodeRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}
