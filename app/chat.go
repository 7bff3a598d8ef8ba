package app

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/encodeous/dronet/core"
	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
)

// ChatServer keeps a registry of client names and relays messages between them.
// It is only ever called from the actor of its endpoint.
type ChatServer struct {
	Log    *slog.Logger
	byName map[string]state.NodeId
	byNode map[state.NodeId]string
}

func NewChatServer(log *slog.Logger) *ChatServer {
	return &ChatServer{
		Log:    log,
		byName: make(map[string]state.NodeId),
		byNode: make(map[state.NodeId]string),
	}
}

func (c *ChatServer) Kind() state.NodeRole {
	return state.RoleChatServer
}

func (c *ChatServer) HandleMessage(r core.Responder, from state.NodeId, msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeServerTypeQuery:
		return r.Reply(protocol.ServerTypeResponse(c.Kind()))
	case protocol.TypeRegistration:
		return c.register(r, from, msg.Name)
	case protocol.TypeClientListQuery:
		return r.Reply(protocol.ClientListResponse(c.Clients()))
	case protocol.TypeMessageFor:
		return c.forward(r, from, msg)
	}
	return protocol.ErrUnsupportedRequest
}

func (c *ChatServer) register(r core.Responder, from state.NodeId, name string) error {
	if owner, ok := c.byName[name]; name == "" || ok && owner != from {
		c.Log.Debug("rejected registration", "name", name, "from", from)
		return r.Reply(protocol.WrongClientId(name))
	}
	if old, ok := c.byNode[from]; ok {
		delete(c.byName, old)
	}
	others := c.Clients()
	c.byName[name] = from
	c.byNode[from] = name
	c.Log.Info("client registered", "name", name, "from", from)
	return r.Reply(protocol.RegistrationSuccess(slices.DeleteFunc(others, func(n string) bool { return n == name })))
}

func (c *ChatServer) forward(r core.Responder, from state.NodeId, msg protocol.Message) error {
	sender, ok := c.byNode[from]
	if !ok {
		return r.Reply(protocol.WrongClientId(from.String()))
	}
	to, ok := c.byName[msg.Name]
	if !ok {
		return r.Reply(protocol.WrongClientId(msg.Name))
	}
	c.Log.Debug("forwarding chat message", "from", sender, "to", msg.Name)
	return r.Send(to, protocol.MessageFrom(sender, msg.Body))
}

// Clients returns the registered names in order
func (c *ChatServer) Clients() []string {
	return slices.Sorted(maps.Keys(c.byName))
}
