package app

import (
	"context"
	"fmt"

	"github.com/encodeous/dronet/core"
	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
	"github.com/jellydator/ttlcache/v3"
)

// Inbound is a message a client received without asking for it, such as a chat message
type Inbound struct {
	From state.NodeId
	Msg  protocol.Message
}

// Client is the role of a client endpoint and the typed API on top of it
type Client struct {
	Name  string
	ep    *core.Endpoint
	inbox chan Inbound
	docs  *ttlcache.Cache[protocol.MediaRef, *Document]
	media *ttlcache.Cache[protocol.MediaRef, []byte]
}

func NewClient(name string) *Client {
	return &Client{
		Name:  name,
		inbox: make(chan Inbound, 64),
		docs: ttlcache.New[protocol.MediaRef, *Document](
			ttlcache.WithTTL[protocol.MediaRef, *Document](state.DocumentCacheTTL),
		),
		media: ttlcache.New[protocol.MediaRef, []byte](
			ttlcache.WithTTL[protocol.MediaRef, []byte](state.DocumentCacheTTL),
		),
	}
}

// Attach binds the client to the endpoint it runs on
func (c *Client) Attach(ep *core.Endpoint) {
	c.ep = ep
}

func (c *Client) Endpoint() *core.Endpoint {
	return c.ep
}

func (c *Client) Kind() state.NodeRole {
	return state.RoleClient
}

func (c *Client) HandleMessage(r core.Responder, from state.NodeId, msg protocol.Message) error {
	if msg.Type.IsRequest() {
		return protocol.ErrUnsupportedRequest
	}
	select {
	case c.inbox <- Inbound{From: from, Msg: msg}:
	default:
		return fmt.Errorf("inbox full, dropped %s from %s", msg, from)
	}
	return nil
}

// Inbox receives chat messages and late error replies
func (c *Client) Inbox() <-chan Inbound {
	return c.inbox
}

func (c *Client) request(ctx context.Context, dst state.NodeId, msg protocol.Message, want protocol.MessageType) (protocol.Message, error) {
	if c.ep == nil {
		return protocol.Message{}, ErrNotAttached
	}
	res, err := c.ep.Request(ctx, dst, msg)
	if err != nil {
		return protocol.Message{}, err
	}
	if err := res.Err(); err != nil {
		return res, err
	}
	if res.Type != want {
		return res, fmt.Errorf("%w: %s answered %s with %s", ErrUnexpectedResponse, dst, msg.Type, res.Type)
	}
	return res, nil
}

func (c *Client) ServerType(ctx context.Context, dst state.NodeId) (state.NodeRole, error) {
	res, err := c.request(ctx, dst, protocol.ServerTypeQuery(), protocol.TypeServerType)
	if err != nil {
		return state.RoleUnknown, err
	}
	return res.Role()
}

func (c *Client) FilesList(ctx context.Context, dst state.NodeId) ([]string, error) {
	res, err := c.request(ctx, dst, protocol.FilesListQuery(), protocol.TypeFilesList)
	return res.Files, err
}

// File fetches a text file without resolving the media it embeds
func (c *Client) File(ctx context.Context, dst state.NodeId, id string) ([]byte, error) {
	data, _, err := c.FetchFile(ctx, dst, id)
	return data, err
}

func (c *Client) Media(ctx context.Context, dst state.NodeId, id string) ([]byte, error) {
	res, err := c.request(ctx, dst, protocol.MediaQuery(id), protocol.TypeMedia)
	return res.Data, err
}

// Register registers under the client's name, returning the clients that were already registered
func (c *Client) Register(ctx context.Context, dst state.NodeId) ([]string, error) {
	res, err := c.request(ctx, dst, protocol.Registration(c.Name), protocol.TypeRegistrationSuccess)
	return res.Clients, err
}

func (c *Client) ClientList(ctx context.Context, dst state.NodeId) ([]string, error) {
	res, err := c.request(ctx, dst, protocol.ClientListQuery(), protocol.TypeClientList)
	return res.Clients, err
}

// SendMessage hands a chat message to the chat server. It returns once the server has every
// fragment; a rejection arrives later through the inbox as error_wrong_client_id!.
func (c *Client) SendMessage(ctx context.Context, dst state.NodeId, to, body string) error {
	if c.ep == nil {
		return ErrNotAttached
	}
	return c.ep.Send(ctx, dst, protocol.MessageFor(to, body))
}
