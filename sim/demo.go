package sim

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/encodeous/dronet/app"
	"github.com/encodeous/dronet/state"
)

// Outcome is the result of one demo exchange
type Outcome struct {
	Client state.NodeId
	Server state.NodeId
	Step   string
	Detail string
	Err    error
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s -> %s %s: %v", o.Client, o.Server, o.Step, o.Err)
	}
	return fmt.Sprintf("%s -> %s %s: %s", o.Client, o.Server, o.Step, o.Detail)
}

// Demo has every client ask every server for its type and then exercise whatever the server offers
func (n *Network) Demo(ctx context.Context) []Outcome {
	out := make([]Outcome, 0)
	for _, cid := range slices.Sorted(maps.Keys(n.Clients)) {
		c := n.Clients[cid]
		for _, sc := range n.Cfg.Servers {
			out = append(out, demoServer(ctx, c, cid, sc.Id)...)
		}
	}
	for _, o := range out {
		if o.Err != nil {
			n.Log.Warn("demo exchange failed", "client", o.Client, "server", o.Server, "step", o.Step, "err", o.Err)
		} else {
			n.Log.Info("demo exchange", "client", o.Client, "server", o.Server, "step", o.Step, "result", o.Detail)
		}
	}
	return out
}

func demoServer(ctx context.Context, c *app.Client, cid, sid state.NodeId) []Outcome {
	res := make([]Outcome, 0)
	record := func(step, detail string, err error) bool {
		res = append(res, Outcome{Client: cid, Server: sid, Step: step, Detail: detail, Err: err})
		return err == nil
	}

	kind, err := c.ServerType(ctx, sid)
	if !record("server_type", kind.String(), err) {
		return res
	}
	switch kind {
	case state.RoleTextServer, state.RoleMediaServer:
		ids, err := c.FilesList(ctx, sid)
		if !record("files_list", fmt.Sprint(ids), err) || len(ids) == 0 {
			return res
		}
		if kind == state.RoleTextServer {
			doc, err := c.FetchDocument(ctx, sid, ids[0])
			detail := ids[0]
			if err == nil {
				detail = fmt.Sprintf("%s (%d bytes, %d media)", ids[0], len(doc.Text), len(doc.Media))
			}
			record("file", detail, err)
			break
		}
		data, err := c.Media(ctx, sid, ids[0])
		record("media", fmt.Sprintf("%s (%d bytes)", ids[0], len(data)), err)
	case state.RoleChatServer:
		others, err := c.Register(ctx, sid)
		if !record("registration", fmt.Sprint(others), err) {
			return res
		}
		clients, err := c.ClientList(ctx, sid)
		record("client_list", fmt.Sprint(clients), err)
	}
	return res
}
