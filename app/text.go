package app

import (
	"github.com/encodeous/dronet/core"
	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
)

// TextServer serves text files by id, each with the media references it embeds
type TextServer struct {
	files *catalog
	refs  map[string][]protocol.MediaRef
}

// NewTextServer builds a text server. refs is keyed by file name.
func NewTextServer(files map[string]string, refs map[string][]protocol.MediaRef) *TextServer {
	t := &TextServer{
		files: newCatalog(state.RoleTextServer, files),
		refs:  make(map[string][]protocol.MediaRef, len(refs)),
	}
	for name, r := range refs {
		t.refs[ContentId(state.RoleTextServer, name)] = r
	}
	return t
}

func (t *TextServer) Kind() state.NodeRole {
	return state.RoleTextServer
}

func (t *TextServer) HandleMessage(r core.Responder, from state.NodeId, msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeServerTypeQuery:
		return r.Reply(protocol.ServerTypeResponse(t.Kind()))
	case protocol.TypeFilesListQuery:
		return r.Reply(protocol.FilesListResponse(t.files.list()))
	case protocol.TypeFileQuery:
		data, ok := t.files.get(msg.FileId)
		if !ok {
			return r.Reply(protocol.NotFound(msg.FileId))
		}
		return r.Reply(protocol.FileResponse(data, t.refs[msg.FileId]...))
	}
	return protocol.ErrUnsupportedRequest
}
