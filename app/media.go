package app

import (
	"github.com/encodeous/dronet/core"
	"github.com/encodeous/dronet/protocol"
	"github.com/encodeous/dronet/state"
)

// MediaServer serves media blobs by id
type MediaServer struct {
	media *catalog
}

func NewMediaServer(media map[string]string) *MediaServer {
	return &MediaServer{media: newCatalog(state.RoleMediaServer, media)}
}

func (m *MediaServer) Kind() state.NodeRole {
	return state.RoleMediaServer
}

func (m *MediaServer) HandleMessage(r core.Responder, from state.NodeId, msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeServerTypeQuery:
		return r.Reply(protocol.ServerTypeResponse(m.Kind()))
	case protocol.TypeFilesListQuery:
		return r.Reply(protocol.FilesListResponse(m.media.list()))
	case protocol.TypeMediaQuery:
		data, ok := m.media.get(msg.FileId)
		if !ok {
			return r.Reply(protocol.NotFound(msg.FileId))
		}
		return r.Reply(protocol.MediaResponse(data))
	}
	return protocol.ErrUnsupportedRequest
}
