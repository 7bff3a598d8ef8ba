package protocol

import (
	"errors"
	"fmt"

	"github.com/encodeous/dronet/state"
	"github.com/fxamacker/cbor/v2"
)

type MessageType string

const (
	TypeServerTypeQuery     MessageType = "server_type?"
	TypeServerType          MessageType = "server_type!"
	TypeFilesListQuery      MessageType = "files_list?"
	TypeFilesList           MessageType = "files_list!"
	TypeFileQuery           MessageType = "file?"
	TypeFile                MessageType = "file!"
	TypeMediaQuery          MessageType = "media?"
	TypeMedia               MessageType = "media!"
	TypeNotFound            MessageType = "error_requested_not_found!"
	TypeRegistration        MessageType = "registration_to_chat"
	TypeRegistrationSuccess MessageType = "registration_success"
	TypeClientListQuery     MessageType = "client_list?"
	TypeClientList          MessageType = "client_list!"
	TypeMessageFor          MessageType = "message_for?"
	TypeMessageFrom         MessageType = "message_from!"
	TypeWrongClientId       MessageType = "error_wrong_client_id!"
	TypeUnsupported         MessageType = "error_unsupported_request!"
)

var requestTypes = map[MessageType]struct{}{
	TypeServerTypeQuery: {},
	TypeFilesListQuery:  {},
	TypeFileQuery:       {},
	TypeMediaQuery:      {},
	TypeRegistration:    {},
	TypeClientListQuery: {},
	TypeMessageFor:      {},
}

var responseTypes = map[MessageType]struct{}{
	TypeServerType:          {},
	TypeFilesList:           {},
	TypeFile:                {},
	TypeMedia:               {},
	TypeNotFound:            {},
	TypeRegistrationSuccess: {},
	TypeClientList:          {},
	TypeMessageFrom:         {},
	TypeWrongClientId:       {},
	TypeUnsupported:         {},
}

// IsRequest reports whether the sender of this message expects a reply
func (t MessageType) IsRequest() bool {
	_, ok := requestTypes[t]
	return ok
}

func (t MessageType) IsResponse() bool {
	_, ok := responseTypes[t]
	return ok
}

func (t MessageType) Known() bool {
	return t.IsRequest() || t.IsResponse()
}

// Message is the application vocabulary shared by every role. Only the fields relevant to Type are set.
type Message struct {
	Type       MessageType `cbor:"type"`
	ServerType string      `cbor:"server_type,omitempty"`
	FileId     string      `cbor:"file_id,omitempty"`
	Files      []string    `cbor:"files,omitempty"`
	Size       uint64      `cbor:"size,omitempty"`
	Data       []byte      `cbor:"data,omitempty"`
	Name       string      `cbor:"name,omitempty"`
	Clients    []string    `cbor:"clients,omitempty"`
	Body       string      `cbor:"body,omitempty"`
	Reason     string      `cbor:"reason,omitempty"`
	Refs       []MediaRef  `cbor:"refs,omitempty"`
}

// MediaRef points at a media file embedded in a text file and the server hosting it
type MediaRef struct {
	Location state.NodeId `cbor:"location"`
	Id       string       `cbor:"id"`
}

func (r MediaRef) String() string {
	return r.Location.String() + "/" + r.Id
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

func EncodeMessage(m Message) ([]byte, error) {
	if !m.Type.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMessage, m.Type)
	}
	return encMode.Marshal(m)
}

// DecodeMessage decodes a reassembled payload. Unknown message types yield ErrUnsupportedMessage.
func DecodeMessage(b []byte) (Message, error) {
	var m Message
	if err := decMode.Unmarshal(b, &m); err != nil {
		return Message{}, errors.Join(ErrUnsupportedMessage, err)
	}
	if !m.Type.Known() {
		return m, fmt.Errorf("%w: %q", ErrUnsupportedMessage, m.Type)
	}
	return m, nil
}

func (m Message) String() string {
	switch m.Type {
	case TypeServerType:
		return fmt.Sprintf("%s(%s)", m.Type, m.ServerType)
	case TypeFileQuery, TypeMediaQuery:
		return fmt.Sprintf("%s(%s)", m.Type, m.FileId)
	case TypeFile:
		return fmt.Sprintf("%s(%d bytes, %d refs)", m.Type, len(m.Data), len(m.Refs))
	case TypeMedia:
		return fmt.Sprintf("%s(%d bytes)", m.Type, len(m.Data))
	case TypeFilesList:
		return fmt.Sprintf("%s(%v)", m.Type, m.Files)
	case TypeRegistration, TypeWrongClientId:
		return fmt.Sprintf("%s(%s)", m.Type, m.Name)
	case TypeRegistrationSuccess, TypeClientList:
		return fmt.Sprintf("%s(%v)", m.Type, m.Clients)
	case TypeMessageFor, TypeMessageFrom:
		return fmt.Sprintf("%s(%s, %q)", m.Type, m.Name, m.Body)
	}
	return string(m.Type)
}

// Err maps typed error responses to their sentinel errors
func (m Message) Err() error {
	switch m.Type {
	case TypeNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, m.FileId)
	case TypeWrongClientId:
		return fmt.Errorf("%w: %s", ErrWrongClientId, m.Name)
	case TypeUnsupported:
		return fmt.Errorf("%w: %s", ErrUnsupportedRequest, m.Reason)
	}
	return nil
}

func ServerTypeQuery() Message {
	return Message{Type: TypeServerTypeQuery}
}

func ServerTypeResponse(role state.NodeRole) Message {
	return Message{Type: TypeServerType, ServerType: role.String()}
}

// Role parses the kind carried by a server_type! response
func (m Message) Role() (state.NodeRole, error) {
	return state.ParseNodeRole(m.ServerType)
}

func FilesListQuery() Message {
	return Message{Type: TypeFilesListQuery}
}

func FilesListResponse(ids []string) Message {
	return Message{Type: TypeFilesList, Files: ids}
}

func FileQuery(id string) Message {
	return Message{Type: TypeFileQuery, FileId: id}
}

func FileResponse(data []byte, refs ...MediaRef) Message {
	return Message{Type: TypeFile, Size: uint64(len(data)), Data: data, Refs: refs}
}

func MediaQuery(id string) Message {
	return Message{Type: TypeMediaQuery, FileId: id}
}

func MediaResponse(data []byte) Message {
	return Message{Type: TypeMedia, Data: data}
}

func NotFound(id string) Message {
	return Message{Type: TypeNotFound, FileId: id}
}

func Registration(name string) Message {
	return Message{Type: TypeRegistration, Name: name}
}

func RegistrationSuccess(clients []string) Message {
	return Message{Type: TypeRegistrationSuccess, Clients: clients}
}

func ClientListQuery() Message {
	return Message{Type: TypeClientListQuery}
}

func ClientListResponse(clients []string) Message {
	return Message{Type: TypeClientList, Clients: clients}
}

func MessageFor(to, body string) Message {
	return Message{Type: TypeMessageFor, Name: to, Body: body}
}

func MessageFrom(from, body string) Message {
	return Message{Type: TypeMessageFrom, Name: from, Body: body}
}

func WrongClientId(name string) Message {
	return Message{Type: TypeWrongClientId, Name: name}
}

func Unsupported(reason string) Message {
	return Message{Type: TypeUnsupported, Reason: reason}
}
