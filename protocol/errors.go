package protocol

import "errors"

var (
	// ErrUnsupportedMessage is returned when a payload does not decode into a known message
	ErrUnsupportedMessage = errors.New("unsupported message")

	ErrNotFound           = errors.New("requested content not found")
	ErrWrongClientId      = errors.New("wrong client id")
	ErrUnsupportedRequest = errors.New("unsupported request")
)
