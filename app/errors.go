package app

import "errors"

var (
	ErrNotAttached        = errors.New("client is not attached to an endpoint")
	ErrUnexpectedResponse = errors.New("unexpected response")
)
