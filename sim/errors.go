package sim

import "errors"

var (
	ErrCrashed     = errors.New("drone crashed")
	ErrUnknownNode = errors.New("unknown node")
	ErrNotADrone   = errors.New("node is not a drone")
	ErrInvalidPdr  = errors.New("pdr must be within [0, 1]")
)
