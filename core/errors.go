package core

import "errors"

var (
	ErrNoRoute            = errors.New("no route to destination")
	ErrDeliveryFailed     = errors.New("delivery failed")
	ErrTimeout            = errors.New("request timed out")
	ErrDestinationIsRelay = errors.New("destination is a relay")
	ErrNotNeighbour       = errors.New("next hop is not a neighbour")
	ErrLinkCongested      = errors.New("link to neighbour is congested")
	ErrStopped            = errors.New("endpoint stopped")
	ErrSelfDestination    = errors.New("destination is this endpoint")
	ErrCancelled          = errors.New("request cancelled")

	ErrReassemblyViolation = errors.New("reassembly protocol violation")
)
