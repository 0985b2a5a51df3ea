package cluster

import "errors"

// Configuration errors
var (
	ErrInvalidNodeID       = errors.New("node ID must be non-zero")
	ErrInvalidNodeAddr     = errors.New("node address cannot be empty")
	ErrInvalidElectionAddr = errors.New("node election address cannot be empty")
)

// Roster errors
var (
	ErrSelfNotInRoster   = errors.New("local node is not part of the roster")
	ErrNodeNotFound      = errors.New("node not found in roster")
	ErrNodeAlreadyExists = errors.New("duplicate node ID in roster")
	ErrMalformedRoster   = errors.New("malformed roster entry")
	ErrEmptyRoster       = errors.New("roster cannot be empty")
)

// ErrNotCoordinator is returned by operations only the coordinator may run
var ErrNotCoordinator = errors.New("not the current coordinator")
