package protocol

import (
	"errors"
	"fmt"
)

// Wire errors. ErrUnknownRequest and ErrMalformed both wrap ErrProtocol.
var (
	ErrProtocol       = errors.New("protocol error")
	ErrUnknownRequest = fmt.Errorf("%w: unknown request kind", ErrProtocol)
	ErrMalformed      = fmt.Errorf("%w: malformed request", ErrProtocol)
	ErrRemote         = errors.New("remote error")
)
