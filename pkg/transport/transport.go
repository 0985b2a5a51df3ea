// Package transport moves one request and one response between two named
// endpoints. The coordination core only sees the Transport interface; the
// concrete carrier (plain TCP, NNG, ZeroMQ or an in-memory network) is
// chosen at startup.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
)

// Transport errors
var (
	// ErrUnreachable covers connection refusal, timeouts and broken exchanges.
	// Callers treat all of them as "peer not live".
	ErrUnreachable          = errors.New("peer unreachable")
	ErrMessageTooLarge      = errors.New("message exceeds size limit")
	ErrUnknownTransport     = errors.New("unknown transport")
	ErrTransportUnavailable = errors.New("transport not compiled into this binary")
	ErrAddressInUse         = errors.New("endpoint already has a listener")
)

// DefaultMaxMessageSize bounds requests and responses on every carrier
const DefaultMaxMessageSize = 64 * 1024

// DefaultHandlerTimeout bounds the context given to a Handler
const DefaultHandlerTimeout = 5 * time.Second

// recvBackoff is the pause after a failed receive on a listening socket
const recvBackoff = 10 * time.Millisecond

// pauseAfterRecvError waits recvBackoff and reports whether the caller
// should keep receiving. It returns false as soon as stop is closed; a nil
// stop only waits.
func pauseAfterRecvError(stop <-chan struct{}) bool {
	timer := time.NewTimer(recvBackoff)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}

// Handler serves one request and returns the response body.
// An empty response is valid (fire-and-forget messages).
type Handler func(ctx context.Context, request []byte) []byte

// Transport is a one-shot request/response channel between endpoints.
// Send must honor ctx cancellation and deadlines.
type Transport interface {
	// Send delivers request to addr and waits for its response
	Send(ctx context.Context, addr string, request []byte) ([]byte, error)
	// Listen serves requests on addr until the returned Closer is closed
	Listen(addr string, handler Handler) (io.Closer, error)
	// Name identifies the carrier in logs and status output
	Name() string
}

// Kind names a carrier selectable from configuration
type Kind string

const (
	KindTCP Kind = "tcp"
	KindNNG Kind = "nng"
	KindZMQ Kind = "zmq"
)

// New creates the transport for kind
func New(kind Kind, logger logging.Logger) (Transport, error) {
	switch kind {
	case KindTCP, "":
		return NewTCPTransport(logger), nil
	case KindNNG:
		return NewNNGTransport(logger), nil
	case KindZMQ:
		return NewZMQTransport(logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, kind)
	}
}

// unreachable wraps err as ErrUnreachable with the peer address
func unreachable(addr string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnreachable, addr, err)
}

// serve runs handler with panic recovery and a bounded context
func serve(logger logging.Logger, handler Handler, request []byte) (response []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in request handler", logging.Any("panic", r))
			response = nil
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultHandlerTimeout)
	defer cancel()
	return handler(ctx, request)
}

// sendDeadline returns the ctx deadline or now+fallback
func sendDeadline(ctx context.Context, fallback time.Duration) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(fallback)
}
