//go:build !zmq
// +build !zmq

package transport

import (
	"fmt"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
)

// NewZMQTransport reports that ZeroMQ support was not compiled in.
// Rebuild with -tags zmq (requires libzmq) to enable it.
func NewZMQTransport(logger logging.Logger) (Transport, error) {
	return nil, fmt.Errorf("%w: zmq (build with -tags zmq)", ErrTransportUnavailable)
}
