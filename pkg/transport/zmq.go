//go:build zmq
// +build zmq

package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
)

// ZMQTransport carries each exchange over a ZeroMQ REQ/REP pair.
// Built only with -tags zmq since it links libzmq through cgo.
type ZMQTransport struct {
	MaxMessageSize int
	SendTimeout    time.Duration // used when ctx has no deadline
	PollInterval   time.Duration // how often the server loop checks for Close
	logger         logging.Logger
}

// NewZMQTransport creates a ZeroMQ transport with default limits
func NewZMQTransport(logger logging.Logger) (Transport, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ZMQTransport{
		MaxMessageSize: DefaultMaxMessageSize,
		SendTimeout:    3 * time.Second,
		PollInterval:   200 * time.Millisecond,
		logger:         logger.With(logging.Component("transport"), logging.String("carrier", "zmq")),
	}, nil
}

// Name returns "zmq"
func (t *ZMQTransport) Name() string { return string(KindZMQ) }

// zmqConnectURL turns host:port into a ZeroMQ connect endpoint
func zmqConnectURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "tcp://" + addr
}

// zmqBindURL turns host:port into a bind endpoint; ZeroMQ binds to
// interfaces, so hostnames become wildcard or loopback
func zmqBindURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	host, port, ok := strings.Cut(addr, ":")
	if !ok {
		return "tcp://" + addr
	}
	switch host {
	case "", "0.0.0.0":
		host = "*"
	case "localhost":
		host = "127.0.0.1"
	}
	return fmt.Sprintf("tcp://%s:%s", host, port)
}

// Send connects a REQ socket to addr and waits for the reply.
// ZeroMQ connects lazily, so an absent peer surfaces as a receive timeout.
func (t *ZMQTransport) Send(ctx context.Context, addr string, request []byte) ([]byte, error) {
	if len(request) > t.MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	remaining := time.Until(sendDeadline(ctx, t.SendTimeout))
	if remaining <= 0 {
		return nil, unreachable(addr, context.DeadlineExceeded)
	}

	sock, err := zmq.NewSocket(zmq.REQ)
	if err != nil {
		return nil, fmt.Errorf("failed to create REQ socket: %w", err)
	}
	defer sock.Close()

	_ = sock.SetLinger(0)
	_ = sock.SetSndtimeo(remaining)
	_ = sock.SetRcvtimeo(remaining)
	_ = sock.SetMaxmsgsize(int64(t.MaxMessageSize))

	if err := sock.Connect(zmqConnectURL(addr)); err != nil {
		return nil, unreachable(addr, err)
	}
	if _, err := sock.SendBytes(request, 0); err != nil {
		return nil, unreachable(addr, err)
	}
	response, err := sock.RecvBytes(0)
	if err != nil {
		return nil, unreachable(addr, err)
	}
	return response, nil
}

// Listen binds a REP socket on addr. ZeroMQ sockets are not thread safe,
// so one goroutine owns the socket for its whole life.
func (t *ZMQTransport) Listen(addr string, handler Handler) (io.Closer, error) {
	sock, err := zmq.NewSocket(zmq.REP)
	if err != nil {
		return nil, fmt.Errorf("failed to create REP socket: %w", err)
	}

	cleanup := NewResourceCleanup(t.logger)
	defer cleanup.Cleanup()
	cleanup.Add(closerFunc(sock.Close), "rep socket")

	_ = sock.SetLinger(0)
	_ = sock.SetRcvtimeo(t.PollInterval)
	_ = sock.SetMaxmsgsize(int64(t.MaxMessageSize))
	if err := sock.Bind(zmqBindURL(addr)); err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}

	l := &zmqListener{
		sock:    sock,
		handler: handler,
		stopCh:  make(chan struct{}),
		logger:  t.logger.With(logging.Endpoint(addr)),
	}
	l.wg.Add(1)
	go l.serveLoop()

	// Success - the serve loop now owns the socket
	cleanup.Clear()

	l.logger.Info("listening")
	return l, nil
}

type zmqListener struct {
	sock      *zmq.Socket
	handler   Handler
	stopCh    chan struct{}
	logger    logging.Logger
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Close stops the serve loop, which closes the socket
func (l *zmqListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.wg.Wait()
		l.logger.Info("listener closed")
	})
	return nil
}

func (l *zmqListener) serveLoop() {
	defer l.wg.Done()
	defer func() {
		if err := l.sock.Close(); err != nil {
			l.logger.Warn("failed to close REP socket", logging.Error(err))
		}
	}()

	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		request, err := l.sock.RecvBytes(0)
		if err != nil {
			// Timeouts come back after PollInterval; anything else must not spin
			if zmq.AsErrno(err) != zmq.Errno(syscall.EAGAIN) && !pauseAfterRecvError(l.stopCh) {
				return
			}
			continue
		}

		response := serve(l.logger, l.handler, request)
		if _, err := l.sock.SendBytes(response, 0); err != nil {
			l.logger.Debug("send failed", logging.Error(err))
		}
	}
}
