package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
)

// TCPTransport exchanges one request and one response per connection.
// The sender half-closes after writing, so a message is everything up to EOF.
type TCPTransport struct {
	MaxMessageSize int
	DialTimeout    time.Duration // used when ctx has no deadline
	ReadTimeout    time.Duration // server side limit per connection
	logger         logging.Logger
}

// NewTCPTransport creates a TCP transport with default limits
func NewTCPTransport(logger logging.Logger) *TCPTransport {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TCPTransport{
		MaxMessageSize: DefaultMaxMessageSize,
		DialTimeout:    3 * time.Second,
		ReadTimeout:    5 * time.Second,
		logger:         logger.With(logging.Component("transport"), logging.String("carrier", "tcp")),
	}
}

// Name returns "tcp"
func (t *TCPTransport) Name() string { return string(KindTCP) }

// Send dials addr, writes request, half-closes and reads the full response
func (t *TCPTransport) Send(ctx context.Context, addr string, request []byte) ([]byte, error) {
	if len(request) > t.MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	var d net.Dialer
	dctx, cancel := context.WithDeadline(ctx, sendDeadline(ctx, t.DialTimeout))
	defer cancel()

	conn, err := d.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, unreachable(addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(sendDeadline(ctx, t.DialTimeout)); err != nil {
		return nil, unreachable(addr, err)
	}

	if _, err := conn.Write(request); err != nil {
		return nil, unreachable(addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return nil, unreachable(addr, err)
		}
	}

	response, err := readLimited(conn, t.MaxMessageSize)
	if err != nil {
		if errors.Is(err, ErrMessageTooLarge) {
			return nil, err
		}
		return nil, unreachable(addr, err)
	}
	return response, nil
}

// Listen accepts connections on addr, serving each on its own goroutine
func (t *TCPTransport) Listen(addr string, handler Handler) (io.Closer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	l := &tcpListener{
		ln:        ln,
		transport: t,
		handler:   handler,
		logger:    t.logger.With(logging.Endpoint(ln.Addr().String())),
	}
	l.wg.Add(1)
	go l.acceptLoop()

	l.logger.Info("listening")
	return l, nil
}

type tcpListener struct {
	ln        net.Listener
	transport *TCPTransport
	handler   Handler
	logger    logging.Logger
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Addr returns the bound address, useful with port 0
func (l *tcpListener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting. In-flight connections finish or time out on their own.
func (l *tcpListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.ln.Close()
		l.wg.Wait()
		l.logger.Info("listener closed")
	})
	return err
}

func (l *tcpListener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("accept failed", logging.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}
		go l.handle(conn)
	}
}

// handle reads exactly one request, writes exactly one response and closes
func (l *tcpListener) handle(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(l.transport.ReadTimeout))

	request, err := readLimited(conn, l.transport.MaxMessageSize)
	if err != nil {
		l.logger.Debug("dropping connection", logging.String("remote", conn.RemoteAddr().String()), logging.Error(err))
		return
	}

	response := serve(l.logger, l.handler, request)
	if len(response) == 0 {
		return
	}
	if _, err := conn.Write(response); err != nil {
		l.logger.Debug("write response failed", logging.Error(err))
	}
}

// readLimited reads until EOF, failing once more than limit bytes arrive
func readLimited(r io.Reader, limit int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > limit {
		return nil, ErrMessageTooLarge
	}
	return data, nil
}
