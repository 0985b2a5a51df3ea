package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/rep"
	"go.nanomsg.org/mangos/v3/protocol/req"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
)

// NNGTransport carries each exchange over a mangos REQ/REP pair.
// A fresh REQ socket is dialed per Send so that exchanges stay one-shot.
type NNGTransport struct {
	MaxMessageSize int
	Workers        int           // concurrent REP contexts per listener
	SendTimeout    time.Duration // used when ctx has no deadline
	logger         logging.Logger
}

// NewNNGTransport creates an NNG transport with default limits
func NewNNGTransport(logger logging.Logger) *NNGTransport {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &NNGTransport{
		MaxMessageSize: DefaultMaxMessageSize,
		Workers:        4,
		SendTimeout:    3 * time.Second,
		logger:         logger.With(logging.Component("transport"), logging.String("carrier", "nng")),
	}
}

// Name returns "nng"
func (t *NNGTransport) Name() string { return string(KindNNG) }

// nngURL turns host:port into a mangos tcp URL
func nngURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "tcp://" + addr
}

// Send dials addr with a REQ socket and waits for the REP reply
func (t *NNGTransport) Send(ctx context.Context, addr string, request []byte) ([]byte, error) {
	if len(request) > t.MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	sock, err := req.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create REQ socket: %w", err)
	}
	defer sock.Close()

	remaining := time.Until(sendDeadline(ctx, t.SendTimeout))
	if remaining <= 0 {
		return nil, unreachable(addr, context.DeadlineExceeded)
	}
	_ = sock.SetOption(mangos.OptionSendDeadline, remaining)
	_ = sock.SetOption(mangos.OptionRecvDeadline, remaining)
	_ = sock.SetOption(mangos.OptionMaxRecvSize, t.MaxMessageSize)

	if err := sock.Dial(nngURL(addr)); err != nil {
		return nil, unreachable(addr, err)
	}

	// Close the socket early if ctx is cancelled before the deadline
	stop := context.AfterFunc(ctx, func() { sock.Close() })
	defer stop()

	if err := sock.Send(request); err != nil {
		return nil, unreachable(addr, err)
	}
	response, err := sock.Recv()
	if err != nil {
		return nil, unreachable(addr, err)
	}
	return response, nil
}

// Listen binds a REP socket on addr and serves it with a pool of contexts
func (t *NNGTransport) Listen(addr string, handler Handler) (io.Closer, error) {
	cleanup := NewResourceCleanup(t.logger)
	defer cleanup.Cleanup()

	sock, err := rep.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create REP socket: %w", err)
	}
	cleanup.Add(sock, "rep socket")

	_ = sock.SetOption(mangos.OptionMaxRecvSize, t.MaxMessageSize)
	if err := sock.Listen(nngURL(addr)); err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	l := &nngListener{
		sock:    sock,
		handler: handler,
		logger:  t.logger.With(logging.Endpoint(addr)),
	}

	workers := max(t.Workers, 1)
	contexts := make([]mangos.Context, 0, workers)
	for i := 0; i < workers; i++ {
		mctx, err := sock.OpenContext()
		if err != nil {
			for _, c := range contexts {
				c.Close()
			}
			return nil, fmt.Errorf("failed to open REP context: %w", err)
		}
		contexts = append(contexts, mctx)
	}

	for _, mctx := range contexts {
		l.wg.Add(1)
		go l.worker(mctx)
	}

	// Success - prevent cleanup from closing resources
	cleanup.Clear()

	l.logger.Info("listening", logging.Count(workers))
	return l, nil
}

type nngListener struct {
	sock      mangos.Socket
	handler   Handler
	logger    logging.Logger
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Close closes the REP socket, which unblocks every worker
func (l *nngListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.sock.Close()
		l.wg.Wait()
		l.logger.Info("listener closed")
	})
	return err
}

func (l *nngListener) worker(mctx mangos.Context) {
	defer l.wg.Done()
	defer mctx.Close()

	for {
		request, err := mctx.Recv()
		if err != nil {
			if errors.Is(err, mangos.ErrClosed) {
				return
			}
			l.logger.Debug("receive failed", logging.Error(err))
			pauseAfterRecvError(nil)
			continue
		}

		response := serve(l.logger, l.handler, request)
		if response == nil {
			// REP must answer every request; empty body means no content
			response = []byte{}
		}
		if err := mctx.Send(response); err != nil {
			if errors.Is(err, mangos.ErrClosed) {
				return
			}
			l.logger.Debug("send failed", logging.Error(err))
		}
	}
}
