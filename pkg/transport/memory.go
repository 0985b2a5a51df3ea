package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
)

// MemoryNetwork is an in-process network of endpoints for tests.
// Endpoints can be taken down or slowed to simulate failures.
//
// Concurrent Safety:
// All methods are safe for concurrent use. Handlers run outside the
// network lock, each on its own goroutine.
type MemoryNetwork struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	down     map[string]bool
	latency  map[string]time.Duration
	requests map[string]int
	logger   logging.Logger
}

// NewMemoryNetwork creates an empty network
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		handlers: make(map[string]Handler),
		down:     make(map[string]bool),
		latency:  make(map[string]time.Duration),
		requests: make(map[string]int),
		logger:   logging.NewNopLogger(),
	}
}

// Transport returns a Transport attached to this network
func (n *MemoryNetwork) Transport() *MemoryTransport {
	return &MemoryTransport{network: n}
}

// SetDown makes addr refuse (down=true) or accept traffic again
func (n *MemoryNetwork) SetDown(addr string, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[addr] = down
}

// SetLatency delays every exchange with addr by d
func (n *MemoryNetwork) SetLatency(addr string, d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.latency[addr] = d
}

// Requests returns how many exchanges were attempted against addr
func (n *MemoryNetwork) Requests(addr string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.requests[addr]
}

func (n *MemoryNetwork) route(addr string) (Handler, time.Duration, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.requests[addr]++
	h, ok := n.handlers[addr]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s: connection refused", ErrUnreachable, addr)
	}
	if n.down[addr] {
		return nil, 0, fmt.Errorf("%w: %s: endpoint down", ErrUnreachable, addr)
	}
	return h, n.latency[addr], nil
}

// MemoryTransport sends through a MemoryNetwork
type MemoryTransport struct {
	network *MemoryNetwork
}

// Name returns "memory"
func (t *MemoryTransport) Name() string { return "memory" }

// Send routes request to the handler registered for addr.
// A handler slower than ctx's deadline counts as unreachable.
func (t *MemoryTransport) Send(ctx context.Context, addr string, request []byte) ([]byte, error) {
	if len(request) > DefaultMaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	if err := ctx.Err(); err != nil {
		return nil, unreachable(addr, err)
	}

	handler, latency, err := t.network.route(addr)
	if err != nil {
		return nil, err
	}

	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, unreachable(addr, ctx.Err())
		case <-timer.C:
		}
	}

	// Copy so neither side can alias the other's buffer
	in := append([]byte(nil), request...)
	done := make(chan []byte, 1)
	go func() {
		done <- serve(t.network.logger, handler, in)
	}()

	select {
	case <-ctx.Done():
		return nil, unreachable(addr, ctx.Err())
	case out := <-done:
		return append([]byte(nil), out...), nil
	}
}

// Listen registers handler for addr
func (t *MemoryTransport) Listen(addr string, handler Handler) (io.Closer, error) {
	n := t.network
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.handlers[addr]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}
	n.handlers[addr] = handler

	var once sync.Once
	return closerFunc(func() error {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.handlers, addr)
		})
		return nil
	}), nil
}
