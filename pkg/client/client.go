// Package client issues typed requests against sensor nodes. Nodes use it
// to talk to their peers; the operator tools use it to query the fleet.
package client

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/protocol"
	"github.com/dd0wney/cluso-sensornet/pkg/transport"
	"github.com/dd0wney/cluso-sensornet/pkg/validation"
)

// DefaultTimeout applies to requests whose context has no deadline
const DefaultTimeout = 2 * time.Second

// Ticker stamps outbound requests with the sender's Lamport time
type Ticker interface {
	Tick() uint64
}

// Client sends one request per call over a Transport
type Client struct {
	transport transport.Transport
	clock     Ticker
	timeout   time.Duration
	logger    logging.Logger
}

// Option configures a Client
type Option func(*Client)

// WithClock ticks clock once per request and attaches the value
func WithClock(clock Ticker) Option {
	return func(c *Client) { c.clock = clock }
}

// WithTimeout sets the timeout used when ctx has no deadline
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = validation.DefaultOrDuration(d, c.timeout) }
}

// WithLogger sets the client's logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client
func New(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		timeout:   DefaultTimeout,
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req to addr and returns the raw response
func (c *Client) Do(ctx context.Context, addr string, req protocol.Request) ([]byte, error) {
	if c.clock != nil {
		req = req.WithClock(c.clock.Tick())
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.transport.Send(ctx, addr, req.Encode())
	if err != nil {
		c.logger.Debug("request failed",
			logging.Kind(string(req.Kind)), logging.Endpoint(addr), logging.Error(err))
		return nil, err
	}
	c.logger.Debug("request served",
		logging.Kind(string(req.Kind)), logging.Endpoint(addr), logging.Latency(time.Since(start)))
	return resp, nil
}

func (c *Client) call(ctx context.Context, addr string, req protocol.Request, out any) error {
	raw, err := c.Do(ctx, addr, req)
	if err != nil {
		return err
	}
	return protocol.Decode(raw, out)
}

// GetData reads a node's reading, clock and coordinator view
func (c *Client) GetData(ctx context.Context, addr string) (protocol.DataResponse, error) {
	var resp protocol.DataResponse
	err := c.call(ctx, addr, protocol.GetData(), &resp)
	return resp, err
}

// Heartbeat asks a node for its JSON liveness reply
func (c *Client) Heartbeat(ctx context.Context, addr string) (protocol.HeartbeatResponse, error) {
	var resp protocol.HeartbeatResponse
	if err := c.call(ctx, addr, protocol.Heartbeat(), &resp); err != nil {
		return resp, err
	}
	if resp.Status != protocol.StatusAlive {
		return resp, fmt.Errorf("%w: heartbeat status %q", protocol.ErrProtocol, resp.Status)
	}
	return resp, nil
}

// Ping expects PONG
func (c *Client) Ping(ctx context.Context, addr string) error {
	raw, err := c.Do(ctx, addr, protocol.Ping())
	if err != nil {
		return err
	}
	return protocol.ExpectText(raw, protocol.ReplyPong)
}

// Election challenges the node at addr on behalf of sender and expects ALIVE
func (c *Client) Election(ctx context.Context, addr string, sender uint64) error {
	raw, err := c.Do(ctx, addr, protocol.Election(sender))
	if err != nil {
		return err
	}
	return protocol.ExpectText(raw, protocol.ReplyAlive)
}

// Coordinator announces id as coordinator. The reply carries no body.
func (c *Client) Coordinator(ctx context.Context, addr string, id uint64, port int) error {
	_, err := c.Do(ctx, addr, protocol.Coordinator(id, port))
	return err
}

// Replicate pushes an encoded record and returns the peer's status reply
func (c *Client) Replicate(ctx context.Context, addr, encoded string) (protocol.StatusResponse, error) {
	var resp protocol.StatusResponse
	err := c.call(ctx, addr, protocol.Replicate(encoded), &resp)
	return resp, err
}

// Snapshot requests a diagnostic copy of the node's record
func (c *Client) Snapshot(ctx context.Context, addr string) (protocol.SnapshotResponse, error) {
	var resp protocol.SnapshotResponse
	err := c.call(ctx, addr, protocol.Snapshot(), &resp)
	return resp, err
}

// StartElection forces the node at addr to run an election
func (c *Client) StartElection(ctx context.Context, addr string) (protocol.StatusResponse, error) {
	var resp protocol.StatusResponse
	err := c.call(ctx, addr, protocol.StartElection(), &resp)
	return resp, err
}

// Alert appends message to the node's alert log
func (c *Client) Alert(ctx context.Context, addr, message string) (protocol.StatusResponse, error) {
	var resp protocol.StatusResponse
	err := c.call(ctx, addr, protocol.Alert(message), &resp)
	return resp, err
}

// Timestamp asks the node to merge t into its clock
func (c *Client) Timestamp(ctx context.Context, addr string, t uint64) (protocol.StatusResponse, error) {
	var resp protocol.StatusResponse
	err := c.call(ctx, addr, protocol.Timestamp(t), &resp)
	return resp, err
}

// QueryResult is one node's answer to QueryAll
type QueryResult struct {
	Peer    cluster.PeerDescriptor
	Data    protocol.DataResponse
	Err     error
	Latency time.Duration
}

// QueryAll sends GET_DATA to every peer in parallel. Results are ordered
// by node id; failures are reported per peer, never as a whole.
func (c *Client) QueryAll(ctx context.Context, peers []cluster.PeerDescriptor) []QueryResult {
	results := make([]QueryResult, 0, len(peers))
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, peer := range peers {
		g.Go(func() error {
			start := time.Now()
			data, err := c.GetData(ctx, peer.Addr)
			mu.Lock()
			results = append(results, QueryResult{Peer: peer, Data: data, Err: err, Latency: time.Since(start)})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Peer.ID < results[j].Peer.ID })
	return results
}

// Port extracts the numeric port of a host:port address, 0 if absent
func Port(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0
	}
	return n
}
