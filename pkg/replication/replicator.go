package replication

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/metrics"
)

// Ack is a peer's answer to a REPLICATE request
type Ack string

const (
	AckAccepted Ack = "ACK"   // record applied
	AckStale    Ack = "NACK"  // version not newer, local state unchanged
	AckError    Ack = "ERROR" // payload could not be decrypted or decoded
)

// Reply is a peer's answer and the version it holds after handling the push
type Reply struct {
	Ack     Ack
	Version uint64
}

// Sender delivers an encoded record to one peer and returns its answer
type Sender interface {
	SendReplicate(ctx context.Context, peer cluster.PeerDescriptor, encoded string) (Reply, error)
}

// Gate reports whether this node may push its record. It is satisfied by
// the election manager: idle and coordinator.
type Gate interface {
	CanReplicate() bool
}

// RoundResult summarizes one push to every peer
type RoundResult struct {
	Version     uint64        `json:"version"`
	Peers       int           `json:"peers"`
	Acks        int           `json:"acks"`
	Nacks       int           `json:"nacks"`
	Errors      int           `json:"errors"`
	Unreachable int           `json:"unreachable"`
	Quorum      int           `json:"quorum"`
	Success     bool          `json:"success"`
	Duration    time.Duration `json:"duration"`

	// FastForwarded is set when a peer NACKed with a version at or above
	// ours and the local version was moved past it for the next round
	FastForwarded bool `json:"fast_forwarded,omitempty"`
}

// Replicator pushes the local record to the roster while this node is
// coordinator and applies records pushed by others.
//
// Concurrent Safety:
// ReplicateOnce calls are serialized by roundMu. HandleReplicate only
// touches the Store, which has its own lock, and may run concurrently
// with a round. No lock is held across a send.
type Replicator struct {
	config ReplicationConfig
	roster *cluster.Roster
	store  *Store
	codec  *Codec
	sender Sender
	gate   Gate

	roundMu   sync.Mutex
	lastRound *RoundResult

	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex

	hooksMu         sync.RWMutex
	logger          logging.Logger
	metricsRegistry *metrics.Registry
	validatePayload func(map[string]any) error
}

// NewReplicator creates a replicator
func NewReplicator(config ReplicationConfig, roster *cluster.Roster, store *Store, codec *Codec, sender Sender, gate Gate) *Replicator {
	return &Replicator{
		config:          config,
		roster:          roster,
		store:           store,
		codec:           codec,
		sender:          sender,
		gate:            gate,
		stopCh:          make(chan struct{}),
		logger:          logging.DefaultLogger().With(logging.Component("replication"), logging.NodeID(roster.SelfID())),
		metricsRegistry: metrics.DefaultRegistry(),
	}
}

// SetLogger replaces the replicator's logger
func (r *Replicator) SetLogger(logger logging.Logger) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.logger = logger
}

// SetMetricsRegistry replaces the registry replication metrics are recorded to
func (r *Replicator) SetMetricsRegistry(registry *metrics.Registry) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.metricsRegistry = registry
}

// SetPayloadValidator installs a check run on every decoded incoming
// record. A record whose payload fails it is answered with ERROR.
func (r *Replicator) SetPayloadValidator(fn func(payload map[string]any) error) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.validatePayload = fn
}

func (r *Replicator) log() logging.Logger {
	r.hooksMu.RLock()
	defer r.hooksMu.RUnlock()
	return r.logger
}

func (r *Replicator) registry() *metrics.Registry {
	r.hooksMu.RLock()
	defer r.hooksMu.RUnlock()
	return r.metricsRegistry
}

// Start begins the periodic push loop
func (r *Replicator) Start() error {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()

	if r.running {
		return nil
	}
	r.running = true

	r.wg.Add(1)
	go r.loop()

	r.log().Info("replicator started", logging.Duration("interval", r.config.Interval))
	return nil
}

// Stop halts the loop and waits for an in-flight round
func (r *Replicator) Stop() error {
	r.runningMu.Lock()
	if !r.running {
		r.runningMu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	r.runningMu.Unlock()

	r.wg.Wait()
	r.log().Info("replicator stopped")
	return nil
}

func (r *Replicator) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-r.stopCh
		cancel()
	}()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.safeRound(ctx)
		}
	}
}

func (r *Replicator) safeRound(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.log().Error("panic in replication round",
				logging.Any("panic", p),
				logging.String("stack", string(debug.Stack())))
		}
	}()

	if _, err := r.ReplicateOnce(ctx); err != nil && !errors.Is(err, cluster.ErrNotCoordinator) {
		r.log().Warn("replication round failed", logging.Error(err))
	}
}

// ReplicateOnce pushes a snapshot of the record to every other peer and
// evaluates the quorum. It returns cluster.ErrNotCoordinator without
// sending anything when the gate is closed. A failed quorum is reported
// in the result, not as an error; the next round is the retry.
func (r *Replicator) ReplicateOnce(ctx context.Context) (RoundResult, error) {
	if !r.gate.CanReplicate() {
		return RoundResult{}, cluster.ErrNotCoordinator
	}

	r.roundMu.Lock()
	defer r.roundMu.Unlock()

	start := time.Now()
	record := r.store.Snapshot()
	encoded, err := r.codec.Encode(record)
	if err != nil {
		return RoundResult{}, fmt.Errorf("failed to encode record: %w", err)
	}

	peers := r.roster.Others()
	result := RoundResult{
		Version: record.Version,
		Peers:   len(peers),
		Quorum:  cluster.Quorum(r.roster.Size()),
	}
	if reg := r.registry(); reg != nil {
		reg.ReplicationPayloadBytes.Observe(float64(len(encoded)))
	}

	var (
		mu         sync.Mutex
		g          errgroup.Group
		newestPeer uint64
	)
	for _, peer := range peers {
		g.Go(func() error {
			reply, err := r.send(ctx, peer, encoded)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Unreachable++
			case reply.Ack == AckAccepted:
				result.Acks++
			case reply.Ack == AckStale:
				result.Nacks++
				newestPeer = max(newestPeer, reply.Version)
			default:
				result.Errors++
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Success = cluster.HasQuorum(result.Acks, r.roster.Size())
	result.Duration = time.Since(start)
	if result.Nacks > 0 && newestPeer >= record.Version && r.store.FastForward(newestPeer) {
		result.FastForwarded = true
		r.log().Info("peer holds a newer version, fast-forwarding",
			logging.Version(record.Version), logging.Uint64("peer_version", newestPeer))
	}
	r.lastRound = &result

	if reg := r.registry(); reg != nil {
		reg.RecordReplicationRound(result.Success, record.Version)
	}

	fields := []logging.Field{
		logging.Version(record.Version),
		logging.Count(result.Acks),
		logging.Int("quorum", result.Quorum),
		logging.Latency(result.Duration),
	}
	if result.Success {
		r.log().Info("replication round succeeded", fields...)
	} else {
		r.log().Warn("replication quorum not reached", append(fields,
			logging.Int("nacks", result.Nacks),
			logging.Int("errors", result.Errors),
			logging.Int("unreachable", result.Unreachable))...)
	}
	return result, nil
}

func (r *Replicator) send(ctx context.Context, peer cluster.PeerDescriptor, encoded string) (Reply, error) {
	sctx, cancel := context.WithTimeout(ctx, r.config.SendTimeout)
	defer cancel()

	reply, err := r.sender.SendReplicate(sctx, peer, encoded)
	status := string(reply.Ack)
	if err != nil {
		status = "unreachable"
		r.log().Debug("replicate not delivered", logging.PeerID(peer.ID), logging.Error(err))
	} else {
		r.roster.MarkOnline(peer.ID)
	}
	if reg := r.registry(); reg != nil {
		reg.ReplicationRepliesTotal.WithLabelValues(status).Inc()
	}
	return reply, err
}

// HandleReplicate decodes and applies a record pushed by the coordinator.
// It returns the answer to send back and, for anything but AckAccepted,
// the reason.
func (r *Replicator) HandleReplicate(encoded string) (Ack, error) {
	record, err := r.codec.Decode(encoded)
	if err != nil {
		r.recordApply("error")
		r.log().Warn("rejected undecodable record", logging.Error(err))
		return AckError, err
	}

	r.hooksMu.RLock()
	validate := r.validatePayload
	r.hooksMu.RUnlock()
	if validate != nil {
		if err := validate(record.Payload); err != nil {
			r.recordApply("invalid")
			r.log().Warn("rejected record with invalid payload",
				logging.Version(record.Version), logging.Error(err))
			return AckError, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}

	if err := r.store.Apply(record); err != nil {
		r.recordApply("stale")
		r.log().Debug("rejected stale record",
			logging.Version(record.Version),
			logging.Uint64("local_version", r.store.Version()))
		return AckStale, err
	}

	r.recordApply("applied")
	if reg := r.registry(); reg != nil {
		reg.ReplicationRecordVersion.Set(float64(record.Version))
	}
	r.log().Debug("applied replicated record", logging.Version(record.Version))
	return AckAccepted, nil
}

func (r *Replicator) recordApply(result string) {
	if reg := r.registry(); reg != nil {
		reg.ReplicationAppliesTotal.WithLabelValues(result).Inc()
	}
}

// LastRound returns the result of the most recent round, if any
func (r *Replicator) LastRound() (RoundResult, bool) {
	r.roundMu.Lock()
	defer r.roundMu.Unlock()
	if r.lastRound == nil {
		return RoundResult{}, false
	}
	return *r.lastRound, true
}

// Store returns the record store the replicator reads and applies to
func (r *Replicator) Store() *Store {
	return r.store
}
