// Package node is the composition root of a sensor: it owns the clock,
// roster, election manager, failure detector, replicator and alert log,
// serves the wire protocol on the data and election endpoints, and runs
// the periodic tasks until stopped.
package node

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/client"
	"github.com/dd0wney/cluso-sensornet/pkg/clock"
	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/config"
	"github.com/dd0wney/cluso-sensornet/pkg/encryption"
	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/metrics"
	"github.com/dd0wney/cluso-sensornet/pkg/replication"
	"github.com/dd0wney/cluso-sensornet/pkg/sensor"
	"github.com/dd0wney/cluso-sensornet/pkg/transport"
)

// Lifecycle errors
var (
	ErrAlreadyRunning = errors.New("node already running")
	ErrStopped        = errors.New("node was stopped and cannot be restarted")
)

// Node is one sensor of the fleet.
//
// Concurrent Safety:
// Handle may be called from any number of transport goroutines. The record
// is guarded by the replication Store, coordinator and election state by
// the ElectionManager; neither lock is held across a send.
type Node struct {
	cfg       *config.Config
	transport transport.Transport

	clock      *clock.LamportClock
	roster     *cluster.Roster
	election   *cluster.ElectionManager
	detector   *cluster.FailureDetector
	store      *replication.Store
	replicator *replication.Replicator
	generator  *sensor.Generator
	alerts     *AlertLog
	client     *client.Client

	engine          *encryption.Engine
	logger          logging.Logger
	metricsRegistry *metrics.Registry

	listeners *transport.ResourceCleanup
	serving   atomic.Bool
	started   time.Time

	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	stopped   bool
	runningMu sync.Mutex
}

// Option configures a Node before its components are built
type Option func(*Node)

// WithLogger sets the base logger; components derive children from it
func WithLogger(logger logging.Logger) Option {
	return func(n *Node) { n.logger = logger }
}

// WithMetricsRegistry records every component's metrics to registry
func WithMetricsRegistry(registry *metrics.Registry) Option {
	return func(n *Node) { n.metricsRegistry = registry }
}

// WithEngine uses engine instead of deriving one from the configured key
func WithEngine(engine *encryption.Engine) Option {
	return func(n *Node) { n.engine = engine }
}

// New validates cfg and assembles a node. Nothing runs until Start.
func New(cfg *config.Config, t transport.Transport, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Node{
		cfg:             cfg,
		transport:       t,
		clock:           clock.New(),
		logger:          logging.DefaultLogger(),
		metricsRegistry: metrics.DefaultRegistry(),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	base := n.logger.With(logging.NodeID(cfg.NodeID))
	n.logger = base.With(logging.Component("node"))
	n.listeners = transport.NewResourceCleanup(n.logger)

	if n.engine == nil {
		engine, err := encryption.NewEngineFromKeyMaterial(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to derive cluster key: %w", err)
		}
		n.engine = engine
	}

	roster, err := cluster.NewRoster(cfg.NodeID, cfg.Peers)
	if err != nil {
		return nil, err
	}
	roster.SetMetricsRegistry(n.metricsRegistry)
	n.roster = roster

	n.client = client.New(t,
		client.WithClock(n.clock),
		client.WithTimeout(cfg.SendTimeout),
		client.WithLogger(base.With(logging.Component("client"))))
	link := &peerLink{client: n.client, selfID: cfg.NodeID}

	cc := cfg.ClusterConfig()
	n.election = cluster.NewElectionManager(cc, roster, link)
	n.election.SetLogger(base.With(logging.Component("election")))
	n.election.SetMetricsRegistry(n.metricsRegistry)
	n.election.SetOnCoordinatorChange(n.onCoordinatorChange)
	n.election.SetOnBecomeCoordinator(n.onBecomeCoordinator)

	n.detector = cluster.NewFailureDetector(cc, roster, link, n.election)
	n.detector.SetLogger(base.With(logging.Component("detector")))
	n.detector.SetMetricsRegistry(n.metricsRegistry)
	n.detector.SetOnAlert(func(message string) {
		n.alerts.Append(message, SourceLocal, n.clock.Tick())
	})

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano()) ^ cfg.NodeID
	}
	n.generator = sensor.NewGenerator(seed)
	first := n.generator.Next()
	n.store = replication.NewStore(replication.Record{
		Payload:     first.Payload(),
		LastUpdated: first.Timestamp,
	})

	n.replicator = replication.NewReplicator(cfg.ReplicationConfig(), roster, n.store,
		replication.NewCodec(n.engine), link, n.election)
	n.replicator.SetLogger(base.With(logging.Component("replication")))
	n.replicator.SetMetricsRegistry(n.metricsRegistry)
	n.replicator.SetPayloadValidator(func(payload map[string]any) error {
		_, err := sensor.ReadingFromPayload(payload)
		return err
	})

	n.alerts = NewAlertLog(cfg.AlertLogSize)
	return n, nil
}

// onBecomeCoordinator takes a fresh reading as soon as this node wins, so
// the first round after a failover carries data newer than any follower's
func (n *Node) onBecomeCoordinator() {
	if !n.Serving() || !n.election.IsCoordinator() {
		return
	}
	n.Mutate()
}

func (n *Node) onCoordinatorChange(ref cluster.CoordinatorRef) {
	n.logger.Debug("coordinator view written",
		logging.PeerID(ref.ID), logging.Lamport(n.clock.Time()))
}

// ID returns the node id
func (n *Node) ID() uint64 { return n.cfg.NodeID }

// Clock returns the node's Lamport clock
func (n *Node) Clock() *clock.LamportClock { return n.clock }

// Roster returns the node's roster
func (n *Node) Roster() *cluster.Roster { return n.roster }

// Election returns the node's election manager
func (n *Node) Election() *cluster.ElectionManager { return n.election }

// Detector returns the node's failure detector
func (n *Node) Detector() *cluster.FailureDetector { return n.detector }

// Replicator returns the node's replicator
func (n *Node) Replicator() *replication.Replicator { return n.replicator }

// Store returns the node's record store
func (n *Node) Store() *replication.Store { return n.store }

// Alerts returns the node's alert log
func (n *Node) Alerts() *AlertLog { return n.alerts }

// Serving reports whether the node's endpoints are listening
func (n *Node) Serving() bool { return n.serving.Load() }
