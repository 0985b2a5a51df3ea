package cluster

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/metrics"
)

// Prober performs the liveness exchange with a peer
type Prober interface {
	// Probe sends PING and returns nil only if PONG came back in time
	Probe(ctx context.Context, peer PeerDescriptor) error
	// SendAlert delivers an observational alert to peer
	SendAlert(ctx context.Context, peer PeerDescriptor, message string) error
}

// Elector is the part of the election state machine the detector drives
type Elector interface {
	Coordinator() (CoordinatorRef, bool)
	IsCoordinator() bool
	StartElection() bool
	Round() uint64
}

// CycleRole is the role the detector acted in during one cycle
type CycleRole string

const (
	// CycleCoordinator means every peer was probed
	CycleCoordinator CycleRole = "coordinator"
	// CycleFollower means only the coordinator was probed
	CycleFollower CycleRole = "follower"
	// CycleNoCoordinator means no coordinator was known
	CycleNoCoordinator CycleRole = "no_coordinator"
)

// CycleReport describes one detector cycle
type CycleReport struct {
	Role      CycleRole
	Probed    int
	Active    int
	Failed    []uint64
	Alerted   bool
	Triggered bool
}

// suspicion latches a detected coordinator failure so that one failure
// triggers one election, not one per failed probe.
type suspicion struct {
	coordinator uint64
	round       uint64
}

// FailureDetector probes the coordinator (or, on the coordinator, every peer)
// on a fixed interval.
//
// Concurrent Safety:
// 1. RunCycle is serialized by cycleMu; the background loop and manual
//    callers never overlap
// 2. Probes run outside any lock, each with its own timeout
// 3. A probe failure never stops the loop; panics in a cycle are recovered
type FailureDetector struct {
	config  ClusterConfig
	roster  *Roster
	prober  Prober
	elector Elector

	cycleMu   sync.Mutex
	suspected *suspicion
	onAlert   func(message string)

	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex

	hooksMu         sync.RWMutex
	logger          logging.Logger
	metricsRegistry *metrics.Registry
}

// NewFailureDetector creates a failure detector
func NewFailureDetector(config ClusterConfig, roster *Roster, prober Prober, elector Elector) *FailureDetector {
	return &FailureDetector{
		config:          config,
		roster:          roster,
		prober:          prober,
		elector:         elector,
		stopCh:          make(chan struct{}),
		logger:          logging.DefaultLogger().With(logging.Component("detector"), logging.NodeID(roster.SelfID())),
		metricsRegistry: metrics.DefaultRegistry(),
	}
}

// SetLogger replaces the detector's logger
func (fd *FailureDetector) SetLogger(logger logging.Logger) {
	fd.hooksMu.Lock()
	defer fd.hooksMu.Unlock()
	fd.logger = logger
}

// SetMetricsRegistry replaces the registry detector metrics are recorded to
func (fd *FailureDetector) SetMetricsRegistry(registry *metrics.Registry) {
	fd.hooksMu.Lock()
	defer fd.hooksMu.Unlock()
	fd.metricsRegistry = registry
}

func (fd *FailureDetector) log() logging.Logger {
	fd.hooksMu.RLock()
	defer fd.hooksMu.RUnlock()
	return fd.logger
}

func (fd *FailureDetector) registry() *metrics.Registry {
	fd.hooksMu.RLock()
	defer fd.hooksMu.RUnlock()
	return fd.metricsRegistry
}

// SetOnAlert registers a hook called when the coordinator raises a
// multiple-failure alert
func (fd *FailureDetector) SetOnAlert(fn func(message string)) {
	fd.cycleMu.Lock()
	defer fd.cycleMu.Unlock()
	fd.onAlert = fn
}

// Start begins the periodic detector loop
func (fd *FailureDetector) Start() error {
	fd.runningMu.Lock()
	defer fd.runningMu.Unlock()

	if fd.running {
		return nil
	}
	fd.running = true

	fd.wg.Add(1)
	go fd.loop()

	fd.log().Info("failure detector started",
		logging.Duration("interval", fd.config.DetectorInterval),
		logging.Duration("probe_timeout", fd.config.ProbeTimeout))
	return nil
}

// Stop halts the loop and waits for an in-flight cycle to finish
func (fd *FailureDetector) Stop() error {
	fd.runningMu.Lock()
	if !fd.running {
		fd.runningMu.Unlock()
		return nil
	}
	fd.running = false
	close(fd.stopCh)
	fd.runningMu.Unlock()

	fd.wg.Wait()
	fd.log().Info("failure detector stopped")
	return nil
}

func (fd *FailureDetector) loop() {
	defer fd.wg.Done()

	ticker := time.NewTicker(fd.config.DetectorInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-fd.stopCh
		cancel()
	}()

	for {
		select {
		case <-fd.stopCh:
			return
		case <-ticker.C:
			fd.safeCycle(ctx)
		}
	}
}

func (fd *FailureDetector) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			fd.log().Error("panic in detector cycle",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
		}
	}()
	fd.RunCycle(ctx)
}

// RunCycle performs one detection cycle and reports what it observed
func (fd *FailureDetector) RunCycle(ctx context.Context) CycleReport {
	fd.cycleMu.Lock()
	defer fd.cycleMu.Unlock()

	if fd.elector.IsCoordinator() {
		fd.suspected = nil
		return fd.probeAll(ctx)
	}

	coord, ok := fd.elector.Coordinator()
	if !ok {
		report := CycleReport{Role: CycleNoCoordinator}
		report.Triggered = fd.suspect(0, "no coordinator known")
		return report
	}
	return fd.probeCoordinator(ctx, coord)
}

// probeCoordinator checks the coordinator; any failure raises suspicion
func (fd *FailureDetector) probeCoordinator(ctx context.Context, coord CoordinatorRef) CycleReport {
	report := CycleReport{Role: CycleFollower, Probed: 1}

	peer, ok := fd.roster.Get(coord.ID)
	if !ok {
		peer = PeerDescriptor{ID: coord.ID, Addr: coord.Addr, ElectionAddr: coord.ElectionAddr}
	}

	if err := fd.probe(ctx, peer); err != nil {
		report.Failed = []uint64{coord.ID}
		fd.log().Warn("coordinator probe failed", logging.PeerID(coord.ID), logging.Error(err))
		report.Triggered = fd.suspect(coord.ID, "coordinator unreachable")
		return report
	}

	report.Active = 1
	fd.suspected = nil
	return report
}

// suspect triggers an election unless this failure was already acted on.
// The latch is keyed by coordinator and completed election rounds, so it
// releases once an election finishes or a new coordinator is installed.
// Must be called with cycleMu held.
func (fd *FailureDetector) suspect(coordinator uint64, reason string) bool {
	key := suspicion{coordinator: coordinator, round: fd.elector.Round()}
	if fd.suspected != nil && *fd.suspected == key {
		fd.log().Debug("failure already reported, election pending", logging.PeerID(coordinator))
		return false
	}
	fd.suspected = &key

	if reg := fd.registry(); reg != nil {
		reg.DetectorSuspicionsTotal.Inc()
	}
	fd.log().Warn("triggering election", logging.String("reason", reason))
	fd.elector.StartElection()
	return true
}

// probeAll checks every peer and alerts when fewer than a quorum answered
func (fd *FailureDetector) probeAll(ctx context.Context) CycleReport {
	peers := fd.roster.Others()
	report := CycleReport{Role: CycleCoordinator, Probed: len(peers)}

	var (
		active atomic.Int32
		mu     sync.Mutex
		g      errgroup.Group
	)
	for _, peer := range peers {
		g.Go(func() error {
			if err := fd.probe(ctx, peer); err != nil {
				mu.Lock()
				report.Failed = append(report.Failed, peer.ID)
				mu.Unlock()
				return nil
			}
			active.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	report.Active = int(active.Load())

	if report.Active < Quorum(fd.roster.Size()) {
		msg := fmt.Sprintf("multiple sensor failure detected: %d of %d peers unreachable",
			len(report.Failed), len(peers))
		fd.log().Error("raising alert", logging.String("alert", msg), logging.Count(report.Active))
		fd.broadcastAlert(ctx, peers, msg)
		report.Alerted = true
	}
	return report
}

// broadcastAlert sends msg to every peer, best effort
func (fd *FailureDetector) broadcastAlert(ctx context.Context, peers []PeerDescriptor, msg string) {
	if reg := fd.registry(); reg != nil {
		reg.DetectorAlertsTotal.Inc()
	}
	if fd.onAlert != nil {
		fd.onAlert(msg)
	}

	var g errgroup.Group
	for _, peer := range peers {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(ctx, fd.config.NotifyTimeout)
			defer cancel()
			if err := fd.prober.SendAlert(actx, peer, msg); err != nil {
				fd.log().Debug("alert not delivered", logging.PeerID(peer.ID), logging.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (fd *FailureDetector) probe(ctx context.Context, peer PeerDescriptor) error {
	pctx, cancel := context.WithTimeout(ctx, fd.config.ProbeTimeout)
	defer cancel()

	err := fd.prober.Probe(pctx, peer)
	result := "ok"
	if err != nil {
		result = "failed"
		fd.roster.MarkOffline(peer.ID)
	} else {
		fd.roster.MarkOnline(peer.ID)
	}
	if reg := fd.registry(); reg != nil {
		reg.DetectorProbesTotal.WithLabelValues(result).Inc()
	}
	return err
}
