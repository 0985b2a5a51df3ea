package cluster

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/metrics"
)

// NewElectionManager creates a new election manager
func NewElectionManager(config ClusterConfig, roster *Roster, transport ElectionTransport) *ElectionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ElectionManager{
		config:          config,
		roster:          roster,
		transport:       transport,
		state:           StateIdle,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logging.DefaultLogger().With(logging.Component("election"), logging.NodeID(roster.SelfID())),
		metricsRegistry: metrics.DefaultRegistry(),
	}
}

// SetLogger replaces the manager's logger
func (em *ElectionManager) SetLogger(logger logging.Logger) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.logger = logger
}

func (em *ElectionManager) log() logging.Logger {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.logger
}

// SetMetricsRegistry replaces the registry election metrics are recorded to
func (em *ElectionManager) SetMetricsRegistry(registry *metrics.Registry) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.metricsRegistry = registry
}

// SetOnBecomeCoordinator registers a callback fired when this node declares victory
func (em *ElectionManager) SetOnBecomeCoordinator(fn func()) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.onBecomeCoordinator = fn
}

// SetOnCoordinatorChange registers a callback fired whenever the coordinator ref is written
func (em *ElectionManager) SetOnCoordinatorChange(fn func(CoordinatorRef)) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.onCoordinatorChange = fn
}

// Start schedules the startup election after the configured delay.
// Elections and announcements may arrive before it fires.
func (em *ElectionManager) Start() error {
	em.wg.Add(1)
	go func() {
		defer em.wg.Done()

		timer := time.NewTimer(em.config.StartupDelay)
		defer timer.Stop()

		select {
		case <-em.ctx.Done():
			return
		case <-timer.C:
			em.StartElection()
		}
	}()

	em.logger.Info("election manager started",
		logging.Duration("settle_window", em.config.SettleWindow),
		logging.Count(em.roster.Size()))
	return nil
}

// Stop cancels in-flight elections and waits for them to return
func (em *ElectionManager) Stop() error {
	em.mu.Lock()
	em.cancel()
	em.mu.Unlock()

	em.wg.Wait()
	em.logger.Info("election manager stopped")
	return nil
}

// StartElection begins an election in the background.
// It returns false (and does nothing) if an election is already in flight.
func (em *ElectionManager) StartElection() bool {
	if !em.tryBegin(true) {
		return false
	}

	go func() {
		defer em.wg.Done()
		em.run(em.ctx)
	}()
	return true
}

// Elect runs one election synchronously and reports its outcome.
// A call made while another election is in flight returns OutcomeSkipped.
func (em *ElectionManager) Elect(ctx context.Context) Outcome {
	if !em.tryBegin(false) {
		em.recordOutcome(OutcomeSkipped, 0)
		return OutcomeSkipped
	}
	return em.run(ctx)
}

// tryBegin performs the Idle -> ElectionInProgress transition. With track set
// the run is registered with the WaitGroup under the same lock Stop takes.
func (em *ElectionManager) tryBegin(track bool) bool {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.state == StateElectionInProgress {
		em.logger.Debug("election already in progress")
		return false
	}
	if em.ctx.Err() != nil {
		return false
	}
	em.state = StateElectionInProgress
	if track {
		em.wg.Add(1)
	}
	return true
}

// run executes the Bully steps. The caller must have won tryBegin.
func (em *ElectionManager) run(ctx context.Context) (outcome Outcome) {
	op := logging.StartTimer(em.log(), "election finished")
	defer func() {
		em.finish()
		em.recordOutcome(outcome, op.Elapsed())
		if outcome == OutcomeAborted {
			op.EndError(ctx.Err())
			return
		}
		op.End(logging.String("outcome", outcome.String()))
	}()

	higher := em.roster.Higher()
	if len(higher) == 0 {
		em.logger.Info("no higher peers, declaring victory")
		em.declareVictory(ctx)
		return OutcomeWon
	}

	em.logger.Info("starting election", logging.Count(len(higher)))

	alive := em.challenge(ctx, higher)

	// Give a live higher node time to run its own election and announce itself
	settle := time.NewTimer(em.config.SettleWindow)
	defer settle.Stop()
	select {
	case <-ctx.Done():
		return OutcomeAborted
	case <-settle.C:
	}

	if alive > 0 {
		em.logger.Info("higher peer alive, standing down", logging.Count(alive))
		return OutcomeStoodDown
	}

	em.logger.Info("no higher peer answered, declaring victory")
	em.declareVictory(ctx)
	return OutcomeWon
}

// challenge sends ELECTION to every higher peer in parallel and counts ALIVE replies
func (em *ElectionManager) challenge(ctx context.Context, higher []PeerDescriptor) int {
	var alive atomic.Int32
	g, gctx := errgroup.WithContext(ctx)

	for _, peer := range higher {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, em.config.ProbeTimeout)
			defer cancel()

			if err := em.transport.SendElection(pctx, peer); err != nil {
				em.roster.MarkOffline(peer.ID)
				em.logger.Debug("no ALIVE from higher peer", logging.PeerID(peer.ID), logging.Error(err))
				return nil
			}
			em.roster.MarkOnline(peer.ID)
			alive.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(alive.Load())
}

// declareVictory installs self as coordinator and notifies every lower peer.
// Notification failures are logged and otherwise ignored.
func (em *ElectionManager) declareVictory(ctx context.Context) {
	self := em.roster.Self()
	em.setCoordinator(self.Ref())

	em.mu.Lock()
	onBecome := em.onBecomeCoordinator
	em.mu.Unlock()
	if onBecome != nil {
		onBecome()
	}

	em.logger.Info("declared coordinator")

	var g errgroup.Group
	for _, peer := range em.roster.Lower() {
		g.Go(func() error {
			nctx, cancel := context.WithTimeout(ctx, em.config.NotifyTimeout)
			defer cancel()

			if err := em.transport.SendCoordinator(nctx, peer, self); err != nil {
				em.logger.Warn("failed to notify lower peer", logging.PeerID(peer.ID), logging.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// finish performs the ElectionInProgress -> Idle transition
func (em *ElectionManager) finish() {
	em.mu.Lock()
	defer em.mu.Unlock()

	em.state = StateIdle
	em.participated = true
	em.lastElection = time.Now()
	em.round++
}

func (em *ElectionManager) recordOutcome(outcome Outcome, d time.Duration) {
	em.mu.Lock()
	registry := em.metricsRegistry
	em.mu.Unlock()

	if registry != nil {
		registry.RecordElection(outcome.String(), d)
	}
}
