package node

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/logging"
)

// Start binds both endpoints and launches the election manager, failure
// detector, replicator and data-mutation loop. The node stops when ctx is
// cancelled or Stop is called. A stopped node cannot be started again.
func (n *Node) Start(ctx context.Context) error {
	n.runningMu.Lock()
	defer n.runningMu.Unlock()

	if n.stopped {
		return ErrStopped
	}
	if n.running {
		return ErrAlreadyRunning
	}

	dataAddr, electionAddr := n.cfg.ListenAddrs()
	cleanup := n.listeners
	dl, err := n.transport.Listen(dataAddr, n.Handle)
	if err != nil {
		return fmt.Errorf("failed to listen on data endpoint %s: %w", dataAddr, err)
	}
	cleanup.Add(dl, "data listener")

	el, err := n.transport.Listen(electionAddr, n.Handle)
	if err != nil {
		cleanup.Cleanup()
		return fmt.Errorf("failed to listen on election endpoint %s: %w", electionAddr, err)
	}
	cleanup.Add(el, "election listener")

	n.serving.Store(true)
	n.running = true
	n.started = time.Now()

	if err := n.election.Start(); err != nil {
		return err
	}
	if err := n.detector.Start(); err != nil {
		return err
	}
	if err := n.replicator.Start(); err != nil {
		return err
	}

	n.wg.Add(1)
	go n.mutationLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = n.Stop()
		case <-n.stopCh:
		}
	}()

	n.logger.Info("sensor node started",
		logging.Endpoint(dataAddr),
		logging.String("election_endpoint", electionAddr),
		logging.String("transport", n.transport.Name()),
		logging.Count(n.roster.Size()),
		logging.String("roster", cluster.FormatRoster(n.roster.All())))
	return nil
}

// Stop halts the periodic tasks and releases both endpoints. Requests
// already being handled finish on their own.
func (n *Node) Stop() error {
	n.runningMu.Lock()
	if !n.running {
		n.runningMu.Unlock()
		return nil
	}
	n.running = false
	n.stopped = true
	close(n.stopCh)
	n.runningMu.Unlock()

	n.serving.Store(false)
	err := n.listeners.CloseAll()

	_ = n.replicator.Stop()
	_ = n.detector.Stop()
	_ = n.election.Stop()
	n.wg.Wait()

	n.logger.Info("sensor node stopped", logging.Lamport(n.clock.Time()))
	return err
}

// mutationLoop refreshes the reading while this node is coordinator.
// Followers take their record from replication only, so versions stay
// single-writer.
func (n *Node) mutationLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.cfg.MutationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.safeMutate()
		}
	}
}

func (n *Node) safeMutate() {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("panic in mutation cycle",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
		}
	}()

	if n.metricsRegistry != nil {
		n.metricsRegistry.UpdateSystemMetrics(n.started)
	}
	if !n.election.CanReplicate() {
		return
	}
	n.Mutate()
}

// Mutate replaces the reading with a fresh one and bumps the record version
func (n *Node) Mutate() bool {
	reading := n.generator.Next()
	if err := reading.Validate(); err != nil {
		n.logger.Warn("discarded invalid reading", logging.Error(err))
		return false
	}

	record := n.store.Update(reading.Payload())
	now := n.clock.Tick()
	n.observeClock(now)
	n.logger.Debug("reading updated", logging.Version(record.Version), logging.Lamport(now))
	return true
}
