package cluster

import (
	"fmt"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
)

// HandleElection reacts to an ELECTION message from peer from.
// The caller replies ALIVE before or regardless of this call; this only
// decides whether to contend. A sender with an ID at or below ours (or an
// unknown sender, from == 0) makes this node start its own election.
// It returns true if a new election was started.
func (em *ElectionManager) HandleElection(from uint64) bool {
	if from != 0 && from > em.roster.SelfID() {
		return false
	}
	if from != 0 {
		em.roster.MarkOnline(from)
	}
	return em.StartElection()
}

// HandleCoordinator installs the announced node as coordinator.
// The last announcement wins; IDs outside the roster are rejected.
func (em *ElectionManager) HandleCoordinator(id uint64) error {
	peer, ok := em.roster.Get(id)
	if !ok {
		return fmt.Errorf("coordinator %d: %w", id, ErrNodeNotFound)
	}

	em.roster.MarkOnline(id)
	em.setCoordinator(peer.Ref())
	em.logger.Info("coordinator announced", logging.PeerID(id))
	return nil
}

func (em *ElectionManager) setCoordinator(ref CoordinatorRef) {
	em.mu.Lock()
	prev := em.coordinator
	em.coordinator = &ref
	onChange := em.onCoordinatorChange
	registry := em.metricsRegistry
	em.mu.Unlock()

	if registry != nil {
		registry.SetCoordinator(ref.ID, ref.ID == em.roster.SelfID())
	}
	if prev == nil || prev.ID != ref.ID {
		em.logger.Info("coordinator changed", logging.PeerID(ref.ID))
	}
	if onChange != nil {
		onChange(ref)
	}
}

// Coordinator returns the current coordinator, if one is known
func (em *ElectionManager) Coordinator() (CoordinatorRef, bool) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.coordinator == nil {
		return CoordinatorRef{}, false
	}
	return *em.coordinator, true
}

// IsCoordinator reports whether this node believes it is coordinator
func (em *ElectionManager) IsCoordinator() bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.coordinator != nil && em.coordinator.ID == em.roster.SelfID()
}

// CanReplicate reports whether election state and coordinator ref agree
// that this node is coordinator
func (em *ElectionManager) CanReplicate() bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.state == StateIdle && em.coordinator != nil && em.coordinator.ID == em.roster.SelfID()
}

// State returns the current election state
func (em *ElectionManager) State() ElectionState {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.state
}

// Round returns the number of completed election runs
func (em *ElectionManager) Round() uint64 {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.round
}

// Status returns a snapshot of the election state machine
func (em *ElectionManager) Status() ElectionStatus {
	em.mu.Lock()
	defer em.mu.Unlock()

	status := ElectionStatus{
		State:        em.state,
		Participated: em.participated,
		LastElection: em.lastElection,
		Round:        em.round,
	}
	if em.coordinator != nil {
		c := *em.coordinator
		status.Coordinator = &c
	}
	return status
}
