package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/metrics"
)

// ElectionState represents whether this node is currently running an election
type ElectionState int

const (
	// StateIdle means no election is in flight
	StateIdle ElectionState = iota
	// StateElectionInProgress means an election run holds the state machine
	StateElectionInProgress
)

// String returns the string representation of an ElectionState
func (s ElectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateElectionInProgress:
		return "election_in_progress"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s ElectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText
func (s *ElectionState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "election_in_progress":
		*s = StateElectionInProgress
	default:
		return fmt.Errorf("unknown election state %q", text)
	}
	return nil
}

// Outcome is the result of one election run
type Outcome int

const (
	// OutcomeSkipped means another election was already in flight
	OutcomeSkipped Outcome = iota
	// OutcomeWon means this node declared victory
	OutcomeWon
	// OutcomeStoodDown means a higher node answered ALIVE
	OutcomeStoodDown
	// OutcomeAborted means the run was cancelled before it decided
	OutcomeAborted
)

// String returns the string representation of an Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeWon:
		return "won"
	case OutcomeStoodDown:
		return "stood_down"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ElectionTransport carries election traffic to peers.
// Implementations must honor ctx deadlines; a timeout is reported as an error.
type ElectionTransport interface {
	// SendElection sends ELECTION to peer and returns nil only if it answered ALIVE
	SendElection(ctx context.Context, peer PeerDescriptor) error
	// SendCoordinator announces self as coordinator to peer
	SendCoordinator(ctx context.Context, peer PeerDescriptor, self PeerDescriptor) error
}

// ElectionStatus is a point-in-time view of the election state machine
type ElectionStatus struct {
	State        ElectionState   `json:"state"`
	Participated bool            `json:"participated_in_last_election"`
	LastElection time.Time       `json:"last_election_time"`
	Round        uint64          `json:"round"`
	Coordinator  *CoordinatorRef `json:"coordinator"`
}

// ElectionManager runs the Bully algorithm for one node
//
// Concurrent Safety:
// 1. State and coordinator are protected by sync.Mutex
// 2. The Idle -> ElectionInProgress check-and-set happens under the lock,
//    so concurrent triggers collapse into one in-flight election
// 3. No network call is made while the lock is held
// 4. Background runs are tracked by a WaitGroup and cancelled by Stop
type ElectionManager struct {
	config       ClusterConfig
	roster       *Roster
	transport    ElectionTransport
	state        ElectionState
	participated bool
	lastElection time.Time
	round        uint64 // completed election runs
	coordinator  *CoordinatorRef
	mu           sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Callbacks for state changes
	onBecomeCoordinator func()
	onCoordinatorChange func(CoordinatorRef)

	logger          logging.Logger
	metricsRegistry *metrics.Registry
}
