// Package cluster provides the coordination core of a sensor fleet.
//
// This package handles:
//   - The static roster of peers and their last known status
//   - The quorum policy shared by replication and failure alerts
//   - Bully leader election
//   - Heartbeat-based failure detection
package cluster

import (
	"sync"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/metrics"
)

// PeerStatus is the last known liveness of a peer
type PeerStatus int

const (
	// StatusUnknown means the peer has not been probed yet
	StatusUnknown PeerStatus = iota
	// StatusOnline means the last exchange with the peer succeeded
	StatusOnline
	// StatusOffline means the last exchange with the peer failed
	StatusOffline
)

// String returns the string representation of a PeerStatus
func (s PeerStatus) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "invalid"
	}
}

// PeerDescriptor identifies one member of the roster
type PeerDescriptor struct {
	ID           uint64     `json:"node_id" yaml:"id"`
	Addr         string     `json:"address" yaml:"address"`
	ElectionAddr string     `json:"election_address" yaml:"election_address"`
	Status       PeerStatus `json:"-" yaml:"-"`
	LastSeen     time.Time  `json:"-" yaml:"-"`
}

// CoordinatorRef names the node currently recognized as coordinator
type CoordinatorRef struct {
	ID           uint64 `json:"node_id"`
	Addr         string `json:"address"`
	ElectionAddr string `json:"election_address"`
}

// Ref returns the coordinator reference for this peer
func (p PeerDescriptor) Ref() CoordinatorRef {
	return CoordinatorRef{ID: p.ID, Addr: p.Addr, ElectionAddr: p.ElectionAddr}
}

// Roster is the fixed set of nodes participating in coordination, self included.
// Membership never changes after construction; only peer status is mutable.
//
// Concurrent Safety:
// 1. All public methods use RWMutex for thread-safe access
// 2. Read operations return copies so callers never hold the lock
// 3. Status updates (MarkOnline/MarkOffline) use Lock
type Roster struct {
	selfID          uint64
	peers           map[uint64]*PeerDescriptor
	order           []uint64 // ids in ascending order
	mu              sync.RWMutex
	metricsRegistry *metrics.Registry
}
