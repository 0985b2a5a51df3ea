package node

import (
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/clock"
	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/health"
	"github.com/dd0wney/cluso-sensornet/pkg/replication"
)

// Roles reported in StatusReport
const (
	RoleCoordinator = "coordinator"
	RoleFollower    = "follower"
	RoleElecting    = "electing"
	RoleUnknown     = "no_coordinator"
)

// StatusClockEvents is how many of the latest clock events StatusReport carries
const StatusClockEvents = 16

// PeerReport is one roster entry as seen by this node
type PeerReport struct {
	ID           uint64    `json:"node_id"`
	Address      string    `json:"address"`
	ElectionAddr string    `json:"election_address"`
	Status       string    `json:"status"`
	LastSeen     time.Time `json:"last_seen,omitempty"`
}

// StatusReport is the operator view served on /status
type StatusReport struct {
	NodeID      uint64                   `json:"node_id"`
	Role        string                   `json:"role"`
	Coordinator *cluster.CoordinatorRef  `json:"coordinator"`
	Election    cluster.ElectionStatus   `json:"election"`
	Clock       uint64                   `json:"clock"`
	Version     uint64                   `json:"version"`
	LastUpdated time.Time                `json:"last_updated"`
	Data        map[string]any           `json:"data"`
	Peers       []PeerReport             `json:"peers"`
	Transport   string                   `json:"transport"`
	Alerts      int                      `json:"alerts"`
	LastRound   *replication.RoundResult `json:"last_round,omitempty"`
	Uptime      float64                  `json:"uptime_seconds"`
	ClockEvents []clock.Event            `json:"clock_events"`
}

// ClockReport is the full retained clock history, oldest first
type ClockReport struct {
	Time   uint64        `json:"time"`
	Events []clock.Event `json:"events"`
}

// ClockReport reads the clock without advancing it
func (n *Node) ClockReport() ClockReport {
	return ClockReport{Time: n.clock.Time(), Events: n.clock.Events()}
}

// Status assembles the operator view without advancing the clock
func (n *Node) Status() StatusReport {
	record := n.store.Snapshot()
	election := n.election.Status()

	report := StatusReport{
		NodeID:      n.cfg.NodeID,
		Role:        n.role(election),
		Coordinator: election.Coordinator,
		Election:    election,
		Clock:       n.clock.Time(),
		Version:     record.Version,
		LastUpdated: record.LastUpdated,
		Data:        record.Payload,
		Transport:   n.transport.Name(),
		Alerts:      n.alerts.Len(),
	}
	events := n.clock.Events()
	report.ClockEvents = events[max(0, len(events)-StatusClockEvents):]
	if !n.started.IsZero() {
		report.Uptime = time.Since(n.started).Seconds()
	}
	if last, ok := n.replicator.LastRound(); ok {
		report.LastRound = &last
	}
	for _, p := range n.roster.All() {
		report.Peers = append(report.Peers, PeerReport{
			ID:           p.ID,
			Address:      p.Addr,
			ElectionAddr: p.ElectionAddr,
			Status:       p.Status.String(),
			LastSeen:     p.LastSeen,
		})
	}
	return report
}

// role prefers an installed coordinator over an election still settling,
// since a COORDINATOR announcement can arrive inside the settle window
func (n *Node) role(s cluster.ElectionStatus) string {
	switch {
	case s.Coordinator == nil && s.State == cluster.StateElectionInProgress:
		return RoleElecting
	case s.Coordinator == nil:
		return RoleUnknown
	case s.Coordinator.ID == n.cfg.NodeID:
		return RoleCoordinator
	default:
		return RoleFollower
	}
}

// HealthChecker builds the node's checks: the listener for liveness, the
// coordinator view and membership for readiness, all of them for /health.
func (n *Node) HealthChecker() *health.HealthChecker {
	hc := health.NewHealthChecker()

	listener := health.ListenerCheck(n.Serving)
	coordinator := health.CoordinatorCheck(func() health.CoordinatorState {
		s := n.election.Status()
		state := health.CoordinatorState{ElectionInFlight: s.State == cluster.StateElectionInProgress}
		if s.Coordinator != nil {
			state.Known = true
			state.CoordinatorID = s.Coordinator.ID
			state.IsSelf = s.Coordinator.ID == n.cfg.NodeID
		}
		return state
	})
	membership := health.MembershipCheck(func() (int, int, int) {
		size := n.roster.Size()
		return n.roster.OnlineCount() + 1, size, cluster.Quorum(size)
	})
	replicationCheck := health.ReplicationCheck(func() health.ReplicationState {
		s := health.ReplicationState{IsCoordinator: n.election.IsCoordinator(), Version: n.store.Version()}
		if last, ok := n.replicator.LastRound(); ok {
			s.HasRound = true
			s.LastSuccess = last.Success
		}
		return s
	})

	hc.RegisterLivenessCheck("listener", listener)
	hc.RegisterReadinessCheck("listener", listener)
	hc.RegisterReadinessCheck("coordinator", coordinator)
	hc.RegisterCheck("listener", listener)
	hc.RegisterCheck("coordinator", coordinator)
	hc.RegisterCheck("membership", membership)
	hc.RegisterCheck("replication", replicationCheck)
	return hc
}
