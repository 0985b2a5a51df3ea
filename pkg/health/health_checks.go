package health

import (
	"fmt"
	"time"
)

// Sensor node checks. Each takes a small accessor so the package does not
// depend on the node itself.

// ListenerCheck reports whether the node's endpoints are being served
func ListenerCheck(serving func() bool) CheckFunc {
	return func() Check {
		check := Check{Name: "listener"}
		if serving() {
			check.Status = StatusHealthy
			check.Message = "Accepting requests"
		} else {
			check.Status = StatusUnhealthy
			check.Message = "Not serving"
		}
		return check
	}
}

// CoordinatorState is what the coordinator check needs to know
type CoordinatorState struct {
	Known            bool
	CoordinatorID    uint64
	IsSelf           bool
	ElectionInFlight bool
}

// CoordinatorCheck is healthy once a coordinator is known and no election
// is running. An election in flight is degraded: the fleet is converging.
func CoordinatorCheck(state func() CoordinatorState) CheckFunc {
	return func() Check {
		s := state()
		check := Check{
			Name: "coordinator",
			Details: map[string]any{
				"known":              s.Known,
				"coordinator_id":     s.CoordinatorID,
				"is_self":            s.IsSelf,
				"election_in_flight": s.ElectionInFlight,
			},
		}

		switch {
		case s.ElectionInFlight:
			check.Status = StatusDegraded
			check.Message = "Election in progress"
		case !s.Known:
			check.Status = StatusUnhealthy
			check.Message = "No coordinator known"
		case s.IsSelf:
			check.Status = StatusHealthy
			check.Message = "This node is coordinator"
		default:
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("Following node %d", s.CoordinatorID)
		}
		return check
	}
}

// MembershipCheck compares reachable peers with the quorum the roster needs
func MembershipCheck(state func() (online, total, quorum int)) CheckFunc {
	return func() Check {
		online, total, quorum := state()
		// online includes self; quorum counts external peers
		external := max(online-1, 0)

		check := Check{
			Name: "membership",
			Details: map[string]any{
				"online": online,
				"total":  total,
				"quorum": quorum,
			},
		}

		switch {
		case total <= 1:
			check.Status = StatusHealthy
			check.Message = "Single node roster"
		case external < quorum:
			check.Status = StatusUnhealthy
			check.Message = "Fewer reachable peers than quorum"
		case online < total:
			check.Status = StatusDegraded
			check.Message = "Some peers unreachable"
		default:
			check.Status = StatusHealthy
			check.Message = "All peers reachable"
		}
		return check
	}
}

// ReplicationState is what the replication check needs to know
type ReplicationState struct {
	IsCoordinator bool
	Version       uint64
	HasRound      bool
	LastSuccess   bool
	LastRoundAt   time.Time
}

// ReplicationCheck reports the quorum outcome of the coordinator's last
// push. Followers are healthy as long as they hold a record.
func ReplicationCheck(state func() ReplicationState) CheckFunc {
	return func() Check {
		s := state()
		check := Check{
			Name: "replication",
			Details: map[string]any{
				"is_coordinator": s.IsCoordinator,
				"version":        s.Version,
			},
		}

		switch {
		case !s.IsCoordinator:
			check.Status = StatusHealthy
			check.Message = "Follower"
		case !s.HasRound:
			check.Status = StatusHealthy
			check.Message = "No round yet"
		case s.LastSuccess:
			check.Status = StatusHealthy
			check.Message = "Last round reached quorum"
			check.Details["last_round_at"] = s.LastRoundAt
		default:
			check.Status = StatusDegraded
			check.Message = "Last round missed quorum"
			check.Details["last_round_at"] = s.LastRoundAt
		}
		return check
	}
}
