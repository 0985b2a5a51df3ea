package node

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/protocol"
	"github.com/dd0wney/cluso-sensornet/pkg/replication"
)

// Handle serves one wire request. It is the transport.Handler for both
// endpoints. The clock advances exactly once per request: a merge when the
// request carries a peer time, a tick otherwise. Handle never panics and
// never returns an error; failures become error responses.
func (n *Node) Handle(_ context.Context, raw []byte) (response []byte) {
	start := time.Now()
	kind, result := "invalid", "ok"

	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("panic while handling request",
				logging.Kind(kind),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
			response = protocol.Marshal(protocol.ErrorResponse{Error: "internal_error"})
			result = "error"
		}
		if n.metricsRegistry != nil {
			n.metricsRegistry.RecordRequest(kind, result, time.Since(start))
		}
	}()

	req, err := protocol.ParseRequest(raw)
	if err != nil {
		now := n.clock.Tick()
		n.observeClock(now)
		n.logger.Warn("invalid request", logging.Lamport(now), logging.Error(err))
		result = "error"
		return protocol.InvalidRequest(err)
	}
	kind = string(req.Kind)

	now := n.advance(req)
	response, ok := n.dispatch(req, now)
	if !ok {
		result = "error"
	}
	return response
}

// advance applies the one clock step a request is entitled to
func (n *Node) advance(req protocol.Request) uint64 {
	var now uint64
	switch {
	case req.Kind == protocol.KindTimestamp:
		peer := req.Timestamp
		if req.HasClock {
			peer = max(peer, req.Clock)
		}
		now = n.clock.Merge(peer)
	case req.HasClock:
		now = n.clock.Merge(req.Clock)
	default:
		now = n.clock.Tick()
	}
	n.observeClock(now)
	return now
}

func (n *Node) observeClock(now uint64) {
	if n.metricsRegistry != nil {
		n.metricsRegistry.ClockTime.Set(float64(now))
	}
}

// dispatch routes a parsed request; ok is false when the reply is an error
func (n *Node) dispatch(req protocol.Request, now uint64) ([]byte, bool) {
	switch req.Kind {
	case protocol.KindGetData:
		return protocol.Marshal(n.dataResponse(now)), true

	case protocol.KindHeartbeat:
		return protocol.Marshal(protocol.HeartbeatResponse{Status: protocol.StatusAlive, Timestamp: now}), true

	case protocol.KindPing:
		return []byte(protocol.ReplyPong), true

	case protocol.KindElection:
		// ALIVE is the answer whatever we decide; contending runs in the background
		started := n.election.HandleElection(req.NodeID)
		n.logger.Debug("election challenge",
			logging.PeerID(req.NodeID), logging.Bool("contending", started), logging.Lamport(now))
		return []byte(protocol.ReplyAlive), true

	case protocol.KindCoordinator:
		if err := n.election.HandleCoordinator(req.NodeID); err != nil {
			n.logger.Warn("ignored coordinator announcement",
				logging.PeerID(req.NodeID), logging.Lamport(now), logging.Error(err))
			return protocol.Marshal(protocol.ErrorResponse{Error: protocol.ErrorInvalidRequest, Detail: err.Error()}), false
		}
		return nil, true

	case protocol.KindReplicate:
		return n.handleReplicate(req, now)

	case protocol.KindSnapshot:
		return protocol.Marshal(n.snapshotResponse(now)), true

	case protocol.KindStartElection:
		started := n.election.StartElection()
		n.logger.Info("election forced by operator",
			logging.Bool("started", started), logging.Lamport(now))
		return protocol.Marshal(protocol.StatusResponse{Status: protocol.StatusElectionStarted, Timestamp: now}), true

	case protocol.KindAlert:
		alert := n.alerts.Append(req.Payload, SourceRemote, now)
		if n.metricsRegistry != nil {
			n.metricsRegistry.AlertsReceived.Inc()
		}
		n.logger.Warn("alert received",
			logging.String("alert_id", alert.ID), logging.String("alert", req.Payload), logging.Lamport(now))
		return protocol.Marshal(protocol.StatusResponse{Status: protocol.StatusAlertReceived, Timestamp: now}), true

	case protocol.KindTimestamp:
		return protocol.Marshal(protocol.StatusResponse{Status: protocol.StatusTimestampUpdated, Timestamp: now}), true

	default:
		// ParseRequest only yields known kinds
		return protocol.InvalidRequest(protocol.ErrUnknownRequest), false
	}
}

func (n *Node) handleReplicate(req protocol.Request, now uint64) ([]byte, bool) {
	ack, err := n.replicator.HandleReplicate(req.Payload)
	resp := protocol.StatusResponse{
		Status:    string(ack),
		Timestamp: now,
		Version:   n.store.Version(),
	}
	if err != nil {
		resp.Reason = err.Error()
	}
	n.logger.Debug("replicate handled",
		logging.String("ack", string(ack)), logging.Version(resp.Version), logging.Lamport(now))
	// NACK is an answer, not a failure
	return protocol.Marshal(resp), ack != replication.AckError
}

func (n *Node) dataResponse(now uint64) protocol.DataResponse {
	record := n.store.Snapshot()
	resp := protocol.DataResponse{
		SensorID:      n.cfg.NodeID,
		Data:          record.Payload,
		Timestamp:     now,
		IsCoordinator: n.election.IsCoordinator(),
		Version:       record.Version,
	}
	if coord, ok := n.election.Coordinator(); ok {
		resp.Coordinator = &coord
	}
	return resp
}

func (n *Node) snapshotResponse(now uint64) protocol.SnapshotResponse {
	record := n.store.Snapshot()
	return protocol.SnapshotResponse{
		SnapshotID:  uuid.NewString(),
		SensorID:    n.cfg.NodeID,
		Data:        record.Payload,
		Timestamp:   now,
		Version:     record.Version,
		LastUpdated: record.LastUpdated.UnixMilli(),
	}
}
