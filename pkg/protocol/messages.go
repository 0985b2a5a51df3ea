// Package protocol defines the closed set of wire messages exchanged between
// sensor nodes. Requests are single text lines; responses are JSON objects,
// except for the PONG and ALIVE liveness replies.
package protocol

import "github.com/dd0wney/cluso-sensornet/pkg/cluster"

// Kind identifies a request variant
type Kind string

const (
	// KindGetData reads the node's reading, clock and coordinator view
	KindGetData Kind = "GET_DATA"
	// KindHeartbeat is a liveness probe answered with JSON
	KindHeartbeat Kind = "HEARTBEAT"
	// KindPing is a liveness probe answered with PONG
	KindPing Kind = "PING"
	// KindElection challenges a higher node; answered with ALIVE
	KindElection Kind = "ELECTION"
	// KindCoordinator announces a new coordinator; no reply body
	KindCoordinator Kind = "COORDINATOR"
	// KindReplicate carries an encrypted record
	KindReplicate Kind = "REPLICATE"
	// KindSnapshot returns a diagnostic copy of the record
	KindSnapshot Kind = "SNAPSHOT"
	// KindStartElection forces an election from the operator side
	KindStartElection Kind = "START_ELECTION"
	// KindAlert appends a message to the node's alert log
	KindAlert Kind = "ALERT"
	// KindTimestamp merges a peer supplied Lamport time
	KindTimestamp Kind = "TIMESTAMP"
)

// Kinds lists every request variant the dispatcher accepts
var Kinds = []Kind{
	KindGetData, KindHeartbeat, KindPing, KindElection, KindCoordinator,
	KindReplicate, KindSnapshot, KindStartElection, KindAlert, KindTimestamp,
}

// Bare text replies
const (
	ReplyPong  = "PONG"
	ReplyAlive = "ALIVE"
)

// Status values carried in StatusResponse
const (
	StatusAlive            = "ALIVE"
	StatusAck              = "ACK"
	StatusNack             = "NACK"
	StatusError            = "ERROR"
	StatusElectionStarted  = "election_started"
	StatusAlertReceived    = "alert_received"
	StatusTimestampUpdated = "timestamp_updated"
)

// ErrorInvalidRequest is the error string returned for anything unrecognized
const ErrorInvalidRequest = "invalid_request"

// DataResponse answers GET_DATA
type DataResponse struct {
	SensorID      uint64                  `json:"sensor_id"`
	Data          map[string]any          `json:"data"`
	Timestamp     uint64                  `json:"timestamp"`
	IsCoordinator bool                    `json:"is_coordinator"`
	Coordinator   *cluster.CoordinatorRef `json:"coordinator"`
	Version       uint64                  `json:"version"`
}

// HeartbeatResponse answers HEARTBEAT
type HeartbeatResponse struct {
	Status    string `json:"status"`
	Timestamp uint64 `json:"timestamp"`
}

// SnapshotResponse answers SNAPSHOT
type SnapshotResponse struct {
	SnapshotID  string         `json:"snapshot_id"`
	SensorID    uint64         `json:"sensor_id"`
	Data        map[string]any `json:"data"`
	Timestamp   uint64         `json:"timestamp"`
	Version     uint64         `json:"version"`
	LastUpdated int64          `json:"last_updated"` // unix milliseconds
}

// StatusResponse answers REPLICATE, START_ELECTION, ALERT and TIMESTAMP
type StatusResponse struct {
	Status    string `json:"status"`
	Timestamp uint64 `json:"timestamp,omitempty"`
	Version   uint64 `json:"version,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ErrorResponse answers any request that could not be served
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
