package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Request is one parsed wire request. Only the fields relevant to Kind are set.
type Request struct {
	Kind      Kind
	NodeID    uint64 // ELECTION sender (optional), COORDINATOR announced id
	Port      int    // COORDINATOR announced port
	Payload   string // REPLICATE ciphertext, ALERT message
	Timestamp uint64 // TIMESTAMP value
	Clock     uint64 // sender Lamport time, valid when HasClock
	HasClock  bool
}

// clockMarker separates an optional sender clock from the request body
const clockMarker = " @"

// MaxRequestSize bounds a single encoded request
const MaxRequestSize = 64 * 1024

// GetData builds a GET_DATA request
func GetData() Request { return Request{Kind: KindGetData} }

// Heartbeat builds a HEARTBEAT request
func Heartbeat() Request { return Request{Kind: KindHeartbeat} }

// Ping builds a PING request
func Ping() Request { return Request{Kind: KindPing} }

// Snapshot builds a SNAPSHOT request
func Snapshot() Request { return Request{Kind: KindSnapshot} }

// StartElection builds a START_ELECTION request
func StartElection() Request { return Request{Kind: KindStartElection} }

// Election builds an ELECTION request from sender
func Election(sender uint64) Request { return Request{Kind: KindElection, NodeID: sender} }

// Coordinator builds a COORDINATOR announcement
func Coordinator(id uint64, port int) Request {
	return Request{Kind: KindCoordinator, NodeID: id, Port: port}
}

// Replicate builds a REPLICATE request around an encoded record
func Replicate(encoded string) Request { return Request{Kind: KindReplicate, Payload: encoded} }

// Alert builds an ALERT request
func Alert(message string) Request { return Request{Kind: KindAlert, Payload: message} }

// Timestamp builds a TIMESTAMP request
func Timestamp(t uint64) Request { return Request{Kind: KindTimestamp, Timestamp: t} }

// WithClock returns a copy of r stamped with the sender's Lamport time
func (r Request) WithClock(t uint64) Request {
	r.Clock = t
	r.HasClock = true
	return r
}

// Encode renders the request in its text form
func (r Request) Encode() []byte {
	var sb strings.Builder
	switch r.Kind {
	case KindCoordinator:
		fmt.Fprintf(&sb, "%s %d %d", r.Kind, r.NodeID, r.Port)
	case KindElection:
		sb.WriteString(string(r.Kind))
		if r.NodeID != 0 {
			fmt.Fprintf(&sb, " %d", r.NodeID)
		}
	case KindReplicate, KindAlert:
		sb.WriteString(string(r.Kind))
		sb.WriteByte(':')
		sb.WriteString(r.Payload)
	case KindTimestamp:
		fmt.Fprintf(&sb, "%s:%d", r.Kind, r.Timestamp)
	default:
		sb.WriteString(string(r.Kind))
	}
	if r.HasClock {
		fmt.Fprintf(&sb, "%s%d", clockMarker, r.Clock)
	}
	return []byte(sb.String())
}

// String returns the encoded request
func (r Request) String() string {
	return string(r.Encode())
}

// ParseRequest decodes one text request. Unknown kinds yield
// ErrUnknownRequest, bad arguments ErrMalformed; both wrap ErrProtocol.
func ParseRequest(raw []byte) (Request, error) {
	if len(raw) > MaxRequestSize {
		return Request{}, fmt.Errorf("%w: request of %d bytes exceeds limit", ErrMalformed, len(raw))
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Request{}, fmt.Errorf("%w: empty request", ErrMalformed)
	}

	var req Request
	text, req.Clock, req.HasClock = splitClock(text)

	// Colon-delimited variants carry free-form payloads. An empty record is
	// still a REPLICATE; the receiver answers it with ERROR.
	if body, ok := strings.CutPrefix(text, string(KindReplicate)+":"); ok {
		req.Kind, req.Payload = KindReplicate, body
		return req, nil
	}
	if text == string(KindReplicate) {
		req.Kind = KindReplicate
		return req, nil
	}
	if body, ok := strings.CutPrefix(text, string(KindAlert)+":"); ok {
		if strings.TrimSpace(body) == "" {
			return Request{}, fmt.Errorf("%w: empty ALERT message", ErrMalformed)
		}
		req.Kind, req.Payload = KindAlert, body
		return req, nil
	}
	if body, ok := strings.CutPrefix(text, string(KindTimestamp)+":"); ok {
		t, err := strconv.ParseUint(strings.TrimSpace(body), 10, 64)
		if err != nil {
			return Request{}, fmt.Errorf("%w: bad TIMESTAMP value %q", ErrMalformed, body)
		}
		req.Kind, req.Timestamp = KindTimestamp, t
		return req, nil
	}

	fields := strings.Fields(text)
	req.Kind = Kind(fields[0])
	args := fields[1:]

	switch req.Kind {
	case KindGetData, KindHeartbeat, KindPing, KindSnapshot, KindStartElection:
		if len(args) != 0 {
			return Request{}, fmt.Errorf("%w: %s takes no arguments", ErrMalformed, req.Kind)
		}
	case KindElection:
		if len(args) > 1 {
			return Request{}, fmt.Errorf("%w: ELECTION takes at most a sender id", ErrMalformed)
		}
		if len(args) == 1 {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return Request{}, fmt.Errorf("%w: bad ELECTION sender %q", ErrMalformed, args[0])
			}
			req.NodeID = id
		}
	case KindCoordinator:
		if len(args) != 2 {
			return Request{}, fmt.Errorf("%w: COORDINATOR needs <id> <port>", ErrMalformed)
		}
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || id == 0 {
			return Request{}, fmt.Errorf("%w: bad COORDINATOR id %q", ErrMalformed, args[0])
		}
		port, err := strconv.Atoi(args[1])
		if err != nil || port < 0 || port > 65535 {
			return Request{}, fmt.Errorf("%w: bad COORDINATOR port %q", ErrMalformed, args[1])
		}
		req.NodeID, req.Port = id, port
	default:
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownRequest, fields[0])
	}

	return req, nil
}

// splitClock strips a trailing " @<n>" clock stamp
func splitClock(text string) (string, uint64, bool) {
	idx := strings.LastIndex(text, clockMarker)
	if idx < 0 {
		return text, 0, false
	}
	t, err := strconv.ParseUint(text[idx+len(clockMarker):], 10, 64)
	if err != nil {
		return text, 0, false
	}
	return strings.TrimSpace(text[:idx]), t, true
}
