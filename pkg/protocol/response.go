package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Marshal encodes a response. Response types only hold JSON-safe values,
// so a failure falls back to an ErrorResponse rather than an empty reply.
func Marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(ErrorResponse{Error: "internal_error", Detail: err.Error()})
	}
	return data
}

// InvalidRequest builds the reply for a request that failed to parse
func InvalidRequest(err error) []byte {
	resp := ErrorResponse{Error: ErrorInvalidRequest}
	if err != nil {
		resp.Detail = err.Error()
	}
	return Marshal(resp)
}

// Decode unmarshals a JSON response into v. An error object from the peer
// is returned as ErrRemote.
func Decode(raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return fmt.Errorf("%w: expected JSON object, got %q", ErrProtocol, truncate(raw))
	}

	var probe struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if probe.Error != "" {
		if probe.Detail != "" {
			return fmt.Errorf("%w: %s: %s", ErrRemote, probe.Error, probe.Detail)
		}
		return fmt.Errorf("%w: %s", ErrRemote, probe.Error)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return nil
}

// ExpectText checks a bare text reply such as PONG or ALIVE
func ExpectText(raw []byte, want string) error {
	got := strings.TrimSpace(string(raw))
	if got != want {
		return fmt.Errorf("%w: expected %s, got %q", ErrProtocol, want, truncate(raw))
	}
	return nil
}

func truncate(raw []byte) string {
	const limit = 64
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
