package replication

import "errors"

// Replication errors
var (
	// ErrStaleWrite rejects a record whose version is not strictly greater
	// than the local one. It is answered with NACK, never treated as a fault.
	ErrStaleWrite = errors.New("stale write: version not newer than local record")
	// ErrConfidentiality wraps decryption and authentication failures
	ErrConfidentiality = errors.New("record failed to decrypt")
	// ErrMalformedRecord covers payloads that decrypt but do not decode
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInvalidPayload rejects a decoded record its payload check refuses
	ErrInvalidPayload = errors.New("invalid record payload")
)
