package replication

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-sensornet/pkg/encryption"
)

// AssociatedData binds REPLICATE ciphertext to its purpose
const AssociatedData = "REPLICATE"

// recordWire is the JSON form of a Record
type recordWire struct {
	Payload     map[string]any `json:"payload"`
	Version     uint64         `json:"version"`
	LastUpdated int64          `json:"last_updated"` // unix milliseconds
}

// Codec turns records into the text carried by a REPLICATE request:
// JSON, snappy compressed, sealed with the cluster key, base64 encoded.
type Codec struct {
	sealer encryption.TextSealer
}

// NewCodec creates a codec sealing records with engine, bound to AssociatedData
func NewCodec(engine *encryption.Engine) *Codec {
	return NewCodecWithSealer(engine.WithAssociatedData(AssociatedData))
}

// NewCodecWithSealer creates a codec over any TextSealer
func NewCodecWithSealer(sealer encryption.TextSealer) *Codec {
	return &Codec{sealer: sealer}
}

// Encode seals a record
func (c *Codec) Encode(r Record) (string, error) {
	data, err := json.Marshal(recordWire{
		Payload:     r.Payload,
		Version:     r.Version,
		LastUpdated: r.LastUpdated.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	return c.sealer.EncryptString(snappy.Encode(nil, data))
}

// Decode opens a sealed record. Decryption failures wrap
// ErrConfidentiality, decoding failures ErrMalformedRecord.
func (c *Codec) Decode(encoded string) (Record, error) {
	if encoded == "" {
		return Record{}, fmt.Errorf("%w: empty record", ErrMalformedRecord)
	}
	compressed, err := c.sealer.DecryptString(encoded)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrConfidentiality, err)
	}

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if w.Payload == nil {
		return Record{}, fmt.Errorf("%w: missing payload", ErrMalformedRecord)
	}

	return Record{
		Payload:     w.Payload,
		Version:     w.Version,
		LastUpdated: time.UnixMilli(w.LastUpdated),
	}, nil
}
