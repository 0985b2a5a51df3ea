package replication

import (
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/validation"
)

// ReplicationConfig holds replication configuration
type ReplicationConfig struct {
	Interval    time.Duration // Time between coordinator pushes (default: 15s)
	SendTimeout time.Duration // Per-peer REPLICATE timeout (default: 2s)
}

// DefaultReplicationConfig returns default configuration
func DefaultReplicationConfig() ReplicationConfig {
	return ReplicationConfig{
		Interval:    15 * time.Second,
		SendTimeout: 2 * time.Second,
	}
}

// Validate checks the replication configuration
func (c ReplicationConfig) Validate() error {
	return validation.NewConfigValidator("ReplicationConfig").
		RequiredDuration("Interval", c.Interval).
		RequiredDuration("SendTimeout", c.SendTimeout).
		GreaterDuration("Interval", c.Interval, "SendTimeout", c.SendTimeout).
		Validate()
}
