package cluster

import (
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/validation"
)

// ClusterConfig defines timing for failure detection and Bully elections
type ClusterConfig struct {
	// Node identification
	NodeID uint64 // Unique, totally ordered node identifier

	// Failure detection
	ProbeTimeout     time.Duration // PING must be answered within this (default: 2s)
	DetectorInterval time.Duration // Time between detector cycles (default: 10s)

	// Election configuration
	SettleWindow  time.Duration // Wait after ELECTION sends for a higher node to win (default: 3s)
	NotifyTimeout time.Duration // Per-peer COORDINATOR and ALERT send timeout (default: 1s)
	StartupDelay  time.Duration // Delay before the startup election (default: 1s)
}

// DefaultClusterConfig returns the default timing used by every sensor
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		ProbeTimeout:     2 * time.Second,
		DetectorInterval: 10 * time.Second,
		SettleWindow:     3 * time.Second,
		NotifyTimeout:    1 * time.Second,
		StartupDelay:     1 * time.Second,
	}
}

// Validate checks if configuration is valid
func (c *ClusterConfig) Validate() error {
	return validation.NewConfigValidator("ClusterConfig").
		RequiredID("NodeID", c.NodeID).
		RequiredDuration("ProbeTimeout", c.ProbeTimeout).
		GreaterDuration("DetectorInterval", c.DetectorInterval, "ProbeTimeout", c.ProbeTimeout).
		RequiredDuration("SettleWindow", c.SettleWindow).
		RequiredDuration("NotifyTimeout", c.NotifyTimeout).
		MinDuration("StartupDelay", c.StartupDelay, 0).
		Validate()
}
