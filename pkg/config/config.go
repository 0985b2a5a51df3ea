// Package config assembles a node's configuration from defaults, an
// optional YAML file and SENSOR_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/encryption"
	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/replication"
	sensortls "github.com/dd0wney/cluso-sensornet/pkg/tls"
	"github.com/dd0wney/cluso-sensornet/pkg/transport"
	"github.com/dd0wney/cluso-sensornet/pkg/validation"
)

// Config holds everything a sensor node needs to start
type Config struct {
	// Identity and endpoints. Empty listen addresses fall back to the
	// node's roster entry.
	NodeID       uint64                   `yaml:"node_id"`
	DataAddr     string                   `yaml:"data_addr"`
	ElectionAddr string                   `yaml:"election_addr"`
	Peers        []cluster.PeerDescriptor `yaml:"peers" validate:"required,min=1,unique=ID"`

	// Carrier and confidentiality
	Transport string `yaml:"transport" validate:"oneof=tcp nng zmq"`
	Key       string `yaml:"key"`

	// Timing
	ProbeTimeout        time.Duration `yaml:"probe_timeout"`
	SettleWindow        time.Duration `yaml:"settle_window"`
	DetectorInterval    time.Duration `yaml:"detector_interval"`
	NotifyTimeout       time.Duration `yaml:"notify_timeout"`
	StartupDelay        time.Duration `yaml:"startup_delay"`
	ReplicationInterval time.Duration `yaml:"replication_interval"`
	MutationInterval    time.Duration `yaml:"mutation_interval"`
	SendTimeout         time.Duration `yaml:"send_timeout"`

	// Operations surface
	AdminAddr string           `yaml:"admin_addr"` // empty disables /health, /ready, /metrics, /status
	AdminTLS  sensortls.Config `yaml:"admin_tls"`
	LogLevel  string           `yaml:"log_level"`
	LogFormat string           `yaml:"log_format" validate:"oneof=json text"`

	// Alerts kept for /alerts and the status report
	AlertLogSize int `yaml:"alert_log_size"`

	// Seed for the reading generator; 0 picks one from the node id and clock
	Seed uint64 `yaml:"seed"`
}

// DefaultAlertLogSize is the number of alerts a node retains
const DefaultAlertLogSize = 256

// Levels accepted by LogLevel, compared case-insensitively
var logLevels = []string{"DEBUG", "INFO", "WARN", "WARNING", "ERROR"}

// Default returns the configuration of sensor 1 in the default three node layout
func Default() *Config {
	cc := cluster.DefaultClusterConfig()
	rc := replication.DefaultReplicationConfig()
	return &Config{
		NodeID:              1,
		Peers:               cluster.DefaultRoster(),
		Transport:           string(transport.KindTCP),
		Key:                 encryption.DevKeyMaterial,
		ProbeTimeout:        cc.ProbeTimeout,
		SettleWindow:        cc.SettleWindow,
		DetectorInterval:    cc.DetectorInterval,
		NotifyTimeout:       cc.NotifyTimeout,
		StartupDelay:        cc.StartupDelay,
		ReplicationInterval: rc.Interval,
		MutationInterval:    5 * time.Second,
		SendTimeout:         rc.SendTimeout,
		AdminTLS:            sensortls.DefaultConfig(),
		LogLevel:            "INFO",
		LogFormat:           string(logging.FormatJSON),
		AlertLogSize:        DefaultAlertLogSize,
	}
}

// Load builds the configuration: defaults, then path (if not empty), then
// the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges a YAML file into c. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LookupFunc matches os.LookupEnv
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from SENSOR_* variables and LOG_LEVEL
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	toggle := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	num := func(key string, dst *uint64) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	num("SENSOR_ID", &c.NodeID)
	str("SENSOR_DATA_ADDR", &c.DataAddr)
	str("SENSOR_ELECTION_ADDR", &c.ElectionAddr)
	if v, ok := lookup("SENSOR_PEERS"); ok && v != "" {
		peers, err := cluster.ParseRoster(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SENSOR_PEERS: %w", err))
		} else {
			c.Peers = peers
		}
	}
	str("SENSOR_TRANSPORT", &c.Transport)
	str("SENSOR_KEY", &c.Key)
	dur("SENSOR_PROBE_TIMEOUT", &c.ProbeTimeout)
	dur("SENSOR_SETTLE_WINDOW", &c.SettleWindow)
	dur("SENSOR_DETECTOR_INTERVAL", &c.DetectorInterval)
	dur("SENSOR_NOTIFY_TIMEOUT", &c.NotifyTimeout)
	dur("SENSOR_STARTUP_DELAY", &c.StartupDelay)
	dur("SENSOR_REPLICATION_INTERVAL", &c.ReplicationInterval)
	dur("SENSOR_MUTATION_INTERVAL", &c.MutationInterval)
	dur("SENSOR_SEND_TIMEOUT", &c.SendTimeout)
	str("SENSOR_ADMIN_ADDR", &c.AdminAddr)
	toggle("SENSOR_ADMIN_TLS", &c.AdminTLS.Enabled)
	str("SENSOR_ADMIN_TLS_CERT", &c.AdminTLS.CertFile)
	str("SENSOR_ADMIN_TLS_KEY", &c.AdminTLS.KeyFile)
	str("SENSOR_LOG_FORMAT", &c.LogFormat)
	str("LOG_LEVEL", &c.LogLevel)
	num("SENSOR_SEED", &c.Seed)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", validation.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate checks field tags, then cross-field rules
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", validation.ErrInvalidConfig, err)
	}

	cc := c.ClusterConfig()
	return validation.NewConfigValidator("Config").
		RequiredID("NodeID", c.NodeID).
		Required("Key", c.Key).
		Custom("Peers", func() error {
			_, err := cluster.NewRoster(c.NodeID, c.Peers)
			return err
		}).
		When(c.DataAddr != "", func(v *validation.ConfigValidator) {
			v.HostPort("DataAddr", c.DataAddr)
		}).
		When(c.ElectionAddr != "", func(v *validation.ConfigValidator) {
			v.HostPort("ElectionAddr", c.ElectionAddr)
		}).
		When(c.AdminAddr != "", func(v *validation.ConfigValidator) {
			v.HostPort("AdminAddr", c.AdminAddr)
		}).
		Custom("AdminTLS", c.AdminTLS.Validate).
		Custom("Timing", cc.Validate).
		Custom("Replication", c.ReplicationConfig().Validate).
		RequiredDuration("MutationInterval", c.MutationInterval).
		When(c.LogLevel != "", func(v *validation.ConfigValidator) {
			v.OneOf("LogLevel", strings.ToUpper(c.LogLevel), logLevels)
		}).
		Positive("AlertLogSize", c.AlertLogSize).
		Validate()
}

// ClusterConfig returns the election and detector timing
func (c *Config) ClusterConfig() cluster.ClusterConfig {
	return cluster.ClusterConfig{
		NodeID:           c.NodeID,
		ProbeTimeout:     c.ProbeTimeout,
		DetectorInterval: c.DetectorInterval,
		SettleWindow:     c.SettleWindow,
		NotifyTimeout:    c.NotifyTimeout,
		StartupDelay:     c.StartupDelay,
	}
}

// ReplicationConfig returns the replication timing
func (c *Config) ReplicationConfig() replication.ReplicationConfig {
	return replication.ReplicationConfig{
		Interval:    c.ReplicationInterval,
		SendTimeout: c.SendTimeout,
	}
}

// Self returns this node's roster entry
func (c *Config) Self() (cluster.PeerDescriptor, bool) {
	for _, p := range c.Peers {
		if p.ID == c.NodeID {
			return p, true
		}
	}
	return cluster.PeerDescriptor{}, false
}

// ListenAddrs returns the data and election addresses to bind
func (c *Config) ListenAddrs() (data, election string) {
	self, _ := c.Self()
	return validation.DefaultOr(c.DataAddr, self.Addr), validation.DefaultOr(c.ElectionAddr, self.ElectionAddr)
}

// Logger builds the logger described by LogLevel and LogFormat
func (c *Config) Logger() logging.Logger {
	return logging.New(os.Stderr, logging.ParseLevel(c.LogLevel), logging.Format(c.LogFormat))
}
