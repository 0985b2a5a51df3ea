package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-sensornet/pkg/validation"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 3*time.Second, cfg.SettleWindow)
	assert.Equal(t, 10*time.Second, cfg.DetectorInterval)
	assert.Equal(t, 15*time.Second, cfg.ReplicationInterval)
	assert.Equal(t, 5*time.Second, cfg.MutationInterval)
	assert.Len(t, cfg.Peers, 3)

	data, election := cfg.ListenAddrs()
	assert.Equal(t, "localhost:5001", data)
	assert.Equal(t, "localhost:6001", election)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
node_id: 2
transport: nng
settle_window: 500ms
peers:
  - id: 1
    address: 10.0.0.1:5001
    election_address: 10.0.0.1:6001
  - id: 2
    address: 10.0.0.2:5001
    election_address: 10.0.0.2:6001
`)

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint64(2), cfg.NodeID)
	assert.Equal(t, "nng", cfg.Transport)
	assert.Equal(t, 500*time.Millisecond, cfg.SettleWindow)
	assert.Len(t, cfg.Peers, 2)
	// Untouched keys keep their defaults
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)

	self, ok := cfg.Self()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2:5001", self.Addr)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "node_id: 1\nquorum_fraction: 0.75\n")
	assert.Error(t, Default().LoadFile(path))
}

func TestLoadFileEmpty(t *testing.T) {
	path := writeFile(t, "")
	assert.NoError(t, Default().LoadFile(path))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SENSOR_ID":                "3",
		"SENSOR_DATA_ADDR":         ":7003",
		"SENSOR_PEERS":             "1=a:5001/a:6001,3=c:5003/c:6003",
		"SENSOR_PROBE_TIMEOUT":     "750ms",
		"SENSOR_DETECTOR_INTERVAL": "4s",
		"SENSOR_TRANSPORT":         "zmq",
		"SENSOR_KEY":               "fleet-secret",
		"SENSOR_ADMIN_TLS":         "true",
		"LOG_LEVEL":                "debug",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint64(3), cfg.NodeID)
	assert.Equal(t, 750*time.Millisecond, cfg.ProbeTimeout)
	assert.Equal(t, 4*time.Second, cfg.DetectorInterval)
	assert.Equal(t, "zmq", cfg.Transport)
	assert.Equal(t, "fleet-secret", cfg.Key)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.AdminTLS.Enabled)
	assert.True(t, cfg.AdminTLS.AutoGenerate, "file and env merge into the default TLS settings")

	data, election := cfg.ListenAddrs()
	assert.Equal(t, ":7003", data)
	assert.Equal(t, "c:6003", election)
}

func TestApplyEnvErrors(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SENSOR_ID":            "three",
		"SENSOR_SETTLE_WINDOW": "soon",
		"SENSOR_PEERS":         "1=a",
		"SENSOR_ADMIN_TLS":     "maybe",
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, validation.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "SENSOR_ID")
	assert.Contains(t, err.Error(), "SENSOR_SETTLE_WINDOW")
	assert.Contains(t, err.Error(), "SENSOR_PEERS")
	assert.Contains(t, err.Error(), "SENSOR_ADMIN_TLS")
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "node_id: 2\n")
	t.Setenv("SENSOR_ID", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cfg.NodeID, "environment overrides the file")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero node id", func(c *Config) { c.NodeID = 0 }},
		{"node not in roster", func(c *Config) { c.NodeID = 9 }},
		{"empty roster", func(c *Config) { c.Peers = nil }},
		{"duplicate ids", func(c *Config) { c.Peers = append(c.Peers, c.Peers[0]) }},
		{"unknown transport", func(c *Config) { c.Transport = "udp" }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
		{"empty key", func(c *Config) { c.Key = "" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"zero alert log size", func(c *Config) { c.AlertLogSize = 0 }},
		{"detector faster than probe", func(c *Config) { c.DetectorInterval = c.ProbeTimeout }},
		{"zero settle window", func(c *Config) { c.SettleWindow = 0 }},
		{"zero mutation interval", func(c *Config) { c.MutationInterval = 0 }},
		{"replication faster than send", func(c *Config) { c.ReplicationInterval = time.Second }},
		{"bad admin address", func(c *Config) { c.AdminAddr = "9100" }},
		{"bad data address", func(c *Config) { c.DataAddr = "localhost" }},
		{"admin TLS without certificate", func(c *Config) { c.AdminTLS.Enabled = true; c.AdminTLS.AutoGenerate = false }},
		{"admin TLS bad version", func(c *Config) { c.AdminTLS.MinVersion = "1.1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, validation.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.NodeID = 2

	cc := cfg.ClusterConfig()
	assert.Equal(t, uint64(2), cc.NodeID)
	assert.Equal(t, cfg.SettleWindow, cc.SettleWindow)
	assert.NoError(t, cc.Validate())

	rc := cfg.ReplicationConfig()
	assert.Equal(t, cfg.ReplicationInterval, rc.Interval)
	assert.Equal(t, cfg.SendTimeout, rc.SendTimeout)
}
