package tls

import (
	"crypto/tls"
	"time"
)

// Config controls TLS on the node's admin HTTP endpoint
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"` // PEM certificate
	KeyFile  string `yaml:"key_file"`  // PEM private key

	// Self-signed certificate used when no files are given
	AutoGenerate bool          `yaml:"auto_generate"`
	Hosts        []string      `yaml:"hosts"`
	Organization string        `yaml:"organization"`
	ValidFor     time.Duration `yaml:"valid_for"`

	MinVersion string `yaml:"min_version" validate:"omitempty,oneof=1.2 1.3"`
}

// DefaultConfig returns a disabled configuration that, once enabled,
// serves a self-signed certificate for localhost
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		AutoGenerate: true,
		Hosts:        []string{"localhost", "127.0.0.1"},
		Organization: "Sensornet",
		ValidFor:     365 * 24 * time.Hour,
		MinVersion:   "1.2",
	}
}

// CertificateInfo holds certificate metadata
type CertificateInfo struct {
	Subject      string
	Issuer       string
	SerialNumber string
	NotBefore    time.Time
	NotAfter     time.Time
	DNSNames     []string
	IPAddresses  []string
	IsCA         bool
}

// IsExpired checks if the certificate has expired
func (ci *CertificateInfo) IsExpired() bool {
	return time.Now().After(ci.NotAfter)
}

// ExpiresIn returns the time until certificate expiration
func (ci *CertificateInfo) ExpiresIn() time.Duration {
	return time.Until(ci.NotAfter)
}

// SecureCipherSuites lists the TLS 1.2 suites allowed alongside TLS 1.3.
// TLS 1.3 suites are not configurable in crypto/tls.
func SecureCipherSuites() []uint16 {
	return []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	}
}
