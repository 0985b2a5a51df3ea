// Package tls builds the server TLS configuration for the admin endpoint,
// from certificate files or a generated self-signed certificate.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"
)

// Errors
var (
	ErrNoCertificate      = errors.New("TLS enabled but no certificate provided and auto-generation disabled")
	ErrInvalidPEM         = errors.New("failed to parse certificate PEM")
	ErrCertificateExpired = errors.New("certificate has expired")
	ErrCertificateFuture  = errors.New("certificate is not yet valid")
)

// Validate reports configuration that ServerConfig would reject
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("cert_file and key_file must be set together")
	}
	if c.CertFile == "" && !c.AutoGenerate {
		return ErrNoCertificate
	}
	if c.AutoGenerate && c.ValidFor <= 0 {
		return fmt.Errorf("valid_for must be positive for generated certificates")
	}
	if _, err := parseVersion(c.MinVersion); err != nil {
		return err
	}
	return nil
}

// ServerConfig loads or generates the certificate. It returns nil when TLS
// is disabled. With AutoGenerate, configured certificate files that do not
// exist yet are generated and saved, so restarts keep serving the same
// certificate. A certificate file outside its validity period is rejected.
func ServerConfig(c Config) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var (
		cert tls.Certificate
		err  error
	)
	if c.CertFile != "" {
		if c.AutoGenerate && !exists(c.CertFile) && !exists(c.KeyFile) {
			if err := GenerateAndSave(c, c.CertFile, c.KeyFile); err != nil {
				return nil, err
			}
		}
		if err := VerifyCertificate(c.CertFile); err != nil {
			return nil, fmt.Errorf("%s: %w", c.CertFile, err)
		}
		cert, err = tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
	} else {
		cert, err = GenerateSelfSigned(c)
		if err != nil {
			return nil, err
		}
	}

	minVersion, _ := parseVersion(c.MinVersion)
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
		CipherSuites: SecureCipherSuites(),
	}, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func parseVersion(v string) (uint16, error) {
	switch v {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported min_version %q", v)
	}
}

// LoadCertificateInfo returns metadata of the first certificate in a PEM file
func LoadCertificateInfo(certFile string) (*CertificateInfo, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return Inspect(cert), nil
}

// Inspect summarizes a parsed certificate
func Inspect(cert *x509.Certificate) *CertificateInfo {
	info := &CertificateInfo{
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		SerialNumber: cert.SerialNumber.String(),
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		DNSNames:     cert.DNSNames,
		IsCA:         cert.IsCA,
	}
	for _, ip := range cert.IPAddresses {
		info.IPAddresses = append(info.IPAddresses, ip.String())
	}
	return info
}

// VerifyCertificate checks a certificate file is currently valid
func VerifyCertificate(certFile string) error {
	info, err := LoadCertificateInfo(certFile)
	if err != nil {
		return err
	}
	now := time.Now()
	if now.Before(info.NotBefore) {
		return ErrCertificateFuture
	}
	if info.IsExpired() {
		return ErrCertificateExpired
	}
	return nil
}
