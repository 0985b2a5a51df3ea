package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func enabledConfig() Config {
	c := DefaultConfig()
	c.Enabled = true
	return c
}

func TestDisabledReturnsNil(t *testing.T) {
	cfg, err := ServerConfig(DefaultConfig())
	if err != nil {
		t.Fatalf("ServerConfig failed: %v", err)
	}
	if cfg != nil {
		t.Error("Expected nil config when TLS is disabled")
	}
}

func TestAutoGenerated(t *testing.T) {
	cfg, err := ServerConfig(enabledConfig())
	if err != nil {
		t.Fatalf("ServerConfig failed: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("Expected 1 certificate, got %d", len(cfg.Certificates))
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
	}

	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	if err != nil {
		t.Fatalf("Failed to parse generated certificate: %v", err)
	}
	info := Inspect(leaf)
	if len(info.DNSNames) != 1 || info.DNSNames[0] != "localhost" {
		t.Errorf("Unexpected DNS names: %v", info.DNSNames)
	}
	if len(info.IPAddresses) != 1 || info.IPAddresses[0] != "127.0.0.1" {
		t.Errorf("Unexpected IP addresses: %v", info.IPAddresses)
	}
	if info.IsExpired() || info.ExpiresIn() < 364*24*time.Hour {
		t.Errorf("Unexpected validity: expires in %v", info.ExpiresIn())
	}
}

func TestMinVersion13(t *testing.T) {
	c := enabledConfig()
	c.MinVersion = "1.3"
	cfg, err := ServerConfig(c)
	if err != nil {
		t.Fatalf("ServerConfig failed: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %x, want TLS 1.3", cfg.MinVersion)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled ignores the rest", func(c *Config) { c.Enabled = false; c.MinVersion = "0.9" }, false},
		{"auto generate", func(c *Config) {}, false},
		{"no source", func(c *Config) { c.AutoGenerate = false }, true},
		{"cert without key", func(c *Config) { c.CertFile = "cert.pem" }, true},
		{"zero validity", func(c *Config) { c.ValidFor = 0 }, true},
		{"bad version", func(c *Config) { c.MinVersion = "1.0" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := enabledConfig()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	c := enabledConfig()
	c.AutoGenerate = false
	if err := c.Validate(); !errors.Is(err, ErrNoCertificate) {
		t.Errorf("Expected ErrNoCertificate, got %v", err)
	}
}

func TestGenerateAndLoadFiles(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "certs", "admin.pem")
	keyFile := filepath.Join(dir, "certs", "admin.key")

	if err := GenerateAndSave(enabledConfig(), certFile, keyFile); err != nil {
		t.Fatalf("GenerateAndSave failed: %v", err)
	}

	st, err := os.Stat(keyFile)
	if err != nil {
		t.Fatalf("Key file missing: %v", err)
	}
	if st.Mode().Perm() != 0600 {
		t.Errorf("Key file mode = %v, want 0600", st.Mode().Perm())
	}

	if err := VerifyCertificate(certFile); err != nil {
		t.Errorf("VerifyCertificate failed: %v", err)
	}

	c := enabledConfig()
	c.AutoGenerate = false
	c.CertFile, c.KeyFile = certFile, keyFile
	cfg, err := ServerConfig(c)
	if err != nil {
		t.Fatalf("ServerConfig from files failed: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Expected 1 certificate, got %d", len(cfg.Certificates))
	}
}

func TestLoadCertificateInfoErrors(t *testing.T) {
	if _, err := LoadCertificateInfo(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(bad, []byte("not pem"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCertificateInfo(bad); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("Expected ErrInvalidPEM, got %v", err)
	}
}

func TestServerConfigPersistsGenerated(t *testing.T) {
	dir := t.TempDir()
	c := enabledConfig()
	c.CertFile = filepath.Join(dir, "admin.pem")
	c.KeyFile = filepath.Join(dir, "admin.key")

	first, err := ServerConfig(c)
	if err != nil {
		t.Fatalf("ServerConfig failed: %v", err)
	}
	if _, err := os.Stat(c.CertFile); err != nil {
		t.Fatalf("Expected generated certificate on disk: %v", err)
	}

	second, err := ServerConfig(c)
	if err != nil {
		t.Fatalf("Second ServerConfig failed: %v", err)
	}
	a := first.Certificates[0].Certificate[0]
	b := second.Certificates[0].Certificate[0]
	if string(a) != string(b) {
		t.Error("Restart should reuse the saved certificate")
	}
}

func TestServerConfigRejectsExpired(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "old.pem")
	keyFile := filepath.Join(dir, "old.key")

	short := enabledConfig()
	short.ValidFor = time.Millisecond
	if err := GenerateAndSave(short, certFile, keyFile); err != nil {
		t.Fatalf("GenerateAndSave failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := VerifyCertificate(certFile); !errors.Is(err, ErrCertificateExpired) {
		t.Errorf("VerifyCertificate = %v, want ErrCertificateExpired", err)
	}

	c := enabledConfig()
	c.AutoGenerate = false
	c.CertFile, c.KeyFile = certFile, keyFile
	if _, err := ServerConfig(c); !errors.Is(err, ErrCertificateExpired) {
		t.Errorf("ServerConfig = %v, want ErrCertificateExpired", err)
	}
}
