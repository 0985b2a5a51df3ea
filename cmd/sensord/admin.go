package main

import (
	"crypto/tls"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/metrics"
	"github.com/dd0wney/cluso-sensornet/pkg/node"
	sensortls "github.com/dd0wney/cluso-sensornet/pkg/tls"
)

// certRenewWarning is how close to expiry a configured certificate is reported
const certRenewWarning = 30 * 24 * time.Hour

// newAdminHandler serves the operator endpoints of one node
func newAdminHandler(n *node.Node, registry *metrics.Registry, logger logging.Logger) http.Handler {
	hc := n.HealthChecker()

	mux := http.NewServeMux()
	mux.Handle("GET /health", hc.HTTPHandler())
	mux.Handle("GET /ready", hc.ReadinessHandler())
	mux.Handle("GET /live", hc.LivenessHandler())
	mux.Handle("GET /metrics", registry.Handler())
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, n.Status())
	})
	mux.HandleFunc("GET /clock", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, n.ClockReport())
	})
	mux.HandleFunc("DELETE /clock", func(w http.ResponseWriter, r *http.Request) {
		n.Clock().ClearEvents()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /alerts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, n.Alerts().List())
	})
	mux.HandleFunc("POST /election", func(w http.ResponseWriter, r *http.Request) {
		started := n.Election().StartElection()
		writeJSON(w, http.StatusAccepted, map[string]bool{"started": started})
	})

	return loggingMiddleware(logger, mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func loggingMiddleware(logger logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("admin request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Latency(time.Since(start)))
	})
}

// adminTLS builds the admin server TLS configuration, nil when disabled.
// A configured certificate file is reported with its expiry.
func adminTLS(c sensortls.Config, logger logging.Logger) (*tls.Config, error) {
	tlsConfig, err := sensortls.ServerConfig(c)
	if err != nil || tlsConfig == nil || c.CertFile == "" {
		return tlsConfig, err
	}

	info, err := sensortls.LoadCertificateInfo(c.CertFile)
	if err != nil {
		return nil, err
	}
	fields := []logging.Field{
		logging.String("cert_file", c.CertFile),
		logging.String("subject", info.Subject),
		logging.Duration("expires_in", info.ExpiresIn()),
	}
	if info.ExpiresIn() < certRenewWarning {
		logger.Warn("admin certificate expires soon", fields...)
	} else {
		logger.Info("admin certificate loaded", fields...)
	}
	return tlsConfig, nil
}
