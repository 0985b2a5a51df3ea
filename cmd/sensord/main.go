package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/config"
	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/metrics"
	"github.com/dd0wney/cluso-sensornet/pkg/node"
	"github.com/dd0wney/cluso-sensornet/pkg/transport"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	id := flag.Uint64("id", 0, "Sensor id (overrides config and SENSOR_ID)")
	peers := flag.String("peers", "", "Roster as id=data/election,... (overrides config)")
	carrier := flag.String("transport", "", "Transport: tcp, nng or zmq")
	adminAddr := flag.String("admin", "", "Admin HTTP address for /health, /metrics and /status")
	logLevel := flag.String("log-level", "", "Log level: DEBUG, INFO, WARN or ERROR")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags take precedence over file and environment
	if *id != 0 {
		cfg.NodeID = *id
	}
	if *peers != "" {
		roster, err := cluster.ParseRoster(*peers)
		if err != nil {
			log.Fatalf("Invalid -peers: %v", err)
		}
		cfg.Peers = roster
	}
	if *carrier != "" {
		cfg.Transport = *carrier
	}
	if *adminAddr != "" {
		cfg.AdminAddr = *adminAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := cfg.Logger()
	logging.SetDefaultLogger(logger)

	t, err := transport.New(transport.Kind(cfg.Transport), logger.With(logging.Component("transport")))
	if err != nil {
		fatal("failed to create transport", err)
	}

	registry := metrics.NewRegistry()
	n, err := node.New(cfg, t, node.WithLogger(logger), node.WithMetricsRegistry(registry))
	if err != nil {
		fatal("failed to create node", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		fatal("failed to start node", err)
	}

	var admin *http.Server
	if cfg.AdminAddr != "" {
		tlsConfig, err := adminTLS(cfg.AdminTLS, logger)
		if err != nil {
			fatal("failed to configure admin TLS", err)
		}
		admin = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           newAdminHandler(n, registry, logger),
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("admin server listening",
				logging.Endpoint(cfg.AdminAddr), logging.Bool("tls", tlsConfig != nil))
			var err error
			if tlsConfig != nil {
				// Certificates come from TLSConfig
				err = admin.ListenAndServeTLS("", "")
			} else {
				err = admin.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server failed", logging.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logging.Info("shutting down")

	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logging.Warn("admin server shutdown", logging.Error(err))
		}
	}
	if err := n.Stop(); err != nil {
		logging.Warn("node stop", logging.Error(err))
	}
}

// fatal reports err through the default logger and exits
func fatal(msg string, err error) {
	logging.ErrorLog(msg, logging.Error(err))
	os.Exit(1)
}
