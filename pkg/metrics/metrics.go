package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized.
// Nodes sharing a process (tests, local demos) each take their own registry.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initNodeMetrics()
	r.initClusterMetrics()
	r.initDetectorMetrics()
	r.initReplicationMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one dispatched wire request
func (r *Registry) RecordRequest(kind, result string, duration time.Duration) {
	r.RequestsTotal.WithLabelValues(kind, result).Inc()
	r.RequestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordElection records the outcome of one election run
func (r *Registry) RecordElection(result string, duration time.Duration) {
	r.ClusterElectionsTotal.WithLabelValues(result).Inc()
	if duration > 0 {
		r.ClusterElectionDuration.Observe(duration.Seconds())
	}
}

// SetCoordinator publishes the current coordinator and this node's role
func (r *Registry) SetCoordinator(coordinatorID uint64, isSelf bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ClusterCoordinatorID.Set(float64(coordinatorID))
	r.ClusterRole.WithLabelValues("coordinator").Set(0)
	r.ClusterRole.WithLabelValues("follower").Set(0)
	if isSelf {
		r.ClusterRole.WithLabelValues("coordinator").Set(1)
	} else {
		r.ClusterRole.WithLabelValues("follower").Set(1)
	}
}

// UpdateMembership publishes roster size and reachable peer count
func (r *Registry) UpdateMembership(total, online int) {
	r.ClusterPeersTotal.Set(float64(total))
	r.ClusterPeersOnline.Set(float64(online))
}

// RecordReplicationRound records one replication push
func (r *Registry) RecordReplicationRound(success bool, version uint64) {
	result := "quorum_failed"
	if success {
		result = "success"
	}
	r.ReplicationRoundsTotal.WithLabelValues(result).Inc()
	r.ReplicationRecordVersion.Set(float64(version))
}

// UpdateSystemMetrics refreshes process level gauges
func (r *Registry) UpdateSystemMetrics(started time.Time) {
	r.UptimeSeconds.Set(time.Since(started).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
}
