package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for a sensor node
type Registry struct {
	// Request Metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ClockTime       prometheus.Gauge
	AlertsReceived  prometheus.Counter

	// Cluster Metrics
	ClusterPeersTotal       prometheus.Gauge
	ClusterPeersOnline      prometheus.Gauge
	ClusterElectionsTotal   *prometheus.CounterVec
	ClusterElectionDuration prometheus.Histogram
	ClusterCoordinatorID    prometheus.Gauge
	ClusterRole             *prometheus.GaugeVec

	// Failure Detector Metrics
	DetectorProbesTotal     *prometheus.CounterVec
	DetectorSuspicionsTotal prometheus.Counter
	DetectorAlertsTotal     prometheus.Counter

	// Replication Metrics
	ReplicationRoundsTotal   *prometheus.CounterVec
	ReplicationRepliesTotal  *prometheus.CounterVec
	ReplicationAppliesTotal  *prometheus.CounterVec
	ReplicationRecordVersion prometheus.Gauge
	ReplicationPayloadBytes  prometheus.Histogram

	// System Metrics
	UptimeSeconds prometheus.Gauge
	GoRoutines    prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)
