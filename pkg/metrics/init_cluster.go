package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initClusterMetrics() {
	r.ClusterPeersTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sensornet_cluster_peers_total",
			Help: "Number of nodes in the roster, including self",
		},
	)

	r.ClusterPeersOnline = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sensornet_cluster_peers_online",
			Help: "Number of peers that answered their last probe",
		},
	)

	r.ClusterElectionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensornet_cluster_elections_total",
			Help: "Total number of Bully election runs",
		},
		[]string{"result"}, // won, stood_down, skipped
	)

	r.ClusterElectionDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sensornet_cluster_election_duration_seconds",
			Help:    "Duration of election runs in seconds, settling window included",
			Buckets: []float64{0.01, 0.1, 0.5, 1.0, 3.0, 5.0, 10.0},
		},
	)

	r.ClusterCoordinatorID = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sensornet_cluster_coordinator_id",
			Help: "Node id of the coordinator this node recognizes (0 if none)",
		},
	)

	r.ClusterRole = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sensornet_cluster_role",
			Help: "Node role (1 for current role, 0 otherwise)",
		},
		[]string{"role"}, // coordinator, follower
	)
}

func (r *Registry) initDetectorMetrics() {
	r.DetectorProbesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensornet_detector_probes_total",
			Help: "Total number of liveness probes sent",
		},
		[]string{"result"}, // ok, failed
	)

	r.DetectorSuspicionsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "sensornet_detector_suspicions_total",
			Help: "Coordinator failures that triggered an election",
		},
	)

	r.DetectorAlertsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "sensornet_detector_alerts_total",
			Help: "Multiple-failure alerts broadcast by the coordinator",
		},
	)
}
