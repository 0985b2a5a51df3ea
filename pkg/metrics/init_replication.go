package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReplicationMetrics() {
	r.ReplicationRoundsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensornet_replication_rounds_total",
			Help: "Total number of replication rounds run by the coordinator",
		},
		[]string{"result"}, // success, quorum_failed
	)

	r.ReplicationRepliesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensornet_replication_replies_total",
			Help: "Replies received for REPLICATE requests",
		},
		[]string{"status"}, // ACK, NACK, ERROR, unreachable
	)

	r.ReplicationAppliesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensornet_replication_applies_total",
			Help: "Incoming REPLICATE requests by outcome",
		},
		[]string{"result"}, // applied, stale, error
	)

	r.ReplicationRecordVersion = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sensornet_replication_record_version",
			Help: "Version of the local replicated record",
		},
	)

	r.ReplicationPayloadBytes = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sensornet_replication_payload_bytes",
			Help:    "Size of encoded REPLICATE payloads",
			Buckets: prometheus.ExponentialBuckets(64, 2, 8),
		},
	)
}
