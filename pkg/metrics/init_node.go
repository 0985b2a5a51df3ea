package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initNodeMetrics() {
	r.RequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensornet_requests_total",
			Help: "Total number of wire requests handled",
		},
		[]string{"kind", "result"}, // result: ok, error
	)

	r.RequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensornet_request_duration_seconds",
			Help:    "Wire request handling duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"kind"},
	)

	r.ClockTime = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sensornet_lamport_time",
			Help: "Current Lamport clock value",
		},
	)

	r.AlertsReceived = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "sensornet_alerts_received_total",
			Help: "Total number of ALERT messages received",
		},
	)
}
