package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the classifier service's collectors.
type Metrics struct {
	classifications *prometheus.CounterVec
	duration        prometheus.Histogram
	wsConnections   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "witan_assist_classifications_total",
			Help: "Classified requests by resulting action",
		}, []string{"action"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "witan_assist_classify_duration_seconds",
			Help:    "Time to answer a classification request, including any configured delay",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "witan_assist_ws_connections",
			Help: "Open WebSocket connections",
		}),
	}
	reg.MustRegister(m.classifications, m.duration, m.wsConnections)
	return m
}

// ObserveClassification records one answered request.
func (m *Metrics) ObserveClassification(kind string, start time.Time) {
	m.classifications.WithLabelValues(kind).Inc()
	m.duration.Observe(time.Since(start).Seconds())
}
