// Package metrics exposes Prometheus collectors for the planner pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/ashureev/studyplan/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "studyplan"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	stageTotal      *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	gatewayTotal    *prometheus.CounterVec
	gatewayDuration prometheus.Histogram
	chatSockets     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Pipeline stage runs by stage and outcome kind.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency including the model call.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"stage"}),
		gatewayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_calls_total",
			Help:      "Model gateway calls by outcome kind.",
		}, []string{"outcome"}),
		gatewayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_call_duration_seconds",
			Help:      "Model gateway call latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		chatSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_sockets_active",
			Help:      "Open duplex chat connections.",
		}),
	}
	reg.MustRegister(m.stageTotal, m.stageDuration, m.gatewayTotal, m.gatewayDuration, m.chatSockets)
	return m
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return domain.KindOf(err)
}

// ObserveStage records one pipeline stage run.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageTotal.WithLabelValues(stage, outcome(err)).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveGateway records one model gateway call.
func (m *Metrics) ObserveGateway(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.gatewayTotal.WithLabelValues(outcome(err)).Inc()
	m.gatewayDuration.Observe(d.Seconds())
}

// SocketOpened increments the open chat socket gauge.
func (m *Metrics) SocketOpened() {
	if m == nil {
		return
	}
	m.chatSockets.Inc()
}

// SocketClosed decrements the open chat socket gauge.
func (m *Metrics) SocketClosed() {
	if m == nil {
		return
	}
	m.chatSockets.Dec()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
