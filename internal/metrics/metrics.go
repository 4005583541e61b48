package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

// Metrics groups the collectors of one server instance. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	activeWorkspaces prometheus.Gauge
	encoderAvailable prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		activeWorkspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workspaces_active",
			Help:      "Request workspaces currently on disk.",
		}),
		encoderAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "encoder_available",
			Help:      "1 when the last encoder probe succeeded.",
		}),
	}
	reg.MustRegister(
		m.requests,
		m.stageDuration,
		m.activeWorkspaces,
		m.encoderAvailable,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveStage records the time since start for the named stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) WorkspaceAcquired() {
	if m == nil {
		return
	}
	m.activeWorkspaces.Inc()
}

func (m *Metrics) WorkspaceReleased() {
	if m == nil {
		return
	}
	m.activeWorkspaces.Dec()
}

func (m *Metrics) EncoderAvailable(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.encoderAvailable.Set(1)
		return
	}
	m.encoderAvailable.Set(0)
}
