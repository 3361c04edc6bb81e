// Package metrics exports chat relay metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes recorded by RecordTurn.
const (
	OutcomeCompleted     = "completed"
	OutcomeProviderError = "provider_error"
	OutcomeInvalid       = "invalid"
	OutcomeNotFound      = "not_found"
	OutcomeInternalError = "internal_error"
)

// Title sources recorded by RecordTitle.
const (
	TitleSourceModel    = "model"
	TitleSourceFallback = "fallback"
)

// Exporter owns its registry so tests and multiple servers never collide on
// the global default. All Record methods are safe on a nil *Exporter.
type Exporter struct {
	registry *prometheus.Registry

	turns         *prometheus.CounterVec
	fragments     prometheus.Counter
	titles        *prometheus.CounterVec
	turnDuration  prometheus.Histogram
	activeStreams prometheus.Gauge
}

type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for the turn duration histogram (in seconds)
	LatencyBuckets []float64
}

func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}
}

func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns by terminal outcome",
		},
		[]string{"outcome"},
	)

	e.fragments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "fragments_total",
			Help:      "Reply fragments relayed to clients",
		},
	)

	e.titles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "titles_total",
			Help:      "Conversation titles derived, by source",
		},
		[]string{"source"},
	)

	e.turnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a chat turn from request to terminal event",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "active_streams",
			Help:      "Chat streams currently open",
		},
	)

	registry.MustRegister(e.turns, e.fragments, e.titles, e.turnDuration, e.activeStreams)
	return e
}

func (e *Exporter) RecordTurn(outcome string, elapsed time.Duration) {
	if e == nil {
		return
	}
	e.turns.WithLabelValues(outcome).Inc()
	e.turnDuration.Observe(elapsed.Seconds())
}

func (e *Exporter) RecordFragment() {
	if e == nil {
		return
	}
	e.fragments.Inc()
}

func (e *Exporter) RecordTitle(source string) {
	if e == nil {
		return
	}
	e.titles.WithLabelValues(source).Inc()
}

// StreamOpened increments the open stream gauge and returns the matching decrement.
func (e *Exporter) StreamOpened() func() {
	if e == nil {
		return func() {}
	}
	e.activeStreams.Inc()
	return e.activeStreams.Dec
}

// Handler serves the exporter's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
