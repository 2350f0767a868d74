package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores the Prometheus collectors used by the submission and retry
// flows.
type Metrics struct {
	registry *prometheus.Registry

	attemptsTotal        *prometheus.CounterVec
	attemptDuration      *prometheus.HistogramVec
	retriesScheduled     *prometheus.CounterVec
	terminalFailures     *prometheus.CounterVec
	submissionsCompleted *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "portal_engine",
				Name:      "attempts_total",
				Help:      "Portal automation attempts by portal type and outcome.",
			},
			[]string{"portal", "outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "portal_engine",
				Name:      "attempt_duration_seconds",
				Help:      "End-to-end duration of one portal automation attempt.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"portal"},
		),
		retriesScheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "portal_engine",
				Name:      "retries_scheduled_total",
				Help:      "Retries armed by the backoff engine, by portal type.",
			},
			[]string{"portal"},
		),
		terminalFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "portal_engine",
				Name:      "terminal_failures_total",
				Help:      "Submissions that reached a permanent FAILED state, by reason category.",
			},
			[]string{"portal", "category"},
		),
		submissionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "portal_engine",
				Name:      "submissions_completed_total",
				Help:      "Submissions confirmed by the portal.",
			},
			[]string{"portal"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.attemptsTotal,
		m.attemptDuration,
		m.retriesScheduled,
		m.terminalFailures,
		m.submissionsCompleted,
	)
	return m
}

func (m *Metrics) ObserveAttempt(portal, outcome string, seconds float64) {
	m.attemptsTotal.WithLabelValues(portal, outcome).Inc()
	m.attemptDuration.WithLabelValues(portal).Observe(seconds)
}

func (m *Metrics) RetryScheduled(portal string) {
	m.retriesScheduled.WithLabelValues(portal).Inc()
}

func (m *Metrics) TerminalFailure(portal, category string) {
	m.terminalFailures.WithLabelValues(portal, category).Inc()
}

func (m *Metrics) SubmissionCompleted(portal string) {
	m.submissionsCompleted.WithLabelValues(portal).Inc()
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
