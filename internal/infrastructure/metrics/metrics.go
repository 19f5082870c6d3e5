// Package metrics exposes Prometheus collectors for reconciliation, local
// persistence and document generation.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/reconcile"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/localstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace is used when the config leaves the namespace empty
const DefaultNamespace = "agency"

// Metrics holds every collector of the agent on its own registry
type Metrics struct {
	registry *prometheus.Registry

	PullsTotal       *prometheus.CounterVec
	PullDuration     *prometheus.HistogramVec
	PushesTotal      *prometheus.CounterVec
	StaleTotal       *prometheus.CounterVec
	PersistsTotal    *prometheus.CounterVec
	PersistDuration  prometheus.Histogram
	SnapshotBytes    prometheus.Gauge
	DocumentsTotal   *prometheus.CounterVec
	DocumentPages    *prometheus.HistogramVec
	DocumentDuration *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

var _ reconcile.Metrics = (*Metrics)(nil)

// New registers the collectors under namespace
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PullsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "pulls_total",
				Help:      "Pulls from the remote collection service by outcome",
			},
			[]string{"collection", "outcome"},
		),
		PullDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "pull_duration_seconds",
				Help:      "Duration of pulls that reached the remote service",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
			},
			[]string{"collection"},
		),
		PushesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "pushes_total",
				Help:      "Writes pushed to the remote service by operation and status",
			},
			[]string{"collection", "op", "status"},
		),
		StaleTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "stale_answers_total",
				Help:      "Remote answers discarded because a newer local write of the record exists",
			},
			[]string{"collection", "op"},
		),
		PersistsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "localstore",
				Name:      "persists_total",
				Help:      "Snapshot writes by status",
			},
			[]string{"status"},
		),
		PersistDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "localstore",
				Name:      "persist_duration_seconds",
				Help:      "Duration of snapshot writes",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),
		SnapshotBytes: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "localstore",
				Name:      "snapshot_bytes",
				Help:      "Size of the last snapshot written",
			},
		),
		DocumentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "documents",
				Name:      "generated_total",
				Help:      "Generated PDF documents by kind and status",
			},
			[]string{"kind", "status"},
		),
		DocumentPages: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "documents",
				Name:      "pages",
				Help:      "Pages per generated document",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"kind"},
		),
		DocumentDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "documents",
				Name:      "duration_seconds",
				Help:      "Time to paginate, render and store a document",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by method, route and status class",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// ObservePull implements reconcile.Metrics
func (m *Metrics) ObservePull(c shared.Collection, outcome reconcile.Outcome, elapsed time.Duration) {
	m.PullsTotal.WithLabelValues(c.String(), string(outcome)).Inc()
	switch outcome {
	case reconcile.OutcomeApplied, reconcile.OutcomeFailed, reconcile.OutcomeSuperseded:
		m.PullDuration.WithLabelValues(c.String()).Observe(elapsed.Seconds())
	}
}

// ObservePush implements reconcile.Metrics
func (m *Metrics) ObservePush(c shared.Collection, op string, err error) {
	m.PushesTotal.WithLabelValues(c.String(), op, status(err)).Inc()
}

// ObserveStale implements reconcile.Metrics
func (m *Metrics) ObserveStale(c shared.Collection, op string) {
	m.StaleTotal.WithLabelValues(c.String(), op).Inc()
}

// ObservePersist matches localstore.PersistHook
func (m *Metrics) ObservePersist(bytes int, elapsed time.Duration, err error) {
	switch {
	case err == nil:
		m.PersistsTotal.WithLabelValues("ok").Inc()
		m.SnapshotBytes.Set(float64(bytes))
	case errors.Is(err, localstore.ErrQuotaExceeded):
		m.PersistsTotal.WithLabelValues("quota").Inc()
	default:
		m.PersistsTotal.WithLabelValues("error").Inc()
	}
	m.PersistDuration.Observe(elapsed.Seconds())
}

// ObserveDocument records one document generation
func (m *Metrics) ObserveDocument(kind string, pages int, elapsed time.Duration, err error) {
	m.DocumentsTotal.WithLabelValues(kind, status(err)).Inc()
	if err != nil {
		return
	}
	m.DocumentPages.WithLabelValues(kind).Observe(float64(pages))
	m.DocumentDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveHTTP records one served request. route is the matched pattern, never
// the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, statusClass(code)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
