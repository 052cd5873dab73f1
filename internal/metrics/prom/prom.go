// Package prom implements a Prometheus backend for the metrics package.
//
// Metrics are kept in a private registry that is exposed for scraping through
// Handler and, when a Pushgateway URL is configured, pushed on Flush. All
// Prometheus-specific dependencies stay in this package.
package prom

import (
	"fmt"
	"net/http"

	"sand/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Config configures the backend.
type Config struct {
	// Job is the Pushgateway "job" grouping key. Defaults to "sand".
	Job string
	// PushURL is the Pushgateway base URL, e.g. http://pushgateway:9091.
	// Empty disables pushing; the registry is still scrapeable.
	PushURL string
}

// Backend is a Prometheus implementation of metrics.Backend.
type Backend struct {
	cfg Config
	reg *prometheus.Registry

	runs         *prometheus.CounterVec
	runDuration  *prometheus.SummaryVec
	rows         *prometheus.CounterVec
	requests     *prometheus.CounterVec
	reqDuration  *prometheus.HistogramVec
	loaderTables *prometheus.CounterVec
	loaderRows   prometheus.Counter
}

// NewBackend builds the collectors and registers them, together with the Go
// runtime and process collectors, in a fresh registry.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Job == "" {
		cfg.Job = "sand"
	}
	b := &Backend{
		cfg: cfg,
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.TransformRuns,
			Help: "Transformation runs, partitioned by kind and request status.",
		}, []string{"kind", "status"}),
		runDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.TransformDuration,
			Help:       "Duration of transformation runs in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"kind", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.TransformRows,
			Help: "Rows processed by transformations, partitioned by kind and outcome.",
		}, []string{"kind", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.HTTPRequests,
			Help: "HTTP requests, partitioned by route and status code.",
		}, []string{"route", "status"}),
		reqDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.HTTPDuration,
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		loaderTables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.LoaderTables,
			Help: "Table files considered by the loader, partitioned by outcome.",
		}, []string{"outcome"}),
		loaderRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.LoaderRows,
			Help: "Rows stored by the loader.",
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"runs":          b.runs,
		"run duration":  b.runDuration,
		"rows":          b.rows,
		"requests":      b.requests,
		"request hist":  b.reqDuration,
		"loader tables": b.loaderTables,
		"loader rows":   b.loaderRows,
		"go":            collectors.NewGoCollector(),
		"process":       collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prom: register %s: %w", name, err)
		}
	}
	return b, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.reg, promhttp.HandlerOpts{Registry: b.reg})
}

// Registry exposes the underlying registry.
func (b *Backend) Registry() *prometheus.Registry { return b.reg }

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.TransformRuns:
		b.runs.WithLabelValues(labels["kind"], labels["status"]).Add(delta)
	case metrics.TransformRows:
		b.rows.WithLabelValues(labels["kind"], labels["outcome"]).Add(delta)
	case metrics.HTTPRequests:
		b.requests.WithLabelValues(labels["route"], labels["status"]).Add(delta)
	case metrics.LoaderTables:
		b.loaderTables.WithLabelValues(labels["outcome"]).Add(delta)
	case metrics.LoaderRows:
		b.loaderRows.Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.TransformDuration:
		b.runDuration.WithLabelValues(labels["kind"], labels["status"]).Observe(value)
	case metrics.HTTPDuration:
		b.reqDuration.WithLabelValues(labels["route"], labels["status"]).Observe(value)
	}
}

// Flush pushes the registry to the Pushgateway when one is configured.
func (b *Backend) Flush() error {
	if b.cfg.PushURL == "" {
		return nil
	}
	return push.New(b.cfg.PushURL, b.cfg.Job).Gatherer(b.reg).Push()
}
