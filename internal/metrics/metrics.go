// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the transformation service.
//
// The package exposes a narrow interface (Backend) for counters and timing
// data, and a global, pluggable backend that defaults to a no-op, so
// recording is always safe even when nothing is configured. Concrete systems
// live in subpackages (prom, datadog) and are installed with SetBackend.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names.
const (
	TransformRuns     = "sand_transform_runs_total"
	TransformDuration = "sand_transform_duration_seconds"
	TransformRows     = "sand_transform_rows_total"
	HTTPRequests      = "sand_http_requests_total"
	HTTPDuration      = "sand_http_request_duration_seconds"
	LoaderTables      = "sand_loader_tables_total"
	LoaderRows        = "sand_loader_rows_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend and returns the one it replaced.
// Passing nil keeps the existing backend.
func SetBackend(b Backend) Backend {
	mu.Lock()
	defer mu.Unlock()
	prev := backend
	if b != nil {
		backend = b
	}
	return prev
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordTransform counts one transformation run and its duration. status is
// "success" or "failure" (request-level failure, not row failures).
func RecordTransform(kind, status string, d time.Duration) {
	lbls := Labels{"kind": kind, "status": status}
	b := current()
	b.IncCounter(TransformRuns, 1, lbls)
	b.ObserveHistogram(TransformDuration, d.Seconds(), lbls)
}

// RecordRows counts row outcomes ("ok", "failed") for a transformation kind.
func RecordRows(kind, outcome string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(TransformRows, float64(delta), Labels{"kind": kind, "outcome": outcome})
}

// RecordRequest counts one HTTP request by route pattern and status code.
func RecordRequest(route string, status int, d time.Duration) {
	lbls := Labels{"route": route, "status": strconv.Itoa(status)}
	b := current()
	b.IncCounter(HTTPRequests, 1, lbls)
	b.ObserveHistogram(HTTPDuration, d.Seconds(), lbls)
}

// RecordLoad counts one table considered by the loader. outcome is "loaded",
// "skipped" or "failed"; rows is only counted for loaded tables.
func RecordLoad(outcome string, rows int64) {
	b := current()
	b.IncCounter(LoaderTables, 1, Labels{"outcome": outcome})
	if outcome == "loaded" && rows > 0 {
		b.IncCounter(LoaderRows, float64(rows), Labels{})
	}
}
