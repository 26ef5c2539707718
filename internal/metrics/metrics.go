// Package metrics defines the minimal metrics surface the service depends
// on. Concrete backends (Datadog) live in subpackages; the core only ever
// sees Backend, so no vendor SDK leaks into pipeline code.
package metrics

// Labels are free-form metric dimensions (e.g. {"status": "ok"}).
type Labels map[string]string

// Backend receives metric observations.
//
// Implementations must be safe for concurrent use: ingestion and HTTP
// handlers emit from many goroutines.
type Backend interface {
	// IncCounter adds delta to a counter. Non-positive deltas are ignored.
	IncCounter(name string, delta float64, labels Labels)

	// ObserveHistogram records one sample. Negative values are ignored.
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits buffered observations. Safe to call at any time.
	Flush() error

	// Close stops background work and performs one final Flush.
	Close() error
}

// Metric names emitted by the service.
const (
	IngestTotal       = "analytics_ingest_total"
	IngestRows        = "analytics_ingest_rows"
	IngestDuration    = "analytics_ingest_duration_seconds"
	RetentionEvicted  = "analytics_retention_evictions_total"
	HTTPRequestsTotal = "analytics_http_requests_total"
)

// Nop discards everything. Useful as a default and in tests.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }

var _ Backend = Nop{}
