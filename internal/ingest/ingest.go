// Package ingest orchestrates the upload pipeline:
//
//	parse → validate schema → aggregate → render preview → store → retain
//
// Steps before the store are pure, so any failure there leaves storage
// untouched. The store call is the only durable side effect; retention runs
// synchronously right after it and before the result is returned. No step is
// retried.
package ingest

import (
	"context"
	"log"
	"time"

	"analytics/internal/aggregate"
	"analytics/internal/dataset"
	"analytics/internal/metrics"
	csvparser "analytics/internal/parser/csv"
	"analytics/internal/preview"
	"analytics/internal/retention"
	"analytics/internal/schema"
	"analytics/internal/storage"
)

// Logger is the minimal logging surface the service needs.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Service composes the pipeline components and exposes the operations the
// transport layer calls.
type Service struct {
	store       storage.Store
	policy      *retention.Policy
	metrics     metrics.Backend
	logger      Logger
	previewRows int
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics sets the metrics backend. Default: metrics.Nop.
func WithMetrics(b metrics.Backend) Option {
	return func(s *Service) { s.metrics = b }
}

// WithLogger sets the logger. Default: the standard logger.
func WithLogger(l Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPreviewRows sets how many rows the stored HTML preview includes.
func WithPreviewRows(n int) Option {
	return func(s *Service) { s.previewRows = n }
}

// New builds a Service over store, retaining at most maxDatasets records.
func New(store storage.Store, maxDatasets int, opts ...Option) *Service {
	s := &Service{
		store:       store,
		policy:      retention.NewPolicy(maxDatasets),
		metrics:     metrics.Nop{},
		logger:      log.Default(),
		previewRows: preview.DefaultRows,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MaxDatasets returns the retention cap the service enforces.
func (s *Service) MaxDatasets() int { return s.policy.Max }

// Ingest runs the full pipeline for one uploaded payload.
//
// Failure modes, in pipeline order:
//   - *csv.ParseError: empty or unparseable payload
//   - *schema.SchemaError: required columns missing
//   - *aggregate.DataError: malformed numeric cell
//   - *storage.StorageError: persistence failure
//
// On any failure nothing is persisted. On success the returned Dataset is
// fully populated and the store holds at most the configured maximum.
func (s *Service) Ingest(ctx context.Context, raw []byte, filename string) (*dataset.Dataset, error) {
	start := time.Now()

	d, err := s.ingest(ctx, raw, filename)
	status := "ok"
	if err != nil {
		status = "error"
		s.logger.Printf("ingest failed file=%q: %v", filename, err)
	}

	s.metrics.IncCounter(metrics.IngestTotal, 1, metrics.Labels{"status": status})
	s.metrics.ObserveHistogram(metrics.IngestDuration, time.Since(start).Seconds(), metrics.Labels{"status": status})
	if d != nil && d.Summary != nil {
		s.metrics.ObserveHistogram(metrics.IngestRows, float64(d.Summary.TotalCount), nil)
	}
	return d, err
}

func (s *Service) ingest(ctx context.Context, raw []byte, filename string) (*dataset.Dataset, error) {
	t, err := csvparser.ParseTable(raw)
	if err != nil {
		return nil, err
	}

	if err := schema.Validate(t.Columns); err != nil {
		return nil, err
	}

	sum, err := aggregate.Summarize(t)
	if err != nil {
		return nil, err
	}

	previewHTML, err := preview.Render(t, s.previewRows)
	if err != nil {
		// The preview is a convenience; a render failure must not discard a
		// valid upload.
		s.logger.Printf("preview render failed file=%q: %v", filename, err)
		previewHTML = ""
	}

	d, err := s.store.Create(ctx, raw, filename, sum, previewHTML)
	if err != nil {
		return nil, err
	}

	before, countErr := s.store.Count(ctx)
	if err := s.policy.Enforce(ctx, s.store); err != nil {
		// The dataset is stored; eviction will catch up on the next
		// ingestion. Surface the problem without failing the upload.
		s.logger.Printf("retention enforcement failed: %v", err)
	} else if countErr == nil {
		if after, err := s.store.Count(ctx); err == nil && before > after {
			s.metrics.IncCounter(metrics.RetentionEvicted, float64(before-after), nil)
		}
	}

	s.logger.Printf("ingested dataset id=%d file=%q rows=%d", d.ID, filename, sum.TotalCount)
	return d, nil
}

// ListAll returns every stored dataset, most recent first.
func (s *Service) ListAll(ctx context.Context) ([]*dataset.Dataset, error) {
	return s.store.ListAll(ctx)
}

// Latest returns the most recently uploaded dataset.
func (s *Service) Latest(ctx context.Context) (*dataset.Dataset, error) {
	return s.store.Latest(ctx)
}

// Get returns the dataset with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*dataset.Dataset, error) {
	return s.store.Get(ctx, id)
}

// RawFile returns the stored payload bytes for id.
func (s *Service) RawFile(ctx context.Context, id int64) ([]byte, error) {
	return s.store.RawFile(ctx, id)
}
