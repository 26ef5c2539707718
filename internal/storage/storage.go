// Package storage defines the backend-agnostic dataset store contract and the
// backend factory registry. Concrete backends live in subpackages (sqlite,
// postgres, mssql) and register themselves from init().
package storage

import (
	"context"
	"fmt"
	"sync"

	"analytics/internal/dataset"
)

// Config is the minimal configuration needed to create a Store.
//
// When to use:
//   - Use Config when constructing a Store via New.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Store is a backend-agnostic interface over the dataset record set.
//
// IMPORTANT: This interface is intentionally minimal and focused on what the
// ingestion pipeline and retention policy need. Each backend implements the
// semantics in its own idiomatic way (Postgres RETURNING, SQLite
// last_insert_rowid, MSSQL OUTPUT), but all must honor:
//
//   - Create is atomic: a failure never leaves an id reserved without a
//     record, or a record without its raw payload.
//   - Delete removes the record and its raw payload as a single effective
//     unit; no orphan payload survives.
//   - Ordering: "latest" is maximum (uploaded_at, id), "oldest" is minimum;
//     ListAll is descending by uploaded_at, ties broken by descending id.
//   - Concurrent Create/Delete/reads serialize through the backend so a
//     half-deleted record is never observable.
type Store interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// Create persists the raw payload, metadata, and summary atomically,
	// assigns the id and timestamp, and returns the fully populated Dataset.
	Create(ctx context.Context, raw []byte, filename string, sum *dataset.Summary, previewHTML string) (*dataset.Dataset, error)

	// Get returns the Dataset with the given id, or a *NotFoundError.
	Get(ctx context.Context, id int64) (*dataset.Dataset, error)

	// RawFile returns the stored payload bytes for id, or a *NotFoundError.
	RawFile(ctx context.Context, id int64) ([]byte, error)

	// Latest returns the most recent Dataset, or a *NotFoundError when the
	// store is empty.
	Latest(ctx context.Context) (*dataset.Dataset, error)

	// Oldest returns the least recent Dataset, or a *NotFoundError when the
	// store is empty. Used by the retention policy.
	Oldest(ctx context.Context) (*dataset.Dataset, error)

	// ListAll returns every Dataset, most recent first, fully materialized.
	ListAll(ctx context.Context) ([]*dataset.Dataset, error)

	// Delete removes the record and its payload, or returns a
	// *NotFoundError if the id is absent.
	Delete(ctx context.Context, id int64) error

	// Count returns the number of stored Datasets.
	Count(ctx context.Context) (int64, error)
}

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Store using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
//
// Concurrency:
//   - Safe for concurrent use with Register; New takes a read lock while
//     selecting the factory.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
