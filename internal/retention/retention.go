// Package retention caps the number of stored datasets, evicting oldest
// first. The policy runs synchronously right after a successful create,
// before the ingestion result is returned.
package retention

import (
	"context"
	"errors"
	"fmt"

	"analytics/internal/storage"
)

// Policy evicts the oldest datasets until at most Max remain.
//
// Max is explicit configuration handed in at construction; there is no
// hidden package-level constant.
type Policy struct {
	Max int
}

// NewPolicy returns a Policy keeping at most max datasets. A max < 1 is
// normalized to 1: a cap of zero would evict the dataset whose ingestion
// triggered the enforcement.
func NewPolicy(max int) *Policy {
	if max < 1 {
		max = 1
	}
	return &Policy{Max: max}
}

// Enforce deletes the single oldest dataset, re-checks the count, and
// repeats until the count is at most p.Max.
//
// Edge cases:
//   - Idempotent: a no-op when count <= Max.
//   - Re-checks the count after every deletion rather than collecting all
//     excess ids up front, so it never deletes more than count-Max records
//     even when concurrent writers move the count underneath it.
//   - A NotFoundError from Delete means a concurrent enforcement got there
//     first; that is progress, not failure, and the loop continues.
func (p *Policy) Enforce(ctx context.Context, store storage.Store) error {
	for {
		n, err := store.Count(ctx)
		if err != nil {
			return fmt.Errorf("retention: count: %w", err)
		}
		if n <= int64(p.Max) {
			return nil
		}

		oldest, err := store.Oldest(ctx)
		if err != nil {
			var nf *storage.NotFoundError
			if errors.As(err, &nf) {
				return nil
			}
			return fmt.Errorf("retention: oldest: %w", err)
		}

		if err := store.Delete(ctx, oldest.ID); err != nil {
			var nf *storage.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return fmt.Errorf("retention: delete %d: %w", oldest.ID, err)
		}
	}
}
