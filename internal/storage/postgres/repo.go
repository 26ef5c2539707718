// Package postgres implements storage.Store on PostgreSQL via pgx.
//
// Differences from the SQLite backend:
//   - uploaded_at is a native TIMESTAMPTZ; ordering happens server-side with
//     no string round-trip.
//   - The summary is JSONB, the raw payload BYTEA. Payload and record share a
//     row, so INSERT/DELETE remain the atomic unit the Store contract needs.
//   - Ids come back from INSERT ... RETURNING.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"analytics/internal/dataset"
	"analytics/internal/storage"
)

type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New connects a pgx pool to cfg.DSN and ensures the schema exists.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, &storage.StorageError{Op: "open", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &storage.StorageError{Op: "open", Err: err}
	}

	r := &Repo{pool: pool}
	if err := r.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() { r.pool.Close() }

func (r *Repo) ensureSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS datasets (
		id                BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		uploaded_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		original_filename TEXT NOT NULL DEFAULT '',
		preview_html      TEXT NOT NULL DEFAULT '',
		summary           JSONB,
		raw_file          BYTEA NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_datasets_uploaded ON datasets (uploaded_at DESC, id DESC);
	`
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return &storage.StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

func (r *Repo) Create(ctx context.Context, raw []byte, filename string, sum *dataset.Summary, previewHTML string) (*dataset.Dataset, error) {
	var sumJSON []byte
	if sum != nil {
		b, err := json.Marshal(sum)
		if err != nil {
			return nil, &storage.StorageError{Op: "create: encode summary", Err: err}
		}
		sumJSON = b
	}

	d := &dataset.Dataset{
		OriginalFilename: filename,
		PreviewHTML:      previewHTML,
		Summary:          sum,
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO datasets (original_filename, preview_html, summary, raw_file)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, uploaded_at`,
		filename, previewHTML, sumJSON, raw,
	).Scan(&d.ID, &d.UploadedAt)
	if err != nil {
		return nil, &storage.StorageError{Op: "create", Err: err}
	}
	d.UploadedAt = d.UploadedAt.UTC()
	return d, nil
}

const selectCols = `id, uploaded_at, original_filename, preview_html, summary`

func (r *Repo) Get(ctx context.Context, id int64) (*dataset.Dataset, error) {
	d, err := scanDataset(r.pool.QueryRow(ctx,
		`SELECT `+selectCols+` FROM datasets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, &storage.StorageError{Op: "get", Err: err}
	}
	return d, nil
}

func (r *Repo) RawFile(ctx context.Context, id int64) ([]byte, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT raw_file FROM datasets WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, &storage.StorageError{Op: "raw file", Err: err}
	}
	return raw, nil
}

func (r *Repo) Latest(ctx context.Context) (*dataset.Dataset, error) {
	return r.selectOne(ctx, "latest",
		`SELECT `+selectCols+` FROM datasets ORDER BY uploaded_at DESC, id DESC LIMIT 1`)
}

func (r *Repo) Oldest(ctx context.Context) (*dataset.Dataset, error) {
	return r.selectOne(ctx, "oldest",
		`SELECT `+selectCols+` FROM datasets ORDER BY uploaded_at ASC, id ASC LIMIT 1`)
}

func (r *Repo) selectOne(ctx context.Context, op, q string) (*dataset.Dataset, error) {
	d, err := scanDataset(r.pool.QueryRow(ctx, q))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &storage.NotFoundError{}
	}
	if err != nil {
		return nil, &storage.StorageError{Op: op, Err: err}
	}
	return d, nil
}

func (r *Repo) ListAll(ctx context.Context) ([]*dataset.Dataset, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectCols+` FROM datasets ORDER BY uploaded_at DESC, id DESC`)
	if err != nil {
		return nil, &storage.StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []*dataset.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, &storage.StorageError{Op: "list: scan", Err: err}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.StorageError{Op: "list", Err: err}
	}
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		return &storage.StorageError{Op: "delete", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &storage.NotFoundError{ID: id}
	}
	return nil
}

func (r *Repo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM datasets`).Scan(&n); err != nil {
		return 0, &storage.StorageError{Op: "count", Err: err}
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(s scanner) (*dataset.Dataset, error) {
	var (
		d       dataset.Dataset
		sumJSON []byte
	)
	if err := s.Scan(&d.ID, &d.UploadedAt, &d.OriginalFilename, &d.PreviewHTML, &sumJSON); err != nil {
		return nil, err
	}
	d.UploadedAt = d.UploadedAt.UTC()

	if len(sumJSON) > 0 {
		var sum dataset.Summary
		if err := json.Unmarshal(sumJSON, &sum); err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		d.Summary = &sum
	}
	return &d, nil
}
