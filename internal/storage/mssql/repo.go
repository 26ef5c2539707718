// Package mssql implements storage.Store on Microsoft SQL Server.
//
// Notes:
//   - uploaded_at is DATETIMEOFFSET(7), the raw payload VARBINARY(MAX), the
//     summary NVARCHAR(MAX) JSON.
//   - Ids come back from INSERT ... OUTPUT INSERTED.id.
//   - Table creation uses the IF NOT EXISTS object_id idiom since SQL Server
//     has no CREATE TABLE IF NOT EXISTS.
package mssql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"

	"analytics/internal/dataset"
	"analytics/internal/storage"
)

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New connects to SQL Server at cfg.DSN, validates connectivity via
// PingContext, and ensures the schema exists.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, &storage.StorageError{Op: "open", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &storage.StorageError{Op: "open", Err: err}
	}

	r := &Repo{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) ensureSchema(ctx context.Context) error {
	const ddl = `
	IF OBJECT_ID(N'datasets', N'U') IS NULL
	CREATE TABLE datasets (
		id                BIGINT IDENTITY(1,1) PRIMARY KEY,
		uploaded_at       DATETIMEOFFSET(7) NOT NULL DEFAULT SYSDATETIMEOFFSET(),
		original_filename NVARCHAR(255) NOT NULL DEFAULT '',
		preview_html      NVARCHAR(MAX) NOT NULL DEFAULT '',
		summary           NVARCHAR(MAX) NULL,
		raw_file          VARBINARY(MAX) NOT NULL
	);
	IF NOT EXISTS (
		SELECT 1 FROM sys.indexes
		WHERE name = N'idx_datasets_uploaded' AND object_id = OBJECT_ID(N'datasets', N'U')
	)
	CREATE INDEX idx_datasets_uploaded ON datasets (uploaded_at DESC, id DESC);
	`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return &storage.StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

func (r *Repo) Create(ctx context.Context, raw []byte, filename string, sum *dataset.Summary, previewHTML string) (*dataset.Dataset, error) {
	var sumJSON sql.NullString
	if sum != nil {
		b, err := json.Marshal(sum)
		if err != nil {
			return nil, &storage.StorageError{Op: "create: encode summary", Err: err}
		}
		sumJSON = sql.NullString{String: string(b), Valid: true}
	}

	d := &dataset.Dataset{
		OriginalFilename: filename,
		PreviewHTML:      previewHTML,
		Summary:          sum,
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO datasets (original_filename, preview_html, summary, raw_file)
		 OUTPUT INSERTED.id, INSERTED.uploaded_at
		 VALUES (@p1, @p2, @p3, @p4)`,
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
	d, err := scanDataset(r.db.QueryRowContext(ctx,
		`SELECT `+selectCols+` FROM datasets WHERE id = @p1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, &storage.StorageError{Op: "get", Err: err}
	}
	return d, nil
}

func (r *Repo) RawFile(ctx context.Context, id int64) ([]byte, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT raw_file FROM datasets WHERE id = @p1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, &storage.StorageError{Op: "raw file", Err: err}
	}
	return raw, nil
}

func (r *Repo) Latest(ctx context.Context) (*dataset.Dataset, error) {
	return r.selectOne(ctx, "latest",
		`SELECT TOP 1 `+selectCols+` FROM datasets ORDER BY uploaded_at DESC, id DESC`)
}

func (r *Repo) Oldest(ctx context.Context) (*dataset.Dataset, error) {
	return r.selectOne(ctx, "oldest",
		`SELECT TOP 1 `+selectCols+` FROM datasets ORDER BY uploaded_at ASC, id ASC`)
}

func (r *Repo) selectOne(ctx context.Context, op, q string) (*dataset.Dataset, error) {
	d, err := scanDataset(r.db.QueryRowContext(ctx, q))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{}
	}
	if err != nil {
		return nil, &storage.StorageError{Op: op, Err: err}
	}
	return d, nil
}

func (r *Repo) ListAll(ctx context.Context) ([]*dataset.Dataset, error) {
	rows, err := r.db.QueryContext(ctx,
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = @p1`, id)
	if err != nil {
		return &storage.StorageError{Op: "delete", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &storage.StorageError{Op: "delete: rows affected", Err: err}
	}
	if n == 0 {
		return &storage.NotFoundError{ID: id}
	}
	return nil
}

func (r *Repo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets`).Scan(&n); err != nil {
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
		sumJSON sql.NullString
	)
	if err := s.Scan(&d.ID, &d.UploadedAt, &d.OriginalFilename, &d.PreviewHTML, &sumJSON); err != nil {
		return nil, err
	}
	d.UploadedAt = d.UploadedAt.UTC()

	if sumJSON.Valid && sumJSON.String != "" {
		var sum dataset.Summary
		if err := json.Unmarshal([]byte(sumJSON.String), &sum); err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		d.Summary = &sum
	}
	return &d, nil
}
