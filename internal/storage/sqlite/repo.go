// Package sqlite implements storage.Store on SQLite via modernc.org/sqlite.
//
// Key design points:
//   - SQLite has no native TIMESTAMPTZ type; timestamps are stored as
//     RFC 3339 strings with a fixed-width fraction so lexicographic order
//     matches timestamp order (see time.go).
//   - The raw payload lives in the same row as the record (BLOB column), so
//     a single INSERT or DELETE is the atomic create/delete unit the Store
//     contract requires; no orphan payload is possible.
//   - The summary is stored as a JSON TEXT column, NULL when absent.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"analytics/internal/dataset"
	"analytics/internal/storage"
)

type Repo struct {
	db *sql.DB

	// now is a test seam; production code never sets it.
	now func() time.Time
}

func init() {
	storage.Register("sqlite", New)
}

// New opens (or creates) the SQLite database at cfg.DSN and ensures the
// schema exists. WAL mode keeps concurrent readers from blocking the single
// writer; busy_timeout makes concurrent ingestions queue instead of failing.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &storage.StorageError{Op: "open", Err: err}
	}
	// SQLite allows a single writer. One pooled connection sidesteps
	// SQLITE_BUSY under concurrent ingestions and keeps ":memory:" DSNs on
	// one database instead of one per pool connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &storage.StorageError{Op: "open", Err: err}
	}

	r := &Repo{db: db, now: time.Now}
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) ensureSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS datasets (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		uploaded_at       TEXT NOT NULL,
		original_filename TEXT NOT NULL DEFAULT '',
		preview_html      TEXT NOT NULL DEFAULT '',
		summary           TEXT,
		raw_file          BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_datasets_uploaded ON datasets(uploaded_at DESC, id DESC);
	`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return &storage.StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

func (r *Repo) Create(ctx context.Context, raw []byte, filename string, sum *dataset.Summary, previewHTML string) (*dataset.Dataset, error) {
	uploadedAt := r.now().UTC()

	var sumJSON any
	if sum != nil {
		b, err := json.Marshal(sum)
		if err != nil {
			return nil, &storage.StorageError{Op: "create: encode summary", Err: err}
		}
		sumJSON = string(b)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO datasets (uploaded_at, original_filename, preview_html, summary, raw_file)
		 VALUES (?, ?, ?, ?, ?)`,
		formatSQLiteTime(uploadedAt), filename, previewHTML, sumJSON, raw,
	)
	if err != nil {
		return nil, &storage.StorageError{Op: "create", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, &storage.StorageError{Op: "create: last insert id", Err: err}
	}

	return &dataset.Dataset{
		ID:               id,
		UploadedAt:       uploadedAt,
		OriginalFilename: filename,
		PreviewHTML:      previewHTML,
		Summary:          sum,
	}, nil
}

const selectCols = `id, uploaded_at, original_filename, preview_html, summary`

func (r *Repo) Get(ctx context.Context, id int64) (*dataset.Dataset, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectCols+` FROM datasets WHERE id = ?`, id)
	d, err := scanDataset(row)
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
		`SELECT raw_file FROM datasets WHERE id = ?`, id).Scan(&raw)
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
		`SELECT `+selectCols+` FROM datasets ORDER BY uploaded_at DESC, id DESC LIMIT 1`)
}

func (r *Repo) Oldest(ctx context.Context) (*dataset.Dataset, error) {
	return r.selectOne(ctx, "oldest",
		`SELECT `+selectCols+` FROM datasets ORDER BY uploaded_at ASC, id ASC LIMIT 1`)
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
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

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(s scanner) (*dataset.Dataset, error) {
	var (
		d       dataset.Dataset
		ts      string
		sumJSON sql.NullString
	)
	if err := s.Scan(&d.ID, &ts, &d.OriginalFilename, &d.PreviewHTML, &sumJSON); err != nil {
		return nil, err
	}

	t, err := parseSQLiteTime(ts)
	if err != nil {
		return nil, fmt.Errorf("uploaded_at: %w", err)
	}
	d.UploadedAt = t

	if sumJSON.Valid {
		var sum dataset.Summary
		if err := json.Unmarshal([]byte(sumJSON.String), &sum); err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		d.Summary = &sum
	}
	return &d, nil
}
