package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"

	"analytics/internal/aggregate"
	csvparser "analytics/internal/parser/csv"
	"analytics/internal/schema"
	"analytics/internal/storage"
	_ "analytics/internal/storage/sqlite"
)

const validCSV = `Equipment Name,Type,Flowrate,Pressure,Temperature
P-101,Pump,10,5,20
V-201,Valve,20,15,30
`

func newTestService(t *testing.T, maxDatasets int) (*Service, storage.Store) {
	t.Helper()
	store, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(store.Close)

	svc := New(store, maxDatasets, WithLogger(log.New(io.Discard, "", 0)))
	return svc, store
}

func TestIngest_Success(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, 5)
	ctx := context.Background()

	d, err := svc.Ingest(ctx, []byte(validCSV), "plant.csv")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if d.ID == 0 || d.UploadedAt.IsZero() {
		t.Fatalf("Dataset not fully populated: %+v", d)
	}
	if d.OriginalFilename != "plant.csv" {
		t.Fatalf("OriginalFilename=%q", d.OriginalFilename)
	}
	if d.Summary == nil || d.Summary.TotalCount != 2 {
		t.Fatalf("Summary=%+v", d.Summary)
	}
	if d.Summary.Averages["Flowrate"] != 15 {
		t.Fatalf("Averages=%v", d.Summary.Averages)
	}
	if d.PreviewHTML == "" {
		t.Fatalf("PreviewHTML is empty")
	}
}

func TestIngest_SummaryRoundTrip(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, 5)
	ctx := context.Background()

	created, err := svc.Ingest(ctx, []byte(validCSV), "plant.csv")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	want, err := aggregate.Summarize(mustParse(t, validCSV))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got.Summary.TotalCount != want.TotalCount {
		t.Fatalf("TotalCount=%d want %d", got.Summary.TotalCount, want.TotalCount)
	}
	for col, v := range want.Averages {
		if got.Summary.Averages[col] != v {
			t.Fatalf("Averages[%s]=%v want %v", col, got.Summary.Averages[col], v)
		}
	}
	for typ, n := range want.TypeDistribution {
		if got.Summary.TypeDistribution[typ] != n {
			t.Fatalf("TypeDistribution[%s]=%d want %d", typ, got.Summary.TypeDistribution[typ], n)
		}
	}
}

func mustParse(t *testing.T, raw string) *csvparser.Table {
	t.Helper()
	tbl, err := csvparser.ParseTable([]byte(raw))
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	return tbl
}

func TestIngest_FailuresLeaveStoreUntouched(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantKind string
	}{
		{
			name:     "empty_payload",
			raw:      "",
			wantKind: "parse",
		},
		{
			name:     "missing_columns",
			raw:      "Equipment Name,Type\na,Pump\n",
			wantKind: "schema",
		},
		{
			name: "malformed_numeric",
			raw: `Equipment Name,Type,Flowrate,Pressure,Temperature
a,Pump,N/A,5,20
`,
			wantKind: "data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t, 5)
			ctx := context.Background()

			if _, err := svc.Ingest(ctx, []byte(validCSV), "seed.csv"); err != nil {
				t.Fatalf("seed Ingest: %v", err)
			}

			_, err := svc.Ingest(ctx, []byte(tt.raw), "bad.csv")
			if err == nil {
				t.Fatalf("Ingest succeeded, want failure")
			}
			var (
				parseErr  *csvparser.ParseError
				schemaErr *schema.SchemaError
				dataErr   *aggregate.DataError
			)
			switch tt.wantKind {
			case "parse":
				if !errors.As(err, &parseErr) {
					t.Fatalf("err=%v want *ParseError", err)
				}
			case "schema":
				if !errors.As(err, &schemaErr) {
					t.Fatalf("err=%v want *SchemaError", err)
				}
			case "data":
				if !errors.As(err, &dataErr) {
					t.Fatalf("err=%v want *DataError", err)
				}
			}

			n, err := store.Count(ctx)
			if err != nil {
				t.Fatalf("Count: %v", err)
			}
			if n != 1 {
				t.Fatalf("Count=%d want 1 (failed ingest must not persist)", n)
			}
		})
	}
}

func TestIngest_RetentionCapsStore(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t, 5)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 7; i++ {
		d, err := svc.Ingest(ctx, []byte(validCSV), fmt.Sprintf("upload-%d.csv", i))
		if err != nil {
			t.Fatalf("Ingest %d: %v", i, err)
		}
		ids = append(ids, d.ID)

		n, err := store.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n > 5 {
			t.Fatalf("Count=%d exceeds max after ingest %d", n, i)
		}
	}

	list, err := svc.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("ListAll len=%d want 5", len(list))
	}
	// Survivors are the last five uploads, most recent first.
	for i, d := range list {
		want := ids[len(ids)-1-i]
		if d.ID != want {
			t.Fatalf("ListAll[%d]=%d want %d", i, d.ID, want)
		}
		if d.OriginalFilename != fmt.Sprintf("upload-%d.csv", len(ids)-1-i) {
			t.Fatalf("ListAll[%d] filename=%q", i, d.OriginalFilename)
		}
	}

	// The two oldest are gone, raw files included.
	for _, evicted := range ids[:2] {
		if _, err := svc.Get(ctx, evicted); err == nil {
			t.Fatalf("dataset %d should have been evicted", evicted)
		}
		if _, err := svc.RawFile(ctx, evicted); err == nil {
			t.Fatalf("raw file %d should be gone", evicted)
		}
	}
}

func TestLatest(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, 5)
	ctx := context.Background()

	var nf *storage.NotFoundError
	if _, err := svc.Latest(ctx); !errors.As(err, &nf) {
		t.Fatalf("Latest on empty store err=%v want *NotFoundError", err)
	}

	d, err := svc.Ingest(ctx, []byte(validCSV), "only.csv")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	latest, err := svc.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != d.ID {
		t.Fatalf("Latest=%d want %d", latest.ID, d.ID)
	}
}

func TestIngest_RawFilePreserved(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, 5)
	ctx := context.Background()

	d, err := svc.Ingest(ctx, []byte(validCSV), "plant.csv")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	raw, err := svc.RawFile(ctx, d.ID)
	if err != nil {
		t.Fatalf("RawFile: %v", err)
	}
	if string(raw) != validCSV {
		t.Fatalf("raw payload mismatch")
	}
}
