package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"analytics/internal/dataset"
	"analytics/internal/storage"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	s, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s.(*Repo)
}

func sampleSummary() *dataset.Summary {
	return &dataset.Summary{
		TotalCount:       2,
		Averages:         map[string]float64{"Flowrate": 15, "Pressure": 10, "Temperature": 25},
		TypeDistribution: map[string]int{"Pump": 1, "Valve": 1},
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	raw := []byte("Equipment Name,Type,Flowrate,Pressure,Temperature\na,Pump,1,1,1\n")
	created, err := r.Create(ctx, raw, "plant.csv", sampleSummary(), "<table></table>")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("Create assigned no id")
	}
	if created.UploadedAt.IsZero() {
		t.Fatalf("Create assigned no timestamp")
	}

	got, err := r.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OriginalFilename != "plant.csv" || got.PreviewHTML != "<table></table>" {
		t.Fatalf("Get=%+v", got)
	}
	if got.Summary == nil || got.Summary.TotalCount != 2 {
		t.Fatalf("summary did not round-trip: %+v", got.Summary)
	}
	if got.Summary.Averages["Flowrate"] != 15 || got.Summary.TypeDistribution["Pump"] != 1 {
		t.Fatalf("summary did not round-trip: %+v", got.Summary)
	}
	if !got.UploadedAt.Equal(created.UploadedAt) {
		t.Fatalf("uploaded_at round trip: got=%s want=%s", got.UploadedAt, created.UploadedAt)
	}

	gotRaw, err := r.RawFile(ctx, created.ID)
	if err != nil {
		t.Fatalf("RawFile: %v", err)
	}
	if string(gotRaw) != string(raw) {
		t.Fatalf("raw payload mismatch")
	}
}

func TestNilSummaryStaysNil(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, []byte("x"), "", nil, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := r.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Summary != nil {
		t.Fatalf("Summary=%+v want nil", got.Summary)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	var nf *storage.NotFoundError

	if _, err := r.Get(ctx, 42); !errors.As(err, &nf) {
		t.Fatalf("Get err=%v want *NotFoundError", err)
	}
	if _, err := r.RawFile(ctx, 42); !errors.As(err, &nf) {
		t.Fatalf("RawFile err=%v want *NotFoundError", err)
	}
	if _, err := r.Latest(ctx); !errors.As(err, &nf) {
		t.Fatalf("Latest err=%v want *NotFoundError", err)
	}
	if _, err := r.Oldest(ctx); !errors.As(err, &nf) {
		t.Fatalf("Oldest err=%v want *NotFoundError", err)
	}
	if err := r.Delete(ctx, 42); !errors.As(err, &nf) {
		t.Fatalf("Delete err=%v want *NotFoundError", err)
	}
}

func TestOrderingAndTieBreaks(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	// Fixed clock: the first two datasets share a timestamp, so ordering
	// must fall back to id.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	times := []time.Time{base, base, base.Add(time.Minute)}
	i := 0
	r.now = func() time.Time {
		t := times[i]
		i++
		return t
	}

	var ids []int64
	for range times {
		d, err := r.Create(ctx, []byte("x"), "", nil, "")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, d.ID)
	}

	latest, err := r.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != ids[2] {
		t.Fatalf("Latest=%d want %d", latest.ID, ids[2])
	}

	oldest, err := r.Oldest(ctx)
	if err != nil {
		t.Fatalf("Oldest: %v", err)
	}
	if oldest.ID != ids[0] {
		t.Fatalf("Oldest=%d want %d (lowest id wins the tie)", oldest.ID, ids[0])
	}

	list, err := r.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListAll len=%d want 3", len(list))
	}
	want := []int64{ids[2], ids[1], ids[0]}
	for j, d := range list {
		if d.ID != want[j] {
			t.Fatalf("ListAll[%d]=%d want %d", j, d.ID, want[j])
		}
	}
}

func TestOrderingSubSecond(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	// A whole-second timestamp followed by a sub-second one in the same
	// second. Stored strings must still order by time, not by string quirks
	// of the encoding.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(500 * time.Millisecond)}
	i := 0
	r.now = func() time.Time {
		t := times[i]
		i++
		return t
	}

	first, err := r.Create(ctx, []byte("x"), "", nil, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := r.Create(ctx, []byte("x"), "", nil, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	latest, err := r.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != second.ID {
		t.Fatalf("Latest=%d want %d (sub-second upload is newer)", latest.ID, second.ID)
	}

	oldest, err := r.Oldest(ctx)
	if err != nil {
		t.Fatalf("Oldest: %v", err)
	}
	if oldest.ID != first.ID {
		t.Fatalf("Oldest=%d want %d", oldest.ID, first.ID)
	}
}

func TestDeleteRemovesRecordAndPayload(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	d, err := r.Create(ctx, []byte("payload"), "f.csv", nil, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var nf *storage.NotFoundError
	if _, err := r.Get(ctx, d.ID); !errors.As(err, &nf) {
		t.Fatalf("Get after delete err=%v want *NotFoundError", err)
	}
	if _, err := r.RawFile(ctx, d.ID); !errors.As(err, &nf) {
		t.Fatalf("RawFile after delete err=%v want *NotFoundError", err)
	}

	n, err := r.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("Count=%d want 0", n)
	}
}

func TestCount(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := r.Create(ctx, []byte("x"), "", nil, ""); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	n, err := r.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Fatalf("Count=%d want 4", n)
	}
}
