// Package dataset defines the persisted record types shared by the storage
// backends, the ingestion pipeline, and the HTTP layer.
package dataset

import "time"

// Numeric columns every uploaded table must carry. Averages are computed for
// exactly this set, in this order.
var NumericColumns = []string{"Flowrate", "Pressure", "Temperature"}

// TypeColumn is the categorical column whose value distribution is reported.
const TypeColumn = "Type"

// Dataset is one stored ingestion result.
//
// A Dataset is created atomically with its Summary by the ingestion pipeline
// and is read-only afterwards, except for deletion. The raw file payload is
// owned by the store and fetched separately (Store.RawFile); it is never held
// on this struct so listings stay cheap.
type Dataset struct {
	// ID is unique and monotonically assigned by the store.
	ID int64 `json:"id"`

	// UploadedAt is set once at creation, immutable thereafter. Together
	// with ID it induces a strict total order: oldest = minimum
	// (UploadedAt, ID), latest = maximum.
	UploadedAt time.Time `json:"uploaded_at"`

	// OriginalFilename is a display string; may be empty.
	OriginalFilename string `json:"original_filename"`

	// PreviewHTML is a small rendered table of the first rows; may be empty.
	PreviewHTML string `json:"preview_html"`

	// Summary is nil only if aggregation was skipped before storage. In
	// practice it is always populated, since storage happens only after
	// successful aggregation.
	Summary *Summary `json:"summary"`
}

// Summary holds the aggregate statistics computed for one table. Immutable
// once attached to a Dataset.
type Summary struct {
	// TotalCount is the number of data rows in the source table.
	TotalCount int `json:"total_count"`

	// Averages maps each of NumericColumns to its arithmetic mean. For a
	// zero-row table every mean is 0.
	Averages map[string]float64 `json:"averages"`

	// TypeDistribution maps each distinct TypeColumn value, verbatim, to its
	// occurrence count. The counts always sum to TotalCount.
	TypeDistribution map[string]int `json:"type_distribution"`
}
