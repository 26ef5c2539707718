// Package aggregate computes summary statistics from a validated table.
//
// The aggregation is a pure transform: deterministic for identical input and
// free of side effects. It assumes the table already passed schema
// validation, so the required columns are present; a missing column here is a
// programmer error and panics via the -1 index rather than being re-validated.
package aggregate

import (
	"fmt"
	"strconv"
	"strings"

	"analytics/internal/dataset"
	"analytics/internal/parser/csv"
)

// DataError reports a row-level malformation, typically a non-numeric value
// in a numeric column. Row is the 1-based data row index (excluding the
// header), matching what a user sees in a spreadsheet minus the header line.
type DataError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data: row %d column %q: invalid numeric value %q", e.Row, e.Column, e.Value)
}

func (e *DataError) Unwrap() error { return e.Err }

// Summarize produces the Summary for a validated table.
//
// Behavior:
//   - TotalCount is the data row count; zero rows is valid here.
//   - Averages holds the arithmetic mean of each numeric column. For a
//     zero-row table every mean is 0 (an explicit policy: the mean is
//     undefined, and zero-filled averages keep the wire shape stable).
//   - TypeDistribution counts rows grouped by the exact Type value, with no
//     case or whitespace normalization.
//
// A cell in a numeric column that does not parse as a float fails the whole
// aggregation with a *DataError; no partial averages are ever returned.
// Numeric parsing tolerates surrounding whitespace, nothing else.
func Summarize(t *csv.Table) (*dataset.Summary, error) {
	numIx := make([]int, len(dataset.NumericColumns))
	for i, col := range dataset.NumericColumns {
		numIx[i] = t.ColumnIndex(col)
	}
	typeIx := t.ColumnIndex(dataset.TypeColumn)

	sums := make([]float64, len(numIx))
	dist := map[string]int{}

	for r, row := range t.Rows {
		for i, ix := range numIx {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[ix]), 64)
			if err != nil {
				return nil, &DataError{
					Row:    r + 1,
					Column: dataset.NumericColumns[i],
					Value:  row[ix],
					Err:    err,
				}
			}
			sums[i] += v
		}
		dist[row[typeIx]]++
	}

	n := len(t.Rows)
	avgs := make(map[string]float64, len(numIx))
	for i, col := range dataset.NumericColumns {
		if n == 0 {
			avgs[col] = 0
			continue
		}
		avgs[col] = sums[i] / float64(n)
	}

	return &dataset.Summary{
		TotalCount:       n,
		Averages:         avgs,
		TypeDistribution: dist,
	}, nil
}
