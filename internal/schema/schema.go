// Package schema validates the shape of an uploaded table against the
// required column contract.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RequiredColumns is the fixed contract every uploaded table must satisfy.
// Matching is exact-string, case-sensitive, and order-independent.
func RequiredColumns() []string {
	return []string{"Equipment Name", "Type", "Flowrate", "Pressure", "Temperature"}
}

// SchemaError reports required columns absent from an uploaded table.
// Missing and Found are sorted so the error renders deterministically.
type SchemaError struct {
	Missing []string
	Found   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: missing required columns [%s] (found [%s])",
		strings.Join(e.Missing, ", "), strings.Join(e.Found, ", "))
}

// Validate checks that every required column appears among found. Extra
// columns are allowed. Pure: no side effects, found is not modified.
//
// Returns nil on success, or a *SchemaError carrying the missing set and a
// sorted copy of the found set.
func Validate(found []string) error {
	have := make(map[string]struct{}, len(found))
	for _, c := range found {
		have[c] = struct{}{}
	}

	var missing []string
	for _, c := range RequiredColumns() {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	sort.Strings(missing)
	foundCopy := append([]string(nil), found...)
	sort.Strings(foundCopy)
	return &SchemaError{Missing: missing, Found: foundCopy}
}
