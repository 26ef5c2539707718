package schema

import (
	"errors"
	"reflect"
	"testing"
)

func TestValidate_TableDriven(t *testing.T) {
	t.Parallel()

	all := []string{"Equipment Name", "Type", "Flowrate", "Pressure", "Temperature"}

	tests := []struct {
		name        string
		found       []string
		wantMissing []string
	}{
		{
			name:  "exact_set",
			found: all,
		},
		{
			name:  "extra_columns_allowed",
			found: append([]string{"Serial", "Vendor"}, all...),
		},
		{
			name:  "order_irrelevant",
			found: []string{"Temperature", "Pressure", "Flowrate", "Type", "Equipment Name"},
		},
		{
			name:        "one_missing",
			found:       []string{"Equipment Name", "Type", "Flowrate", "Pressure"},
			wantMissing: []string{"Temperature"},
		},
		{
			name:        "case_sensitive",
			found:       []string{"equipment name", "type", "flowrate", "pressure", "temperature"},
			wantMissing: []string{"Equipment Name", "Flowrate", "Pressure", "Temperature", "Type"},
		},
		{
			name:        "empty",
			found:       nil,
			wantMissing: []string{"Equipment Name", "Flowrate", "Pressure", "Temperature", "Type"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.found)
			if len(tt.wantMissing) == 0 {
				if err != nil {
					t.Fatalf("Validate(%v)=%v want nil", tt.found, err)
				}
				return
			}

			var serr *SchemaError
			if !errors.As(err, &serr) {
				t.Fatalf("Validate(%v)=%v want *SchemaError", tt.found, err)
			}
			if !reflect.DeepEqual(serr.Missing, tt.wantMissing) {
				t.Fatalf("Missing=%v want=%v", serr.Missing, tt.wantMissing)
			}
			if len(serr.Found) != len(tt.found) {
				t.Fatalf("Found=%v want same length as %v", serr.Found, tt.found)
			}
		})
	}
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	found := []string{"Type", "Equipment Name"}
	orig := append([]string(nil), found...)
	_ = Validate(found)
	if !reflect.DeepEqual(found, orig) {
		t.Fatalf("Validate mutated input: %v", found)
	}
}
