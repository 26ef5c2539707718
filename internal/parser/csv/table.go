// Package csv parses uploaded payloads into fully materialized tables.
//
// The parser is deliberately strict: the first record is the header, every
// data row must have the same field count as the header, and quoting errors
// are fatal. Upload payloads are small (bounded by the HTTP layer), so rows
// are materialized rather than streamed.
package csv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ParseError reports an unreadable or empty payload.
//
// Line is 1-based and 0 when the failure is not tied to a specific line
// (e.g. an empty file).
type ParseError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse csv: line %d: %s", e.Line, e.Msg)
	}
	return "parse csv: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Table is a parsed tabular payload: a header plus zero or more data rows,
// each row aligned to Columns.
type Table struct {
	Columns []string
	Rows    [][]string

	colIx map[string]int
}

// ColumnIndex returns the position of name in Columns, or -1 if absent.
// Matching is exact-string and case-sensitive.
func (t *Table) ColumnIndex(name string) int {
	if ix, ok := t.colIx[name]; ok {
		return ix
	}
	return -1
}

// ParseTable parses raw bytes into a Table.
//
// Edge cases:
//   - Empty or whitespace-only payloads fail with a ParseError ("empty file").
//   - A payload with only a header row yields a Table with zero rows; whether
//     that is acceptable is the caller's decision, not the parser's.
//   - Rows whose field count differs from the header fail with a ParseError
//     carrying the offending line.
//
// Encoding:
//   - A UTF-8 BOM is stripped. UTF-16 payloads (detected by BOM) are
//     transcoded to UTF-8. Payloads that are not valid UTF-8 are decoded as
//     Windows-1252, the usual source of "works in Excel" uploads.
//
// Header cells are edge-trimmed; data cells are kept verbatim.
func ParseTable(raw []byte) (*Table, error) {
	raw, err := toUTF8(raw)
	if err != nil {
		return nil, &ParseError{Msg: "undecodable payload", Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ParseError{Msg: "empty file"}
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	// FieldsPerRecord left at 0: the header fixes the count and every data
	// row must match it, mirroring strict tabular readers.

	records, err := cr.ReadAll()
	if err != nil {
		line := 0
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			line = perr.Line
		}
		return nil, &ParseError{Line: line, Msg: "malformed format", Err: err}
	}
	if len(records) == 0 {
		return nil, &ParseError{Msg: "empty file"}
	}

	header := records[0]
	cols := make([]string, len(header))
	colIx := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		h = strings.TrimSpace(h)
		cols[i] = h
		if _, dup := colIx[h]; !dup {
			colIx[h] = i
		}
	}

	return &Table{
		Columns: cols,
		Rows:    records[1:],
		colIx:   colIx,
	}, nil
}

// toUTF8 normalizes the payload encoding before CSV parsing.
func toUTF8(raw []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}), bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		return dec.Bytes(raw)
	case utf8.Valid(raw):
		return raw, nil
	default:
		// Latin-1-ish single-byte content; Windows-1252 decodes every byte,
		// so this cannot fail, but keep the error path for symmetry.
		return charmap.Windows1252.NewDecoder().Bytes(raw)
	}
}
