// Package preview renders a small HTML preview of an uploaded table.
//
// The preview is stored alongside the dataset so the history view can show a
// glimpse of the data without re-parsing the raw file. html/template handles
// escaping, so hostile cell content cannot inject markup.
package preview

import (
	"fmt"
	"html/template"
	"strings"

	"analytics/internal/parser/csv"
)

// DefaultRows is the number of data rows included when the caller does not
// choose a limit.
const DefaultRows = 10

var tableTmpl = template.Must(template.New("preview").Parse(`<table class="dataset-preview">
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
`))

// Render returns an HTML table of the first maxRows data rows of t. A
// maxRows <= 0 falls back to DefaultRows.
func Render(t *csv.Table, maxRows int) (string, error) {
	if maxRows <= 0 {
		maxRows = DefaultRows
	}
	rows := t.Rows
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	var b strings.Builder
	data := struct {
		Columns []string
		Rows    [][]string
	}{Columns: t.Columns, Rows: rows}

	if err := tableTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render preview: %w", err)
	}
	return b.String(), nil
}
