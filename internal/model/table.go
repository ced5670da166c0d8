package model

import "strings"

// RawRow is the column-name -> value view of one report row. Column names are
// untrusted and keep whatever spelling the report author used.
type RawRow map[string]string

// Table holds a tabular report: one header row plus string cells.
type Table struct {
	Source  string     `json:"source,omitempty"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Cell returns the trimmed value at (row, col), or "" when either index is out of range.
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return ""
	}
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// Record returns row i as a RawRow. Duplicate headers keep the leftmost value.
func (t *Table) Record(i int) RawRow {
	rec := make(RawRow, len(t.Headers))
	for j, h := range t.Headers {
		if _, dup := rec[h]; dup {
			continue
		}
		rec[h] = t.Cell(i, j)
	}
	return rec
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}
