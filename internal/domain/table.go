package domain

import "fmt"

// Column is one named, ordered sequence of scalar values. A value is one of
// float64, int64, string, bool or nil.
type Column struct {
	Name   string
	Values []any
}

// TabularResult is an ordered set of equal-length columns. It is never mutated
// in place: every derivation returns a new TabularResult that may share value
// slices with its source.
type TabularResult struct {
	Columns []Column
}

// NewTabularResult builds a TabularResult, rejecting ragged columns.
func NewTabularResult(cols ...Column) (TabularResult, error) {
	for i := 1; i < len(cols); i++ {
		if len(cols[i].Values) != len(cols[0].Values) {
			return TabularResult{}, fmt.Errorf("domain: column %q has %d values, want %d",
				cols[i].Name, len(cols[i].Values), len(cols[0].Values))
		}
	}
	return TabularResult{Columns: cols}, nil
}

// Len returns the row count.
func (t TabularResult) Len() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

func (t TabularResult) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (t TabularResult) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t TabularResult) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// WithColumn returns a copy of t where the named column holds values. An
// existing column keeps its position; a new one is appended.
func (t TabularResult) WithColumn(name string, values []any) TabularResult {
	cols := make([]Column, 0, len(t.Columns)+1)
	replaced := false
	for _, c := range t.Columns {
		if c.Name == name {
			c = Column{Name: name, Values: values}
			replaced = true
		}
		cols = append(cols, c)
	}
	if !replaced {
		cols = append(cols, Column{Name: name, Values: values})
	}
	return TabularResult{Columns: cols}
}

// SelectRows returns a copy of t holding only the rows at idx, in idx order.
func (t TabularResult) SelectRows(idx []int) TabularResult {
	cols := make([]Column, len(t.Columns))
	for i, c := range t.Columns {
		values := make([]any, len(idx))
		for j, r := range idx {
			values[j] = c.Values[r]
		}
		cols[i] = Column{Name: c.Name, Values: values}
	}
	return TabularResult{Columns: cols}
}

// Rows returns the values in row-major order.
func (t TabularResult) Rows() [][]any {
	rows := make([][]any, t.Len())
	for r := range rows {
		row := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			row[i] = c.Values[r]
		}
		rows[r] = row
	}
	return rows
}

// Records returns one map per row keyed by column name, the shape the map
// renderers consume.
func (t TabularResult) Records() []map[string]any {
	records := make([]map[string]any, t.Len())
	for r := range records {
		rec := make(map[string]any, len(t.Columns))
		for _, c := range t.Columns {
			rec[c.Name] = c.Values[r]
		}
		records[r] = rec
	}
	return records
}
