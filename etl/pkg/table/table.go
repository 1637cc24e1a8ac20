// Package table implements the in-memory tabular dataset that flows through
// the pipeline. Every operation is a pure function: the receiver is never
// mutated, a new table is returned.
package table

import (
	"fmt"
	"time"
)

// Type is the semantic type of a column.
type Type int

const (
	String Type = iota
	Int64
	Float64
	Timestamp
)

func (t Type) String() string {
	switch t {
	case String:
		return "String"
	case Int64:
		return "Int64"
	case Float64:
		return "Float64"
	case Timestamp:
		return "Timestamp"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Column is one entry in a table header.
type Column struct {
	Name string
	Type Type
}

// Table is an ordered sequence of rows under a fixed header. Cell values are
// string, int64, float64, time.Time or nil (NULL), matching the column type.
type Table struct {
	name     string
	cols     []Column
	colIndex map[string]int
	rows     [][]any
}

func New(name string, cols []Column) *Table {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c.Name] = i
	}
	return &Table{
		name:     name,
		cols:     cols,
		colIndex: idx,
		rows:     make([][]any, 0),
	}
}

func (t *Table) Name() string {
	return t.name
}

func (t *Table) Columns() []Column {
	out := make([]Column, len(t.cols))
	copy(out, t.cols)
	return out
}

func (t *Table) NumRows() int {
	return len(t.rows)
}

func (t *Table) NumColumns() int {
	return len(t.cols)
}

// ColumnIndex returns the position of the named column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.colIndex[name]; ok {
		return i
	}
	return -1
}

func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// ColumnType returns the declared type of the named column.
func (t *Table) ColumnType(name string) (Type, error) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return String, fmt.Errorf("table %s has no column %q", t.name, name)
	}
	return t.cols[i].Type, nil
}

// AppendRow appends a row. The value count must match the header.
func (t *Table) AppendRow(values ...any) error {
	if len(values) != len(t.cols) {
		return fmt.Errorf("table %s: row has %d values, header has %d columns", t.name, len(values), len(t.cols))
	}
	row := make([]any, len(values))
	copy(row, values)
	t.rows = append(t.rows, row)
	return nil
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.rows[i]))
	copy(row, t.rows[i])
	return row
}

// Value returns the cell at row i, named column. Returns an error for an
// unknown column, nil values are valid.
func (t *Table) Value(i int, col string) (any, error) {
	ci := t.ColumnIndex(col)
	if ci < 0 {
		return nil, fmt.Errorf("table %s has no column %q", t.name, col)
	}
	return t.rows[i][ci], nil
}

// Rename returns a copy of the table with a different name. Used when a raw
// table becomes a target table under a new identity.
func (t *Table) Rename(name string) *Table {
	out := t.clone()
	out.name = name
	return out
}

// RenameColumn returns a new table with the column renamed in place.
func (t *Table) RenameColumn(from, to string) (*Table, error) {
	i := t.ColumnIndex(from)
	if i < 0 {
		return nil, fmt.Errorf("table %s has no column %q", t.name, from)
	}
	out := t.clone()
	out.cols[i].Name = to
	delete(out.colIndex, from)
	out.colIndex[to] = i
	return out, nil
}

// DropColumns returns a new table without the named columns. Columns that do
// not exist are ignored, mirroring a drop with errors='ignore' semantics in
// the source contract.
func (t *Table) DropColumns(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	keep := make([]int, 0, len(t.cols))
	cols := make([]Column, 0, len(t.cols))
	for i, c := range t.cols {
		if !drop[c.Name] {
			keep = append(keep, i)
			cols = append(cols, c)
		}
	}
	out := New(t.name, cols)
	for _, row := range t.rows {
		nr := make([]any, len(keep))
		for j, i := range keep {
			nr[j] = row[i]
		}
		out.rows = append(out.rows, nr)
	}
	return out
}

// WithColumn returns a new table with an extra column appended to the header,
// computed per row.
func (t *Table) WithColumn(col Column, fn func(row []any) (any, error)) (*Table, error) {
	if t.HasColumn(col.Name) {
		return nil, fmt.Errorf("table %s already has column %q", t.name, col.Name)
	}
	cols := append(t.Columns(), col)
	out := New(t.name, cols)
	for i, row := range t.rows {
		v, err := fn(row)
		if err != nil {
			return nil, fmt.Errorf("table %s row %d: %w", t.name, i, err)
		}
		nr := make([]any, len(row)+1)
		copy(nr, row)
		nr[len(row)] = v
		out.rows = append(out.rows, nr)
	}
	return out, nil
}

// MapColumn returns a new table with the named column's values replaced by
// fn(old). fn receives nil for NULL cells and may return nil.
func (t *Table) MapColumn(name string, fn func(v any) (any, error)) (*Table, error) {
	ci := t.ColumnIndex(name)
	if ci < 0 {
		return nil, fmt.Errorf("table %s has no column %q", t.name, name)
	}
	out := t.clone()
	for i := range out.rows {
		v, err := fn(out.rows[i][ci])
		if err != nil {
			return nil, fmt.Errorf("table %s column %q row %d: %w", t.name, name, i, err)
		}
		out.rows[i][ci] = v
	}
	return out, nil
}

// SetColumnType returns a new table with the named column's declared type
// changed. Cell values are not converted; the caller is responsible for
// mapping them first.
func (t *Table) SetColumnType(name string, typ Type) (*Table, error) {
	ci := t.ColumnIndex(name)
	if ci < 0 {
		return nil, fmt.Errorf("table %s has no column %q", t.name, name)
	}
	out := t.clone()
	out.cols[ci].Type = typ
	return out, nil
}

// DistinctValues enumerates the distinct non-null values of a column in
// first-appearance order. The ordering is deterministic for a given input,
// which the synthetic-name assignment depends on.
func (t *Table) DistinctValues(name string) ([]any, error) {
	ci := t.ColumnIndex(name)
	if ci < 0 {
		return nil, fmt.Errorf("table %s has no column %q", t.name, name)
	}
	seen := make(map[any]bool)
	out := make([]any, 0)
	for _, row := range t.rows {
		v := row[ci]
		if v == nil || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

// DedupExact returns a new table with exact-duplicate rows removed, keeping
// the first occurrence. Row order is otherwise preserved.
func (t *Table) DedupExact() *Table {
	out := New(t.name, t.Columns())
	seen := make(map[string]bool, len(t.rows))
	for _, row := range t.rows {
		k := rowKey(row)
		if seen[k] {
			continue
		}
		seen[k] = true
		nr := make([]any, len(row))
		copy(nr, row)
		out.rows = append(out.rows, nr)
	}
	return out
}

// DedupLatest collapses the table to at most one row per key, keeping the row
// with the greatest non-null value in tsCol. Rows with equal timestamps keep
// whichever appears later in input order (stable keep-last). NULL timestamps
// lose to any non-null timestamp.
func (t *Table) DedupLatest(keyCol, tsCol string) (*Table, error) {
	ki := t.ColumnIndex(keyCol)
	if ki < 0 {
		return nil, fmt.Errorf("table %s has no column %q", t.name, keyCol)
	}
	ti := t.ColumnIndex(tsCol)
	if ti < 0 {
		return nil, fmt.Errorf("table %s has no column %q", t.name, tsCol)
	}
	type pick struct {
		row []any
		ts  *time.Time
	}
	picks := make(map[any]pick)
	order := make([]any, 0)
	for _, row := range t.rows {
		key := row[ki]
		var ts *time.Time
		if row[ti] != nil {
			v, ok := row[ti].(time.Time)
			if !ok {
				return nil, fmt.Errorf("table %s column %q: expected timestamp, got %T", t.name, tsCol, row[ti])
			}
			ts = &v
		}
		prev, exists := picks[key]
		if !exists {
			picks[key] = pick{row: row, ts: ts}
			order = append(order, key)
			continue
		}
		if laterOrEqual(ts, prev.ts) {
			picks[key] = pick{row: row, ts: ts}
		}
	}
	out := New(t.name, t.Columns())
	for _, key := range order {
		row := picks[key].row
		nr := make([]any, len(row))
		copy(nr, row)
		out.rows = append(out.rows, nr)
	}
	return out, nil
}

// Equal reports whether two tables have identical names, headers and rows.
func (t *Table) Equal(o *Table) bool {
	if t.name != o.name || len(t.cols) != len(o.cols) || len(t.rows) != len(o.rows) {
		return false
	}
	for i := range t.cols {
		if t.cols[i] != o.cols[i] {
			return false
		}
	}
	for i := range t.rows {
		if rowKey(t.rows[i]) != rowKey(o.rows[i]) {
			return false
		}
	}
	return true
}

func (t *Table) clone() *Table {
	out := New(t.name, t.Columns())
	out.rows = make([][]any, len(t.rows))
	for i, row := range t.rows {
		nr := make([]any, len(row))
		copy(nr, row)
		out.rows[i] = nr
	}
	return out
}

// rowKey renders a row into a deterministic comparison key. Timestamps are
// rendered in UTC nanoseconds so equal instants compare equal regardless of
// location.
func rowKey(row []any) string {
	out := ""
	for _, v := range row {
		switch x := v.(type) {
		case nil:
			out += "\x00nil"
		case time.Time:
			out += fmt.Sprintf("\x00ts:%d", x.UTC().UnixNano())
		default:
			out += fmt.Sprintf("\x00%T:%v", x, x)
		}
	}
	return out
}

func laterOrEqual(a, b *time.Time) bool {
	if a == nil {
		return b == nil
	}
	if b == nil {
		return true
	}
	return !a.Before(*b)
}
