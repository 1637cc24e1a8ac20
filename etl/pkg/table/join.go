package table

import "fmt"

// LeftJoin joins two tables on a shared key column. Every left row is
// retained: rows with no match get NULLs for the right table's columns, rows
// with multiple matches are emitted once per match in the right table's row
// order. The key column appears once, from the left table.
func (t *Table) LeftJoin(right *Table, key string) (*Table, error) {
	li := t.ColumnIndex(key)
	if li < 0 {
		return nil, fmt.Errorf("left table %s has no join column %q", t.name, key)
	}
	ri := right.ColumnIndex(key)
	if ri < 0 {
		return nil, fmt.Errorf("right table %s has no join column %q", right.name, key)
	}

	for _, c := range right.cols {
		if c.Name != key && t.HasColumn(c.Name) {
			return nil, fmt.Errorf("join of %s and %s: duplicate column %q", t.name, right.name, c.Name)
		}
	}

	// Right columns carried into the result, in header order, key excluded.
	rightKeep := make([]int, 0, len(right.cols)-1)
	cols := t.Columns()
	for i, c := range right.cols {
		if c.Name == key {
			continue
		}
		rightKeep = append(rightKeep, i)
		cols = append(cols, c)
	}

	index := make(map[any][]int, len(right.rows))
	for i, row := range right.rows {
		k := row[ri]
		if k == nil {
			continue
		}
		index[k] = append(index[k], i)
	}

	out := New(t.name, cols)
	for _, lrow := range t.rows {
		matches := index[lrow[li]]
		if lrow[li] == nil || len(matches) == 0 {
			nr := make([]any, len(cols))
			copy(nr, lrow)
			out.rows = append(out.rows, nr)
			continue
		}
		for _, m := range matches {
			nr := make([]any, len(cols))
			copy(nr, lrow)
			for j, riIdx := range rightKeep {
				nr[len(lrow)+j] = right.rows[m][riIdx]
			}
			out.rows = append(out.rows, nr)
		}
	}
	return out, nil
}
