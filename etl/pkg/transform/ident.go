package transform

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/arborlabs/shopetl/etl/pkg/schema"
	"github.com/arborlabs/shopetl/etl/pkg/table"
)

// identifierSuffix marks identifier-typed columns. Only textual columns
// qualify: order_item_id is a line number, not an identifier, and its Int64
// type keeps it out.
const identifierSuffix = "_id"

const sampleLimit = 5

// IdentifierColumns returns the columns of t treated as identifiers, in
// header order.
func IdentifierColumns(t *table.Table) []string {
	out := make([]string, 0)
	for _, c := range t.Columns() {
		if c.Type == table.String && strings.HasSuffix(c.Name, identifierSuffix) {
			out = append(out, c.Name)
		}
	}
	return out
}

// NormalizeIdentifiers returns a new table where every identifier column
// holds the canonical lowercase hyphenated form, comparable across tables.
// A NULL or unparsable identifier aborts the run: the source contract
// promises validity, so a bad value means the extract is broken, not the
// row.
func NormalizeIdentifiers(t *table.Table) (*table.Table, error) {
	out := t
	for _, col := range IdentifierColumns(t) {
		bad := 0
		sample := make([]string, 0, sampleLimit)
		normalized, err := out.MapColumn(col, func(v any) (any, error) {
			s, ok := v.(string)
			if v == nil || !ok {
				bad++
				if len(sample) < sampleLimit {
					sample = append(sample, fmt.Sprintf("%v", v))
				}
				return v, nil
			}
			id, err := uuid.Parse(s)
			if err != nil {
				bad++
				if len(sample) < sampleLimit {
					sample = append(sample, s)
				}
				return v, nil
			}
			return id.String(), nil
		})
		if err != nil {
			return nil, err
		}
		if bad > 0 {
			return nil, &schema.ValidationError{
				Table:  t.Name(),
				Column: col,
				Reason: "identifier values failed to parse",
				Count:  bad,
				Sample: sample,
			}
		}
		out = normalized
	}
	return out, nil
}
