package schema

import (
	"fmt"
	"strings"
)

// chType maps a schema type token to the ClickHouse column type. Key columns
// stay non-nullable so they can appear in ORDER BY; everything else is
// Nullable because the source data carries NULLs (unmatched joins, absent
// timestamps, missing ratings).
func chType(token string, nullable bool) (string, error) {
	var t string
	switch token {
	case "VARCHAR":
		t = "String"
	case "INTEGER", "BIGINT":
		// Integer columns are carried as int64 in memory; a single warehouse
		// width keeps batch appends type-exact.
		t = "Int64"
	case "FLOAT":
		t = "Float64"
	case "TIMESTAMP":
		t = "DateTime64(3)"
	default:
		return "", fmt.Errorf("unknown schema type token %q", token)
	}
	if nullable {
		t = fmt.Sprintf("Nullable(%s)", t)
	}
	return t, nil
}

// DDLFor renders the create-table statement for a target. The statement is
// safe to re-issue: CREATE TABLE IF NOT EXISTS never fails on an existing
// table, so re-running the pipeline is idempotent at the DDL step.
func (r *Registry) DDLFor(name string) (string, error) {
	s, err := r.Describe(name)
	if err != nil {
		return "", err
	}
	isKey := make(map[string]bool, len(s.keyCols))
	for _, k := range s.keyCols {
		isKey[k] = true
	}
	defs := make([]string, 0, len(s.cols))
	for _, colDef := range s.cols {
		colName, colType, err := splitColumnDef(colDef)
		if err != nil {
			return "", err
		}
		cht, err := chType(colType, !isKey[colName])
		if err != nil {
			return "", err
		}
		defs = append(defs, fmt.Sprintf("    %s %s", colName, cht))
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n%s\n) ENGINE = MergeTree()\nORDER BY (%s)",
		s.name,
		strings.Join(defs, ",\n"),
		strings.Join(s.keyCols, ", "),
	), nil
}
