// Package staging persists raw tables as columnar interchange objects in an
// S3 bucket, one snappy-compressed parquet file per table, overwritten on
// every run.
package staging

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/arborlabs/shopetl/etl/pkg/table"
)

const writeBatchSize = 1024

// parquetSchema derives a parquet schema from a table header. Every column
// is optional: raw data carries NULLs. Identifier columns are plain UTF8
// text for cross-tool readability.
func parquetSchema(t *table.Table) (*parquet.Schema, error) {
	group := parquet.Group{}
	for _, c := range t.Columns() {
		var node parquet.Node
		switch c.Type {
		case table.String:
			node = parquet.String()
		case table.Int64:
			node = parquet.Int(64)
		case table.Float64:
			node = parquet.Leaf(parquet.DoubleType)
		case table.Timestamp:
			node = parquet.Timestamp(parquet.Millisecond)
		default:
			return nil, fmt.Errorf("column %s: unsupported type %s", c.Name, c.Type)
		}
		group[c.Name] = parquet.Optional(node)
	}
	return parquet.NewSchema(t.Name(), group), nil
}

// encode serializes a table to parquet with snappy compression.
func encode(t *table.Table) ([]byte, error) {
	schema, err := parquetSchema(t)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[map[string]any](&buf, schema, parquet.Compression(&parquet.Snappy))

	cols := t.Columns()
	batch := make([]map[string]any, 0, writeBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := w.Write(batch); err != nil {
			return fmt.Errorf("failed to write parquet rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}
	for i := 0; i < t.NumRows(); i++ {
		row := t.Row(i)
		m := make(map[string]any, len(cols))
		for j, c := range cols {
			if row[j] == nil {
				continue
			}
			m[c.Name] = row[j]
		}
		batch = append(batch, m)
		if len(batch) == writeBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// decode reads a parquet object back into a table, recovering the header
// from the file schema.
func decode(name string, data []byte) (*table.Table, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	cols := make([]table.Column, 0, len(f.Schema().Fields()))
	for _, field := range f.Schema().Fields() {
		typ, err := columnTypeOf(field)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", field.Name(), err)
		}
		cols = append(cols, table.Column{Name: field.Name(), Type: typ})
	}
	out := table.New(name, cols)

	r := parquet.NewGenericReader[map[string]any](bytes.NewReader(data), f.Schema())
	defer r.Close()
	batch := make([]map[string]any, writeBatchSize)
	for i := range batch {
		batch[i] = make(map[string]any)
	}
	for {
		n, err := r.Read(batch)
		for i := 0; i < n; i++ {
			row := make([]any, len(cols))
			for j, c := range cols {
				v, ok := batch[i][c.Name]
				if !ok || v == nil {
					continue
				}
				cv, err := convertCell(c.Type, v)
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", c.Name, err)
				}
				row[j] = cv
			}
			if err := out.AppendRow(row...); err != nil {
				return nil, err
			}
		}
		if err != nil {
			break
		}
	}
	return out, nil
}

// columnTypeOf maps a parquet leaf back to the in-memory column type.
// Logical annotations win over the physical type so timestamps and text are
// not mistaken for plain integers and byte arrays.
func columnTypeOf(field parquet.Field) (table.Type, error) {
	if lt := field.Type().LogicalType(); lt != nil {
		switch {
		case lt.UTF8 != nil:
			return table.String, nil
		case lt.Timestamp != nil:
			return table.Timestamp, nil
		case lt.Integer != nil:
			return table.Int64, nil
		}
	}
	switch field.Type().Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return table.String, nil
	case parquet.Int32, parquet.Int64:
		return table.Int64, nil
	case parquet.Double, parquet.Float:
		return table.Float64, nil
	default:
		return table.String, fmt.Errorf("unsupported parquet kind %s", field.Type().Kind())
	}
}

func convertCell(typ table.Type, v any) (any, error) {
	switch typ {
	case table.String:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case table.Int64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int32:
			return int64(x), nil
		}
	case table.Float64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		}
	case table.Timestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case int64:
			return time.UnixMilli(x).UTC(), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, typ)
}
