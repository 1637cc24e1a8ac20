// Package schema holds the fixed catalog of warehouse target tables and the
// conformance checks a transformed table must pass before load.
package schema

import (
	"fmt"
	"strings"

	"github.com/arborlabs/shopetl/etl/pkg/table"
)

// Target table names.
const (
	FactOrders   = "FACT_ORDERS"
	FactPayments = "FACT_PAYMENTS"
	DimCustomers = "DIM_CUSTOMERS"
	DimSellers   = "DIM_SELLERS"
	DimProducts  = "DIM_PRODUCTS"
	DimDates     = "DIM_DATES"
)

// TableSchema describes one warehouse target: an ordered list of column
// definitions in "name:TYPE" format and the key columns the table is ordered
// by. Type tokens are VARCHAR, INTEGER, BIGINT, FLOAT and TIMESTAMP.
type TableSchema struct {
	name    string
	keyCols []string
	cols    []string
}

func (s TableSchema) Name() string {
	return s.name
}

func (s TableSchema) KeyColumns() []string {
	return s.keyCols
}

func (s TableSchema) Columns() []string {
	return s.cols
}

func (s TableSchema) ColumnNames() ([]string, error) {
	return extractColumnNames(s.cols)
}

var targets = []TableSchema{
	{
		name:    FactOrders,
		keyCols: []string{"order_id", "order_item_id"},
		cols: []string{
			"order_id:VARCHAR",
			"order_item_id:INTEGER",
			"product_id:VARCHAR",
			"seller_id:VARCHAR",
			"shipping_limit_date:TIMESTAMP",
			"price:FLOAT",
			"freight_value:FLOAT",
			"total_price:BIGINT",
			"customer_id:VARCHAR",
			"order_status:VARCHAR",
			"order_purchase_timestamp:TIMESTAMP",
			"order_approved_at:TIMESTAMP",
			"order_delivered_carrier_date:TIMESTAMP",
			"order_delivered_customer_date:TIMESTAMP",
			"order_estimated_delivery_date:TIMESTAMP",
			"order_rating:FLOAT",
		},
	},
	{
		name:    FactPayments,
		keyCols: []string{"order_id", "payment_sequential"},
		cols: []string{
			"order_id:VARCHAR",
			"payment_sequential:INTEGER",
			"payment_type:VARCHAR",
			"payment_installments:INTEGER",
			"payment_value:FLOAT",
		},
	},
	{
		name:    DimCustomers,
		keyCols: []string{"customer_id"},
		cols: []string{
			"customer_id:VARCHAR",
			"customer_zip_code_prefix:INTEGER",
			"customer_city:VARCHAR",
			"customer_state:VARCHAR",
			"customer_name:VARCHAR",
		},
	},
	{
		name:    DimSellers,
		keyCols: []string{"seller_id"},
		cols: []string{
			"seller_id:VARCHAR",
			"seller_zip_code_prefix:INTEGER",
			"seller_city:VARCHAR",
			"seller_state:VARCHAR",
			"seller_name:VARCHAR",
		},
	},
	{
		name:    DimProducts,
		keyCols: []string{"product_id"},
		cols: []string{
			"product_id:VARCHAR",
			"product_category_name:VARCHAR",
			"product_name_length:INTEGER",
			"product_description_length:INTEGER",
			"product_photos_qty:INTEGER",
			"product_weight_g:INTEGER",
			"product_length_cm:INTEGER",
			"product_height_cm:INTEGER",
			"product_width_cm:INTEGER",
			"product_name:VARCHAR",
		},
	},
	{
		name:    DimDates,
		keyCols: []string{"date"},
		cols: []string{
			"date:TIMESTAMP",
			"quarter:INTEGER",
			"month:INTEGER",
			"year:INTEGER",
			"week_by_year:INTEGER",
			"day:INTEGER",
			"weekday:INTEGER",
			"weekday_name:VARCHAR",
		},
	},
}

// Registry is the fixed catalog of warehouse targets.
type Registry struct {
	byName map[string]TableSchema
	names  []string
}

func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]TableSchema, len(targets))}
	for _, s := range targets {
		r.byName[s.name] = s
		r.names = append(r.names, s.name)
	}
	return r
}

// TableNames returns the target table names in catalog order.
func (r *Registry) TableNames() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) Describe(name string) (TableSchema, error) {
	s, ok := r.byName[name]
	if !ok {
		return TableSchema{}, fmt.Errorf("unknown target table %q", name)
	}
	return s, nil
}

// Validate checks that a transformed table's columns are an
// order-independent superset of the target's expected columns with
// compatible types.
func (r *Registry) Validate(name string, t *table.Table) error {
	s, err := r.Describe(name)
	if err != nil {
		return err
	}
	for _, colDef := range s.cols {
		colName, colType, err := splitColumnDef(colDef)
		if err != nil {
			return err
		}
		if !t.HasColumn(colName) {
			return &ValidationError{
				Table:  name,
				Column: colName,
				Reason: "column missing from transformed table",
			}
		}
		got, err := t.ColumnType(colName)
		if err != nil {
			return err
		}
		want, err := semanticType(colType)
		if err != nil {
			return err
		}
		if got != want {
			return &ValidationError{
				Table:  name,
				Column: colName,
				Reason: fmt.Sprintf("type mismatch: schema expects %s (%s), table has %s", colType, want, got),
			}
		}
	}
	return nil
}

// semanticType maps a schema type token to the in-memory table type it must
// be carried as.
func semanticType(token string) (table.Type, error) {
	switch token {
	case "VARCHAR":
		return table.String, nil
	case "INTEGER", "BIGINT":
		return table.Int64, nil
	case "FLOAT":
		return table.Float64, nil
	case "TIMESTAMP":
		return table.Timestamp, nil
	default:
		return table.String, fmt.Errorf("unknown schema type token %q", token)
	}
}

func splitColumnDef(colDef string) (string, string, error) {
	parts := strings.SplitN(colDef, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid column definition %q: expected format 'name:TYPE'", colDef)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

func extractColumnNames(colDefs []string) ([]string, error) {
	names := make([]string, 0, len(colDefs))
	for _, colDef := range colDefs {
		name, _, err := splitColumnDef(colDef)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
