package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

type colKind int

const (
	kindText colKind = iota
	kindUUID
	kindInt
	kindFloat
	kindTimestamp
)

func (k colKind) pgType() string {
	switch k {
	case kindUUID:
		return "uuid"
	case kindInt:
		return "integer"
	case kindFloat:
		return "double precision"
	case kindTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}

type seedColumn struct {
	name string
	kind colKind
	// csvName is the header this column is read from; empty means same as
	// name, "-" means the column is synthesized by a preprocess step.
	csvName string
}

type seedTable struct {
	name    string
	csvFile string
	cols    []seedColumn
}

// The operational schema of the nine raw tables, matching the public Olist
// dataset CSV layout.
var seedTables = []seedTable{
	{
		name:    "customers",
		csvFile: "olist_customers_dataset.csv",
		cols: []seedColumn{
			{name: "customer_id", kind: kindUUID},
			{name: "customer_unique_id", kind: kindUUID},
			{name: "customer_zip_code_prefix", kind: kindInt},
			{name: "customer_city", kind: kindText},
			{name: "customer_state", kind: kindText},
		},
	},
	{
		name:    "geolocations",
		csvFile: "olist_geolocation_dataset.csv",
		cols: []seedColumn{
			{name: "geolocation_zip_code_prefix", kind: kindInt},
			{name: "geolocation_lat", kind: kindFloat},
			{name: "geolocation_lng", kind: kindFloat},
			{name: "geolocation_city", kind: kindText},
			{name: "geolocation_state", kind: kindText},
		},
	},
	{
		name:    "order_items",
		csvFile: "olist_order_items_dataset.csv",
		cols: []seedColumn{
			{name: "order_items_id", kind: kindInt, csvName: "-"},
			{name: "order_id", kind: kindUUID},
			{name: "quantity", kind: kindInt, csvName: "order_item_id"},
			{name: "product_id", kind: kindUUID},
			{name: "seller_id", kind: kindUUID},
			{name: "shipping_limit_date", kind: kindTimestamp},
			{name: "price", kind: kindFloat},
			{name: "freight_value", kind: kindFloat},
			{name: "total_price", kind: kindFloat, csvName: "-"},
		},
	},
	{
		name:    "order_payments",
		csvFile: "olist_order_payments_dataset.csv",
		cols: []seedColumn{
			{name: "order_id", kind: kindUUID},
			{name: "payment_sequential", kind: kindInt},
			{name: "payment_type", kind: kindText},
			{name: "payment_installments", kind: kindInt},
			{name: "payment_value", kind: kindFloat},
		},
	},
	{
		name:    "order_reviews",
		csvFile: "olist_order_reviews_dataset.csv",
		cols: []seedColumn{
			{name: "review_id", kind: kindUUID},
			{name: "order_id", kind: kindUUID},
			{name: "review_score", kind: kindInt},
			{name: "review_comment_title", kind: kindText},
			{name: "review_comment_message", kind: kindText},
			{name: "review_creation_date", kind: kindTimestamp},
			{name: "review_answer_timestamp", kind: kindTimestamp},
		},
	},
	{
		name:    "orders",
		csvFile: "olist_orders_dataset.csv",
		cols: []seedColumn{
			{name: "order_id", kind: kindUUID},
			{name: "customer_id", kind: kindUUID},
			{name: "order_status", kind: kindText},
			{name: "order_purchase_timestamp", kind: kindTimestamp},
			{name: "order_approved_at", kind: kindTimestamp},
			{name: "order_delivered_carrier_date", kind: kindTimestamp},
			{name: "order_delivered_customer_date", kind: kindTimestamp},
			{name: "order_estimated_delivery_date", kind: kindTimestamp},
		},
	},
	{
		name:    "products",
		csvFile: "olist_products_dataset.csv",
		cols: []seedColumn{
			{name: "product_id", kind: kindUUID},
			{name: "product_category_name", kind: kindText},
			{name: "product_name_lenght", kind: kindInt},
			{name: "product_description_lenght", kind: kindInt},
			{name: "product_photos_qty", kind: kindInt},
			{name: "product_weight_g", kind: kindInt},
			{name: "product_length_cm", kind: kindInt},
			{name: "product_height_cm", kind: kindInt},
			{name: "product_width_cm", kind: kindInt},
		},
	},
	{
		name:    "sellers",
		csvFile: "olist_sellers_dataset.csv",
		cols: []seedColumn{
			{name: "seller_id", kind: kindUUID},
			{name: "seller_zip_code_prefix", kind: kindInt},
			{name: "seller_city", kind: kindText},
			{name: "seller_state", kind: kindText},
		},
	},
	{
		name:    "product_categories",
		csvFile: "product_category_name_translation.csv",
		cols: []seedColumn{
			{name: "product_category_name", kind: kindText},
			{name: "product_category_name_english", kind: kindText},
		},
	},
}

// SeedTableNames returns the raw source tables in seeding order.
func SeedTableNames() []string {
	out := make([]string, 0, len(seedTables))
	for _, t := range seedTables {
		out = append(out, t.name)
	}
	return out
}

func (t seedTable) ddl() string {
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (", t.name)
	for i, c := range t.cols {
		if i > 0 {
			stmt += ", "
		}
		stmt += fmt.Sprintf("%s %s", c.name, c.kind.pgType())
	}
	return stmt + ")"
}

// EnsureSchema creates the raw source tables when absent. Safe to re-issue.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, t := range seedTables {
		if _, err := s.cfg.Pool.Exec(ctx, t.ddl()); err != nil {
			return fmt.Errorf("failed to create source table %s: %w", t.name, err)
		}
	}
	return nil
}

// SeedFromCSV loads every raw table from its dataset CSV with replace
// semantics: truncate, then bulk copy.
func (s *Store) SeedFromCSV(ctx context.Context, dir string) error {
	for _, t := range seedTables {
		if err := s.seedTable(ctx, t, filepath.Join(dir, t.csvFile)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seedTable(ctx context.Context, t seedTable, csvPath string) error {
	s.log.Info("seeding source table", "table", t.name, "csv", csvPath)

	rows, err := readSeedCSV(t, csvPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", csvPath, err)
	}

	if _, err := s.cfg.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", t.name)); err != nil {
		return fmt.Errorf("failed to truncate source table %s: %w", t.name, err)
	}

	colNames := make([]string, 0, len(t.cols))
	for _, c := range t.cols {
		colNames = append(colNames, c.name)
	}
	n, err := s.cfg.Pool.CopyFrom(ctx, pgx.Identifier{t.name}, colNames, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy into %s: %w", t.name, err)
	}

	s.log.Info("seeded source table", "table", t.name, "rows", n)
	return nil
}

func readSeedCSV(t seedTable, path string) ([][]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	headerIdx := make(map[string]int, len(header))
	for i, h := range header {
		headerIdx[h] = i
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	rows := make([][]any, 0, len(records))
	for ri, rec := range records {
		row := make([]any, len(t.cols))
		for ci, c := range t.cols {
			if c.csvName == "-" {
				continue
			}
			csvName := c.name
			if c.csvName != "" {
				csvName = c.csvName
			}
			hi, ok := headerIdx[csvName]
			if !ok {
				return nil, fmt.Errorf("column %s missing from CSV header", csvName)
			}
			v, err := parseSeedValue(c.kind, rec[hi])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", ri+1, c.name, err)
			}
			row[ci] = v
		}
		if err := preprocessSeedRow(t, ri, row); err != nil {
			return nil, fmt.Errorf("row %d: %w", ri+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// preprocessSeedRow fills synthesized columns. For order_items that is the
// surrogate line identifier and the provisional quantity-based total the
// operational schema carries (the transform recomputes the analytical one).
func preprocessSeedRow(t seedTable, index int, row []any) error {
	if t.name != "order_items" {
		return nil
	}
	var quantity int64
	var price, freight float64
	for i, c := range t.cols {
		switch c.name {
		case "order_items_id":
			row[i] = int64(index)
		case "quantity":
			if v, ok := row[i].(int64); ok {
				quantity = v
			}
		case "price":
			if v, ok := row[i].(float64); ok {
				price = v
			}
		case "freight_value":
			if v, ok := row[i].(float64); ok {
				freight = v
			}
		}
	}
	for i, c := range t.cols {
		if c.name == "total_price" {
			row[i] = float64(quantity)*price + freight
		}
	}
	return nil
}

func parseSeedValue(kind colKind, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	switch kind {
	case kindText, kindUUID:
		return raw, nil
	case kindInt:
		// Some numeric CSV columns carry a float rendering of whole numbers.
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		return int64(f), nil
	case kindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q", raw)
		}
		return f, nil
	case kindTimestamp:
		ts, err := time.Parse("2006-01-02 15:04:05", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q", raw)
		}
		return ts.UTC(), nil
	default:
		return nil, fmt.Errorf("unknown column kind %d", kind)
	}
}
