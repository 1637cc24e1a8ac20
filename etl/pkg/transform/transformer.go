// Package transform converts normalized raw tables into the conformed
// dimension and fact tables of the star schema. The whole stage is a pure
// function of its input: byte-identical raw tables always produce
// byte-identical outputs.
package transform

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/arborlabs/shopetl/etl/pkg/schema"
	"github.com/arborlabs/shopetl/etl/pkg/table"
)

// Raw source table names consumed by the transform stage.
const (
	RawCustomers     = "customers"
	RawOrders        = "orders"
	RawOrderItems    = "order_items"
	RawOrderPayments = "order_payments"
	RawOrderReviews  = "order_reviews"
	RawProducts      = "products"
	RawSellers       = "sellers"
	RawCategories    = "product_categories"
)

// RequiredTables lists the raw tables the transform needs, in extraction
// order.
func RequiredTables() []string {
	return []string{
		RawCustomers,
		RawOrders,
		RawOrderItems,
		RawOrderPayments,
		RawOrderReviews,
		RawProducts,
		RawSellers,
		RawCategories,
	}
}

type Config struct {
	Logger *slog.Logger
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

type Transformer struct {
	log *slog.Logger
}

func New(cfg Config) (*Transformer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Transformer{log: cfg.Logger}, nil
}

// Result holds the transformed tables keyed by warehouse target name.
type Result struct {
	Tables map[string]*table.Table
}

// Run executes the transform stage. Empty or missing raw input fails fast
// before any output table is produced: zero raw rows is always an upstream
// failure in a full-refresh pipeline, never a valid dimension.
func (tr *Transformer) Run(raw map[string]*table.Table) (*Result, error) {
	for _, name := range RequiredTables() {
		t, ok := raw[name]
		if !ok || t == nil {
			return nil, fmt.Errorf("raw table %s is missing", name)
		}
		if t.NumRows() == 0 {
			return nil, fmt.Errorf("raw table %s is empty", name)
		}
	}

	normalized := make(map[string]*table.Table, len(raw))
	for _, name := range RequiredTables() {
		t, err := NormalizeIdentifiers(raw[name])
		if err != nil {
			return nil, fmt.Errorf("failed to normalize identifiers in %s: %w", name, err)
		}
		normalized[name] = t
	}

	// The fact builder needs the raw order-scoped to account-scoped mapping
	// before dimension deduplication collapses it.
	customerKey, err := buildCustomerKeyMap(normalized[RawCustomers])
	if err != nil {
		return nil, fmt.Errorf("failed to build customer key map: %w", err)
	}

	dimCustomers, err := buildCustomerDimension(normalized[RawCustomers])
	if err != nil {
		return nil, fmt.Errorf("failed to build customer dimension: %w", err)
	}
	dimSellers, err := buildSellerDimension(normalized[RawSellers])
	if err != nil {
		return nil, fmt.Errorf("failed to build seller dimension: %w", err)
	}
	dimProducts, err := buildProductDimension(normalized[RawProducts], normalized[RawCategories])
	if err != nil {
		return nil, fmt.Errorf("failed to build product dimension: %w", err)
	}
	dimDates, err := BuildDateDimension()
	if err != nil {
		return nil, fmt.Errorf("failed to build date dimension: %w", err)
	}

	factOrders, err := buildOrdersFact(
		normalized[RawOrderItems],
		normalized[RawOrders],
		normalized[RawOrderReviews],
		customerKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build orders fact: %w", err)
	}
	factPayments := buildPaymentsFact(normalized[RawOrderPayments])

	for _, check := range []struct {
		fact  *table.Table
		fkCol string
		dim   *table.Table
		key   string
	}{
		{factOrders, "customer_id", dimCustomers, "customer_id"},
		{factOrders, "product_id", dimProducts, "product_id"},
		{factOrders, "seller_id", dimSellers, "seller_id"},
	} {
		if err := checkReferentialIntegrity(check.fact, check.fkCol, check.dim, check.key); err != nil {
			return nil, err
		}
	}

	result := &Result{Tables: map[string]*table.Table{
		schema.FactOrders:   factOrders,
		schema.FactPayments: factPayments,
		schema.DimCustomers: dimCustomers,
		schema.DimSellers:   dimSellers,
		schema.DimProducts:  dimProducts,
		schema.DimDates:     dimDates,
	}}
	for name, t := range result.Tables {
		tr.log.Debug("transformed table", "table", name, "rows", t.NumRows(), "columns", t.NumColumns())
	}
	return result, nil
}
