package transform

import (
	"fmt"
	"math"

	"github.com/arborlabs/shopetl/etl/pkg/schema"
	"github.com/arborlabs/shopetl/etl/pkg/table"
)

// buildOrdersFact assembles FACT_ORDERS at line-item grain.
//
// The order-scoped customer identifier on orders is substituted with the
// account-scoped one before the join, using the raw pre-dedup mapping.
// Line items left-join orders, then the reviews collapsed to the latest
// creation timestamp per order. Review metadata is dropped, the rating
// renamed, and total_price recomputed as round(freight_value + price)
// half-away-from-zero to an integer.
func buildOrdersFact(orderItems, orders, reviews *table.Table, customerKey map[string]string) (*table.Table, error) {
	orders, err := orders.MapColumn("customer_id", func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("non-textual customer_id %v", v)
		}
		accountScoped, found := customerKey[s]
		if !found {
			return nil, fmt.Errorf("order customer_id %s has no account-scoped mapping", s)
		}
		return accountScoped, nil
	})
	if err != nil {
		return nil, err
	}

	items := orderItems.DropColumns("order_items_id", "total_price")
	if items.HasColumn("quantity") {
		items, err = items.RenameColumn("quantity", "order_item_id")
		if err != nil {
			return nil, err
		}
	}

	latestReviews, err := reviews.DedupLatest("order_id", "review_creation_date")
	if err != nil {
		return nil, err
	}

	fact, err := items.LeftJoin(orders, "order_id")
	if err != nil {
		return nil, err
	}
	fact, err = fact.LeftJoin(latestReviews, "order_id")
	if err != nil {
		return nil, err
	}

	fact = fact.DropColumns(
		"review_id",
		"review_comment_title",
		"review_comment_message",
		"review_creation_date",
		"review_answer_timestamp",
	)
	fact, err = fact.RenameColumn("review_score", "order_rating")
	if err != nil {
		return nil, err
	}
	// Ratings arrive as integers from the source; the target column is FLOAT.
	fact, err = fact.MapColumn("order_rating", func(v any) (any, error) {
		switch x := v.(type) {
		case nil:
			return nil, nil
		case int64:
			return float64(x), nil
		case float64:
			return x, nil
		default:
			return nil, fmt.Errorf("unexpected rating value %v (%T)", v, v)
		}
	})
	if err != nil {
		return nil, err
	}
	fact, err = fact.SetColumnType("order_rating", table.Float64)
	if err != nil {
		return nil, err
	}

	priceIdx := fact.ColumnIndex("price")
	freightIdx := fact.ColumnIndex("freight_value")
	if priceIdx < 0 || freightIdx < 0 {
		return nil, fmt.Errorf("order items missing price or freight_value")
	}
	fact, err = fact.WithColumn(table.Column{Name: "total_price", Type: table.Int64}, func(row []any) (any, error) {
		price, ok1 := row[priceIdx].(float64)
		freight, ok2 := row[freightIdx].(float64)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("non-numeric price %v or freight_value %v", row[priceIdx], row[freightIdx])
		}
		return int64(math.Round(price + freight)), nil
	})
	if err != nil {
		return nil, err
	}
	return fact.Rename(schema.FactOrders), nil
}

// buildPaymentsFact passes the normalized payments table through unchanged
// in grain: it is already one row per order/payment-sequence pair.
func buildPaymentsFact(payments *table.Table) *table.Table {
	return payments.Rename(schema.FactPayments)
}

// checkReferentialIntegrity verifies that every non-null value of the fact's
// foreign-key column exists in the referenced dimension's key column. A
// violation carries the offending count and a key sample and aborts the load
// for that fact table.
func checkReferentialIntegrity(fact *table.Table, fkCol string, dim *table.Table, keyCol string) error {
	fi := fact.ColumnIndex(fkCol)
	if fi < 0 {
		return fmt.Errorf("fact table %s has no column %q", fact.Name(), fkCol)
	}
	ki := dim.ColumnIndex(keyCol)
	if ki < 0 {
		return fmt.Errorf("dimension table %s has no column %q", dim.Name(), keyCol)
	}
	keys := make(map[any]bool, dim.NumRows())
	for i := 0; i < dim.NumRows(); i++ {
		keys[dim.Row(i)[ki]] = true
	}
	missing := 0
	sample := make([]string, 0, sampleLimit)
	for i := 0; i < fact.NumRows(); i++ {
		v := fact.Row(i)[fi]
		if v == nil || keys[v] {
			continue
		}
		missing++
		if len(sample) < sampleLimit {
			sample = append(sample, fmt.Sprintf("%v", v))
		}
	}
	if missing > 0 {
		return &schema.ValidationError{
			Table:  fact.Name(),
			Column: fkCol,
			Reason: fmt.Sprintf("foreign key values missing from dimension %s", dim.Name()),
			Count:  missing,
			Sample: sample,
		}
	}
	return nil
}
