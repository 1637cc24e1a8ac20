package transform

import (
	"fmt"

	"github.com/arborlabs/shopetl/etl/pkg/schema"
	"github.com/arborlabs/shopetl/etl/pkg/table"
)

// CategoryFallback is the label a product category resolves to when its code
// is absent from the lookup.
const CategoryFallback = "unknown"

// assignSyntheticNames appends nameCol with values "<prefix>_<n>", where n is
// the 1-based index of the row's idCol value in the distinct-value
// enumeration. First-appearance order over a single scan keeps the mapping
// reproducible from fixed input.
func assignSyntheticNames(t *table.Table, idCol, nameCol, prefix string) (*table.Table, error) {
	distinct, err := t.DistinctValues(idCol)
	if err != nil {
		return nil, err
	}
	names := make(map[any]string, len(distinct))
	for i, v := range distinct {
		names[v] = fmt.Sprintf("%s_%d", prefix, i+1)
	}
	idIdx := t.ColumnIndex(idCol)
	return t.WithColumn(table.Column{Name: nameCol, Type: table.String}, func(row []any) (any, error) {
		name, ok := names[row[idIdx]]
		if !ok {
			return nil, fmt.Errorf("no synthetic name for %s value %v", idCol, row[idIdx])
		}
		return name, nil
	})
}

// buildCustomerKeyMap maps the order-scoped customer identifier to the
// account-scoped one from the raw (pre-dedup) customers table. The fact
// builder needs this mapping before dimension deduplication collapses it.
func buildCustomerKeyMap(customers *table.Table) (map[string]string, error) {
	oi := customers.ColumnIndex("customer_id")
	ai := customers.ColumnIndex("customer_unique_id")
	if oi < 0 || ai < 0 {
		return nil, fmt.Errorf("customers table missing customer_id or customer_unique_id")
	}
	m := make(map[string]string, customers.NumRows())
	for i := 0; i < customers.NumRows(); i++ {
		row := customers.Row(i)
		orderScoped, ok1 := row[oi].(string)
		accountScoped, ok2 := row[ai].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("customers row %d: non-textual identifier", i)
		}
		m[orderScoped] = accountScoped
	}
	return m, nil
}

// buildCustomerDimension derives DIM_CUSTOMERS: synthetic names over the
// account-scoped identifier, the order-scoped identifier dropped, exact
// duplicates collapsed, and the account-scoped column renamed to the
// dimension key.
func buildCustomerDimension(customers *table.Table) (*table.Table, error) {
	t, err := assignSyntheticNames(customers, "customer_unique_id", "customer_name", "Customer")
	if err != nil {
		return nil, err
	}
	t = t.DropColumns("customer_id").DedupExact()
	t, err = t.RenameColumn("customer_unique_id", "customer_id")
	if err != nil {
		return nil, err
	}
	return t.Rename(schema.DimCustomers), nil
}

func buildSellerDimension(sellers *table.Table) (*table.Table, error) {
	t, err := assignSyntheticNames(sellers, "seller_id", "seller_name", "Seller")
	if err != nil {
		return nil, err
	}
	return t.Rename(schema.DimSellers), nil
}

// categoryLookup builds the code→label mapping from the raw category table.
// The literal source value "unknown" maps to itself.
func categoryLookup(categories *table.Table) (map[string]string, error) {
	ci := categories.ColumnIndex("product_category_name")
	ei := categories.ColumnIndex("product_category_name_english")
	if ci < 0 || ei < 0 {
		return nil, fmt.Errorf("product_categories table missing lookup columns")
	}
	m := make(map[string]string, categories.NumRows()+1)
	for i := 0; i < categories.NumRows(); i++ {
		row := categories.Row(i)
		code, ok1 := row[ci].(string)
		label, ok2 := row[ei].(string)
		if !ok1 || !ok2 {
			continue
		}
		m[code] = label
	}
	m[CategoryFallback] = CategoryFallback
	return m, nil
}

// buildProductDimension derives DIM_PRODUCTS: misspelled source columns
// renamed, the category column rewritten through the lookup (with fallback),
// then synthetic names assigned.
func buildProductDimension(products, categories *table.Table) (*table.Table, error) {
	lookup, err := categoryLookup(categories)
	if err != nil {
		return nil, err
	}
	t := products
	for from, to := range map[string]string{
		"product_name_lenght":        "product_name_length",
		"product_description_lenght": "product_description_length",
	} {
		if t.HasColumn(from) {
			t, err = t.RenameColumn(from, to)
			if err != nil {
				return nil, err
			}
		}
	}
	t, err = t.MapColumn("product_category_name", func(v any) (any, error) {
		code, ok := v.(string)
		if !ok {
			return CategoryFallback, nil
		}
		if label, found := lookup[code]; found {
			return label, nil
		}
		return CategoryFallback, nil
	})
	if err != nil {
		return nil, err
	}
	t, err = assignSyntheticNames(t, "product_id", "product_name", "Product")
	if err != nil {
		return nil, err
	}
	return t.Rename(schema.DimProducts), nil
}
