package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arborlabs/shopetl/etl/pkg/table"
)

func TestETL_Schema_Registry(t *testing.T) {
	t.Parallel()

	t.Run("catalogs all six targets", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		require.Equal(t, []string{
			FactOrders, FactPayments, DimCustomers, DimSellers, DimProducts, DimDates,
		}, r.TableNames())
	})

	t.Run("describe unknown table errors", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		_, err := r.Describe("fact_shipments")
		require.Error(t, err)
	})

	t.Run("dim_dates carries every calendar attribute", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		s, err := r.Describe(DimDates)
		require.NoError(t, err)
		names, err := s.ColumnNames()
		require.NoError(t, err)
		require.Equal(t, []string{
			"date", "quarter", "month", "year", "week_by_year", "day",
			"weekday", "weekday_name",
		}, names)
		require.Equal(t, []string{"date"}, s.KeyColumns())
	})
}

func TestETL_Schema_Validate(t *testing.T) {
	t.Parallel()

	dimDates := func(t *testing.T) *table.Table {
		t.Helper()
		tbl := table.New(DimDates, []table.Column{
			{Name: "date", Type: table.Timestamp},
			{Name: "quarter", Type: table.Int64},
			{Name: "month", Type: table.Int64},
			{Name: "year", Type: table.Int64},
			{Name: "week_by_year", Type: table.Int64},
			{Name: "day", Type: table.Int64},
			{Name: "weekday", Type: table.Int64},
			{Name: "weekday_name", Type: table.String},
		})
		require.NoError(t, tbl.AppendRow(
			time.Date(2017, time.June, 1, 0, 0, 0, 0, time.UTC),
			int64(2), int64(6), int64(2017), int64(22), int64(1), int64(3), "Thursday",
		))
		return tbl
	}

	t.Run("accepts exact match", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		require.NoError(t, r.Validate(DimDates, dimDates(t)))
	})

	t.Run("accepts superset with extra columns", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		tbl, err := dimDates(t).WithColumn(table.Column{Name: "is_weekend", Type: table.Int64}, func([]any) (any, error) {
			return int64(0), nil
		})
		require.NoError(t, err)
		require.NoError(t, r.Validate(DimDates, tbl))
	})

	t.Run("missing column fails", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		err := r.Validate(DimDates, dimDates(t).DropColumns("quarter"))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "quarter", verr.Column)
	})

	t.Run("type mismatch fails", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		tbl, err := dimDates(t).SetColumnType("year", table.String)
		require.NoError(t, err)
		err = r.Validate(DimDates, tbl)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "year", verr.Column)
		require.Contains(t, verr.Reason, "type mismatch")
	})
}

func TestETL_Schema_DDLFor(t *testing.T) {
	t.Parallel()

	t.Run("renders an idempotent MergeTree definition", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		ddl, err := r.DDLFor(FactPayments)
		require.NoError(t, err)
		require.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS fact_payments")
		require.Contains(t, ddl, "ENGINE = MergeTree()")
		require.Contains(t, ddl, "ORDER BY (order_id, payment_sequential)")
	})

	t.Run("key columns are not nullable, others are", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		ddl, err := r.DDLFor(FactPayments)
		require.NoError(t, err)
		require.Contains(t, ddl, "order_id String")
		require.Contains(t, ddl, "payment_type Nullable(String)")
		require.Contains(t, ddl, "payment_value Nullable(Float64)")
	})

	t.Run("integer tokens map to Int64", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		ddl, err := r.DDLFor(FactOrders)
		require.NoError(t, err)
		require.Contains(t, ddl, "total_price Nullable(Int64)")
	})
}
