package table

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestETL_Table_LeftJoin(t *testing.T) {
	t.Parallel()

	left := New("orders", []Column{
		{Name: "order_id", Type: String},
		{Name: "customer_id", Type: String},
	})
	require.NoError(t, left.AppendRow("o1", "c1"))
	require.NoError(t, left.AppendRow("o2", "c2"))
	require.NoError(t, left.AppendRow("o3", nil))

	right := New("payments", []Column{
		{Name: "order_id", Type: String},
		{Name: "value", Type: Float64},
	})
	require.NoError(t, right.AppendRow("o1", 10.0))
	require.NoError(t, right.AppendRow("o1", 20.0))

	t.Run("retains all left rows", func(t *testing.T) {
		t.Parallel()
		out, err := left.LeftJoin(right, "order_id")
		require.NoError(t, err)
		// o1 matches twice, o2 and o3 once each with NULL fill.
		require.Equal(t, 4, out.NumRows())
		require.Equal(t, 3, out.NumColumns())

		v, err := out.Value(0, "value")
		require.NoError(t, err)
		require.Equal(t, 10.0, v)
		v, err = out.Value(1, "value")
		require.NoError(t, err)
		require.Equal(t, 20.0, v)
		v, err = out.Value(2, "value")
		require.NoError(t, err)
		require.Nil(t, v)
	})

	t.Run("nil keys never match", func(t *testing.T) {
		t.Parallel()
		r := New("x", []Column{
			{Name: "order_id", Type: String},
			{Name: "note", Type: String},
		})
		require.NoError(t, r.AppendRow(nil, "orphan"))
		out, err := left.LeftJoin(r, "order_id")
		require.NoError(t, err)
		require.Equal(t, 3, out.NumRows())
		v, err := out.Value(2, "note")
		require.NoError(t, err)
		require.Nil(t, v)
	})

	t.Run("duplicate non-key column errors", func(t *testing.T) {
		t.Parallel()
		r := New("dup", []Column{
			{Name: "order_id", Type: String},
			{Name: "customer_id", Type: String},
		})
		_, err := left.LeftJoin(r, "order_id")
		require.Error(t, err)
		require.Contains(t, err.Error(), "duplicate column")
	})

	t.Run("missing join column errors", func(t *testing.T) {
		t.Parallel()
		r := New("r", []Column{{Name: "other", Type: String}})
		_, err := left.LeftJoin(r, "order_id")
		require.Error(t, err)
	})
}
