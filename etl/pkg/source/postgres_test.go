package source

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/arborlabs/shopetl/etl/pkg/table"
	etltesting "github.com/arborlabs/shopetl/utils/pkg/testing"
)

func TestETL_Source_StoreConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := StoreConfig{Logger: etltesting.NewLogger()}
	require.Error(t, cfg.Validate())
}

func TestETL_Source_ColumnTypeForOID(t *testing.T) {
	t.Parallel()

	t.Run("uuid columns extract as text", func(t *testing.T) {
		t.Parallel()
		typ, err := columnTypeForOID(pgtype.UUIDOID)
		require.NoError(t, err)
		require.Equal(t, table.String, typ)
	})

	t.Run("integer widths collapse to int64", func(t *testing.T) {
		t.Parallel()
		for _, oid := range []uint32{pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID} {
			typ, err := columnTypeForOID(oid)
			require.NoError(t, err)
			require.Equal(t, table.Int64, typ)
		}
	})

	t.Run("numeric extracts as float64", func(t *testing.T) {
		t.Parallel()
		typ, err := columnTypeForOID(pgtype.NumericOID)
		require.NoError(t, err)
		require.Equal(t, table.Float64, typ)
	})

	t.Run("unsupported oid errors", func(t *testing.T) {
		t.Parallel()
		_, err := columnTypeForOID(pgtype.ByteaOID)
		require.Error(t, err)
	})
}

func TestETL_Source_ConvertValue(t *testing.T) {
	t.Parallel()

	t.Run("uuid bytes become hyphenated text", func(t *testing.T) {
		t.Parallel()
		id := uuid.MustParse("9ef432eb-6251-4978-6ba1-c7eed4a28b52")
		v, err := convertValue([16]byte(id))
		require.NoError(t, err)
		require.Equal(t, "9ef432eb-6251-4978-6ba1-c7eed4a28b52", v)
	})

	t.Run("narrow integers widen", func(t *testing.T) {
		t.Parallel()
		v, err := convertValue(int16(3))
		require.NoError(t, err)
		require.Equal(t, int64(3), v)
		v, err = convertValue(int32(14409))
		require.NoError(t, err)
		require.Equal(t, int64(14409), v)
	})

	t.Run("timestamps normalize to UTC", func(t *testing.T) {
		t.Parallel()
		loc := time.FixedZone("BRT", -3*3600)
		v, err := convertValue(time.Date(2018, time.May, 10, 9, 0, 0, 0, loc))
		require.NoError(t, err)
		got, ok := v.(time.Time)
		require.True(t, ok)
		require.Equal(t, time.UTC, got.Location())
	})

	t.Run("nil passes through", func(t *testing.T) {
		t.Parallel()
		v, err := convertValue(nil)
		require.NoError(t, err)
		require.Nil(t, v)
	})

	t.Run("unsupported type errors", func(t *testing.T) {
		t.Parallel()
		_, err := convertValue([]int{1})
		require.Error(t, err)
	})
}
