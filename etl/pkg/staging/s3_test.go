package staging

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/arborlabs/shopetl/etl/pkg/table"
	"github.com/arborlabs/shopetl/utils/pkg/retry"
	etltesting "github.com/arborlabs/shopetl/utils/pkg/testing"
)

// fakeObjectAPI keeps objects in memory and can fail the first N calls.
type fakeObjectAPI struct {
	objects  map[string][]byte
	putKeys  []string
	failPuts int
	failGets int
}

func newFakeObjectAPI() *fakeObjectAPI {
	return &fakeObjectAPI{objects: make(map[string][]byte)}
}

func (f *fakeObjectAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPuts > 0 {
		f.failPuts--
		return nil, errors.New("SlowDown: reduce your request rate")
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Key] = data
	f.putKeys = append(f.putKeys, *params.Key)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.failGets > 0 {
		f.failGets--
		return nil, errors.New("SlowDown: reduce your request rate")
	}
	data, ok := f.objects[*params.Key]
	if !ok {
		return nil, errors.New("NoSuchKey: the specified key does not exist")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func newTestStore(t *testing.T, api *fakeObjectAPI) *Store {
	t.Helper()
	s, err := NewStore(StoreConfig{
		Logger: etltesting.NewLogger(),
		Client: api,
		Bucket: "shopetl-staging",
		Prefix: "Data",
		Retry:  retry.Config{MaxAttempts: 3, BaseBackoff: 1, MaxBackoff: 1},
	})
	require.NoError(t, err)
	return s
}

func stagedTable(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.New("sellers", []table.Column{
		{Name: "seller_id", Type: table.String},
		{Name: "seller_city", Type: table.String},
	})
	require.NoError(t, tbl.AppendRow("s1", "curitiba"))
	return tbl
}

func TestETL_Staging_StoreConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("rejects missing bucket", func(t *testing.T) {
		t.Parallel()
		cfg := StoreConfig{Logger: etltesting.NewLogger(), Client: newFakeObjectAPI()}
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects missing client", func(t *testing.T) {
		t.Parallel()
		cfg := StoreConfig{Logger: etltesting.NewLogger(), Bucket: "b"}
		require.Error(t, cfg.Validate())
	})
}

func TestETL_Staging_Store(t *testing.T) {
	t.Parallel()

	t.Run("put writes under the prefix", func(t *testing.T) {
		t.Parallel()
		api := newFakeObjectAPI()
		s := newTestStore(t, api)
		require.NoError(t, s.Put(context.Background(), "sellers", stagedTable(t)))
		require.Equal(t, []string{"Data/sellers.parquet"}, api.putKeys)
	})

	t.Run("roundtrip through the object store", func(t *testing.T) {
		t.Parallel()
		api := newFakeObjectAPI()
		s := newTestStore(t, api)
		in := stagedTable(t)
		require.NoError(t, s.Put(context.Background(), "sellers", in))
		out, err := s.Get(context.Background(), "sellers")
		require.NoError(t, err)
		require.True(t, in.Equal(out))
	})

	t.Run("retries throttled puts", func(t *testing.T) {
		t.Parallel()
		api := newFakeObjectAPI()
		api.failPuts = 2
		s := newTestStore(t, api)
		require.NoError(t, s.Put(context.Background(), "sellers", stagedTable(t)))
		require.Len(t, api.putKeys, 1)
	})

	t.Run("missing object surfaces the key", func(t *testing.T) {
		t.Parallel()
		api := newFakeObjectAPI()
		s := newTestStore(t, api)
		_, err := s.Get(context.Background(), "orders")
		require.Error(t, err)
		require.Contains(t, err.Error(), "s3://shopetl-staging/Data/orders.parquet")
	})
}
