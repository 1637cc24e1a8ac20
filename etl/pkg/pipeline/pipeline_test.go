package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/arborlabs/shopetl/etl/pkg/schema"
	"github.com/arborlabs/shopetl/etl/pkg/table"
	"github.com/arborlabs/shopetl/etl/pkg/transform"
	etltesting "github.com/arborlabs/shopetl/utils/pkg/testing"
)

type fakeSource struct {
	tables map[string]*table.Table
	errFor map[string]error
}

func (s *fakeSource) ExtractTable(ctx context.Context, name string) (*table.Table, error) {
	if err := s.errFor[name]; err != nil {
		return nil, err
	}
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", name)
	}
	return t, nil
}

type fakeSeeder struct {
	schemaErr  error
	seededDirs []string
}

func (s *fakeSeeder) EnsureSchema(ctx context.Context) error { return s.schemaErr }

func (s *fakeSeeder) SeedFromCSV(ctx context.Context, dir string) error {
	s.seededDirs = append(s.seededDirs, dir)
	return nil
}

type fakeStaging struct {
	mu      sync.Mutex
	objects map[string]*table.Table
	getErr  map[string]error
	putErr  map[string]error
}

func newFakeStaging() *fakeStaging {
	return &fakeStaging{
		objects: make(map[string]*table.Table),
		getErr:  make(map[string]error),
		putErr:  make(map[string]error),
	}
}

func (s *fakeStaging) Put(ctx context.Context, name string, t *table.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putErr[name]; err != nil {
		return err
	}
	s.objects[name] = t
	return nil
}

func (s *fakeStaging) Get(ctx context.Context, name string) (*table.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErr[name]; err != nil {
		return nil, err
	}
	t, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("no staged object for %s", name)
	}
	return t, nil
}

type fakeLoader struct {
	mu       sync.Mutex
	ddls     []string
	replaced map[string]int
	failFor  map[string]error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		replaced: make(map[string]int),
		failFor:  make(map[string]error),
	}
}

func (l *fakeLoader) EnsureTable(ctx context.Context, ddl string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ddls = append(l.ddls, ddl)
	return nil
}

func (l *fakeLoader) Replace(ctx context.Context, name string, t *table.Table) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failFor[name]; err != nil {
		return err
	}
	l.replaced[name]++
	return nil
}

func testID(n int) string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", n)
}

func ts(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// rawTables builds a minimal fully-linked raw set, CSV-shaped the way the
// extract stage delivers it.
func rawTables(t *testing.T) map[string]*table.Table {
	t.Helper()
	out := make(map[string]*table.Table)

	customers := table.New(transform.RawCustomers, []table.Column{
		{Name: "customer_id", Type: table.String},
		{Name: "customer_unique_id", Type: table.String},
		{Name: "customer_zip_code_prefix", Type: table.Int64},
		{Name: "customer_city", Type: table.String},
		{Name: "customer_state", Type: table.String},
	})
	require.NoError(t, customers.AppendRow(testID(1), testID(101), int64(1000), "sao paulo", "SP"))
	out[transform.RawCustomers] = customers

	orders := table.New(transform.RawOrders, []table.Column{
		{Name: "order_id", Type: table.String},
		{Name: "customer_id", Type: table.String},
		{Name: "order_status", Type: table.String},
		{Name: "order_purchase_timestamp", Type: table.Timestamp},
		{Name: "order_approved_at", Type: table.Timestamp},
		{Name: "order_delivered_carrier_date", Type: table.Timestamp},
		{Name: "order_delivered_customer_date", Type: table.Timestamp},
		{Name: "order_estimated_delivery_date", Type: table.Timestamp},
	})
	require.NoError(t, orders.AppendRow(
		testID(401), testID(1), "delivered",
		ts(2018, time.January, 2), ts(2018, time.January, 2), ts(2018, time.January, 4),
		ts(2018, time.January, 9), ts(2018, time.January, 20),
	))
	out[transform.RawOrders] = orders

	items := table.New(transform.RawOrderItems, []table.Column{
		{Name: "order_items_id", Type: table.Int64},
		{Name: "order_id", Type: table.String},
		{Name: "quantity", Type: table.Int64},
		{Name: "product_id", Type: table.String},
		{Name: "seller_id", Type: table.String},
		{Name: "shipping_limit_date", Type: table.Timestamp},
		{Name: "price", Type: table.Float64},
		{Name: "freight_value", Type: table.Float64},
		{Name: "total_price", Type: table.Float64},
	})
	require.NoError(t, items.AppendRow(
		int64(1), testID(401), int64(1), testID(301), testID(201),
		ts(2018, time.January, 5), 10.40, 2.10, 12.50,
	))
	out[transform.RawOrderItems] = items

	payments := table.New(transform.RawOrderPayments, []table.Column{
		{Name: "order_id", Type: table.String},
		{Name: "payment_sequential", Type: table.Int64},
		{Name: "payment_type", Type: table.String},
		{Name: "payment_installments", Type: table.Int64},
		{Name: "payment_value", Type: table.Float64},
	})
	require.NoError(t, payments.AppendRow(testID(401), int64(1), "credit_card", int64(1), 12.50))
	out[transform.RawOrderPayments] = payments

	reviews := table.New(transform.RawOrderReviews, []table.Column{
		{Name: "review_id", Type: table.String},
		{Name: "order_id", Type: table.String},
		{Name: "review_score", Type: table.Int64},
		{Name: "review_comment_title", Type: table.String},
		{Name: "review_comment_message", Type: table.String},
		{Name: "review_creation_date", Type: table.Timestamp},
		{Name: "review_answer_timestamp", Type: table.Timestamp},
	})
	require.NoError(t, reviews.AppendRow(
		testID(501), testID(401), int64(4), nil, nil,
		ts(2018, time.January, 10), ts(2018, time.January, 11),
	))
	out[transform.RawOrderReviews] = reviews

	products := table.New(transform.RawProducts, []table.Column{
		{Name: "product_id", Type: table.String},
		{Name: "product_category_name", Type: table.String},
		{Name: "product_name_lenght", Type: table.Int64},
		{Name: "product_description_lenght", Type: table.Int64},
		{Name: "product_photos_qty", Type: table.Int64},
		{Name: "product_weight_g", Type: table.Int64},
		{Name: "product_length_cm", Type: table.Int64},
		{Name: "product_height_cm", Type: table.Int64},
		{Name: "product_width_cm", Type: table.Int64},
	})
	require.NoError(t, products.AppendRow(
		testID(301), "eletronicos", int64(40), int64(200), int64(2),
		int64(500), int64(20), int64(10), int64(15),
	))
	out[transform.RawProducts] = products

	sellers := table.New(transform.RawSellers, []table.Column{
		{Name: "seller_id", Type: table.String},
		{Name: "seller_zip_code_prefix", Type: table.Int64},
		{Name: "seller_city", Type: table.String},
		{Name: "seller_state", Type: table.String},
	})
	require.NoError(t, sellers.AppendRow(testID(201), int64(3000), "curitiba", "PR"))
	out[transform.RawSellers] = sellers

	categories := table.New(transform.RawCategories, []table.Column{
		{Name: "product_category_name", Type: table.String},
		{Name: "product_category_name_english", Type: table.String},
	})
	require.NoError(t, categories.AppendRow("eletronicos", "electronics"))
	out[transform.RawCategories] = categories

	geo := table.New("geolocations", []table.Column{
		{Name: "geolocation_zip_code_prefix", Type: table.Int64},
		{Name: "geolocation_city", Type: table.String},
	})
	require.NoError(t, geo.AppendRow(int64(1000), "sao paulo"))
	out["geolocations"] = geo

	return out
}

func newTestPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = etltesting.NewLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewFakeClock()
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func TestETL_Pipeline_SeedSource(t *testing.T) {
	t.Parallel()

	t.Run("ensures schema then seeds", func(t *testing.T) {
		t.Parallel()
		seeder := &fakeSeeder{}
		p := newTestPipeline(t, Config{Seeder: seeder})
		require.NoError(t, p.SeedSource(context.Background(), "dataset"))
		require.Equal(t, []string{"dataset"}, seeder.seededDirs)
	})

	t.Run("schema failure stops before seeding", func(t *testing.T) {
		t.Parallel()
		seeder := &fakeSeeder{schemaErr: errors.New("permission denied")}
		p := newTestPipeline(t, Config{Seeder: seeder})
		require.Error(t, p.SeedSource(context.Background(), "dataset"))
		require.Empty(t, seeder.seededDirs)
	})

	t.Run("unconfigured seeder errors", func(t *testing.T) {
		t.Parallel()
		p := newTestPipeline(t, Config{})
		require.Error(t, p.SeedSource(context.Background(), "dataset"))
	})
}

func TestETL_Pipeline_ExtractAndStage(t *testing.T) {
	t.Parallel()

	t.Run("stages every raw table", func(t *testing.T) {
		t.Parallel()
		staging := newFakeStaging()
		p := newTestPipeline(t, Config{
			Source:  &fakeSource{tables: rawTables(t)},
			Staging: staging,
		})
		results, err := p.ExtractAndStage(context.Background())
		require.NoError(t, err)
		require.Len(t, results, len(transform.RequiredTables())+1)
		require.Contains(t, staging.objects, "geolocations")
		require.Contains(t, staging.objects, transform.RawOrders)
	})

	t.Run("one failed table does not poison the others", func(t *testing.T) {
		t.Parallel()
		staging := newFakeStaging()
		src := &fakeSource{
			tables: rawTables(t),
			errFor: map[string]error{transform.RawOrderReviews: errors.New("connection refused")},
		}
		p := newTestPipeline(t, Config{Source: src, Staging: staging})
		results, err := p.ExtractAndStage(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "1 of 9 tables")
		require.Contains(t, err.Error(), transform.RawOrderReviews)
		require.NotContains(t, staging.objects, transform.RawOrderReviews)
		require.Contains(t, staging.objects, transform.RawProducts)

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		require.Equal(t, 1, failed)
	})
}

func TestETL_Pipeline_TransformAndLoad(t *testing.T) {
	t.Parallel()

	stagedPipeline := func(t *testing.T, loader *fakeLoader) *Pipeline {
		t.Helper()
		staging := newFakeStaging()
		for name, tbl := range rawTables(t) {
			require.NoError(t, staging.Put(context.Background(), name, tbl))
		}
		return newTestPipeline(t, Config{
			Staging:        staging,
			Loader:         loader,
			MaxConcurrency: 2,
		})
	}

	t.Run("loads every target table", func(t *testing.T) {
		t.Parallel()
		loader := newFakeLoader()
		p := stagedPipeline(t, loader)
		results, err := p.TransformAndLoad(context.Background())
		require.NoError(t, err)
		require.Len(t, results, 6)
		for _, name := range schema.NewRegistry().TableNames() {
			require.Equal(t, 1, loader.replaced[name], "table %s", name)
		}
		require.Len(t, loader.ddls, 6)
	})

	t.Run("load failures are isolated per table", func(t *testing.T) {
		t.Parallel()
		loader := newFakeLoader()
		loader.failFor[schema.FactOrders] = errors.New("type mismatch")
		p := stagedPipeline(t, loader)
		results, err := p.TransformAndLoad(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "1 of 6 tables")
		require.Contains(t, err.Error(), schema.FactOrders)
		require.Len(t, results, 6)
		require.Equal(t, 1, loader.replaced[schema.FactPayments])
		require.Equal(t, 1, loader.replaced[schema.DimDates])
	})

	t.Run("missing staged table aborts before any load", func(t *testing.T) {
		t.Parallel()
		loader := newFakeLoader()
		staging := newFakeStaging()
		p := newTestPipeline(t, Config{Staging: staging, Loader: loader})
		_, err := p.TransformAndLoad(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to fetch staged table")
		require.Empty(t, loader.replaced)
	})

	t.Run("transform failure aborts before any load", func(t *testing.T) {
		t.Parallel()
		loader := newFakeLoader()
		staging := newFakeStaging()
		for name, tbl := range rawTables(t) {
			require.NoError(t, staging.Put(context.Background(), name, tbl))
		}
		empty := table.New(transform.RawOrders, rawTables(t)[transform.RawOrders].Columns())
		require.NoError(t, staging.Put(context.Background(), transform.RawOrders, empty))
		p := newTestPipeline(t, Config{Staging: staging, Loader: loader})
		_, err := p.TransformAndLoad(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "transform failed")
		require.Empty(t, loader.replaced)
	})
}
