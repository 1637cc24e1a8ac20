// Package pipeline sequences the run: extract raw tables, stage them,
// transform into the star schema, validate and load the warehouse. Each
// entry point is independently invocable and idempotent under the target
// store's replace semantics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/arborlabs/shopetl/etl/pkg/schema"
	"github.com/arborlabs/shopetl/etl/pkg/table"
	"github.com/arborlabs/shopetl/etl/pkg/transform"
)

// Source extracts raw tables from the operational store.
type Source interface {
	ExtractTable(ctx context.Context, name string) (*table.Table, error)
}

// Seeder populates the operational store from dataset files.
type Seeder interface {
	EnsureSchema(ctx context.Context) error
	SeedFromCSV(ctx context.Context, dir string) error
}

// Staging is the object-store staging layer, one object per table.
type Staging interface {
	Put(ctx context.Context, name string, t *table.Table) error
	Get(ctx context.Context, name string) (*table.Table, error)
}

// Loader materializes transformed tables in the warehouse.
type Loader interface {
	EnsureTable(ctx context.Context, ddl string) error
	Replace(ctx context.Context, name string, t *table.Table) error
}

type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Source  Source
	Seeder  Seeder
	Staging Staging
	Loader  Loader

	// MaxConcurrency bounds the per-table warehouse load pool.
	MaxConcurrency int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return nil
}

type Pipeline struct {
	log      *slog.Logger
	cfg      Config
	registry *schema.Registry
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		log:      cfg.Logger,
		cfg:      cfg,
		registry: schema.NewRegistry(),
	}, nil
}

// TableResult records the outcome of one table's pass through a stage.
type TableResult struct {
	Table string
	Err   error
}

// summarize derives the run-level outcome: success only if every table in
// the requested set completed.
func summarize(results []TableResult) error {
	failed := make([]string, 0)
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Table)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("run failed for %d of %d tables: %s", len(failed), len(results), strings.Join(failed, ", "))
	}
	return nil
}

// extractTables is the set staged on extract runs: everything the transform
// needs plus the geolocations table kept for ad hoc analysis.
func extractTables() []string {
	return append(transform.RequiredTables(), "geolocations")
}

// SeedSource loads the raw dataset CSVs into the operational store with
// replace semantics.
func (p *Pipeline) SeedSource(ctx context.Context, dir string) error {
	if p.cfg.Seeder == nil {
		return errors.New("seeder is not configured")
	}
	start := p.cfg.Clock.Now()
	if err := p.cfg.Seeder.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure source schema: %w", err)
	}
	if err := p.cfg.Seeder.SeedFromCSV(ctx, dir); err != nil {
		return err
	}
	p.log.Info("seeded source store", "duration", p.cfg.Clock.Since(start))
	return nil
}

// ExtractAndStage reads each raw table and overwrites its staging object.
// A failed table is recorded and skipped; it does not poison the others.
func (p *Pipeline) ExtractAndStage(ctx context.Context) ([]TableResult, error) {
	if p.cfg.Source == nil || p.cfg.Staging == nil {
		return nil, errors.New("source and staging are required")
	}
	start := p.cfg.Clock.Now()

	results := make([]TableResult, 0, len(extractTables()))
	for _, name := range extractTables() {
		err := p.extractOne(ctx, name)
		if err != nil {
			p.log.Error("failed to extract and stage table", "table", name, "error", err)
		}
		results = append(results, TableResult{Table: name, Err: err})
	}

	p.log.Info("extract and stage finished", "tables", len(results), "duration", p.cfg.Clock.Since(start))
	return results, summarize(results)
}

func (p *Pipeline) extractOne(ctx context.Context, name string) error {
	t, err := p.cfg.Source.ExtractTable(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to extract table %s: %w", name, err)
	}
	if err := p.cfg.Staging.Put(ctx, name, t); err != nil {
		return err
	}
	return nil
}

// TransformAndLoad fetches all staged raw tables, runs the transform stage,
// then validates and loads each target table. Transform failures abort the
// run before any load; load failures are isolated per table.
func (p *Pipeline) TransformAndLoad(ctx context.Context) ([]TableResult, error) {
	if p.cfg.Staging == nil || p.cfg.Loader == nil {
		return nil, errors.New("staging and loader are required")
	}
	start := p.cfg.Clock.Now()

	raw := make(map[string]*table.Table, len(transform.RequiredTables()))
	for _, name := range transform.RequiredTables() {
		t, err := p.cfg.Staging.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch staged table %s: %w", name, err)
		}
		raw[name] = t
	}

	tr, err := transform.New(transform.Config{Logger: p.log})
	if err != nil {
		return nil, err
	}
	result, err := tr.Run(raw)
	if err != nil {
		return nil, fmt.Errorf("transform failed: %w", err)
	}

	targets := p.registry.TableNames()
	results := make([]TableResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, name := range targets {
		i, name := i, name
		g.Go(func() error {
			err := p.loadOne(gctx, name, result.Tables[name])
			if err != nil {
				p.log.Error("failed to load table", "table", name, "error", err)
			}
			results[i] = TableResult{Table: name, Err: err}
			// Failures are collected per table, never propagated through the
			// group: one bad table must not cancel the rest.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.log.Info("transform and load finished", "tables", len(results), "duration", p.cfg.Clock.Since(start))
	return results, summarize(results)
}

func (p *Pipeline) loadOne(ctx context.Context, name string, t *table.Table) error {
	if t == nil {
		return fmt.Errorf("transform produced no table for target %s", name)
	}
	if err := p.registry.Validate(name, t); err != nil {
		return err
	}
	ddl, err := p.registry.DDLFor(name)
	if err != nil {
		return err
	}
	if err := p.cfg.Loader.EnsureTable(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return p.cfg.Loader.Replace(ctx, name, t)
}
