package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arborlabs/shopetl/etl/pkg/table"
	"github.com/arborlabs/shopetl/utils/pkg/retry"
)

// LoadError reports a warehouse write failure with the target table's
// identity.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load table %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type LoaderConfig struct {
	Logger    *slog.Logger
	Client    Client
	ChunkSize int
	Retry     retry.Config
}

func (cfg *LoaderConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("warehouse client is required")
	}
	if cfg.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}
	return nil
}

// Loader materializes transformed tables with full-refresh semantics:
// create if absent, truncate, then chunked batch inserts. Retrying a failed
// load restarts from the truncate, so partially committed chunks are never
// duplicated.
type Loader struct {
	log *slog.Logger
	cfg LoaderConfig
}

func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loader{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// EnsureTable issues a create-if-absent statement. Safe to re-issue on every
// run.
func (l *Loader) EnsureTable(ctx context.Context, ddl string) error {
	conn, err := l.cfg.Client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get warehouse connection: %w", err)
	}
	return conn.Exec(ctx, ddl)
}

// Replace swaps the target table's extent for the given rows.
func (l *Loader) Replace(ctx context.Context, name string, t *table.Table) error {
	err := retry.Do(ctx, l.cfg.Retry, func() error {
		return l.replaceOnce(ctx, name, t)
	})
	if err != nil {
		return &LoadError{Table: name, Err: err}
	}
	return nil
}

func (l *Loader) replaceOnce(ctx context.Context, name string, t *table.Table) error {
	conn, err := l.cfg.Client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get warehouse connection: %w", err)
	}

	if err := conn.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE IF EXISTS %s", name)); err != nil {
		return fmt.Errorf("failed to truncate: %w", err)
	}

	colNames := make([]string, 0, t.NumColumns())
	for _, c := range t.Columns() {
		colNames = append(colNames, c.Name)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s)", name, strings.Join(colNames, ", "))

	total := t.NumRows()
	for offset := 0; offset < total; offset += l.cfg.ChunkSize {
		end := offset + l.cfg.ChunkSize
		if end > total {
			end = total
		}
		if err := l.writeChunk(ctx, conn, insert, t, offset, end); err != nil {
			return fmt.Errorf("failed to write rows %d..%d: %w", offset, end, err)
		}
		l.log.Debug("wrote chunk", "table", name, "rows", end-offset, "offset", offset)
	}

	l.log.Info("replaced warehouse table", "table", name, "rows", total)
	return nil
}

func (l *Loader) writeChunk(ctx context.Context, conn Connection, insert string, t *table.Table, start, end int) error {
	batch, err := conn.PrepareBatch(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Close()

	for i := start; i < end; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during batch insert: %w", ctx.Err())
		default:
		}
		if err := batch.Append(t.Row(i)...); err != nil {
			return fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}
	return batch.Send()
}
