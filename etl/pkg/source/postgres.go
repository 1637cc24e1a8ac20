// Package source is the operational-store collaborator: extraction of raw
// tables from Postgres and the CSV seeding path that populates it.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arborlabs/shopetl/etl/pkg/table"
)

type StoreConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	return nil
}

type Store struct {
	log *slog.Logger
	cfg StoreConfig
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// NewPool opens and pings a pgx connection pool.
func NewPool(ctx context.Context, log *slog.Logger, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	log.Info("source store initialized")
	return pool, nil
}

// ExtractTable reads a whole source table into memory. Column types come
// from the result field descriptions; identifier columns arrive as
// hyphenated text.
func (s *Store) ExtractTable(ctx context.Context, name string) (*table.Table, error) {
	s.log.Info("extracting source table", "table", name)

	rows, err := s.cfg.Pool.Query(ctx, fmt.Sprintf("SELECT * FROM %s", pgx.Identifier{name}.Sanitize()))
	if err != nil {
		return nil, fmt.Errorf("failed to query table %s: %w", name, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]table.Column, 0, len(fields))
	for _, f := range fields {
		typ, err := columnTypeForOID(f.DataTypeOID)
		if err != nil {
			return nil, fmt.Errorf("table %s column %s: %w", name, f.Name, err)
		}
		cols = append(cols, table.Column{Name: f.Name, Type: typ})
	}
	out := table.New(name, cols)

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row from %s: %w", name, err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			cv, err := convertValue(v)
			if err != nil {
				return nil, fmt.Errorf("table %s column %s: %w", name, fields[i].Name, err)
			}
			row[i] = cv
		}
		if err := out.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", name, err)
	}

	s.log.Info("extracted source table", "table", name, "rows", out.NumRows())
	return out, nil
}

func columnTypeForOID(oid uint32) (table.Type, error) {
	switch oid {
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID, pgtype.UUIDOID:
		return table.String, nil
	case pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID:
		return table.Int64, nil
	case pgtype.Float4OID, pgtype.Float8OID, pgtype.NumericOID:
		return table.Float64, nil
	case pgtype.TimestampOID, pgtype.TimestamptzOID, pgtype.DateOID:
		return table.Timestamp, nil
	default:
		return table.String, fmt.Errorf("unsupported column type OID %d", oid)
	}
}

func convertValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case [16]byte:
		return uuid.UUID(x).String(), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case time.Time:
		return x.UTC(), nil
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil {
			return nil, fmt.Errorf("failed to convert numeric: %w", err)
		}
		if !f.Valid {
			return nil, nil
		}
		return f.Float64, nil
	default:
		return nil, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}
