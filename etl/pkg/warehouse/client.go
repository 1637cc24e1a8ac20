// Package warehouse is the analytical warehouse collaborator: a ClickHouse
// client plus the idempotent full-refresh loader.
package warehouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Client represents a warehouse database connection.
type Client interface {
	Conn(ctx context.Context) (Connection, error)
	Close() error
}

// Connection executes DDL and bulk inserts.
type Connection interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	PrepareBatch(ctx context.Context, query string) (Batch, error)
	Close() error
}

// Batch is the slice of the driver batch API the loader needs.
type Batch interface {
	Append(v ...any) error
	Send() error
	Close() error
}

type client struct {
	conn driver.Conn
	log  *slog.Logger
}

type connection struct {
	conn driver.Conn
}

// NewClient opens and pings a ClickHouse connection.
func NewClient(ctx context.Context, log *slog.Logger, addr string, database string, username string, password string, secure bool) (Client, error) {
	options := &clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	}

	// TLS for managed deployments (port 9440).
	if secure {
		options.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	log.Info("warehouse client initialized", "addr", addr, "database", database, "secure", secure)

	return &client{
		conn: conn,
		log:  log,
	}, nil
}

func (c *client) Conn(ctx context.Context) (Connection, error) {
	return &connection{conn: c.conn}, nil
}

func (c *client) Close() error {
	return c.conn.Close()
}

func (c *connection) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *connection) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

func (c *connection) PrepareBatch(ctx context.Context, query string) (Batch, error) {
	b, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return nil, err
	}
	return &driverBatch{Batch: b}, nil
}

// driverBatch adapts driver.Batch to the Batch interface: this version of the
// driver has no Close, so Close releases an unsent batch via Abort.
type driverBatch struct {
	driver.Batch
}

func (b *driverBatch) Close() error {
	if b.Batch.IsSent() {
		return nil
	}
	return b.Batch.Abort()
}

func (c *connection) Close() error {
	// Connection is shared, don't close it
	return nil
}
