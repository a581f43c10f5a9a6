package clickhouse

import (
	"context"
	"fmt"

	clickhouse_go "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/sentry"
)

// Store is the analytical usage store. Every call opens a ClickHouse span
// when Sentry is enabled.
type Store struct {
	conn   driver.Conn
	sentry *sentry.Service
}

func NewClickHouseStore(config *config.Configuration, sentryService *sentry.Service) (*Store, error) {
	conn, err := clickhouse_go.Open(config.ClickHouse.GetClientOptions())
	if err != nil {
		return nil, fmt.Errorf("init clickhouse client: %w", err)
	}
	return NewFromConn(conn, sentryService), nil
}

// NewFromConn wraps an already opened connection
func NewFromConn(conn driver.Conn, sentryService *sentry.Service) *Store {
	return &Store{conn: conn, sentry: sentryService}
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, finish := s.span(ctx, "clickhouse.ping", "")
	defer finish()
	return s.conn.Ping(ctx)
}

func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	ctx, finish := s.span(ctx, "clickhouse.exec", query)
	defer finish()
	return s.conn.Exec(ctx, query, args...)
}

func (s *Store) Select(ctx context.Context, dest any, query string, args ...any) error {
	ctx, finish := s.span(ctx, "clickhouse.select", query)
	defer finish()
	return s.conn.Select(ctx, dest, query, args...)
}

// QueryRowScan runs a single row query and scans it into dest
func (s *Store) QueryRowScan(ctx context.Context, query string, args []any, dest ...any) error {
	ctx, finish := s.span(ctx, "clickhouse.query_row", query)
	defer finish()
	return s.conn.QueryRow(ctx, query, args...).Scan(dest...)
}

func (s *Store) span(ctx context.Context, operation, query string) (context.Context, func()) {
	if s.sentry == nil {
		return ctx, func() {}
	}

	span, ctx := s.sentry.StartClickHouseSpan(ctx, operation, map[string]interface{}{
		"query": truncateQuery(query),
	})
	if span == nil {
		return ctx, func() {}
	}
	return ctx, span.Finish
}

// truncateQuery keeps span payloads small
func truncateQuery(query string) string {
	const maxQueryLength = 1000
	if len(query) > maxQueryLength {
		return query[:maxQueryLength] + "..."
	}
	return query
}
