package testutil

import (
	"context"
	"sync/atomic"

	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/clinicflow/clinicflow/internal/postgres"
	"github.com/clinicflow/clinicflow/internal/types"
)

var _ postgres.IClient = (*MockPostgresClient)(nil) // Ensure MockPostgresClient implements IClient

// MockPostgresClient runs transaction bodies inline. The in-memory stores
// make each repository call atomic on its own, which is all services rely on.
type MockPostgresClient struct {
	logger *logger.Logger
	txs    atomic.Int64
}

// NewMockPostgresClient creates a new mock postgres client
func NewMockPostgresClient(logger *logger.Logger) *MockPostgresClient {
	return &MockPostgresClient{logger: logger}
}

// WithTx executes fn, reusing an outer "transaction" when present
func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(types.CtxDBTransaction) != nil {
		return fn(ctx)
	}
	c.txs.Add(1)
	return fn(context.WithValue(ctx, types.CtxDBTransaction, true))
}

// Transactions reports how many outermost transactions were started
func (c *MockPostgresClient) Transactions() int64 {
	return c.txs.Load()
}
