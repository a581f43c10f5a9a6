package postgres

import (
	"context"
)

// IClient is the transaction boundary services depend on. Repositories pick the
// active transaction up from the context through DB.GetQuerier.
type IClient interface {
	// WithTx runs fn inside a transaction, nesting with savepoints when one is already open
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NewClient exposes the DB as the transaction boundary
func NewClient(db *DB) IClient {
	return db
}
