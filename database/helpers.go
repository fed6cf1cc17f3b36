package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Transaction runs fn inside a single transaction. Transient failures retry
// the whole transaction, never a single statement of it.
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	err := WithRetry(ctx, func() error {
		return db.RunInTx(ctx, nil, fn)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

// FindByID fetches a single record by primary key, nil when it does not exist
func FindByID[T any](ctx context.Context, db bun.IDB, id any) (*T, error) {
	return Query[T](db).Where("id", id).First(ctx)
}
