package core

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eskrenkovic/tql"
)

type TransactionOption func(*sql.TxOptions)

func WithIsolationLevel(isolationLevel sql.IsolationLevel) TransactionOption {
	return func(opts *sql.TxOptions) {
		opts.Isolation = isolationLevel
	}
}

func Tx(
	ctx context.Context,
	db *sql.DB,
	transaction func(context.Context, *sql.Tx) error,
	opts ...TransactionOption,
) (err error) {
	options := sql.TxOptions{}

	for _, opt := range opts {
		opt(&options)
	}

	tx, err := db.BeginTx(ctx, &options)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction panicked with: %v: rollback failed: %w", r, rollbackErr)
			} else {
				err = fmt.Errorf("transaction panicked with: %v", r)
			}
		}
	}()

	err = transaction(ctx, tx)
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%s: %w", rollbackErr.Error(), err)
		}

		return err
	}

	return tx.Commit()
}

// WarmScan runs a one row query so that tql caches the field layout of T.
// tql keeps those layouts, and the active driver, in unguarded package
// state, so every scanned type has to be warmed before queries run
// concurrently.
func WarmScan[T any](ctx context.Context, q tql.Querier, query string) error {
	if _, err := tql.QueryFirst[T](ctx, q, query); err != nil {
		var zero T
		return fmt.Errorf("failed to warm scan of %T: %w", zero, err)
	}

	return nil
}
