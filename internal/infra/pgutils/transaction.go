package pgutils

import (
	"context"
	"database/sql"
	"fmt"
)

// WithTx runs fn inside a read-committed transaction.
// It commits if fn returns nil, otherwise it rolls back. A panic in fn
// rolls back and is re-raised.
func WithTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withTx(ctx, db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

// WithSnapshotTx runs fn in a read-only repeatable-read transaction, so every
// statement in fn sees the same snapshot.
func WithSnapshotTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withTx(ctx, db, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func withTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(*sql.Tx) error) (retErr error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		p := recover()
		if p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	err = fn(tx)
	if err != nil {
		rbErr := tx.Rollback()
		if rbErr != nil {
			return fmt.Errorf("rollback after fn error: %v (fn err: %w)", rbErr, err)
		}
		return fmt.Errorf("fn: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
