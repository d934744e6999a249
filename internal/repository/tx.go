package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// withTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise (including when ctx is cancelled mid-way).
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// lockAccountTx takes the row lock on the account and reports its lock
// flag. Every read-revoke-write sequence over an account's codes or
// sessions goes through it first, which serializes them per account without
// any global lock.
func lockAccountTx(ctx context.Context, tx *sql.Tx, accountID string) (locked bool, err error) {
	err = tx.QueryRowContext(ctx, `SELECT locked FROM accounts WHERE id = ? FOR UPDATE`, accountID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return locked, err
}
