package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kgrill/auth-core/internal/model"
)

const activationColumns = `id, account_id, code, created_at, expires_at, validated_at, revoked`

// ActivationCodeRepo persists one-time activation codes.
type ActivationCodeRepo struct{ DB *sql.DB }

func NewActivationCodeRepo(db *sql.DB) *ActivationCodeRepo { return &ActivationCodeRepo{DB: db} }

// Replace revokes every live code of the account and inserts c, all under
// the account row lock. It returns ErrConflict when another account holds a
// live code with the same value; callers retry with a fresh code.
func (r *ActivationCodeRepo) Replace(ctx context.Context, c *model.ActivationCode) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := lockAccountTx(ctx, tx, c.AccountID); err != nil {
			return err
		}
		var clash int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM activation_codes
			 WHERE code = ? AND revoked = 0 AND validated_at IS NULL AND expires_at > ?`,
			c.Code, c.CreatedAt).Scan(&clash); err != nil {
			return err
		}
		if clash > 0 {
			return ErrConflict
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE activation_codes SET revoked = 1
			 WHERE account_id = ? AND revoked = 0 AND validated_at IS NULL`,
			c.AccountID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO activation_codes (account_id, code, created_at, expires_at, revoked)
			 VALUES (?,?,?,?,0)`,
			c.AccountID, c.Code, c.CreatedAt, c.ExpiresAt)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		c.ID = uint64(id)
		c.Revoked = false
		c.ValidatedAt = nil
		return nil
	})
}

// GetByCode returns the row for a code value. Values are short and may be
// reused over time, so a live row wins over historical ones, then the
// newest.
func (r *ActivationCodeRepo) GetByCode(ctx context.Context, code string) (model.ActivationCode, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+activationColumns+` FROM activation_codes
		 WHERE code = ?
		 ORDER BY (revoked = 0 AND validated_at IS NULL) DESC, id DESC
		 LIMIT 1`, code)
	return scanActivationCode(row)
}

// Revoke marks a single live code revoked. It reports whether this call
// changed the row, so of two concurrent revokes exactly one sees true.
func (r *ActivationCodeRepo) Revoke(ctx context.Context, id uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE activation_codes SET revoked = 1
		 WHERE id = ? AND revoked = 0 AND validated_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Consume redeems a live code and enables its account in one transaction.
// ErrConflict means a concurrent request consumed or revoked it first.
func (r *ActivationCodeRepo) Consume(ctx context.Context, id uint64, accountID string, at time.Time) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := lockAccountTx(ctx, tx, accountID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE activation_codes SET validated_at = ?, revoked = 1
			 WHERE id = ? AND revoked = 0 AND validated_at IS NULL`,
			at, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrConflict
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE accounts SET enabled = 1, updated_at = ? WHERE id = ?`, at, accountID)
		return err
	})
}

func scanActivationCode(row rowScanner) (model.ActivationCode, error) {
	var (
		c           model.ActivationCode
		validatedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.AccountID, &c.Code, &c.CreatedAt, &c.ExpiresAt, &validatedAt, &c.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ActivationCode{}, ErrNotFound
	}
	if err != nil {
		return model.ActivationCode{}, err
	}
	if validatedAt.Valid {
		t := validatedAt.Time
		c.ValidatedAt = &t
	}
	return c, nil
}
