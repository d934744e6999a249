package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kgrill/auth-core/internal/model"
)

const sessionColumns = `id, account_id, access_token_hash, refresh_token_hash,
	access_expires_at, refresh_expires_at, issued_at, expired, revoked`

// SessionRepo is the token store. Rows are append-only: revocation flips
// the expired/revoked flags and never deletes.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// ReplaceAll revokes every valid session of the account and inserts s.
// The account row lock makes concurrent logins for the same account run
// one after the other, so exactly one valid row remains. The sessions that
// were revoked are returned. A locked account gets no new session.
func (r *SessionRepo) ReplaceAll(ctx context.Context, s *model.Session) ([]model.Session, error) {
	var revoked []model.Session
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		locked, err := lockAccountTx(ctx, tx, s.AccountID)
		if err != nil {
			return err
		}
		if locked {
			// the lock may have landed after the caller checked the account
			return ErrAccountLocked
		}
		revoked, err = revokeAllTx(ctx, tx, s.AccountID)
		if err != nil {
			return err
		}
		return insertSessionTx(ctx, tx, s)
	})
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

// Rotate revokes exactly the presented session and inserts its successor.
// ErrConflict means the old session was no longer valid when the lock was
// taken (a concurrent refresh or logout won).
func (r *SessionRepo) Rotate(ctx context.Context, oldID uint64, s *model.Session) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		locked, err := lockAccountTx(ctx, tx, s.AccountID)
		if err != nil {
			return err
		}
		if locked {
			return ErrAccountLocked
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET expired = 1, revoked = 1
			 WHERE id = ? AND account_id = ? AND revoked = 0 AND expired = 0`,
			oldID, s.AccountID)
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
		return insertSessionTx(ctx, tx, s)
	})
}

// GetByAccessHash looks a session up by the hash of its access token.
func (r *SessionRepo) GetByAccessHash(ctx context.Context, hash string) (model.Session, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE access_token_hash = ? LIMIT 1`, hash)
	return scanSession(row)
}

// GetByRefreshHash looks a session up by the hash of its refresh token.
func (r *SessionRepo) GetByRefreshHash(ctx context.Context, hash string) (model.Session, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = ? LIMIT 1`, hash)
	return scanSession(row)
}

// Revoke marks one session expired and revoked. It reports whether the row
// changed; revoking an already revoked session is not an error.
func (r *SessionRepo) Revoke(ctx context.Context, id uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE sessions SET expired = 1, revoked = 1 WHERE id = ? AND revoked = 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// revokeAllTx flips every valid session of the account to revoked and
// returns them. The caller holds the account row lock.
func revokeAllTx(ctx context.Context, tx *sql.Tx, accountID string) ([]model.Session, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE account_id = ? AND revoked = 0 AND expired = 0`, accountID)
	if err != nil {
		return nil, err
	}
	var valid []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		valid = append(valid, s)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET expired = 1, revoked = 1
		 WHERE account_id = ? AND revoked = 0 AND expired = 0`, accountID); err != nil {
		return nil, err
	}
	for i := range valid {
		valid[i].Expired = true
		valid[i].Revoked = true
	}
	return valid, nil
}

func insertSessionTx(ctx context.Context, tx *sql.Tx, s *model.Session) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (account_id, access_token_hash, refresh_token_hash,
			access_expires_at, refresh_expires_at, issued_at, expired, revoked)
		 VALUES (?,?,?,?,?,?,0,0)`,
		s.AccountID, s.AccessTokenHash, s.RefreshTokenHash,
		s.AccessExpiresAt, s.RefreshExpiresAt, s.IssuedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.Expired = false
	s.Revoked = false
	return nil
}

func scanSession(row rowScanner) (model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.AccountID, &s.AccessTokenHash, &s.RefreshTokenHash,
		&s.AccessExpiresAt, &s.RefreshExpiresAt, &s.IssuedAt, &s.Expired, &s.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, err
	}
	return s, nil
}
