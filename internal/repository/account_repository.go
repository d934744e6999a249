package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kgrill/auth-core/internal/model"
)

const accountColumns = `id, email, password_hash, first_name, last_name, address, phone,
	role, locked, enabled, google_id, created_at, updated_at`

// AccountRepo is the credential store over the `accounts` table.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

// Create inserts a new account. The email must already be normalized.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	var googleID sql.NullString
	if a.GoogleID != nil {
		googleID = sql.NullString{String: *a.GoogleID, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, first_name, last_name, address, phone,
			role, locked, enabled, google_id, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Address, a.Phone,
		string(a.Role), a.Locked, a.Enabled, googleID, a.CreatedAt, a.UpdatedAt)
	if isDuplicateKey(err) {
		return ErrEmailExists
	}
	return err
}

// GetByEmail fetches an account by normalized email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ? LIMIT 1`, email)
	return scanAccount(row)
}

// GetByID fetches an account by id.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (model.Account, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ? LIMIT 1`, id)
	return scanAccount(row)
}

// UpdateRoleAndLock applies an administrator change. When the account ends
// up locked, every valid session is revoked in the same transaction and
// returned, so a lock is never committed with live sessions behind it.
func (r *AccountRepo) UpdateRoleAndLock(ctx context.Context, id string, role model.Role, locked bool, now time.Time) ([]model.Session, error) {
	var revoked []model.Session
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := lockAccountTx(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET role = ?, locked = ?, updated_at = ? WHERE id = ?`,
			string(role), locked, now, id); err != nil {
			return err
		}
		if !locked {
			return nil
		}
		var err error
		revoked, err = revokeAllTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var (
		a        model.Account
		role     string
		googleID sql.NullString
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &a.Address, &a.Phone,
		&role, &a.Locked, &a.Enabled, &googleID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, err
	}
	a.Role = model.Role(role)
	if googleID.Valid {
		gid := googleID.String
		a.GoogleID = &gid
	}
	return a, nil
}

// isDuplicateKey reports MySQL error 1062 (ER_DUP_ENTRY).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
