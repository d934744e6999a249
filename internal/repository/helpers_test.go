package repository

import (
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testAccountID = "9b2f7c1e-4a3d-4e8b-8f6a-0c1d2e3f4a5b"

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

// expectLock expects the account row lock on an unlocked account.
func expectLock(mock sqlmock.Sqlmock, accountID string) {
	expectLockState(mock, accountID, false)
}

func expectLockState(mock sqlmock.Sqlmock, accountID string, locked bool) {
	mock.ExpectQuery(q("SELECT locked FROM accounts WHERE id = ? FOR UPDATE")).
		WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(locked))
}

var sessionCols = []string{"id", "account_id", "access_token_hash", "refresh_token_hash",
	"access_expires_at", "refresh_expires_at", "issued_at", "expired", "revoked"}
