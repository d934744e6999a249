package model

import "time"

// Session models a row of the `sessions` table: one issued access and
// refresh token pair. Rows are never deleted; revocation flips the
// expired and revoked flags. Only SHA-256 hashes of the tokens are kept.
type Session struct {
	ID               uint64    // sessions.id
	AccountID        string    // sessions.account_id
	AccessTokenHash  string    // sessions.access_token_hash
	RefreshTokenHash string    // sessions.refresh_token_hash
	AccessExpiresAt  time.Time // sessions.access_expires_at
	RefreshExpiresAt time.Time // sessions.refresh_expires_at
	IssuedAt         time.Time // sessions.issued_at
	Expired          bool      // sessions.expired
	Revoked          bool      // sessions.revoked
}

// Valid reports whether the session may still be used at now.
func (s Session) Valid(now time.Time) bool {
	return !s.Expired && !s.Revoked && !now.After(s.RefreshExpiresAt)
}
