package service

import (
	"context"
	"time"

	"github.com/kgrill/auth-core/internal/model"
)

// AccountStore is the credential store.
type AccountStore interface {
	Create(ctx context.Context, a *model.Account) error
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	GetByID(ctx context.Context, id string) (model.Account, error)
	// UpdateRoleAndLock revokes and returns every valid session in the same
	// unit when locked is true.
	UpdateRoleAndLock(ctx context.Context, id string, role model.Role, locked bool, now time.Time) ([]model.Session, error)
}

// ActivationCodeStore persists activation codes. Replace and Consume are
// atomic per account.
type ActivationCodeStore interface {
	Replace(ctx context.Context, c *model.ActivationCode) error
	GetByCode(ctx context.Context, code string) (model.ActivationCode, error)
	Revoke(ctx context.Context, id uint64) (bool, error)
	Consume(ctx context.Context, id uint64, accountID string, at time.Time) error
}

// SessionStore is the token store. ReplaceAll and Rotate run their
// revoke and insert as one unit per account and refuse locked accounts
// with repository.ErrAccountLocked.
type SessionStore interface {
	ReplaceAll(ctx context.Context, s *model.Session) ([]model.Session, error)
	Rotate(ctx context.Context, oldID uint64, s *model.Session) error
	GetByAccessHash(ctx context.Context, hash string) (model.Session, error)
	GetByRefreshHash(ctx context.Context, hash string) (model.Session, error)
	Revoke(ctx context.Context, id uint64) (bool, error)
}

// Dispatcher delivers an email. Delivery is asynchronous from the caller's
// point of view; an error only means the message was not accepted.
type Dispatcher interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NoticeRenderer turns an activation notice into an email subject and body.
type NoticeRenderer interface {
	RenderActivation(n model.ActivationNotice) (subject, body string, err error)
}

// PasswordHasher hashes and verifies passwords in constant time.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
	// VerifyDummy performs a comparison against a fixed digest so a missing
	// account costs the same time as a wrong password.
	VerifyDummy(plain string)
}

// CodeGenerator produces activation code values.
type CodeGenerator interface {
	Generate() (string, error)
}

// RevocationCache remembers revoked access-token hashes until the token
// would have expired anyway.
type RevocationCache interface {
	Revoke(ctx context.Context, hash string, ttl time.Duration) error
	IsRevoked(ctx context.Context, hash string) (bool, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

type noopCache struct{}

func (noopCache) Revoke(context.Context, string, time.Duration) error { return nil }
func (noopCache) IsRevoked(context.Context, string) (bool, error)     { return false, nil }
