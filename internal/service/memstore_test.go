package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kgrill/auth-core/internal/model"
	"github.com/kgrill/auth-core/internal/repository"
)

// memDB is an in-memory stand-in for the MySQL stores. A single mutex plays
// the part of the per-account row lock.
type memDB struct {
	mu       sync.Mutex
	accounts map[string]model.Account
	codes    []model.ActivationCode
	sessions []model.Session
	// failUpdate, when set, fails the next UpdateRoleAndLock before it
	// changes anything, the way a rolled back transaction would.
	failUpdate error
}

func newMemDB() *memDB {
	return &memDB{accounts: make(map[string]model.Account)}
}

type memAccounts struct{ db *memDB }
type memCodes struct{ db *memDB }
type memSessions struct{ db *memDB }

func (r memAccounts) Create(ctx context.Context, a *model.Account) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.accounts {
		if existing.Email == a.Email {
			return repository.ErrEmailExists
		}
	}
	r.db.accounts[a.ID] = *a
	return nil
}

func (r memAccounts) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, a := range r.db.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

func (r memAccounts) GetByID(ctx context.Context, id string) (model.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.accounts[id]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return a, nil
}

func (r memAccounts) UpdateRoleAndLock(ctx context.Context, id string, role model.Role, locked bool, now time.Time) ([]model.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := r.db.failUpdate; err != nil {
		r.db.failUpdate = nil
		return nil, err
	}
	a.Role, a.Locked, a.UpdatedAt = role, locked, now
	r.db.accounts[id] = a
	if !locked {
		return nil, nil
	}
	return memSessions{r.db}.revokeAllLocked(id), nil
}

func pending(c model.ActivationCode) bool { return !c.Revoked && c.ValidatedAt == nil }

func (r memCodes) Replace(ctx context.Context, c *model.ActivationCode) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.accounts[c.AccountID]; !ok {
		return repository.ErrNotFound
	}
	for _, other := range r.db.codes {
		if other.Code == c.Code && pending(other) && other.ExpiresAt.After(c.CreatedAt) {
			return repository.ErrConflict
		}
	}
	for i := range r.db.codes {
		if r.db.codes[i].AccountID == c.AccountID && pending(r.db.codes[i]) {
			r.db.codes[i].Revoked = true
		}
	}
	c.ID = uint64(len(r.db.codes) + 1)
	c.Revoked = false
	c.ValidatedAt = nil
	r.db.codes = append(r.db.codes, *c)
	return nil
}

func (r memCodes) GetByCode(ctx context.Context, code string) (model.ActivationCode, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var matches []model.ActivationCode
	for _, c := range r.db.codes {
		if c.Code == code {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return model.ActivationCode{}, repository.ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		if pending(matches[i]) != pending(matches[j]) {
			return pending(matches[i])
		}
		return matches[i].ID > matches[j].ID
	})
	return matches[0], nil
}

func (r memCodes) Revoke(ctx context.Context, id uint64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := &r.db.codes[id-1]
	if !pending(*c) {
		return false, nil
	}
	c.Revoked = true
	return true, nil
}

func (r memCodes) Consume(ctx context.Context, id uint64, accountID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := &r.db.codes[id-1]
	if !pending(*c) {
		return repository.ErrConflict
	}
	validated := at
	c.ValidatedAt = &validated
	c.Revoked = true
	a := r.db.accounts[accountID]
	a.Enabled = true
	r.db.accounts[accountID] = a
	return nil
}

// byAccount returns a snapshot of the account's codes, oldest first.
func (r memCodes) byAccount(accountID string) []model.ActivationCode {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.ActivationCode
	for _, c := range r.db.codes {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	return out
}

func (r memSessions) ReplaceAll(ctx context.Context, s *model.Session) ([]model.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.accounts[s.AccountID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.Locked {
		return nil, repository.ErrAccountLocked
	}
	revoked := r.revokeAllLocked(s.AccountID)
	r.insertLocked(s)
	return revoked, nil
}

func (r memSessions) Rotate(ctx context.Context, oldID uint64, s *model.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.accounts[s.AccountID].Locked {
		return repository.ErrAccountLocked
	}
	old := &r.db.sessions[oldID-1]
	if old.AccountID != s.AccountID || old.Revoked || old.Expired {
		return repository.ErrConflict
	}
	old.Revoked, old.Expired = true, true
	r.insertLocked(s)
	return nil
}

func (r memSessions) GetByAccessHash(ctx context.Context, hash string) (model.Session, error) {
	return r.find(func(s model.Session) bool { return s.AccessTokenHash == hash })
}

func (r memSessions) GetByRefreshHash(ctx context.Context, hash string) (model.Session, error) {
	return r.find(func(s model.Session) bool { return s.RefreshTokenHash == hash })
}

func (r memSessions) Revoke(ctx context.Context, id uint64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s := &r.db.sessions[id-1]
	if s.Revoked {
		return false, nil
	}
	s.Revoked, s.Expired = true, true
	return true, nil
}

func (r memSessions) find(match func(model.Session) bool) (model.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.sessions {
		if match(s) {
			return s, nil
		}
	}
	return model.Session{}, repository.ErrNotFound
}

func (r memSessions) revokeAllLocked(accountID string) []model.Session {
	var revoked []model.Session
	for i := range r.db.sessions {
		s := &r.db.sessions[i]
		if s.AccountID == accountID && !s.Revoked && !s.Expired {
			s.Revoked, s.Expired = true, true
			revoked = append(revoked, *s)
		}
	}
	return revoked
}

func (r memSessions) insertLocked(s *model.Session) {
	s.ID = uint64(len(r.db.sessions) + 1)
	s.Revoked, s.Expired = false, false
	r.db.sessions = append(r.db.sessions, *s)
}

// valid returns the sessions of the account that are valid at now.
func (r memSessions) valid(accountID string, now time.Time) []model.Session {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Session
	for _, s := range r.db.sessions {
		if s.AccountID == accountID && s.Valid(now) {
			out = append(out, s)
		}
	}
	return out
}

func (r memSessions) count() int {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.db.sessions)
}
