package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kgrill/auth-core/internal/model"
	"github.com/kgrill/auth-core/internal/repository"
)

// AccountAdmin applies administrator changes to accounts.
type AccountAdmin struct {
	Accounts AccountStore
	Cache    RevocationCache
	Clock    Clock
	Log      *log.Logger
}

func NewAccountAdmin(accounts AccountStore, cache RevocationCache, clock Clock, logger *log.Logger) *AccountAdmin {
	return &AccountAdmin{
		Accounts: accounts,
		Cache:    cacheOrNoop(cache),
		Clock:    clockOrSystem(clock),
		Log:      loggerOrDefault(logger),
	}
}

// Update changes the role and/or lock flag; nil leaves a value as is.
// Locking an account revokes all of its sessions, also when it was locked
// already.
func (a *AccountAdmin) Update(ctx context.Context, id string, role *model.Role, locked *bool) (model.Account, error) {
	account, err := a.Accounts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("load account: %w", err)
	}

	newRole, newLocked := account.Role, account.Locked
	if role != nil {
		parsed, ok := model.ParseRole(string(*role))
		if !ok {
			return model.Account{}, ValidationError(map[string]string{"role": "must be one of USER, MANAGER, SHIPPER, ADMIN"})
		}
		newRole = parsed
	}
	if locked != nil {
		newLocked = *locked
	}

	now := a.Clock.Now()
	// the store revokes the sessions in the same transaction as the lock,
	// so a failure leaves the account exactly as it was
	revoked, err := a.Accounts.UpdateRoleAndLock(ctx, id, newRole, newLocked, now)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("update account: %w", err)
	}
	if newLocked {
		rememberRevoked(ctx, a.Cache, a.Log, now, revoked...)
		a.Log.Printf("admin: account %s locked, %d session(s) revoked", id, len(revoked))
	}

	account.Role, account.Locked, account.UpdatedAt = newRole, newLocked, now
	return account, nil
}
