package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/kgrill/auth-core/internal/config"
	"github.com/kgrill/auth-core/internal/model"
	"github.com/kgrill/auth-core/internal/repository"
)

// maxIssueAttempts bounds retries when a freshly drawn code collides with
// another account's live code.
const maxIssueAttempts = 3

// ActivationManager issues and redeems one-time activation codes.
type ActivationManager struct {
	Codes      ActivationCodeStore
	Accounts   AccountStore
	Generator  CodeGenerator
	Renderer   NoticeRenderer
	Dispatcher Dispatcher
	Clock      Clock
	Log        *log.Logger
	TTL        time.Duration
	URL        string
}

func NewActivationManager(cfg config.ActivationConfig, codes ActivationCodeStore, accounts AccountStore,
	gen CodeGenerator, renderer NoticeRenderer, dispatcher Dispatcher, clock Clock, logger *log.Logger) *ActivationManager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ActivationManager{
		Codes:      codes,
		Accounts:   accounts,
		Generator:  gen,
		Renderer:   renderer,
		Dispatcher: dispatcher,
		Clock:      clockOrSystem(clock),
		Log:        loggerOrDefault(logger),
		TTL:        ttl,
		URL:        cfg.URL,
	}
}

// Issue persists a new code for the account, revoking any live one, and
// dispatches it. When only the dispatch fails the persisted code is
// returned together with an ErrDispatchFailed error.
func (m *ActivationManager) Issue(ctx context.Context, account model.Account) (model.ActivationCode, error) {
	now := m.Clock.Now()
	var code model.ActivationCode
	for attempt := 1; ; attempt++ {
		value, err := m.Generator.Generate()
		if err != nil {
			return model.ActivationCode{}, fmt.Errorf("generate activation code: %w", err)
		}
		code = model.ActivationCode{
			AccountID: account.ID,
			Code:      value,
			CreatedAt: now,
			ExpiresAt: now.Add(m.TTL),
		}
		err = m.Codes.Replace(ctx, &code)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrConflict) && attempt < maxIssueAttempts {
			continue
		}
		return model.ActivationCode{}, fmt.Errorf("store activation code: %w", err)
	}

	if err := m.dispatch(ctx, account, code); err != nil {
		m.Log.Printf("activation: dispatch to %s failed: %v", account.Email, err)
		return code, wrap(ErrDispatchFailed, err)
	}
	return code, nil
}

// Validate redeems a code and enables its account. An expired code is
// revoked and replaced by a freshly dispatched one before
// ErrActivationExpired is returned.
func (m *ActivationManager) Validate(ctx context.Context, value string) (model.Account, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return model.Account{}, ValidationError(map[string]string{"code": "cannot be blank"})
	}
	code, err := m.Codes.GetByCode(ctx, value)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Account{}, ErrActivationNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("load activation code: %w", err)
	}
	if err := terminalState(code); err != nil {
		return model.Account{}, err
	}

	now := m.Clock.Now()
	if now.After(code.ExpiresAt) {
		return model.Account{}, m.expire(ctx, code)
	}

	err = m.Codes.Consume(ctx, code.ID, code.AccountID, now)
	if errors.Is(err, repository.ErrConflict) {
		// Someone redeemed or replaced it between our read and the lock.
		latest, gerr := m.Codes.GetByCode(ctx, value)
		if gerr == nil && latest.ID == code.ID {
			if terr := terminalState(latest); terr != nil {
				return model.Account{}, terr
			}
		}
		return model.Account{}, ErrActivationRevoked
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("consume activation code: %w", err)
	}

	account, err := m.Accounts.GetByID(ctx, code.AccountID)
	if err != nil {
		return model.Account{}, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

// Resend issues a new code for a registered account that is not enabled
// yet. Unknown and already enabled addresses succeed silently.
func (m *ActivationManager) Resend(ctx context.Context, email string) error {
	email = model.NormalizeEmail(email)
	if email == "" {
		return ValidationError(map[string]string{"email": "cannot be blank"})
	}
	account, err := m.Accounts.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if account.Enabled {
		return nil
	}
	_, err = m.Issue(ctx, account)
	return err
}

func (m *ActivationManager) expire(ctx context.Context, code model.ActivationCode) error {
	won, err := m.Codes.Revoke(ctx, code.ID)
	if err != nil {
		return fmt.Errorf("revoke expired code: %w", err)
	}
	if !won {
		// a concurrent request got here first and does the reissue
		if latest, gerr := m.Codes.GetByCode(ctx, code.Code); gerr == nil && latest.ID == code.ID && latest.ValidatedAt != nil {
			return ErrAlreadyActivated
		}
		return ErrActivationExpired
	}
	account, err := m.Accounts.GetByID(ctx, code.AccountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if _, err := m.Issue(ctx, account); err != nil && !errors.Is(err, ErrDispatchFailed) {
		return fmt.Errorf("reissue activation code: %w", err)
	}
	return ErrActivationExpired
}

func (m *ActivationManager) dispatch(ctx context.Context, account model.Account, code model.ActivationCode) error {
	if m.Dispatcher == nil || m.Renderer == nil {
		return errors.New("no dispatcher configured")
	}
	subject, body, err := m.Renderer.RenderActivation(model.ActivationNotice{
		Email:     account.Email,
		FullName:  account.FullName(),
		Code:      code.Code,
		URL:       activationLink(m.URL, code.Code),
		ExpiresAt: code.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("render activation email: %w", err)
	}
	return m.Dispatcher.Send(ctx, account.Email, subject, body)
}

func terminalState(c model.ActivationCode) error {
	switch {
	case c.ValidatedAt != nil:
		return ErrAlreadyActivated
	case c.Revoked:
		return ErrActivationRevoked
	}
	return nil
}

// activationLink appends the code as the token query parameter.
func activationLink(base, code string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", code)
	u.RawQuery = q.Encode()
	return u.String()
}

func clockOrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock
	}
	return c
}

func loggerOrDefault(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}
