package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kgrill/auth-core/internal/model"
	"github.com/kgrill/auth-core/internal/repository"
	"github.com/kgrill/auth-core/internal/utils"
)

// SessionIssuer mints a token pair and makes it the account's only valid
// session.
type SessionIssuer struct {
	Sessions SessionStore
	Signer   *utils.TokenSigner
	Cache    RevocationCache
	Clock    Clock
	Log      *log.Logger
}

func NewSessionIssuer(sessions SessionStore, signer *utils.TokenSigner, cache RevocationCache, clock Clock, logger *log.Logger) *SessionIssuer {
	return &SessionIssuer{
		Sessions: sessions,
		Signer:   signer,
		Cache:    cacheOrNoop(cache),
		Clock:    clockOrSystem(clock),
		Log:      loggerOrDefault(logger),
	}
}

// Issue signs a new pair for id, revokes every other valid session of the
// account and stores the new one, atomically.
func (s *SessionIssuer) Issue(ctx context.Context, id model.Identity) (model.TokenPair, error) {
	now := s.Clock.Now()
	sess, pair, err := mint(s.Signer, id, now)
	if err != nil {
		return model.TokenPair{}, err
	}
	revoked, err := s.Sessions.ReplaceAll(ctx, &sess)
	if errors.Is(err, repository.ErrAccountLocked) {
		// locked between authentication and here
		return model.TokenPair{}, ErrAccountLocked
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("store session: %w", err)
	}
	rememberRevoked(ctx, s.Cache, s.Log, now, revoked...)
	return pair, nil
}

// SessionRefresher exchanges a refresh token for a new pair.
type SessionRefresher struct {
	Sessions SessionStore
	Accounts AccountStore
	Signer   *utils.TokenSigner
	Cache    RevocationCache
	Clock    Clock
	Log      *log.Logger
}

func NewSessionRefresher(sessions SessionStore, accounts AccountStore, signer *utils.TokenSigner, cache RevocationCache, clock Clock, logger *log.Logger) *SessionRefresher {
	return &SessionRefresher{
		Sessions: sessions,
		Accounts: accounts,
		Signer:   signer,
		Cache:    cacheOrNoop(cache),
		Clock:    clockOrSystem(clock),
		Log:      loggerOrDefault(logger),
	}
}

// Refresh rotates the session the refresh token belongs to. Revocation is
// reported before expiry.
func (r *SessionRefresher) Refresh(ctx context.Context, raw string) (model.TokenPair, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.TokenPair{}, ErrTokenNotFound
	}
	// Expiry is judged from the stored row against our clock, not here.
	if _, err := r.Signer.Verify(raw, utils.TokenTypeRefresh); err != nil {
		return model.TokenPair{}, wrap(ErrTokenNotFound, err)
	}
	old, err := r.Sessions.GetByRefreshHash(ctx, utils.HashToken(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return model.TokenPair{}, ErrTokenNotFound
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("load session: %w", err)
	}

	now := r.Clock.Now()
	if old.Revoked {
		return model.TokenPair{}, ErrTokenRevoked
	}
	if old.Expired || now.After(old.RefreshExpiresAt) {
		return model.TokenPair{}, ErrTokenExpired
	}

	account, err := r.Accounts.GetByID(ctx, old.AccountID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.TokenPair{}, ErrTokenRevoked
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("load account: %w", err)
	}
	if account.Locked || !account.Enabled {
		return model.TokenPair{}, ErrTokenRevoked
	}

	sess, pair, err := mint(r.Signer, account.Identity(), now)
	if err != nil {
		return model.TokenPair{}, err
	}
	err = r.Sessions.Rotate(ctx, old.ID, &sess)
	if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrAccountLocked) {
		return model.TokenPair{}, ErrTokenRevoked
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("rotate session: %w", err)
	}
	rememberRevoked(ctx, r.Cache, r.Log, now, old)
	return pair, nil
}

// LogoutHandler revokes the session an access token belongs to.
type LogoutHandler struct {
	Sessions SessionStore
	Cache    RevocationCache
	Clock    Clock
	Log      *log.Logger
}

func NewLogoutHandler(sessions SessionStore, cache RevocationCache, clock Clock, logger *log.Logger) *LogoutHandler {
	return &LogoutHandler{
		Sessions: sessions,
		Cache:    cacheOrNoop(cache),
		Clock:    clockOrSystem(clock),
		Log:      loggerOrDefault(logger),
	}
}

// Logout is idempotent: unknown, empty and already revoked tokens are not
// errors. Only store failures are returned.
func (h *LogoutHandler) Logout(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	sess, err := h.Sessions.GetByAccessHash(ctx, utils.HashToken(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if _, err := h.Sessions.Revoke(ctx, sess.ID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	rememberRevoked(ctx, h.Cache, h.Log, h.Clock.Now(), sess)
	return nil
}

// SessionGuard accepts an access token only while its session is valid.
type SessionGuard struct {
	Sessions SessionStore
	Cache    RevocationCache
	Clock    Clock
	Log      *log.Logger
}

func NewSessionGuard(sessions SessionStore, cache RevocationCache, clock Clock, logger *log.Logger) *SessionGuard {
	return &SessionGuard{
		Sessions: sessions,
		Cache:    cacheOrNoop(cache),
		Clock:    clockOrSystem(clock),
		Log:      loggerOrDefault(logger),
	}
}

// Check returns the session of a signature-verified access token.
func (g *SessionGuard) Check(ctx context.Context, raw string) (model.Session, error) {
	hash := utils.HashToken(raw)
	revoked, err := g.Cache.IsRevoked(ctx, hash)
	if err != nil {
		g.Log.Printf("session-guard: revocation cache unavailable: %v", err)
	}
	if revoked {
		return model.Session{}, ErrTokenRevoked
	}
	sess, err := g.Sessions.GetByAccessHash(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Session{}, ErrTokenNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("load session: %w", err)
	}
	if sess.Revoked {
		return model.Session{}, ErrTokenRevoked
	}
	if sess.Expired || g.Clock.Now().After(sess.AccessExpiresAt) {
		return model.Session{}, ErrTokenExpired
	}
	return sess, nil
}

// mint signs both tokens and builds the session row that will hold their
// hashes.
func mint(signer *utils.TokenSigner, id model.Identity, now time.Time) (model.Session, model.TokenPair, error) {
	access, err := signer.NewAccessToken(id, now)
	if err != nil {
		return model.Session{}, model.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := signer.NewRefreshToken(id, now)
	if err != nil {
		return model.Session{}, model.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	sess := model.Session{
		AccountID:        id.AccountID,
		AccessTokenHash:  utils.HashToken(access.Token),
		RefreshTokenHash: utils.HashToken(refresh.Raw),
		AccessExpiresAt:  access.Exp,
		RefreshExpiresAt: refresh.Exp,
		IssuedAt:         now,
	}
	pair := model.TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Raw,
		AccessExpiresAt:  access.Exp,
		RefreshExpiresAt: refresh.Exp,
	}
	return sess, pair, nil
}

// rememberRevoked writes the access hashes of revoked sessions to the
// cache until their access tokens would have expired. Cache failures are
// logged only; the store stays authoritative.
func rememberRevoked(ctx context.Context, cache RevocationCache, logger *log.Logger, now time.Time, sessions ...model.Session) {
	for _, s := range sessions {
		ttl := s.AccessExpiresAt.Sub(now)
		if ttl <= 0 {
			continue
		}
		if err := cache.Revoke(ctx, s.AccessTokenHash, ttl); err != nil {
			logger.Printf("revocation-cache: write failed: %v", err)
		}
	}
}

func cacheOrNoop(c RevocationCache) RevocationCache {
	if c == nil {
		return noopCache{}
	}
	return c
}
