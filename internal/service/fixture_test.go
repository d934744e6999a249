package service

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kgrill/auth-core/internal/config"
	"github.com/kgrill/auth-core/internal/model"
	"github.com/kgrill/auth-core/internal/utils"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

const (
	aliceEmail    = "alice@x.com"
	alicePassword = "Secret123"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct{ To, Subject, Body string }

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (d *recordingDispatcher) Send(ctx context.Context, to, subject, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (d *recordingDispatcher) messages() []sentMail {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentMail(nil), d.sent...)
}

type plainRenderer struct{}

func (plainRenderer) RenderActivation(n model.ActivationNotice) (string, string, error) {
	return "Activate your kgrill account", "code=" + n.Code + " link=" + n.URL, nil
}

// seqGenerator hands out a fixed sequence of codes, repeating the last.
type seqGenerator struct {
	mu     sync.Mutex
	values []string
}

func (g *seqGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.values[0]
	if len(g.values) > 1 {
		g.values = g.values[1:]
	}
	return v, nil
}

type mapCache struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newMapCache() *mapCache { return &mapCache{revoked: make(map[string]time.Duration)} }

func (c *mapCache) Revoke(ctx context.Context, hash string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[hash] = ttl
	return nil
}

func (c *mapCache) IsRevoked(ctx context.Context, hash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.revoked[hash]
	return ok, nil
}

type stubVerifier struct {
	subject, email string
	err            error
}

func (v stubVerifier) VerifyIDToken(ctx context.Context, token string) (string, string, error) {
	return v.subject, v.email, v.err
}

type fixture struct {
	accounts memAccounts
	codes    memCodes
	sessions memSessions
	clock    *fakeClock
	mail     *recordingDispatcher
	cache    *mapCache
	signer   *utils.TokenSigner

	activation *ActivationManager
	registrar  *Registrar
	auth       *Authenticator
	issuer     *SessionIssuer
	refresher  *SessionRefresher
	logout     *LogoutHandler
	guard      *SessionGuard
	admin      *AccountAdmin
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newMemDB()
	f := &fixture{
		accounts: memAccounts{db},
		codes:    memCodes{db},
		sessions: memSessions{db},
		clock:    &fakeClock{now: t0},
		mail:     &recordingDispatcher{},
		cache:    newMapCache(),
		signer:   utils.NewTokenSigner("test-secret", 30*time.Minute, 7*24*time.Hour),
	}
	logger := log.New(io.Discard, "", 0)
	gen, err := utils.NewCodeGenerator(6, "0123456789")
	require.NoError(t, err)
	hasher := utils.NewBcryptHasher(4)

	f.activation = NewActivationManager(config.ActivationConfig{TTL: 15 * time.Minute, URL: "https://kgrill.test/activate"},
		f.codes, f.accounts, gen, plainRenderer{}, f.mail, f.clock, logger)
	f.registrar = NewRegistrar(f.accounts, hasher, f.activation, f.clock)
	f.auth = NewAuthenticator(f.accounts, hasher, nil, f.clock, logger)
	f.issuer = NewSessionIssuer(f.sessions, f.signer, f.cache, f.clock, logger)
	f.refresher = NewSessionRefresher(f.sessions, f.accounts, f.signer, f.cache, f.clock, logger)
	f.logout = NewLogoutHandler(f.sessions, f.cache, f.clock, logger)
	f.guard = NewSessionGuard(f.sessions, f.cache, f.clock, logger)
	f.admin = NewAccountAdmin(f.accounts, f.cache, f.clock, logger)
	return f
}

func aliceRegistration() model.Registration {
	return model.Registration{
		FirstName: "Alice",
		LastName:  "Nguyen",
		Email:     " Alice@X.com ",
		Address:   "1 Le Loi, District 1",
		Phone:     "0912345678",
		Password:  alicePassword,
	}
}

// register creates alice and returns the account and its live code.
func (f *fixture) register(t *testing.T) (model.Account, string) {
	t.Helper()
	account, err := f.registrar.Register(context.Background(), aliceRegistration())
	require.NoError(t, err)
	return account, f.liveCode(t, account.ID)
}

// activeAccount registers and activates alice.
func (f *fixture) activeAccount(t *testing.T) model.Account {
	t.Helper()
	_, code := f.register(t)
	account, err := f.activation.Validate(context.Background(), code)
	require.NoError(t, err)
	return account
}

func (f *fixture) liveCode(t *testing.T, accountID string) string {
	t.Helper()
	var live []string
	for _, c := range f.codes.byAccount(accountID) {
		if c.Live(f.clock.Now()) {
			live = append(live, c.Code)
		}
	}
	require.Len(t, live, 1, "exactly one live code")
	return live[0]
}

func (f *fixture) signin(email, password string) (model.TokenPair, error) {
	ctx := context.Background()
	id, err := f.auth.Authenticate(ctx, email, password)
	if err != nil {
		return model.TokenPair{}, err
	}
	return f.issuer.Issue(ctx, id)
}

func lastCodeIn(t *testing.T, m sentMail) string {
	t.Helper()
	for _, part := range strings.Fields(m.Body) {
		if v, ok := strings.CutPrefix(part, "code="); ok {
			return v
		}
	}
	t.Fatalf("no code in mail body %q", m.Body)
	return ""
}

var errBroker = errors.New("broker unreachable")
