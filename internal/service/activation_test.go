package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgrill/auth-core/internal/model"
)

func TestRegisterThenActivateOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, code := f.register(t)
	assert.Equal(t, aliceEmail, account.Email)
	assert.False(t, account.Enabled)
	assert.Equal(t, model.RoleUser, account.Role)
	assert.Len(t, code, 6)

	msgs := f.mail.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, aliceEmail, msgs[0].To)
	assert.Equal(t, code, lastCodeIn(t, msgs[0]))
	assert.Contains(t, msgs[0].Body, "https://kgrill.test/activate?token="+code)

	activated, err := f.activation.Validate(ctx, code)
	require.NoError(t, err)
	assert.True(t, activated.Enabled)

	_, err = f.activation.Validate(ctx, code)
	assert.ErrorIs(t, err, ErrAlreadyActivated)
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	in := aliceRegistration()
	in.Phone = "12345"
	in.Password = "short"
	in.Email = "not-an-email"
	_, err := f.registrar.Register(context.Background(), in)

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindValidation, verr.Kind)
	assert.Contains(t, verr.Fields, "phone")
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Fields, "email")
	assert.Empty(t, f.mail.messages())
}

func TestValidateRegistrationPasswordRules(t *testing.T) {
	cases := map[string]bool{
		"Secret123":         true,
		"secret123":         false,
		"SecretABC":         false,
		"Se1":               false,
		"Secret12345678901": false,
	}
	for password, ok := range cases {
		in := aliceRegistration()
		in.Password = password
		err := ValidateRegistration(in)
		if ok {
			assert.NoError(t, err, password)
		} else {
			assert.ErrorIs(t, err, ErrValidation, password)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	in := aliceRegistration()
	in.Email = "ALICE@x.com"
	_, err := f.registrar.Register(context.Background(), in)

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindValidation, verr.Kind)
	assert.Equal(t, "is already registered", verr.Fields["email"])
}

func TestRegisterKeepsCodeWhenDispatchFails(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errBroker

	account, err := f.registrar.Register(context.Background(), aliceRegistration())
	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.ErrorIs(t, err, errBroker)
	require.NotEmpty(t, account.ID)

	code := f.liveCode(t, account.ID)
	f.mail.err = nil
	activated, err := f.activation.Validate(context.Background(), code)
	require.NoError(t, err)
	assert.True(t, activated.Enabled)
}

func TestIssueRevokesPreviousLiveCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account, first := f.register(t)

	second, err := f.activation.Issue(ctx, account)
	require.NoError(t, err)

	codes := f.codes.byAccount(account.ID)
	require.Len(t, codes, 2)
	assert.True(t, codes[0].Revoked)
	assert.True(t, codes[1].Live(f.clock.Now()))
	assert.Equal(t, second.Code, f.liveCode(t, account.ID))

	if first != second.Code {
		_, err = f.activation.Validate(ctx, first)
		assert.ErrorIs(t, err, ErrActivationRevoked)
	}
}

func TestIssueGeneratesConfiguredShape(t *testing.T) {
	f := newFixture(t)
	account, _ := f.register(t)
	for i := 0; i < 50; i++ {
		c, err := f.activation.Issue(context.Background(), account)
		require.NoError(t, err)
		require.Len(t, c.Code, 6)
		assert.Equal(t, "", strings.Trim(c.Code, "0123456789"))
		assert.Equal(t, c.CreatedAt.Add(15*time.Minute), c.ExpiresAt)
	}
	f.liveCode(t, account.ID)
}

func TestIssueRetriesOnCodeCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activation.Generator = &seqGenerator{values: []string{"111111"}}
	bob := aliceRegistration()
	bob.Email = "bob@x.com"
	_, err := f.registrar.Register(ctx, bob)
	require.NoError(t, err)

	f.activation.Generator = &seqGenerator{values: []string{"111111", "222222"}}
	account, err := f.registrar.Register(ctx, aliceRegistration())
	require.NoError(t, err)
	assert.Equal(t, "222222", f.liveCode(t, account.ID))
}

func TestIssueGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activation.Generator = &seqGenerator{values: []string{"111111"}}
	bob := aliceRegistration()
	bob.Email = "bob@x.com"
	_, err := f.registrar.Register(ctx, bob)
	require.NoError(t, err)

	_, err = f.registrar.Register(ctx, aliceRegistration())
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestValidateExpiredCodeReissues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account, old := f.register(t)

	f.clock.Advance(16 * time.Minute)
	_, err := f.activation.Validate(ctx, old)
	assert.ErrorIs(t, err, ErrActivationExpired)

	codes := f.codes.byAccount(account.ID)
	require.Len(t, codes, 2)
	assert.True(t, codes[0].Revoked)
	assert.Nil(t, codes[0].ValidatedAt)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), codes[1].ExpiresAt)

	msgs := f.mail.messages()
	require.Len(t, msgs, 2)
	fresh := lastCodeIn(t, msgs[1])
	assert.Equal(t, codes[1].Code, fresh)

	stored, err := f.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)

	activated, err := f.activation.Validate(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, activated.Enabled)
}

func TestValidateExpiredStillReportsExpiredWhenDispatchFails(t *testing.T) {
	f := newFixture(t)
	account, old := f.register(t)
	f.mail.err = errBroker
	f.clock.Advance(20 * time.Minute)

	_, err := f.activation.Validate(context.Background(), old)
	assert.ErrorIs(t, err, ErrActivationExpired)
	f.liveCode(t, account.ID)
}

func TestConcurrentValidateOfExpiredCodeReissuesOnce(t *testing.T) {
	f := newFixture(t)
	f.activation.Generator = &seqGenerator{values: []string{"111111", "222222", "333333"}}
	account, old := f.register(t)
	require.Equal(t, "111111", old)
	f.clock.Advance(16 * time.Minute)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.activation.Validate(context.Background(), old)
			// late callers find the code already revoked
			assert.True(t, errors.Is(err, ErrActivationExpired) || errors.Is(err, ErrActivationRevoked), "got %v", err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.codes.byAccount(account.ID), 2)
	assert.Len(t, f.mail.messages(), 2, "one registration mail, one reissue")
	assert.Equal(t, "222222", f.liveCode(t, account.ID))
}

func TestValidateExpiredLosingRevokeDoesNotReissue(t *testing.T) {
	f := newFixture(t)
	account, old := f.register(t)
	f.clock.Advance(16 * time.Minute)

	f.activation.Codes = &revokedFirst{memCodes: f.codes}
	_, err := f.activation.Validate(context.Background(), old)
	assert.ErrorIs(t, err, ErrActivationExpired)
	assert.Len(t, f.codes.byAccount(account.ID), 1)
	assert.Len(t, f.mail.messages(), 1)
}

// revokedFirst revokes the code on behalf of another request right before
// the caller's own Revoke.
type revokedFirst struct{ memCodes }

func (r *revokedFirst) Revoke(ctx context.Context, id uint64) (bool, error) {
	if _, err := r.memCodes.Revoke(ctx, id); err != nil {
		return false, err
	}
	return r.memCodes.Revoke(ctx, id)
}

func TestValidateUnknownAndBlankCodes(t *testing.T) {
	f := newFixture(t)

	_, err := f.activation.Validate(context.Background(), "999999")
	assert.ErrorIs(t, err, ErrActivationNotFound)

	_, err = f.activation.Validate(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.activation.Resend(ctx, "nobody@x.com"))
	assert.Empty(t, f.mail.messages())

	account, _ := f.register(t)
	require.NoError(t, f.activation.Resend(ctx, "ALICE@x.com"))
	assert.Len(t, f.mail.messages(), 2)
	assert.Len(t, f.codes.byAccount(account.ID), 2)
	code := f.liveCode(t, account.ID)

	_, err := f.activation.Validate(ctx, code)
	require.NoError(t, err)
	require.NoError(t, f.activation.Resend(ctx, aliceEmail))
	assert.Len(t, f.mail.messages(), 2, "enabled accounts get nothing")
}

func TestValidateReportsTerminalStateAfterLostRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, code := f.register(t)

	racer := &racingCodes{memCodes: f.codes}
	f.activation.Codes = racer
	_, err := f.activation.Validate(ctx, code)
	assert.True(t, errors.Is(err, ErrAlreadyActivated), "got %v", err)
}

// racingCodes consumes the code on behalf of another request right before
// the caller's own Consume.
type racingCodes struct {
	memCodes
	raced bool
}

func (r *racingCodes) Consume(ctx context.Context, id uint64, accountID string, at time.Time) error {
	if !r.raced {
		r.raced = true
		if err := r.memCodes.Consume(ctx, id, accountID, at); err != nil {
			return err
		}
	}
	return r.memCodes.Consume(ctx, id, accountID, at)
}
