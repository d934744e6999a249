package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/kgrill/auth-core/internal/model"
	"github.com/kgrill/auth-core/internal/repository"
)

// IDTokenVerifier checks an identity token from an external provider and
// returns the subject and email it asserts.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, token string) (subject, email string, err error)
}

// Authenticator checks credentials and turns an account into an Identity.
type Authenticator struct {
	Accounts AccountStore
	Hasher   PasswordHasher
	// Verifier checks federated ID tokens. Without one, federated sign-in
	// is refused.
	Verifier IDTokenVerifier
	Clock    Clock
	Log      *log.Logger
}

func NewAuthenticator(accounts AccountStore, hasher PasswordHasher, verifier IDTokenVerifier, clock Clock, logger *log.Logger) *Authenticator {
	return &Authenticator{
		Accounts: accounts,
		Hasher:   hasher,
		Verifier: verifier,
		Clock:    clockOrSystem(clock),
		Log:      loggerOrDefault(logger),
	}
}

// Authenticate verifies an email and password pair.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (model.Identity, error) {
	email = model.NormalizeEmail(email)
	account, err := a.Accounts.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		a.Hasher.VerifyDummy(password)
		return model.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("load account: %w", err)
	}
	if !a.Hasher.Verify(password, account.PasswordHash) {
		return model.Identity{}, ErrInvalidCredentials
	}
	return checkStatus(account)
}

// AuthenticateFederated finds or creates the account for a provider-verified
// identity. The ID token is the credential: the posted subject is ignored and
// an existing account must already be linked to the token's subject.
func (a *Authenticator) AuthenticateFederated(ctx context.Context, p model.FederatedProfile) (model.Identity, error) {
	if a.Verifier == nil {
		// no provider configured, nothing can vouch for the profile
		return model.Identity{}, ErrInvalidCredentials
	}
	subject, verifiedEmail, err := a.Verifier.VerifyIDToken(ctx, p.IDToken)
	if err != nil {
		a.Log.Printf("federated: id token rejected: %v", err)
		return model.Identity{}, ErrInvalidCredentials
	}
	email := model.NormalizeEmail(p.Email)
	if email == "" {
		return model.Identity{}, ValidationError(map[string]string{"email": "cannot be blank"})
	}
	if subject == "" || model.NormalizeEmail(verifiedEmail) != email {
		return model.Identity{}, ErrInvalidCredentials
	}
	p.ExternalID = subject

	account, err := a.Accounts.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		account, err = a.createFederated(ctx, email, p)
	}
	if err != nil {
		return model.Identity{}, err
	}
	// password accounts and accounts linked to another subject stay closed
	if account.GoogleID == nil || *account.GoogleID != subject {
		a.Log.Printf("federated: %s is not linked to this provider subject", email)
		return model.Identity{}, ErrInvalidCredentials
	}
	return checkStatus(account)
}

func (a *Authenticator) createFederated(ctx context.Context, email string, p model.FederatedProfile) (model.Account, error) {
	// Nobody knows this password; the account can only sign in through the
	// provider until a password is set.
	digest, err := a.Hasher.Hash(uuid.NewString())
	if err != nil {
		return model.Account{}, fmt.Errorf("hash password: %w", err)
	}
	now := a.Clock.Now()
	account := model.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: digest,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Role:         model.RoleUser,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	gid := p.ExternalID
	account.GoogleID = &gid
	err = a.Accounts.Create(ctx, &account)
	if errors.Is(err, repository.ErrEmailExists) {
		// Lost a race with a concurrent first sign-in.
		account, err = a.Accounts.GetByEmail(ctx, email)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

func checkStatus(account model.Account) (model.Identity, error) {
	if !account.Enabled {
		return model.Identity{}, ErrAccountDisabled
	}
	if account.Locked {
		return model.Identity{}, ErrAccountLocked
	}
	return account.Identity(), nil
}
