package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"github.com/kgrill/auth-core/internal/model"
	"github.com/kgrill/auth-core/internal/repository"
)

var (
	phonePattern = regexp.MustCompile(`^(84|0[35789])[0-9]{8}$`)
	hasUpper     = regexp.MustCompile(`[A-Z]`)
	hasDigit     = regexp.MustCompile(`[0-9]`)
)

// Registrar creates disabled accounts and starts their activation.
type Registrar struct {
	Accounts   AccountStore
	Hasher     PasswordHasher
	Activation *ActivationManager
	Clock      Clock
}

func NewRegistrar(accounts AccountStore, hasher PasswordHasher, activation *ActivationManager, clock Clock) *Registrar {
	return &Registrar{Accounts: accounts, Hasher: hasher, Activation: activation, Clock: clockOrSystem(clock)}
}

// ValidateRegistration checks the register payload and returns a
// validation *Error with one message per offending field.
func ValidateRegistration(r model.Registration) error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Address, validation.Required),
		validation.Field(&r.Phone, validation.Required,
			validation.Match(phonePattern).Error("must be a valid phone number")),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 16),
			validation.Match(hasUpper).Error("must contain an uppercase letter"),
			validation.Match(hasDigit).Error("must contain a digit")),
	)
	return asValidationError(err)
}

// Register creates the account (disabled) and issues its first activation
// code. The account is returned even when only the dispatch failed, in
// which case the error is ErrDispatchFailed.
func (r *Registrar) Register(ctx context.Context, in model.Registration) (model.Account, error) {
	in.Email = model.NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := ValidateRegistration(in); err != nil {
		return model.Account{}, err
	}

	digest, err := r.Hasher.Hash(in.Password)
	if err != nil {
		return model.Account{}, fmt.Errorf("hash password: %w", err)
	}
	now := r.Clock.Now()
	account := model.Account{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: digest,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Address:      strings.TrimSpace(in.Address),
		Phone:        in.Phone,
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.Accounts.Create(ctx, &account); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.Account{}, ValidationError(map[string]string{"email": "is already registered"})
		}
		return model.Account{}, fmt.Errorf("create account: %w", err)
	}

	if _, err := r.Activation.Issue(ctx, account); err != nil {
		return account, err
	}
	return account, nil
}

// asValidationError converts ozzo-validation field errors into a
// validation *Error. Internal validator errors pass through unchanged.
func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fields := make(map[string]string, len(fieldErrs))
	for name, fe := range fieldErrs {
		fields[name] = fe.Error()
	}
	return ValidationError(fields)
}
