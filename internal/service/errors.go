package service

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable classification of a failure. It is
// what crosses the HTTP boundary; the wrapped cause never does.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountLocked      Kind = "account_locked"
	KindAccountDisabled    Kind = "account_disabled"
	KindActivationNotFound Kind = "activation_not_found"
	KindAlreadyActivated   Kind = "already_activated"
	KindActivationRevoked  Kind = "activation_revoked"
	KindActivationExpired  Kind = "activation_expired"
	KindTokenNotFound      Kind = "token_not_found"
	KindTokenExpired       Kind = "token_expired"
	KindTokenRevoked       Kind = "token_revoked"
	KindDispatchFailed     Kind = "dispatch_failed"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// Error categories.
const (
	CategoryValidation     = "validation"
	CategoryAuthentication = "authentication"
	CategoryActivation     = "activation"
	CategoryToken          = "token"
	CategoryNotFound       = "not_found"
	CategoryInternal       = "internal"
)

// Category groups kinds the way callers react to them.
func (k Kind) Category() string {
	switch k {
	case KindValidation:
		return CategoryValidation
	case KindInvalidCredentials, KindAccountLocked, KindAccountDisabled:
		return CategoryAuthentication
	case KindActivationNotFound, KindAlreadyActivated, KindActivationRevoked, KindActivationExpired:
		return CategoryActivation
	case KindTokenNotFound, KindTokenExpired, KindTokenRevoked:
		return CategoryToken
	case KindNotFound:
		return CategoryNotFound
	}
	return CategoryInternal
}

// Error is the typed failure returned by every service operation.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds per-field detail for validation failures.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrTokenRevoked)
// holds for every revoked-token failure regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is. The messages are the client-facing ones;
// authentication failures share a generic wording so they do not reveal
// which check failed beyond the kind.
var (
	ErrValidation         = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrAccountLocked      = &Error{Kind: KindAccountLocked, Message: "account is locked"}
	ErrAccountDisabled    = &Error{Kind: KindAccountDisabled, Message: "account is not activated"}
	ErrActivationNotFound = &Error{Kind: KindActivationNotFound, Message: "activation code not found"}
	ErrAlreadyActivated   = &Error{Kind: KindAlreadyActivated, Message: "account already activated"}
	ErrActivationRevoked  = &Error{Kind: KindActivationRevoked, Message: "activation code was revoked"}
	ErrActivationExpired  = &Error{Kind: KindActivationExpired, Message: "activation code expired, a new code has been sent"}
	ErrTokenNotFound      = &Error{Kind: KindTokenNotFound, Message: "token not found, please sign in again"}
	ErrTokenExpired       = &Error{Kind: KindTokenExpired, Message: "token expired, please sign in again"}
	ErrTokenRevoked       = &Error{Kind: KindTokenRevoked, Message: "token revoked, please sign in again"}
	ErrDispatchFailed     = &Error{Kind: KindDispatchFailed, Message: "activation email could not be sent"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
)

// ValidationError builds a validation failure with per-field messages.
func ValidationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: ErrValidation.Message, Fields: fields}
}

// wrap attaches a cause to a sentinel without mutating it.
func wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
