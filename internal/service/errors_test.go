package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesByKind(t *testing.T) {
	err := fmt.Errorf("refresh: %w", wrap(ErrTokenRevoked, errors.New("conflict")))

	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.NotErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, KindTokenRevoked, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestKindCategory(t *testing.T) {
	cases := map[Kind]string{
		KindValidation:         CategoryValidation,
		KindInvalidCredentials: CategoryAuthentication,
		KindAccountLocked:      CategoryAuthentication,
		KindAccountDisabled:    CategoryAuthentication,
		KindActivationNotFound: CategoryActivation,
		KindAlreadyActivated:   CategoryActivation,
		KindActivationRevoked:  CategoryActivation,
		KindActivationExpired:  CategoryActivation,
		KindTokenNotFound:      CategoryToken,
		KindTokenExpired:       CategoryToken,
		KindTokenRevoked:       CategoryToken,
		KindNotFound:           CategoryNotFound,
		KindDispatchFailed:     CategoryInternal,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.Category(), string(kind))
	}
}

func TestValidationErrorCarriesFields(t *testing.T) {
	err := ValidationError(map[string]string{"email": "is already registered"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "is already registered", err.Fields["email"])
	assert.Contains(t, err.Error(), "validation")
}
