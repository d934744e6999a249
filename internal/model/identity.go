package model

import "time"

// Identity is the outcome of a successful credential check. It carries
// exactly what the session issuer needs to build claims.
type Identity struct {
	AccountID string
	Email     string
	Role      Role
	FullName  string
}

// Registration is the input of the register flow.
type Registration struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

// FederatedProfile is the identity posted by a Google sign-in. Only what
// the IDToken proves is trusted; ExternalID is overwritten by the token's
// subject.
type FederatedProfile struct {
	ExternalID string `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	IDToken    string `json:"idToken"`
}

// TokenPair is what signin and refresh hand back to the client.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// ActivationNotice is what the activation email is rendered from.
type ActivationNotice struct {
	Email     string
	FullName  string
	Code      string
	URL       string // activation link, empty when no frontend URL is configured
	ExpiresAt time.Time
}
