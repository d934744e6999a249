package utils // package utils provides helpers for token signing, hashing and code generation

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kgrill/auth-core/internal/model"
)

// TokenType distinguishes access tokens from refresh tokens; it is
// carried in the "typ" claim so one can never be used as the other.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// ErrWrongTokenType is returned when a token of the other type is presented.
var ErrWrongTokenType = errors.New("wrong token type")

// Claims is the fixed payload of every token we sign. The subject is the
// account email.
type Claims struct {
	Role     string    `json:"role,omitempty"`
	FullName string    `json:"fullName,omitempty"`
	Type     TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long-lived token used to obtain a new pair.
// Only the SHA-256 hash of Raw is persisted.
type RefreshToken struct {
	Raw string    // raw token string returned to the client
	Exp time.Time // UTC expiration time
}

// TokenSigner builds and verifies HS256 tokens.
type TokenSigner struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
}

// NewTokenSigner returns a signer for the given secret and lifetimes.
func NewTokenSigner(secret string, accessTTL, refreshTTL time.Duration) *TokenSigner {
	return &TokenSigner{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "kgrill",
	}
}

// NewAccessToken signs a short-lived token carrying the identity's role and
// full name.
func (s *TokenSigner) NewAccessToken(id model.Identity, now time.Time) (AccessToken, error) {
	exp := now.UTC().Add(s.accessTTL)
	signed, err := s.sign(Claims{
		Role:             string(id.Role),
		FullName:         id.FullName,
		Type:             TokenTypeAccess,
		RegisteredClaims: s.registered(id.Email, now, exp),
	})
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// NewRefreshToken signs a long-lived token. Role and name are re-derived
// from the account on refresh, so they are not embedded here.
func (s *TokenSigner) NewRefreshToken(id model.Identity, now time.Time) (RefreshToken, error) {
	exp := now.UTC().Add(s.refreshTTL)
	signed, err := s.sign(Claims{
		Type:             TokenTypeRefresh,
		RegisteredClaims: s.registered(id.Email, now, exp),
	})
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: signed, Exp: exp}, nil
}

// Verify checks the signature and the token type but not the time based
// claims; callers compare expiry against their own clock and the stored
// session row.
func (s *TokenSigner) Verify(raw string, want TokenType) (*Claims, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return s.parse(p, raw, want)
}

// VerifyAt is Verify plus expiry validation against now.
func (s *TokenSigner) VerifyAt(raw string, want TokenType, now time.Time) (*Claims, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	return s.parse(p, raw, want)
}

func (s *TokenSigner) parse(p *jwt.Parser, raw string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	tok, err := p.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Type != want {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (s *TokenSigner) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now.UTC()),
		ExpiresAt: jwt.NewNumericDate(exp),
		// jti keeps two tokens minted in the same second distinct.
		ID: uuid.NewString(),
	}
}

func (s *TokenSigner) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// HashToken returns the SHA-256 hash of a raw token as a hex string.
// Sessions are stored and looked up by this value only.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
