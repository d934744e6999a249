package utils

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// GoogleVerifier validates Google ID tokens against the OAuth client id.
type GoogleVerifier struct {
	audience string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{audience: clientID, validate: idtoken.Validate}
}

// VerifyIDToken returns the token's subject and email. Tokens whose email
// Google has not verified are rejected.
func (v *GoogleVerifier) VerifyIDToken(ctx context.Context, token string) (string, string, error) {
	if token == "" {
		return "", "", errors.New("missing id token")
	}
	p, err := v.validate(ctx, token, v.audience)
	if err != nil {
		return "", "", fmt.Errorf("validate id token: %w", err)
	}
	email, _ := p.Claims["email"].(string)
	if verified, _ := p.Claims["email_verified"].(bool); !verified {
		return "", "", errors.New("email not verified by provider")
	}
	return p.Subject, email, nil
}
