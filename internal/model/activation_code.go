package model

import "time"

// ActivationCode models an entry in the `activation_codes` table. At
// most one code per account is live (not revoked, not validated, not
// expired) at any time.
type ActivationCode struct {
	ID          uint64     // activation_codes.id
	AccountID   string     // activation_codes.account_id
	Code        string     // activation_codes.code
	CreatedAt   time.Time  // activation_codes.created_at
	ExpiresAt   time.Time  // activation_codes.expires_at
	ValidatedAt *time.Time // activation_codes.validated_at (nullable)
	Revoked     bool       // activation_codes.revoked
}

// Live reports whether the code can still be redeemed at now.
func (c ActivationCode) Live(now time.Time) bool {
	return !c.Revoked && c.ValidatedAt == nil && !now.After(c.ExpiresAt)
}
