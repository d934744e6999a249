package model

import (
	"strings"
	"time"
)

// Role is the authorization level stored on an account and embedded in
// access token claims.
type Role string

const (
	RoleUser    Role = "USER"
	RoleManager Role = "MANAGER"
	RoleShipper Role = "SHIPPER"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole returns the role matching s (case-insensitive).
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleUser, RoleManager, RoleShipper, RoleAdmin:
		return r, true
	}
	return "", false
}

// Account represents a row of the `accounts` table.
//
// Fields:
//  ID           - UUID primary key.
//  Email        - unique, lower-cased address.
//  PasswordHash - bcrypt digest; unusable random digest for federated accounts.
//  GoogleID     - external subject when the account was created via Google sign-in.
//  Locked       - set by an administrator; locked accounts cannot sign in.
//  Enabled      - false until the activation code is validated.
type Account struct {
	ID           string    // accounts.id
	Email        string    // accounts.email
	PasswordHash string    // accounts.password_hash
	FirstName    string    // accounts.first_name
	LastName     string    // accounts.last_name
	Address      string    // accounts.address
	Phone        string    // accounts.phone
	Role         Role      // accounts.role
	Locked       bool      // accounts.locked
	Enabled      bool      // accounts.enabled
	GoogleID     *string   // accounts.google_id (nullable)
	CreatedAt    time.Time // accounts.created_at
	UpdatedAt    time.Time // accounts.updated_at
}

// FullName joins first and last name the way it is shown in claims.
func (a Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Identity returns the verified identity used to build token claims.
func (a Account) Identity() Identity {
	return Identity{AccountID: a.ID, Email: a.Email, Role: a.Role, FullName: a.FullName()}
}

// NormalizeEmail trims and lower-cases an address before lookups and inserts.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
