// Package repository holds the MySQL-backed stores. The sentinel errors
// below let the service layer tell the failure scenarios apart without
// looking at driver errors.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an account with the same normalized
// email is already registered.
var ErrEmailExists = errors.New("email already exists")

// ErrConflict is returned when a conditional update lost a race: the row
// was revoked, consumed or otherwise changed by a concurrent request
// between the read and the write.
var ErrConflict = errors.New("conflict")

// ErrAccountLocked is returned when a session would be written for an
// account an administrator has locked.
var ErrAccountLocked = errors.New("account locked")
