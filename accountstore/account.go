package accountstore

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when no account matches the identifier.
	ErrNotFound = errors.New("account not found")
	// ErrExists is returned by Create for a duplicate identifier.
	ErrExists = errors.New("account already exists")
)

// Status is the moderation state of an account.
type Status uint8

const (
	StatusActive Status = iota
	StatusDisabled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Account holds the authentication fields of a member or administrator
// record. Everything else about the member lives outside this store.
type Account struct {
	Identifier   string
	PasswordHash string
	TOTPSecret   string
	TOTPEnabled  bool
	Status       Status
}

// Normalize lower-cases and trims an email identifier. Stores key every
// record by the normalized form.
func Normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
