package models

import (
	"time"
)

// APIToken is a long-lived opaque bearer credential. Only the SHA-256 hash
// of the token is stored; the plaintext is shown once at creation.
type APIToken struct {
	ID         string
	UserID     string
	Name       string
	TokenHash  string
	Prefix     string // first characters of the plaintext, for display
	LastUsedAt *time.Time
	ExpiresAt  *time.Time // nil = no expiry
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

// Active reports whether the token may still authenticate requests.
func (t *APIToken) Active() bool {
	if t.RevokedAt != nil {
		return false
	}
	if t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt) {
		return false
	}
	return true
}
