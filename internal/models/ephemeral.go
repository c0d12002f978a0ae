package models

import (
	"time"
)

// Ephemeral code purposes. One table backs every short-lived single-use
// secret in the system: registration OTPs, login OTPs, emailed 2FA codes,
// magic-link tokens, and password-reset tokens.
const (
	PurposeRegistration  = "registration"
	PurposeLogin         = "login"
	PurposeTwoFactor     = "two-factor"
	PurposeMagicLink     = "magic-link"
	PurposePasswordReset = "password-reset"
)

// EphemeralCode is a short-lived single-use code or token. Identifier is
// the lookup key and its domain varies by purpose: an email or phone for
// OTPs, a user id for 2FA codes, the SHA-256 of the token itself for magic
// links and password resets. A code is usable iff now < ExpiresAt and
// ConsumedAt is nil; consumption is a single conditional UPDATE so a code
// can never be accepted twice.
type EphemeralCode struct {
	ID         string
	Identifier string
	SentTo     string  // destination address, empty for token-keyed rows
	UserID     *string // nil for pre-registration codes
	CodeHash   string  // SHA-256 hex of the code or token
	Purpose    string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Usable reports whether the code could still be consumed. The
// authoritative check is the conditional UPDATE in the repository; this is
// for display only.
func (c *EphemeralCode) Usable() bool {
	return c.ConsumedAt == nil && time.Now().Before(c.ExpiresAt)
}
