package models

import (
	"time"
)

// PasskeyCredential is a stored WebAuthn credential. SignCount must only
// ever move forward; an assertion carrying a counter at or below the stored
// value is rejected as a possible clone even if the signature verifies.
type PasskeyCredential struct {
	ID              string // base64url credential id, primary key
	UserID          string
	RelyingPartyID  string
	Origin          string
	PublicKey       []byte
	SignCount       uint32
	Transports      []string
	AttestationType string
	AAGUID          []byte
	BackupEligible  bool
	BackupState     bool
	Alias           string // user-chosen name, e.g. "YubiKey 5C"
	LastUsedAt      *time.Time
	DisabledAt      *time.Time
	CreatedAt       time.Time
}

// Usable reports whether the credential may satisfy an assertion.
func (c *PasskeyCredential) Usable() bool {
	return c.DisabledAt == nil
}
