package models

import (
	"time"
)

type User struct {
	ID              string
	Email           string
	Phone           string
	Name            string
	AvatarURL       string
	EmailVerifiedAt *time.Time
	Status          string // "active", "suspended", "disabled"
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EmailVerified reports whether the user has proven ownership of their email.
func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// Two-factor method names. At most one is active per user.
const (
	TwoFactorMethodTOTP  = "totp"
	TwoFactorMethodEmail = "email"
	TwoFactorMethodSMS   = "sms"
)

// UserAuthProfile holds the authentication-relevant state for a user,
// kept alongside the user record rather than merged into it. PasswordHash
// is empty for users who only sign in via social or passkey.
type UserAuthProfile struct {
	UserID               string
	PasswordHash         string
	PasswordChangedAt    *time.Time
	TwoFactorEnabled     bool
	TwoFactorMethod      string // "totp", "email", "sms", or empty
	TwoFactorSecret      []byte // AES-256-GCM encrypted TOTP secret
	TwoFactorSecretNonce []byte // GCM nonce (12 bytes)
	TwoFactorConfirmedAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasPassword reports whether password sign-in is possible for this profile.
func (p *UserAuthProfile) HasPassword() bool {
	return p.PasswordHash != ""
}

// TwoFactorConfirmed reports whether enrollment completed the possession
// proof. An unconfirmed method is pending and must not gate login.
func (p *UserAuthProfile) TwoFactorConfirmed() bool {
	return p.TwoFactorEnabled && p.TwoFactorConfirmedAt != nil && p.TwoFactorMethod != ""
}

// RecoveryCode is a single-use fallback for a lost second factor. Only the
// SHA-256 digest of the code is stored; consumption deletes the row.
type RecoveryCode struct {
	UserID    string
	CodeHash  string
	CreatedAt time.Time
}
