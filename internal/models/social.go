package models

import (
	"time"
)

// SocialAccount links an external OAuth identity to a local user. The
// (Provider, ProviderUserID) pair is unique. If the owning user row is
// deleted out from under the link, the link is orphaned and must be
// detected by the resolver, never silently followed.
type SocialAccount struct {
	ID             string
	UserID         string
	Provider       string // "google", "github", ...
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExternalIdentity is the normalized result of an OAuth code exchange plus
// the provider's userinfo endpoint.
type ExternalIdentity struct {
	Provider     string
	ProviderID   string
	Email        string
	Name         string
	AvatarURL    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}
