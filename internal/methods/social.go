package methods

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/session"
	"github.com/marenbeck/gatehouse/internal/social"
)

// OAuthExchanger trades an authorization code for a normalized external
// identity.
type OAuthExchanger interface {
	Exchange(ctx context.Context, provider, code string) (*models.ExternalIdentity, error)
}

// IdentityResolver maps an external identity onto a local user.
type IdentityResolver interface {
	Resolve(ctx context.Context, panel models.Panel, identity *models.ExternalIdentity) (*social.Resolution, error)
}

// SocialMethod completes an OAuth callback: verify the CSRF state,
// exchange the code, and resolve the external identity to a local user.
type SocialMethod struct {
	exchanger OAuthExchanger
	resolver  IdentityResolver
	sessions  session.Store
}

func NewSocialMethod(exchanger OAuthExchanger, resolver IdentityResolver, sessions session.Store) *SocialMethod {
	return &SocialMethod{exchanger: exchanger, resolver: resolver, sessions: sessions}
}

func (m *SocialMethod) Name() string { return NameSocial }

func (m *SocialMethod) CanHandle(req *Request) bool {
	return req.Provider != "" && req.OAuthCode != ""
}

func (m *SocialMethod) Validate(req *Request) error {
	if req.Provider == "" || req.OAuthCode == "" || req.State == "" || req.SessionID == "" {
		return models.ErrBadRequest
	}
	return nil
}

func (m *SocialMethod) Authenticate(ctx context.Context, panel models.Panel, req *Request) (*Identity, error) {
	expected, err := m.sessions.Get(ctx, req.SessionID, session.KeyOAuthState)
	if err != nil {
		return nil, err
	}
	// State is single-use even when the comparison fails.
	if err := m.sessions.Forget(ctx, req.SessionID, session.KeyOAuthState); err != nil {
		return nil, err
	}
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(req.State)) != 1 {
		return nil, models.ErrBadRequest
	}

	identity, err := m.exchanger.Exchange(ctx, req.Provider, req.OAuthCode)
	if err != nil {
		return nil, err
	}

	resolution, err := m.resolver.Resolve(ctx, panel, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &Identity{
		UserID:             resolution.User.ID,
		Remember:           req.Remember,
		NeedsPasswordSetup: resolution.NeedsPassword,
		Method:             NameSocial,
	}, nil
}
