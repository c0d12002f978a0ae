// Package social implements OAuth sign-in: the provider client and the
// resolver that maps an external identity onto a local user safely.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/marenbeck/gatehouse/internal/config"
	"github.com/marenbeck/gatehouse/internal/models"
)

// OAuthClient runs the authorization-code flow for configured providers.
// Provider failures surface as ErrExternalService so callers never leak
// provider internals to the end user.
type OAuthClient struct {
	configs  map[string]*oauth2.Config
	userinfo map[string]string
	http     *http.Client
	logger   *slog.Logger
}

func NewOAuthClient(providers []config.OAuthProvider, logger *slog.Logger) *OAuthClient {
	c := &OAuthClient{
		configs:  make(map[string]*oauth2.Config, len(providers)),
		userinfo: make(map[string]string, len(providers)),
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}

	for _, p := range providers {
		c.configs[p.Name] = &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
			Scopes:       p.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  p.AuthURL,
				TokenURL: p.TokenURL,
			},
		}
		c.userinfo[p.Name] = p.UserInfoURL
	}

	return c
}

// AuthURL builds the provider redirect URL carrying the CSRF state.
func (c *OAuthClient) AuthURL(provider, state string) (string, error) {
	cfg, ok := c.configs[provider]
	if !ok {
		return "", models.ErrBadRequest
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Exchange trades the authorization code for tokens and fetches the
// provider's userinfo document.
func (c *OAuthClient) Exchange(ctx context.Context, provider, code string) (*models.ExternalIdentity, error) {
	cfg, ok := c.configs[provider]
	if !ok {
		return nil, models.ErrBadRequest
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		c.logger.Warn("oauth code exchange failed",
			slog.String("provider", provider), slog.Any("error", err))
		return nil, models.ErrExternalService
	}

	info, err := c.fetchUserInfo(ctx, provider, cfg, token)
	if err != nil {
		c.logger.Warn("oauth userinfo fetch failed",
			slog.String("provider", provider), slog.Any("error", err))
		return nil, models.ErrExternalService
	}

	identity := &models.ExternalIdentity{
		Provider:     provider,
		ProviderID:   info.id(),
		Email:        info.Email,
		Name:         info.name(),
		AvatarURL:    info.avatar(),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		identity.ExpiresAt = &expiry
	}

	if identity.ProviderID == "" {
		c.logger.Warn("oauth userinfo missing subject", slog.String("provider", provider))
		return nil, models.ErrExternalService
	}

	return identity, nil
}

// userInfo covers the claim names the major providers use for the same
// fields.
type userInfo struct {
	Sub     string      `json:"sub"`
	ID      json.Number `json:"id"`
	Email   string      `json:"email"`
	Name    string      `json:"name"`
	Login   string      `json:"login"`
	Picture string      `json:"picture"`
	Avatar  string      `json:"avatar_url"`
}

func (u *userInfo) id() string {
	if u.Sub != "" {
		return u.Sub
	}
	return u.ID.String()
}

func (u *userInfo) name() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Login
}

func (u *userInfo) avatar() string {
	if u.Picture != "" {
		return u.Picture
	}
	return u.Avatar
}

func (c *OAuthClient) fetchUserInfo(ctx context.Context, provider string, cfg *oauth2.Config, token *oauth2.Token) (*userInfo, error) {
	url := c.userinfo[provider]
	if url == "" {
		return nil, fmt.Errorf("provider %s has no userinfo endpoint", provider)
	}

	resp, err := cfg.Client(ctx, token).Get(url)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo body: %w", err)
	}

	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}

	return &info, nil
}
