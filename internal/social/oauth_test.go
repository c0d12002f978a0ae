package social

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marenbeck/gatehouse/internal/config"
	"github.com/marenbeck/gatehouse/internal/models"
)

// fakeProvider stands in for an OAuth provider: a token endpoint and a
// userinfo endpoint on one test server.
func fakeProvider(t *testing.T, userinfoStatus int, userinfoBody string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at-123","refresh_token":"rt-456","token_type":"bearer"}`)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(userinfoStatus)
		fmt.Fprint(w, userinfoBody)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testClient(server *httptest.Server) *OAuthClient {
	return NewOAuthClient([]config.OAuthProvider{{
		Name:         "github",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      server.URL + "/authorize",
		TokenURL:     server.URL + "/token",
		UserInfoURL:  server.URL + "/userinfo",
		Scopes:       []string{"user:email"},
		RedirectURL:  "https://app.example.com/auth/social/github/callback",
	}}, slog.Default())
}

func TestOAuthClient_AuthURL(t *testing.T) {
	server := fakeProvider(t, http.StatusOK, `{}`)
	client := testClient(server)

	url, err := client.AuthURL("github", "state-123")
	require.NoError(t, err)
	assert.Contains(t, url, "state=state-123")
	assert.Contains(t, url, "client_id=client-id")

	_, err = client.AuthURL("unknown", "state-123")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestOAuthClient_Exchange_NumericID(t *testing.T) {
	// GitHub-shaped userinfo: numeric id, login instead of name,
	// avatar_url instead of picture.
	server := fakeProvider(t, http.StatusOK,
		`{"id":12345,"login":"octocat","email":"octo@example.com","avatar_url":"https://img.example.com/a.png"}`)
	client := testClient(server)

	identity, err := client.Exchange(context.Background(), "github", "auth-code")
	require.NoError(t, err)

	assert.Equal(t, "github", identity.Provider)
	assert.Equal(t, "12345", identity.ProviderID)
	assert.Equal(t, "octo@example.com", identity.Email)
	assert.Equal(t, "octocat", identity.Name)
	assert.Equal(t, "https://img.example.com/a.png", identity.AvatarURL)
	assert.Equal(t, "at-123", identity.AccessToken)
	assert.Equal(t, "rt-456", identity.RefreshToken)
}

func TestOAuthClient_Exchange_OIDCSubject(t *testing.T) {
	// Google-shaped userinfo: sub, name, picture.
	server := fakeProvider(t, http.StatusOK,
		`{"sub":"g-789","name":"Ada Lovelace","email":"ada@example.com","picture":"https://img.example.com/p.png"}`)
	client := testClient(server)

	identity, err := client.Exchange(context.Background(), "github", "auth-code")
	require.NoError(t, err)

	assert.Equal(t, "g-789", identity.ProviderID)
	assert.Equal(t, "Ada Lovelace", identity.Name)
	assert.Equal(t, "https://img.example.com/p.png", identity.AvatarURL)
}

func TestOAuthClient_Exchange_MissingSubject(t *testing.T) {
	server := fakeProvider(t, http.StatusOK, `{"email":"no-id@example.com"}`)
	client := testClient(server)

	_, err := client.Exchange(context.Background(), "github", "auth-code")
	assert.ErrorIs(t, err, models.ErrExternalService)
}

func TestOAuthClient_Exchange_UserinfoFailure(t *testing.T) {
	server := fakeProvider(t, http.StatusInternalServerError, `{}`)
	client := testClient(server)

	_, err := client.Exchange(context.Background(), "github", "auth-code")
	assert.ErrorIs(t, err, models.ErrExternalService)
}

func TestOAuthClient_Exchange_UnknownProvider(t *testing.T) {
	server := fakeProvider(t, http.StatusOK, `{}`)
	client := testClient(server)

	_, err := client.Exchange(context.Background(), "gitlab", "auth-code")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestResolver_RejectsDisabledProvider(t *testing.T) {
	resolver := NewResolver(nil, nil, nil, nil, slog.Default(), nil)

	_, err := resolver.Resolve(context.Background(), models.Panel{
		Name:            "app",
		SocialProviders: []string{"google"},
	}, &models.ExternalIdentity{Provider: "github", ProviderID: "123"})

	assert.ErrorIs(t, err, models.ErrForbidden)
}
