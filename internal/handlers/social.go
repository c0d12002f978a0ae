package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/config"
	"github.com/marenbeck/gatehouse/internal/methods"
	"github.com/marenbeck/gatehouse/internal/middleware"
	"github.com/marenbeck/gatehouse/internal/orchestrator"
	"github.com/marenbeck/gatehouse/internal/session"
	"github.com/marenbeck/gatehouse/internal/social"
	pkghttp "github.com/marenbeck/gatehouse/pkg/http"
)

// SocialHandler handles the OAuth redirect and callback endpoints.
type SocialHandler struct {
	oauth    *social.OAuthClient
	orch     *orchestrator.Orchestrator
	sessions session.Store
	config   *config.Config
	secure   bool
}

func NewSocialHandler(oauth *social.OAuthClient, orch *orchestrator.Orchestrator, sessions session.Store, cfg *config.Config) *SocialHandler {
	return &SocialHandler{
		oauth:    oauth,
		orch:     orch,
		sessions: sessions,
		config:   cfg,
		secure:   cfg.Server.Env == "production",
	}
}

// Redirect sends the browser to the provider's consent page with a fresh
// CSRF state bound to the session.
func (h *SocialHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	panel, ok := h.config.Panel(r.URL.Query().Get("panel"))
	if !ok {
		pkghttp.WriteBadRequest(w, "Unknown panel")
		return
	}
	if !panel.SupportsProvider(provider) {
		pkghttp.WriteForbidden(w, "Provider not enabled for this panel")
		return
	}

	state, err := auth.GenerateToken()
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	sessionID := middleware.SessionIDFromContext(r.Context())
	if err := h.sessions.Put(r.Context(), sessionID, session.KeyOAuthState, state); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	redirectURL, err := h.oauth.AuthURL(provider, state)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Unknown provider")
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// Callback completes the flow: the social method verifies the state,
// exchanges the code, and resolves the identity; the orchestrator takes
// it from there like any other primary factor.
func (h *SocialHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		// The user denied consent or the provider rejected the request.
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	panel, ok := h.config.Panel(query.Get("panel"))
	if !ok {
		pkghttp.WriteBadRequest(w, "Unknown panel")
		return
	}

	sessionID := middleware.SessionIDFromContext(r.Context())
	result, err := h.orch.Attempt(r.Context(), panel, sessionID, &methods.Request{
		Method:    methods.NameSocial,
		Provider:  provider,
		OAuthCode: query.Get("code"),
		State:     query.Get("state"),
		SessionID: sessionID,
		HTTP:      r,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	if result.Status == orchestrator.StatusAuthenticated {
		middleware.SetSessionCookie(w, result.SessionID, h.secure)
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Status:             result.Status,
		UserID:             result.UserID,
		ChallengeToken:     result.ChallengeToken,
		TwoFactorMethod:    result.TwoFactorMethod,
		NeedsPasswordSetup: result.NeedsPasswordSetup,
	})
}
