package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marenbeck/gatehouse/internal/config"
	"github.com/marenbeck/gatehouse/internal/methods"
	"github.com/marenbeck/gatehouse/internal/middleware"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/orchestrator"
	"github.com/marenbeck/gatehouse/internal/services"
	pkghttp "github.com/marenbeck/gatehouse/pkg/http"
)

// PasskeyHandler handles passkey registration for signed-in users and the
// assertion endpoints for passkey sign-in.
type PasskeyHandler struct {
	service *services.PasskeyService
	orch    *orchestrator.Orchestrator
	config  *config.Config
	secure  bool
}

func NewPasskeyHandler(service *services.PasskeyService, orch *orchestrator.Orchestrator, cfg *config.Config) *PasskeyHandler {
	return &PasskeyHandler{
		service: service,
		orch:    orch,
		config:  cfg,
		secure:  cfg.Server.Env == "production",
	}
}

// RenamePasskeyRequest sets a credential's display alias
type RenamePasskeyRequest struct {
	Alias string `json:"alias" validate:"required,min=1,max=64"`
}

// AssertOptionsRequest starts passkey sign-in for an account.
type AssertOptionsRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PasskeyResponse is the credential shape returned to clients. Key
// material stays server-side.
type PasskeyResponse struct {
	ID         string `json:"id"`
	Alias      string `json:"alias,omitempty"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at,omitempty"`
	Disabled   bool   `json:"disabled"`
}

// RegisterOptions returns attestation options for the signed-in user.
func (h *PasskeyHandler) RegisterOptions(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	userID := middleware.UserIDFromContext(r.Context())

	options, err := h.service.BeginRegistration(r.Context(), sessionID, userID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, options)
}

// RegisterVerify verifies the attestation response and stores the
// credential. The alias rides in the query string so the body stays a
// pure WebAuthn attestation payload.
func (h *PasskeyHandler) RegisterVerify(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	userID := middleware.UserIDFromContext(r.Context())
	alias := strings.TrimSpace(r.URL.Query().Get("alias"))

	cred, err := h.service.FinishRegistration(r.Context(), sessionID, userID, alias, r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toPasskeyResponse(cred))
}

// AssertOptions returns assertion options for an account. Unknown
// addresses and passkey-less accounts get the same generic failure.
func (h *PasskeyHandler) AssertOptions(w http.ResponseWriter, r *http.Request) {
	var req AssertOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sessionID := middleware.SessionIDFromContext(r.Context())
	options, err := h.service.BeginAssertion(r.Context(), sessionID, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "Authentication failed")
			return
		}
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, options)
}

// AssertVerify completes passkey sign-in through the orchestrator.
func (h *PasskeyHandler) AssertVerify(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.config.Panel(r.URL.Query().Get("panel"))
	if !ok {
		pkghttp.WriteBadRequest(w, "Unknown panel")
		return
	}

	sessionID := middleware.SessionIDFromContext(r.Context())
	result, err := h.orch.Attempt(r.Context(), panel, sessionID, &methods.Request{
		Method:    methods.NameWebAuthn,
		Remember:  r.URL.Query().Get("remember") == "1",
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
		Status: result.Status,
		UserID: result.UserID,
	})
}

// List returns the signed-in user's passkeys.
func (h *PasskeyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	creds, err := h.service.List(r.Context(), userID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	out := make([]PasskeyResponse, 0, len(creds))
	for _, c := range creds {
		out = append(out, toPasskeyResponse(c))
	}
	pkghttp.WriteJSON(w, http.StatusOK, out)
}

// Rename sets a passkey's alias.
func (h *PasskeyHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req RenamePasskeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	if err := h.service.Rename(r.Context(), userID, chi.URLParam(r, "credentialID"), req.Alias); err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

// Delete removes a passkey.
func (h *PasskeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if err := h.service.Remove(r.Context(), userID, chi.URLParam(r, "credentialID")); err != nil {
		writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toPasskeyResponse(c *models.PasskeyCredential) PasskeyResponse {
	resp := PasskeyResponse{
		ID:        c.ID,
		Alias:     c.Alias,
		CreatedAt: c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Disabled:  c.DisabledAt != nil,
	}
	if c.LastUsedAt != nil {
		resp.LastUsedAt = c.LastUsedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return resp
}
