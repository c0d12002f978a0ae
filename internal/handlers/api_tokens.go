package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marenbeck/gatehouse/internal/middleware"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/services"
	pkghttp "github.com/marenbeck/gatehouse/pkg/http"
)

// APITokenHandler handles personal API token management.
type APITokenHandler struct {
	service *services.APITokenService
}

func NewAPITokenHandler(service *services.APITokenService) *APITokenHandler {
	return &APITokenHandler{service: service}
}

// CreateTokenRequest represents the request body for creating a token
type CreateTokenRequest struct {
	Name      string     `json:"name" validate:"required,min=1,max=100"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// TokenResponse is the stored token shape; Token carries the plaintext
// only in the creation response.
type TokenResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	Token      string     `json:"token,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Create issues a new token and returns its plaintext once.
func (h *APITokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	created, err := h.service.Create(r.Context(), userID, req.Name, req.ExpiresAt)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	resp := toTokenResponse(created.Token)
	resp.Token = created.Plain
	pkghttp.WriteJSON(w, http.StatusCreated, resp)
}

// List returns the user's tokens without plaintext.
func (h *APITokenHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	tokens, err := h.service.List(r.Context(), userID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	out := make([]TokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, toTokenResponse(t))
	}
	pkghttp.WriteJSON(w, http.StatusOK, out)
}

// Revoke permanently disables a token.
func (h *APITokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if err := h.service.Revoke(r.Context(), userID, chi.URLParam(r, "tokenID")); err != nil {
		writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toTokenResponse(t *models.APIToken) TokenResponse {
	return TokenResponse{
		ID:         t.ID,
		Name:       t.Name,
		Prefix:     t.Prefix,
		LastUsedAt: t.LastUsedAt,
		ExpiresAt:  t.ExpiresAt,
		CreatedAt:  t.CreatedAt,
	}
}
