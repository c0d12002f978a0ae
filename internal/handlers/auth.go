package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/marenbeck/gatehouse/internal/config"
	"github.com/marenbeck/gatehouse/internal/methods"
	"github.com/marenbeck/gatehouse/internal/middleware"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/orchestrator"
	pkghttp "github.com/marenbeck/gatehouse/pkg/http"
)

// AuthHandler handles the sign-in state machine endpoints: login, the
// second-factor challenge, and logout.
type AuthHandler struct {
	orch   *orchestrator.Orchestrator
	config *config.Config
	secure bool
}

func NewAuthHandler(orch *orchestrator.Orchestrator, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		orch:   orch,
		config: cfg,
		secure: cfg.Server.Env == "production",
	}
}

// LoginRequest represents the request body for login. Which credential
// fields are set selects the authentication method.
type LoginRequest struct {
	Panel    string `json:"panel"`
	Method   string `json:"method" validate:"omitempty,oneof=password otp magic-link webauthn api-token"`
	Login    string `json:"login" validate:"omitempty,max=254"`
	Password string `json:"password" validate:"omitempty,max=128"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
	Code     string `json:"code" validate:"omitempty,len=6,numeric"`
	Token    string `json:"token" validate:"omitempty,len=64,hexadecimal"`
	APIToken string `json:"api_token" validate:"omitempty,max=128"`
	Remember bool   `json:"remember"`
}

// LoginResponse represents the outcome of a login step.
type LoginResponse struct {
	Status             string `json:"status"`
	UserID             string `json:"user_id,omitempty"`
	ChallengeToken     string `json:"challenge_token,omitempty"`
	TwoFactorMethod    string `json:"two_factor_method,omitempty"`
	NeedsPasswordSetup bool   `json:"needs_password_setup,omitempty"`
}

// VerifyTwoFactorRequest represents the request body for answering a
// second-factor challenge with a driver code. Every driver issues six
// digits, so anything else is rejected at the boundary.
type VerifyTwoFactorRequest struct {
	Panel          string `json:"panel"`
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyRecoveryCodeRequest represents the request body for answering a
// challenge with a recovery code. The bound allows the separators users
// paste along with a code.
type VerifyRecoveryCodeRequest struct {
	Panel          string `json:"panel"`
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code" validate:"required,min=10,max=16"`
}

// Login handles a primary-factor attempt.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	panel, ok := h.config.Panel(req.Panel)
	if !ok {
		pkghttp.WriteBadRequest(w, "Unknown panel")
		return
	}

	sessionID := middleware.SessionIDFromContext(r.Context())
	result, err := h.orch.Attempt(r.Context(), panel, sessionID, &methods.Request{
		Method:    req.Method,
		Login:     strings.ToLower(strings.TrimSpace(req.Login)),
		Password:  req.Password,
		Phone:     strings.TrimSpace(req.Phone),
		Code:      req.Code,
		Token:     req.Token,
		APIToken:  req.APIToken,
		Remember:  req.Remember,
		SessionID: sessionID,
		HTTP:      r,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	h.writeResult(w, result)
}

// VerifyTwoFactor answers a pending challenge with a driver code.
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req VerifyTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	h.answerChallenge(w, r, req.Panel, req.ChallengeToken, req.Code, h.orch.VerifySecondFactor)
}

// VerifyRecoveryCode answers a pending challenge with a recovery code.
func (h *AuthHandler) VerifyRecoveryCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyRecoveryCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	h.answerChallenge(w, r, req.Panel, req.ChallengeToken, req.Code, h.orch.VerifyRecoveryCode)
}

func (h *AuthHandler) answerChallenge(w http.ResponseWriter, r *http.Request, panelName, token, code string,
	verify func(ctx context.Context, panel models.Panel, sessionID, token, code string) (*orchestrator.Result, error)) {

	panel, ok := h.config.Panel(panelName)
	if !ok {
		pkghttp.WriteBadRequest(w, "Unknown panel")
		return
	}

	sessionID := middleware.SessionIDFromContext(r.Context())
	result, err := verify(r.Context(), panel, sessionID, token, code)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	h.writeResult(w, result)
}

// ResendTwoFactor re-sends the challenge code for delivery-based methods.
func (h *AuthHandler) ResendTwoFactor(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if err := h.orch.ResendChallenge(r.Context(), sessionID); err != nil {
		writeAuthError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// CancelTwoFactor abandons a pending challenge.
func (h *AuthHandler) CancelTwoFactor(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if err := h.orch.CancelChallenge(r.Context(), sessionID); err != nil {
		writeAuthError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ConsumeMagicLink signs in with the token from an emailed link. The
// token arrives in the query string because it is clicked, not posted.
func (h *AuthHandler) ConsumeMagicLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		pkghttp.WriteBadRequest(w, "Missing token")
		return
	}

	panel, ok := h.config.Panel(r.URL.Query().Get("panel"))
	if !ok {
		pkghttp.WriteBadRequest(w, "Unknown panel")
		return
	}

	sessionID := middleware.SessionIDFromContext(r.Context())
	result, err := h.orch.Attempt(r.Context(), panel, sessionID, &methods.Request{
		Method:    methods.NameMagicLink,
		Token:     token,
		SessionID: sessionID,
		HTTP:      r,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	h.writeResult(w, result)
}

// Logout destroys the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if err := h.orch.Logout(r.Context(), sessionID); err != nil {
		writeAuthError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) writeResult(w http.ResponseWriter, result *orchestrator.Result) {
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

// writeAuthError maps core errors onto HTTP responses. Credential and
// challenge failures share one generic message; account-state errors do
// too, to prevent user enumeration.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrInvalidCode),
		errors.Is(err, models.ErrUnauthorized),
		errors.Is(err, models.ErrAccountDisabled),
		errors.Is(err, models.ErrAccountSuspended),
		errors.Is(err, models.ErrEmailNotVerified):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrNoPendingChallenge):
		pkghttp.WriteBadRequest(w, "No pending challenge")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Forbidden")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Already exists")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Not found")
	case errors.Is(err, models.ErrExternalService):
		pkghttp.WriteError(w, http.StatusBadGateway, "external_service", "Upstream service failed")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
