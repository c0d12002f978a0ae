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
	"github.com/marenbeck/gatehouse/internal/services"
	pkgauth "github.com/marenbeck/gatehouse/pkg/auth"
	pkghttp "github.com/marenbeck/gatehouse/pkg/http"
)

// RegistrationService is the service surface the handler needs.
type RegistrationService interface {
	Register(ctx context.Context, panel models.Panel, input services.RegisterInput) (*services.RegisterResult, error)
	VerifyRegistration(ctx context.Context, email, code string) (*models.User, error)
	ResendVerification(ctx context.Context, email string) error
}

// RegistrationHandler handles account creation and the registration OTP
// verification step.
type RegistrationHandler struct {
	service RegistrationService
	orch    *orchestrator.Orchestrator
	config  *config.Config
	secure  bool
}

func NewRegistrationHandler(service RegistrationService, orch *orchestrator.Orchestrator, cfg *config.Config) *RegistrationHandler {
	return &RegistrationHandler{
		service: service,
		orch:    orch,
		config:  cfg,
		secure:  cfg.Server.Env == "production",
	}
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Panel    string `json:"panel"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Password string `json:"password" validate:"required"`
}

// VerifyRegistrationRequest represents the OTP verification body
type VerifyRegistrationRequest struct {
	Panel string `json:"panel"`
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ResendVerificationRequest represents the resend body
type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RegisterResponse represents the registration outcome
type RegisterResponse struct {
	UserID               string `json:"user_id"`
	VerificationRequired bool   `json:"verification_required"`
}

// Register handles user registration
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
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

	result, err := h.service.Register(r.Context(), panel, services.RegisterInput{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:    strings.TrimSpace(req.Phone),
		Name:     strings.TrimSpace(req.Name),
		Password: req.Password,
	})
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &pwErr):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "An account with this email already exists")
		default:
			writeAuthError(w, err)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, RegisterResponse{
		UserID:               result.User.ID,
		VerificationRequired: result.VerificationRequired,
	})
}

// Verify consumes a registration OTP, marks the email verified, and signs
// the new user in. The verified OTP is the credential; a second login
// round-trip would be asking for the same proof twice.
func (h *RegistrationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRegistrationRequest
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

	user, err := h.service.VerifyRegistration(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Code)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	sessionID := middleware.SessionIDFromContext(r.Context())
	result, err := h.orch.EstablishSession(r.Context(), panel, sessionID, &methods.Identity{
		UserID: user.ID,
		Method: "registration",
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	middleware.SetSessionCookie(w, result.SessionID, h.secure)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "verified",
		"user_id": user.ID,
	})
}

// ResendVerification sends a fresh registration OTP. Always reports
// success so the endpoint cannot confirm whether an address is registered.
func (h *RegistrationHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ResendVerification(r.Context(), strings.ToLower(strings.TrimSpace(req.Email))); err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
