package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/services"
	pkgauth "github.com/marenbeck/gatehouse/pkg/auth"
	pkghttp "github.com/marenbeck/gatehouse/pkg/http"
)

// PasswordlessHandler handles the request side of magic links, login
// OTPs, and password resets. All three report success regardless of
// whether the destination belongs to an account.
type PasswordlessHandler struct {
	passwordless *services.PasswordlessService
	reset        *services.PasswordResetService
}

func NewPasswordlessHandler(passwordless *services.PasswordlessService, reset *services.PasswordResetService) *PasswordlessHandler {
	return &PasswordlessHandler{passwordless: passwordless, reset: reset}
}

// EmailRequest carries a bare email address
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PhoneRequest carries a bare phone number
type PhoneRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

// ResetPasswordRequest carries the reset token and the new password
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required,len=64,hexadecimal"`
	Password string `json:"password" validate:"required"`
}

// RequestMagicLink emails a single-use sign-in link.
func (h *PasswordlessHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	email, ok := h.decodeEmail(w, r)
	if !ok {
		return
	}

	if err := h.passwordless.RequestMagicLink(r.Context(), email); err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "sent",
		"message": "If the address belongs to an account, a sign-in link is on its way.",
	})
}

// RequestLoginOTP texts a sign-in code.
func (h *PasswordlessHandler) RequestLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req PhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.passwordless.RequestLoginOTP(r.Context(), strings.TrimSpace(req.Phone)); err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "sent",
		"message": "If the number belongs to an account, a code is on its way.",
	})
}

// ForgotPassword emails a single-use password reset link.
func (h *PasswordlessHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	email, ok := h.decodeEmail(w, r)
	if !ok {
		return
	}

	if err := h.reset.RequestReset(r.Context(), email); err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "sent",
		"message": "If the address belongs to an account, a reset link is on its way.",
	})
}

// ResetPassword consumes a reset token and sets the new password.
func (h *PasswordlessHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.reset.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &pwErr):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		case errors.Is(err, models.ErrInvalidCode):
			pkghttp.WriteBadRequest(w, "Invalid or expired reset link")
		default:
			writeAuthError(w, err)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}

func (h *PasswordlessHandler) decodeEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return "", false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(req.Email)), true
}
