package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/marenbeck/gatehouse/internal/middleware"
	"github.com/marenbeck/gatehouse/internal/repositories"
	"github.com/marenbeck/gatehouse/internal/twofactor"
	pkghttp "github.com/marenbeck/gatehouse/pkg/http"
)

// TwoFactorHandler handles second-factor enrollment for signed-in users:
// the two-phase enable/confirm protocol, and disabling.
type TwoFactorHandler struct {
	manager  *twofactor.Manager
	registry *twofactor.Registry
	users    *repositories.UserRepository
}

func NewTwoFactorHandler(manager *twofactor.Manager, registry *twofactor.Registry, users *repositories.UserRepository) *TwoFactorHandler {
	return &TwoFactorHandler{manager: manager, registry: registry, users: users}
}

// EnableTwoFactorRequest selects the method to enroll
type EnableTwoFactorRequest struct {
	Method string `json:"method" validate:"required,oneof=totp email sms"`
}

// ConfirmTwoFactorRequest proves possession of the enrolled method
type ConfirmTwoFactorRequest struct {
	Code string `json:"code" validate:"required,min=6,max=8"`
}

// MethodInfo describes one available second-factor method
type MethodInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// ListMethods returns the available second-factor methods.
func (h *TwoFactorHandler) ListMethods(w http.ResponseWriter, r *http.Request) {
	drivers := h.registry.All()
	out := make([]MethodInfo, 0, len(drivers))
	for _, d := range drivers {
		out = append(out, MethodInfo{Name: d.Name(), Label: d.Label()})
	}
	pkghttp.WriteJSON(w, http.StatusOK, out)
}

// Enable starts enrollment for a method. The method stays pending and
// does not gate login until Confirm succeeds.
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	var req EnableTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.users.GetByID(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	setup, err := h.manager.Enable(r.Context(), user, req.Method)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, setup)
}

// Confirm completes enrollment with a proof-of-possession code and
// returns the recovery codes, shown exactly once.
func (h *TwoFactorHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.users.GetByID(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	recoveryCodes, err := h.manager.Confirm(r.Context(), user, req.Code)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "enabled",
		"recovery_codes": recoveryCodes,
	})
}

// Disable turns off the second factor and deletes remaining recovery
// codes.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	if err := h.manager.Disable(r.Context(), user); err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}
