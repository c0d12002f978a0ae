package twofactor

import (
	"context"
	"log/slog"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/models"
	pkglogger "github.com/marenbeck/gatehouse/pkg/logger"
)

// Manager drives the two-phase enrollment protocol. Phase 1 (Enable)
// records the chosen method with the enabled flag off; phase 2 (Confirm)
// verifies a code through the driver, flips the flag, stamps the
// confirmation time, and issues recovery codes. Until phase 2, the method
// is pending and never gates login.
type Manager struct {
	registry      *Registry
	profiles      ProfileStore
	logger        *slog.Logger
	audit         *pkglogger.AuditLogger
	recoveryCount int
}

func NewManager(registry *Registry, profiles ProfileStore, logger *slog.Logger, audit *pkglogger.AuditLogger, recoveryCount int) *Manager {
	return &Manager{
		registry:      registry,
		profiles:      profiles,
		logger:        logger,
		audit:         audit,
		recoveryCount: recoveryCount,
	}
}

// Enable starts enrollment for the named method. Drivers that need no
// confirmation are completed immediately and their recovery codes are
// included in the returned setup data.
func (m *Manager) Enable(ctx context.Context, user *models.User, method string) (*SetupData, error) {
	driver := m.registry.Resolve(method)
	if driver == nil {
		return nil, models.ErrBadRequest
	}

	setup, err := driver.Enable(ctx, user)
	if err != nil {
		m.logger.Error("two-factor enable failed",
			slog.String("user_id", user.ID),
			slog.String("method", method),
			slog.Any("error", err))
		return nil, err
	}

	if !driver.RequiresConfirmation() {
		codes, err := m.complete(ctx, user, method)
		if err != nil {
			return nil, err
		}
		setup.RecoveryCodes = codes
	}

	return setup, nil
}

// Confirm completes enrollment for a pending method after the user proves
// possession. Returns the plaintext recovery codes for one-time display.
func (m *Manager) Confirm(ctx context.Context, user *models.User, code string) ([]string, error) {
	profile, err := m.profiles.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if profile.TwoFactorMethod == "" || profile.TwoFactorEnabled {
		return nil, models.ErrBadRequest
	}

	driver := m.registry.Resolve(profile.TwoFactorMethod)
	if driver == nil {
		return nil, models.ErrBadRequest
	}

	ok, err := driver.Verify(ctx, user, profile, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrInvalidCode
	}

	return m.complete(ctx, user, profile.TwoFactorMethod)
}

// Disable clears the whole enrollment atomically.
func (m *Manager) Disable(ctx context.Context, user *models.User) error {
	if err := m.profiles.DisableTwoFactorAtomic(ctx, user.ID); err != nil {
		return err
	}

	m.audit.Log(pkglogger.AuditEvent{
		EventType: pkglogger.EventTwoFactorDisabled,
		UserID:    user.ID,
		Success:   true,
	})
	return nil
}

// complete flips the enabled flag and issues fresh recovery codes.
func (m *Manager) complete(ctx context.Context, user *models.User, method string) ([]string, error) {
	codes, err := auth.GenerateRecoveryCodes(m.recoveryCount)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = auth.HashCode(c)
	}

	if err := m.profiles.ConfirmTwoFactorAtomic(ctx, user.ID, method, hashes); err != nil {
		return nil, err
	}

	m.audit.Log(pkglogger.AuditEvent{
		EventType: pkglogger.EventTwoFactorEnabled,
		UserID:    user.ID,
		Method:    method,
		Success:   true,
	})
	m.logger.Info("two-factor enabled",
		slog.String("user_id", user.ID),
		slog.String("method", method))

	return codes, nil
}
