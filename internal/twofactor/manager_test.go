package twofactor

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marenbeck/gatehouse/internal/models"
	pkglogger "github.com/marenbeck/gatehouse/pkg/logger"
)

type scriptedDriver struct {
	name     string
	confirms bool
	enabled  bool
	verifyOK bool
}

func (d *scriptedDriver) Name() string  { return d.name }
func (d *scriptedDriver) Label() string { return d.name }
func (d *scriptedDriver) Enable(ctx context.Context, user *models.User) (*SetupData, error) {
	d.enabled = true
	return &SetupData{Method: d.name, Message: "pending"}, nil
}
func (d *scriptedDriver) Verify(ctx context.Context, user *models.User, profile *models.UserAuthProfile, code string) (bool, error) {
	return d.verifyOK, nil
}
func (d *scriptedDriver) Send(ctx context.Context, user *models.User) error { return nil }
func (d *scriptedDriver) RequiresSending() bool                             { return false }
func (d *scriptedDriver) RequiresConfirmation() bool                        { return d.confirms }

func newManager(driver Driver, profiles ProfileStore) *Manager {
	logger := slog.Default()
	return NewManager(NewRegistry(driver), profiles, logger, pkglogger.NewAuditLogger(logger), 8)
}

func testUser() *models.User {
	return &models.User{ID: "user123", Email: "user@example.com", Status: "active"}
}

func TestManager_Enable_UnknownMethod(t *testing.T) {
	manager := newManager(&scriptedDriver{name: "totp", confirms: true}, &MockProfileStore{})

	_, err := manager.Enable(context.Background(), testUser(), "carrier-pigeon")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestManager_Enable_ConfirmingDriverStaysPending(t *testing.T) {
	driver := &scriptedDriver{name: "totp", confirms: true}
	var confirmed bool
	profiles := &MockProfileStore{
		ConfirmTwoFactorAtomicFunc: func(ctx context.Context, userID, method string, hashes []string) error {
			confirmed = true
			return nil
		},
	}

	manager := newManager(driver, profiles)

	setup, err := manager.Enable(context.Background(), testUser(), "totp")
	require.NoError(t, err)

	assert.True(t, driver.enabled)
	assert.Empty(t, setup.RecoveryCodes, "recovery codes are issued at confirmation, not enrollment")
	assert.False(t, confirmed, "a confirming driver must stay pending after enable")
}

func TestManager_Enable_NonConfirmingDriverCompletesImmediately(t *testing.T) {
	driver := &scriptedDriver{name: "email", confirms: false}
	var confirmedMethod string
	var storedHashes []string
	profiles := &MockProfileStore{
		ConfirmTwoFactorAtomicFunc: func(ctx context.Context, userID, method string, hashes []string) error {
			confirmedMethod = method
			storedHashes = hashes
			return nil
		},
	}

	manager := newManager(driver, profiles)

	setup, err := manager.Enable(context.Background(), testUser(), "email")
	require.NoError(t, err)

	assert.Equal(t, "email", confirmedMethod)
	assert.Len(t, setup.RecoveryCodes, 8)
	assert.Len(t, storedHashes, 8)
	for i, code := range setup.RecoveryCodes {
		assert.NotEqual(t, code, storedHashes[i], "only digests may be persisted")
	}
}

func TestManager_Confirm_Success(t *testing.T) {
	driver := &scriptedDriver{name: "totp", confirms: true, verifyOK: true}
	var confirmedMethod string
	profiles := &MockProfileStore{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.UserAuthProfile, error) {
			return &models.UserAuthProfile{UserID: userID, TwoFactorMethod: "totp"}, nil
		},
		ConfirmTwoFactorAtomicFunc: func(ctx context.Context, userID, method string, hashes []string) error {
			confirmedMethod = method
			return nil
		},
	}

	manager := newManager(driver, profiles)

	codes, err := manager.Confirm(context.Background(), testUser(), "123456")
	require.NoError(t, err)
	assert.Len(t, codes, 8)
	assert.Equal(t, "totp", confirmedMethod)
}

func TestManager_Confirm_WrongCode(t *testing.T) {
	driver := &scriptedDriver{name: "totp", confirms: true, verifyOK: false}
	profiles := &MockProfileStore{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.UserAuthProfile, error) {
			return &models.UserAuthProfile{UserID: userID, TwoFactorMethod: "totp"}, nil
		},
	}

	manager := newManager(driver, profiles)

	_, err := manager.Confirm(context.Background(), testUser(), "000000")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestManager_Confirm_NothingPending(t *testing.T) {
	tests := []struct {
		name    string
		profile *models.UserAuthProfile
	}{
		{"no method chosen", &models.UserAuthProfile{UserID: "user123"}},
		{"already enabled", &models.UserAuthProfile{
			UserID: "user123", TwoFactorMethod: "totp", TwoFactorEnabled: true,
			TwoFactorConfirmedAt: timePtr(time.Now()),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := &MockProfileStore{
				GetByUserIDFunc: func(ctx context.Context, userID string) (*models.UserAuthProfile, error) {
					return tt.profile, nil
				},
			}
			manager := newManager(&scriptedDriver{name: "totp", confirms: true, verifyOK: true}, profiles)

			_, err := manager.Confirm(context.Background(), testUser(), "123456")
			assert.ErrorIs(t, err, models.ErrBadRequest)
		})
	}
}

func TestManager_Disable(t *testing.T) {
	var disabledUser string
	profiles := &MockProfileStore{
		DisableTwoFactorAtomicFunc: func(ctx context.Context, userID string) error {
			disabledUser = userID
			return nil
		},
	}

	manager := newManager(&scriptedDriver{name: "totp"}, profiles)

	require.NoError(t, manager.Disable(context.Background(), testUser()))
	assert.Equal(t, "user123", disabledUser)
}

func timePtr(t time.Time) *time.Time { return &t }
