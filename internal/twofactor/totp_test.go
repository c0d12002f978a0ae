package twofactor

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/models"
)

func totpFixture(t *testing.T) (*TOTPDriver, *models.UserAuthProfile, []byte) {
	t.Helper()

	manager, err := auth.NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "gatehouse")
	require.NoError(t, err)

	secret := []byte("JBSWY3DPEHPK3PXP")
	encrypted, nonce, err := manager.EncryptSecret(secret)
	require.NoError(t, err)

	profile := &models.UserAuthProfile{
		UserID:               "u1",
		TwoFactorEnabled:     true,
		TwoFactorMethod:      models.TwoFactorMethodTOTP,
		TwoFactorSecret:      encrypted,
		TwoFactorSecretNonce: nonce,
	}

	return NewTOTPDriver(manager, &MockProfileStore{}), profile, secret
}

func TestTOTPDriver_Verify(t *testing.T) {
	driver, profile, secret := totpFixture(t)
	user := &models.User{ID: "u1", Email: "user@example.com", Status: "active"}

	code, err := totp.GenerateCode(string(secret), time.Now())
	require.NoError(t, err)

	ok, err := driver.Verify(context.Background(), user, profile, code)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = driver.Verify(context.Background(), user, profile, "000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTOTPDriver_Verify_MalformedCodeFailsQuietly(t *testing.T) {
	driver, profile, _ := totpFixture(t)
	user := &models.User{ID: "u1", Email: "user@example.com", Status: "active"}

	// Codes of the wrong length must look exactly like wrong codes; a
	// distinguishable error would tell the caller which stage rejected it.
	for _, code := range []string{"", "123", "12345678", "not-a-code-here"} {
		ok, err := driver.Verify(context.Background(), user, profile, code)
		assert.NoError(t, err, "code %q", code)
		assert.False(t, ok, "code %q", code)
	}
}

func TestTOTPDriver_Verify_CorruptSecretIsAnError(t *testing.T) {
	driver, profile, _ := totpFixture(t)
	user := &models.User{ID: "u1", Email: "user@example.com", Status: "active"}

	profile.TwoFactorSecret = []byte("not a ciphertext")

	_, err := driver.Verify(context.Background(), user, profile, "123456")
	assert.Error(t, err)
}

func TestTOTPDriver_Verify_NoSecret(t *testing.T) {
	driver, profile, _ := totpFixture(t)
	user := &models.User{ID: "u1", Email: "user@example.com", Status: "active"}

	profile.TwoFactorSecret = nil

	ok, err := driver.Verify(context.Background(), user, profile, "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}
