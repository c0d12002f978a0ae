package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestNewTOTPManager_KeyLength(t *testing.T) {
	_, err := NewTOTPManager([]byte("too short"), "gatehouse")
	assert.Error(t, err)

	_, err = NewTOTPManager(testKey(), "gatehouse")
	assert.NoError(t, err)
}

func TestTOTPManager_EncryptDecryptRoundTrip(t *testing.T) {
	manager, err := NewTOTPManager(testKey(), "gatehouse")
	require.NoError(t, err)

	secret := []byte("JBSWY3DPEHPK3PXP")
	encrypted, nonce, err := manager.EncryptSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, encrypted)

	decrypted, err := manager.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)
	assert.Equal(t, secret, decrypted)
}

func TestTOTPManager_DecryptWithWrongKeyFails(t *testing.T) {
	manager, err := NewTOTPManager(testKey(), "gatehouse")
	require.NoError(t, err)

	encrypted, nonce, err := manager.EncryptSecret([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	other, err := NewTOTPManager([]byte("ffffffffffffffffffffffffffffffff"), "gatehouse")
	require.NoError(t, err)

	_, err = other.DecryptSecret(encrypted, nonce)
	assert.Error(t, err)
}

func TestTOTPManager_GenerateSecret(t *testing.T) {
	manager, err := NewTOTPManager(testKey(), "gatehouse")
	require.NoError(t, err)

	encrypted, nonce, qrDataURL, err := manager.GenerateSecret("user@example.com")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(qrDataURL, "data:image/png;base64,"))

	secret, err := manager.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
}

func TestTOTPManager_ValidateCode(t *testing.T) {
	manager, err := NewTOTPManager(testKey(), "gatehouse")
	require.NoError(t, err)

	encrypted, nonce, _, err := manager.GenerateSecret("user@example.com")
	require.NoError(t, err)
	secret, err := manager.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)

	code, err := totp.GenerateCode(string(secret), time.Now())
	require.NoError(t, err)

	valid, err := manager.ValidateCode(secret, code)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = manager.ValidateCode(secret, "000000")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestTOTPManager_ValidateCode_WrongLengthIsJustWrong(t *testing.T) {
	manager, err := NewTOTPManager(testKey(), "gatehouse")
	require.NoError(t, err)

	encrypted, nonce, _, err := manager.GenerateSecret("user@example.com")
	require.NoError(t, err)
	secret, err := manager.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)

	for _, code := range []string{"", "123", "12345678", "1234567890123456"} {
		valid, err := manager.ValidateCode(secret, code)
		assert.NoError(t, err, "code %q", code)
		assert.False(t, valid, "code %q", code)
	}
}
