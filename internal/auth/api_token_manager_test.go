package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPITokenManager_Generate(t *testing.T) {
	manager := NewAPITokenManager()

	plain, hash, err := manager.Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plain, "gh_"))
	assert.Len(t, plain, 67)
	assert.Len(t, hash, 64)

	rehashed, err := manager.Hash(plain)
	require.NoError(t, err)
	assert.Equal(t, hash, rehashed)
}

func TestAPITokenManager_HashRejectsBadFormat(t *testing.T) {
	manager := NewAPITokenManager()

	_, err := manager.Hash("sk_" + strings.Repeat("a", 64))
	assert.Error(t, err)

	_, err = manager.Hash("gh_tooshort")
	assert.Error(t, err)
}

func TestAPITokenManager_DisplayPrefix(t *testing.T) {
	manager := NewAPITokenManager()

	plain, _, err := manager.Generate()
	require.NoError(t, err)

	prefix := manager.DisplayPrefix(plain)
	assert.Len(t, prefix, 10)
	assert.True(t, strings.HasPrefix(plain, prefix))

	assert.Equal(t, "short", manager.DisplayPrefix("short"))
}
