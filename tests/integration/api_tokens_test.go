package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/repositories"
	"github.com/marenbeck/gatehouse/internal/services"
)

func newAPITokenService() (*services.APITokenService, *repositories.APITokenRepository, *auth.APITokenManager) {
	repo := repositories.NewAPITokenRepository(testDB.DB)
	manager := auth.NewAPITokenManager()
	return services.NewAPITokenService(repo, manager), repo, manager
}

func TestAPIToken_CreateAndLookup(t *testing.T) {
	skipIfShort(t)
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB.DB)
	svc, repo, manager := newAPITokenService()

	user := CreateTestUser(t, users)

	created, err := svc.Create(ctx, user.ID, "ci deploys", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.Plain, "gh_"))
	assert.Equal(t, created.Plain[:10], created.Token.Prefix)

	// The stored row is findable only through the digest.
	hash, err := manager.Hash(created.Plain)
	require.NoError(t, err)

	found, err := repo.GetActiveByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, created.Token.ID, found.ID)
	assert.Equal(t, user.ID, found.UserID)
}

func TestAPIToken_RevokedTokenNotActive(t *testing.T) {
	skipIfShort(t)
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB.DB)
	svc, repo, manager := newAPITokenService()

	user := CreateTestUser(t, users)
	created, err := svc.Create(ctx, user.ID, "short lived", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, user.ID, created.Token.ID))

	hash, err := manager.Hash(created.Plain)
	require.NoError(t, err)
	_, err = repo.GetActiveByHash(ctx, hash)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Revoking twice reports not found, same as revoking a stranger's.
	assert.ErrorIs(t, svc.Revoke(ctx, user.ID, created.Token.ID), models.ErrNotFound)
}

func TestAPIToken_ExpiredTokenNotActive(t *testing.T) {
	skipIfShort(t)
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB.DB)
	_, repo, manager := newAPITokenService()

	user := CreateTestUser(t, users)

	plain, hash, err := manager.Generate()
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	_, err = repo.Create(ctx, &models.APIToken{
		UserID:    user.ID,
		Name:      "already expired",
		TokenHash: hash,
		Prefix:    manager.DisplayPrefix(plain),
		ExpiresAt: &past,
	})
	require.NoError(t, err)

	_, err = repo.GetActiveByHash(ctx, hash)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAPIToken_RevokeScopedToOwner(t *testing.T) {
	skipIfShort(t)
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB.DB)
	svc, _, _ := newAPITokenService()

	owner := CreateTestUser(t, users)
	other := CreateTestUser(t, users)

	created, err := svc.Create(ctx, owner.ID, "mine", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Revoke(ctx, other.ID, created.Token.ID), models.ErrNotFound)

	// Still active for the owner afterwards.
	tokens, err := svc.List(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Nil(t, tokens[0].RevokedAt)
}

func TestAPIToken_CreateRejectsPastExpiry(t *testing.T) {
	skipIfShort(t)
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB.DB)
	svc, _, _ := newAPITokenService()

	user := CreateTestUser(t, users)
	past := time.Now().Add(-time.Hour)

	_, err := svc.Create(ctx, user.ID, "stale", &past)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.Create(ctx, user.ID, "", nil)
	assert.ErrorIs(t, err, models.ErrBadRequest)
}
