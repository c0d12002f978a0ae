package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/repositories"
)

func TestRecoveryCode_SingleUse(t *testing.T) {
	skipIfShort(t)
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB.DB)
	profiles := repositories.NewAuthProfileRepository(testDB.DB)

	user := CreateTestUser(t, users)
	CreateTestProfile(t, profiles, user.ID, "hash")

	codes, err := auth.GenerateRecoveryCodes(8)
	require.NoError(t, err)
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = auth.HashCode(c)
	}
	require.NoError(t, profiles.ReplaceRecoveryCodes(ctx, user.ID, hashes))

	count, err := profiles.CountRecoveryCodes(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, count)

	consumed, err := profiles.ConsumeRecoveryCode(ctx, user.ID, hashes[0])
	require.NoError(t, err)
	assert.True(t, consumed)

	// The same code again finds no row.
	consumed, err = profiles.ConsumeRecoveryCode(ctx, user.ID, hashes[0])
	require.NoError(t, err)
	assert.False(t, consumed)

	count, err = profiles.CountRecoveryCodes(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestRecoveryCode_ConcurrentConsume(t *testing.T) {
	skipIfShort(t)
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB.DB)
	profiles := repositories.NewAuthProfileRepository(testDB.DB)

	user := CreateTestUser(t, users)
	CreateTestProfile(t, profiles, user.ID, "hash")

	hash := auth.HashCode("RACE-CODE-1")
	require.NoError(t, profiles.ReplaceRecoveryCodes(ctx, user.ID, []string{hash}))

	const attempts = 8
	var wg sync.WaitGroup
	wins := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumed, err := profiles.ConsumeRecoveryCode(ctx, user.ID, hash)
			assert.NoError(t, err)
			wins <- consumed
		}()
	}
	wg.Wait()
	close(wins)

	var successes int
	for win := range wins {
		if win {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "the DELETE must admit exactly one winner")
}

func TestRecoveryCode_ReplaceDropsOldCodes(t *testing.T) {
	skipIfShort(t)
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB.DB)
	profiles := repositories.NewAuthProfileRepository(testDB.DB)

	user := CreateTestUser(t, users)
	CreateTestProfile(t, profiles, user.ID, "hash")

	oldHash := auth.HashCode("OLD-CODE-1")
	require.NoError(t, profiles.ReplaceRecoveryCodes(ctx, user.ID, []string{oldHash}))

	newHash := auth.HashCode("NEW-CODE-1")
	require.NoError(t, profiles.ReplaceRecoveryCodes(ctx, user.ID, []string{newHash}))

	consumed, err := profiles.ConsumeRecoveryCode(ctx, user.ID, oldHash)
	require.NoError(t, err)
	assert.False(t, consumed, "re-issuing codes must invalidate the previous set")

	consumed, err = profiles.ConsumeRecoveryCode(ctx, user.ID, newHash)
	require.NoError(t, err)
	assert.True(t, consumed)
}
