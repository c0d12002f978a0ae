package methods

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/models"
)

func TestOTPMethod_Validate(t *testing.T) {
	method := NewOTPMethod(&MockUserStore{}, &MockCodeStore{})

	assert.NoError(t, method.Validate(&Request{Phone: "+15550100", Code: "123456"}))
	assert.ErrorIs(t, method.Validate(&Request{Phone: "", Code: "123456"}), models.ErrBadRequest)
	assert.ErrorIs(t, method.Validate(&Request{Phone: "+15550100", Code: "12345"}), models.ErrBadRequest)
	assert.ErrorIs(t, method.Validate(&Request{Phone: "+15550100", Code: "12345a"}), models.ErrBadRequest)
}

func TestOTPMethod_Success(t *testing.T) {
	userID := "user123"
	codes := &MockCodeStore{
		ConsumeFunc: func(ctx context.Context, identifier, purpose, codeHash string) (*models.EphemeralCode, error) {
			assert.Equal(t, "+15550100", identifier)
			assert.Equal(t, models.PurposeLogin, purpose)
			assert.Equal(t, auth.HashCode("123456"), codeHash)
			return &models.EphemeralCode{UserID: &userID}, nil
		},
	}
	users := &MockUserStore{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return NewTestUser(id, "user@example.com"), nil
		},
	}

	method := NewOTPMethod(users, codes)

	identity, err := method.Authenticate(context.Background(), models.Panel{Name: "app"}, &Request{
		Phone: "+15550100",
		Code:  "123456",
	})
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "user123", identity.UserID)
	assert.False(t, identity.StrongFactor)
}

func TestOTPMethod_CodeWithoutUserFallsBackToPhone(t *testing.T) {
	codes := &MockCodeStore{
		ConsumeFunc: func(ctx context.Context, identifier, purpose, codeHash string) (*models.EphemeralCode, error) {
			return &models.EphemeralCode{}, nil
		},
	}
	users := &MockUserStore{
		GetByPhoneFunc: func(ctx context.Context, phone string) (*models.User, error) {
			assert.Equal(t, "+15550100", phone)
			return NewTestUser("user456", "other@example.com"), nil
		},
	}

	method := NewOTPMethod(users, codes)

	identity, err := method.Authenticate(context.Background(), models.Panel{Name: "app"}, &Request{
		Phone: "+15550100",
		Code:  "123456",
	})
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "user456", identity.UserID)
}

func TestOTPMethod_WrongOrReplayedCode(t *testing.T) {
	// The store returns ErrNotFound both for a wrong code and for a
	// code already consumed; the caller sees one generic failure.
	method := NewOTPMethod(&MockUserStore{}, &MockCodeStore{})

	identity, err := method.Authenticate(context.Background(), models.Panel{Name: "app"}, &Request{
		Phone: "+15550100",
		Code:  "000000",
	})
	assert.NoError(t, err)
	assert.Nil(t, identity)
}

func TestOTPMethod_SuspendedAccount(t *testing.T) {
	userID := "user123"
	codes := &MockCodeStore{
		ConsumeFunc: func(ctx context.Context, identifier, purpose, codeHash string) (*models.EphemeralCode, error) {
			return &models.EphemeralCode{UserID: &userID}, nil
		},
	}
	users := &MockUserStore{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			user := NewTestUser(id, "user@example.com")
			user.Status = "suspended"
			return user, nil
		},
	}

	method := NewOTPMethod(users, codes)

	identity, err := method.Authenticate(context.Background(), models.Panel{Name: "app"}, &Request{
		Phone: "+15550100",
		Code:  "123456",
	})
	assert.ErrorIs(t, err, models.ErrAccountSuspended)
	assert.Nil(t, identity)
}
