package twofactor

import (
	"context"

	"github.com/marenbeck/gatehouse/internal/models"
)

// MockProfileStore implements ProfileStore for testing
type MockProfileStore struct {
	GetByUserIDFunc            func(ctx context.Context, userID string) (*models.UserAuthProfile, error)
	SetPendingTwoFactorFunc    func(ctx context.Context, userID, method string, secret, nonce []byte) error
	ConfirmTwoFactorAtomicFunc func(ctx context.Context, userID, method string, recoveryCodeHashes []string) error
	DisableTwoFactorAtomicFunc func(ctx context.Context, userID string) error
}

func (m *MockProfileStore) GetByUserID(ctx context.Context, userID string) (*models.UserAuthProfile, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockProfileStore) SetPendingTwoFactor(ctx context.Context, userID, method string, secret, nonce []byte) error {
	if m.SetPendingTwoFactorFunc != nil {
		return m.SetPendingTwoFactorFunc(ctx, userID, method, secret, nonce)
	}
	return nil
}

func (m *MockProfileStore) ConfirmTwoFactorAtomic(ctx context.Context, userID, method string, recoveryCodeHashes []string) error {
	if m.ConfirmTwoFactorAtomicFunc != nil {
		return m.ConfirmTwoFactorAtomicFunc(ctx, userID, method, recoveryCodeHashes)
	}
	return nil
}

func (m *MockProfileStore) DisableTwoFactorAtomic(ctx context.Context, userID string) error {
	if m.DisableTwoFactorAtomicFunc != nil {
		return m.DisableTwoFactorAtomicFunc(ctx, userID)
	}
	return nil
}

// MockCodeStore implements CodeStore for testing
type MockCodeStore struct {
	CreateFunc  func(ctx context.Context, code *models.EphemeralCode) (*models.EphemeralCode, error)
	ConsumeFunc func(ctx context.Context, identifier, purpose, codeHash string) (*models.EphemeralCode, error)
}

func (m *MockCodeStore) Create(ctx context.Context, code *models.EphemeralCode) (*models.EphemeralCode, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, code)
	}
	return code, nil
}

func (m *MockCodeStore) Consume(ctx context.Context, identifier, purpose, codeHash string) (*models.EphemeralCode, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, identifier, purpose, codeHash)
	}
	return nil, models.ErrNotFound
}

// MockMailer implements mail.Mailer for testing
type MockMailer struct {
	SendFunc func(ctx context.Context, to, template string, data map[string]string) error
	Sent     []string
}

func (m *MockMailer) Send(ctx context.Context, to, template string, data map[string]string) error {
	m.Sent = append(m.Sent, to)
	if m.SendFunc != nil {
		return m.SendFunc(ctx, to, template, data)
	}
	return nil
}
