package methods

import (
	"context"
	"time"

	"github.com/marenbeck/gatehouse/internal/models"
)

// MockUserStore implements UserStore for testing
type MockUserStore struct {
	GetByIDFunc         func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc      func(ctx context.Context, email string) (*models.User, error)
	GetByPhoneFunc      func(ctx context.Context, phone string) (*models.User, error)
	GetByLoginFieldFunc func(ctx context.Context, field, value string) (*models.User, error)
}

func (m *MockUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserStore) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	if m.GetByPhoneFunc != nil {
		return m.GetByPhoneFunc(ctx, phone)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserStore) GetByLoginField(ctx context.Context, field, value string) (*models.User, error) {
	if m.GetByLoginFieldFunc != nil {
		return m.GetByLoginFieldFunc(ctx, field, value)
	}
	return nil, models.ErrNotFound
}

// MockProfileStore implements ProfileStore for testing
type MockProfileStore struct {
	GetByUserIDFunc    func(ctx context.Context, userID string) (*models.UserAuthProfile, error)
	UpdatePasswordFunc func(ctx context.Context, userID, passwordHash string) error
}

func (m *MockProfileStore) GetByUserID(ctx context.Context, userID string) (*models.UserAuthProfile, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockProfileStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, userID, passwordHash)
	}
	return nil
}

// MockCodeStore implements CodeStore for testing
type MockCodeStore struct {
	ConsumeFunc func(ctx context.Context, identifier, purpose, codeHash string) (*models.EphemeralCode, error)
}

func (m *MockCodeStore) Consume(ctx context.Context, identifier, purpose, codeHash string) (*models.EphemeralCode, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, identifier, purpose, codeHash)
	}
	return nil, models.ErrNotFound
}

// MockHasher implements pkg/auth.Hasher with plaintext comparison so
// tests never pay the bcrypt cost.
type MockHasher struct {
	NeedsRehashResult bool
}

func (h *MockHasher) Hash(plain string) (string, error) {
	return "hashed:" + plain, nil
}

func (h *MockHasher) Check(plain, hash string) bool {
	return hash == "hashed:"+plain
}

func (h *MockHasher) NeedsRehash(hash string) bool {
	return h.NeedsRehashResult
}

// NewTestUser creates an active user with sensible defaults.
func NewTestUser(id, email string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        id,
		Email:     email,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
}
