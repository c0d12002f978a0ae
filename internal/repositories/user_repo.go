package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/marenbeck/gatehouse/internal/database"
	"github.com/marenbeck/gatehouse/internal/models"
)

type UserRepository struct {
	q database.Querier
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

// WithTx returns a copy of the repository scoped to the given transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	return &UserRepository{q: tx}
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, email, phone, name, avatar_url, email_verified_at, status, created_at, updated_at`

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var phone, avatarURL *string
	var emailVerifiedAt *time.Time

	err := scanner.Scan(
		&user.ID, &user.Email, &phone, &user.Name, &avatarURL,
		&emailVerifiedAt, &user.Status, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if phone != nil {
		user.Phone = *phone
	}
	if avatarURL != nil {
		user.AvatarURL = *avatarURL
	}
	user.EmailVerifiedAt = emailVerifiedAt

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.q.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.q.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	return scanUserRow(r.q.QueryRow(ctx, query, phone))
}

// GetByLoginField resolves a user by the panel-configured login attribute.
// Unknown fields fall back to email so a misconfigured panel fails toward
// the common case rather than an SQL error.
func (r *UserRepository) GetByLoginField(ctx context.Context, field, value string) (*models.User, error) {
	switch field {
	case "phone":
		return r.GetByPhone(ctx, value)
	default:
		return r.GetByEmail(ctx, value)
	}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Status == "" {
		user.Status = "active"
	}

	query := `
		INSERT INTO users (id, email, phone, name, avatar_url, email_verified_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + userColumns

	var phone, avatarURL *string
	if user.Phone != "" {
		phone = &user.Phone
	}
	if user.AvatarURL != "" {
		avatarURL = &user.AvatarURL
	}

	created, err := scanUserRow(r.q.QueryRow(ctx, query,
		user.ID, user.Email, phone, user.Name, avatarURL,
		user.EmailVerifiedAt, user.Status, user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, user *models.User) (*models.User, error) {
	query := `
		UPDATE users
		SET name = $2, avatar_url = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	var avatarURL *string
	if user.AvatarURL != "" {
		avatarURL = &user.AvatarURL
	}

	return scanUserRow(r.q.QueryRow(ctx, query, id, user.Name, avatarURL))
}

// MarkEmailVerified stamps the email verification timestamp if not already
// set.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET email_verified_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND email_verified_at IS NULL
	`

	_, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
