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

type SocialAccountRepository struct {
	q database.Querier
}

func NewSocialAccountRepository(db *database.DB) *SocialAccountRepository {
	return &SocialAccountRepository{q: db.Pool}
}

func (r *SocialAccountRepository) WithTx(tx pgx.Tx) *SocialAccountRepository {
	return &SocialAccountRepository{q: tx}
}

const socialColumns = `id, user_id, provider, provider_user_id, email, name, avatar_url,
	access_token, refresh_token, token_expires_at, created_at, updated_at`

func scanSocialRow(scanner rowScanner) (*models.SocialAccount, error) {
	var a models.SocialAccount
	var email, name, avatarURL, accessToken, refreshToken *string

	err := scanner.Scan(
		&a.ID, &a.UserID, &a.Provider, &a.ProviderUserID, &email, &name, &avatarURL,
		&accessToken, &refreshToken, &a.TokenExpiresAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if email != nil {
		a.Email = *email
	}
	if name != nil {
		a.Name = *name
	}
	if avatarURL != nil {
		a.AvatarURL = *avatarURL
	}
	if accessToken != nil {
		a.AccessToken = *accessToken
	}
	if refreshToken != nil {
		a.RefreshToken = *refreshToken
	}

	return &a, nil
}

// GetByProviderID looks up a link by its unique (provider, provider_user_id)
// pair.
func (r *SocialAccountRepository) GetByProviderID(ctx context.Context, provider, providerUserID string) (*models.SocialAccount, error) {
	query := `
		SELECT ` + socialColumns + `
		FROM social_accounts
		WHERE provider = $1 AND provider_user_id = $2
	`

	return scanSocialRow(r.q.QueryRow(ctx, query, provider, providerUserID))
}

func (r *SocialAccountRepository) ListByUserID(ctx context.Context, userID string) ([]*models.SocialAccount, error) {
	query := `
		SELECT ` + socialColumns + `
		FROM social_accounts
		WHERE user_id = $1
		ORDER BY provider
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query social accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.SocialAccount, 0)
	for rows.Next() {
		account, err := scanSocialRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan social account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating social account rows: %w", err)
	}

	return accounts, nil
}

func (r *SocialAccountRepository) Create(ctx context.Context, account *models.SocialAccount) (*models.SocialAccount, error) {
	account.ID = uuid.New().String()
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	query := `
		INSERT INTO social_accounts (id, user_id, provider, provider_user_id, email, name, avatar_url,
			access_token, refresh_token, token_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + socialColumns

	return scanSocialRow(r.q.QueryRow(ctx, query,
		account.ID, account.UserID, account.Provider, account.ProviderUserID,
		nullable(account.Email), nullable(account.Name), nullable(account.AvatarURL),
		nullable(account.AccessToken), nullable(account.RefreshToken), account.TokenExpiresAt,
		account.CreatedAt, account.UpdatedAt,
	))
}

// UpdateProfile refreshes the cached provider profile and tokens on an
// existing link. The link row is never re-created for a known provider
// identity.
func (r *SocialAccountRepository) UpdateProfile(ctx context.Context, id string, identity *models.ExternalIdentity) (*models.SocialAccount, error) {
	query := `
		UPDATE social_accounts
		SET email = $2, name = $3, avatar_url = $4, access_token = $5,
			refresh_token = $6, token_expires_at = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + socialColumns

	return scanSocialRow(r.q.QueryRow(ctx, query, id,
		nullable(identity.Email), nullable(identity.Name), nullable(identity.AvatarURL),
		nullable(identity.AccessToken), nullable(identity.RefreshToken), identity.ExpiresAt,
	))
}

func (r *SocialAccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.Exec(ctx, `DELETE FROM social_accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete social account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *SocialAccountRepository) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM social_accounts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete social accounts for user: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
