package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marenbeck/gatehouse/internal/database"
	"github.com/marenbeck/gatehouse/internal/models"
)

type APITokenRepository struct {
	q database.Querier
}

func NewAPITokenRepository(db *database.DB) *APITokenRepository {
	return &APITokenRepository{q: db.Pool}
}

const apiTokenColumns = `id, user_id, name, token_hash, prefix, last_used_at, expires_at, revoked_at, created_at`

func scanAPITokenRow(scanner rowScanner) (*models.APIToken, error) {
	var t models.APIToken

	err := scanner.Scan(
		&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.Prefix,
		&t.LastUsedAt, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &t, nil
}

func (r *APITokenRepository) Create(ctx context.Context, token *models.APIToken) (*models.APIToken, error) {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO api_tokens (id, user_id, name, token_hash, prefix, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + apiTokenColumns

	return scanAPITokenRow(r.q.QueryRow(ctx, query,
		token.ID, token.UserID, token.Name, token.TokenHash, token.Prefix,
		token.ExpiresAt, token.CreatedAt,
	))
}

// GetActiveByHash fetches a token by hash, excluding revoked and expired
// rows at the query level.
func (r *APITokenRepository) GetActiveByHash(ctx context.Context, tokenHash string) (*models.APIToken, error) {
	query := `
		SELECT ` + apiTokenColumns + `
		FROM api_tokens
		WHERE token_hash = $1 AND revoked_at IS NULL
			AND (expires_at IS NULL OR expires_at > NOW())
	`

	return scanAPITokenRow(r.q.QueryRow(ctx, query, tokenHash))
}

func (r *APITokenRepository) ListByUserID(ctx context.Context, userID string) ([]*models.APIToken, error) {
	query := `
		SELECT ` + apiTokenColumns + `
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*models.APIToken, 0)
	for rows.Next() {
		token, err := scanAPITokenRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api token rows: %w", err)
	}

	return tokens, nil
}

func (r *APITokenRepository) TouchLastUsed(ctx context.Context, id string) error {
	if _, err := r.q.Exec(ctx, `UPDATE api_tokens SET last_used_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to touch api token: %w", err)
	}
	return nil
}

// Revoke marks the token revoked if it belongs to the given user.
func (r *APITokenRepository) Revoke(ctx context.Context, id, userID string) error {
	query := `
		UPDATE api_tokens
		SET revoked_at = NOW()
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL
	`

	result, err := r.q.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke api token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
