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

// EphemeralCodeRepository backs every short-lived single-use secret:
// registration and login OTPs, emailed 2FA codes, magic-link tokens, and
// password-reset tokens.
type EphemeralCodeRepository struct {
	q database.Querier
}

func NewEphemeralCodeRepository(db *database.DB) *EphemeralCodeRepository {
	return &EphemeralCodeRepository{q: db.Pool}
}

func (r *EphemeralCodeRepository) WithTx(tx pgx.Tx) *EphemeralCodeRepository {
	return &EphemeralCodeRepository{q: tx}
}

const codeColumns = `id, identifier, sent_to, user_id, code_hash, purpose, expires_at, consumed_at, created_at`

func scanCodeRow(scanner rowScanner) (*models.EphemeralCode, error) {
	var c models.EphemeralCode
	var sentTo *string

	err := scanner.Scan(
		&c.ID, &c.Identifier, &sentTo, &c.UserID, &c.CodeHash,
		&c.Purpose, &c.ExpiresAt, &c.ConsumedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if sentTo != nil {
		c.SentTo = *sentTo
	}

	return &c, nil
}

// Create stores a new code. Any still-active codes for the same identifier
// and purpose are invalidated first so only the latest send is usable.
func (r *EphemeralCodeRepository) Create(ctx context.Context, code *models.EphemeralCode) (*models.EphemeralCode, error) {
	if err := r.InvalidateActive(ctx, code.Identifier, code.Purpose); err != nil {
		return nil, err
	}

	code.ID = uuid.New().String()
	code.CreatedAt = time.Now()

	query := `
		INSERT INTO ephemeral_codes (id, identifier, sent_to, user_id, code_hash, purpose, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + codeColumns

	var sentTo *string
	if code.SentTo != "" {
		sentTo = &code.SentTo
	}

	created, err := scanCodeRow(r.q.QueryRow(ctx, query,
		code.ID, code.Identifier, sentTo, code.UserID, code.CodeHash,
		code.Purpose, code.ExpiresAt, code.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create ephemeral code: %w", err)
	}

	return created, nil
}

// Consume atomically marks the matching code consumed and returns it. The
// conditional UPDATE is the only write path, so two concurrent verify
// calls with the same code produce exactly one success: the loser sees
// zero rows and gets ErrNotFound. Expired and already-consumed rows never
// match.
func (r *EphemeralCodeRepository) Consume(ctx context.Context, identifier, purpose, codeHash string) (*models.EphemeralCode, error) {
	query := `
		UPDATE ephemeral_codes
		SET consumed_at = NOW()
		WHERE identifier = $1 AND purpose = $2 AND code_hash = $3
			AND consumed_at IS NULL AND expires_at > NOW()
		RETURNING ` + codeColumns

	code, err := scanCodeRow(r.q.QueryRow(ctx, query, identifier, purpose, codeHash))
	if err != nil {
		return nil, err
	}

	return code, nil
}

// GetActive returns the newest usable code for an identifier and purpose.
// Used for displaying resend state, never for verification.
func (r *EphemeralCodeRepository) GetActive(ctx context.Context, identifier, purpose string) (*models.EphemeralCode, error) {
	query := `
		SELECT ` + codeColumns + `
		FROM ephemeral_codes
		WHERE identifier = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanCodeRow(r.q.QueryRow(ctx, query, identifier, purpose))
}

// InvalidateActive expires any usable codes for the identifier and purpose.
func (r *EphemeralCodeRepository) InvalidateActive(ctx context.Context, identifier, purpose string) error {
	query := `
		UPDATE ephemeral_codes
		SET expires_at = NOW()
		WHERE identifier = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > NOW()
	`

	if _, err := r.q.Exec(ctx, query, identifier, purpose); err != nil {
		return fmt.Errorf("failed to invalidate active codes: %w", err)
	}
	return nil
}

// CleanupExpired deletes rows that expired more than a day ago. Lookups
// already exclude expired rows; this just keeps the table small.
func (r *EphemeralCodeRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM ephemeral_codes WHERE expires_at < NOW() - INTERVAL '1 day'`

	result, err := r.q.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired codes: %w", err)
	}

	return result.RowsAffected(), nil
}
