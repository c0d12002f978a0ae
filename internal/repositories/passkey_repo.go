package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marenbeck/gatehouse/internal/database"
	"github.com/marenbeck/gatehouse/internal/models"
)

type PasskeyRepository struct {
	q database.Querier
}

func NewPasskeyRepository(db *database.DB) *PasskeyRepository {
	return &PasskeyRepository{q: db.Pool}
}

func (r *PasskeyRepository) WithTx(tx pgx.Tx) *PasskeyRepository {
	return &PasskeyRepository{q: tx}
}

const passkeyColumns = `id, user_id, relying_party_id, origin, public_key, sign_count,
	transports, attestation_type, aaguid, backup_eligible, backup_state, alias,
	last_used_at, disabled_at, created_at`

func scanPasskeyRow(scanner rowScanner) (*models.PasskeyCredential, error) {
	var c models.PasskeyCredential
	var alias *string

	err := scanner.Scan(
		&c.ID, &c.UserID, &c.RelyingPartyID, &c.Origin, &c.PublicKey, &c.SignCount,
		&c.Transports, &c.AttestationType, &c.AAGUID, &c.BackupEligible, &c.BackupState,
		&alias, &c.LastUsedAt, &c.DisabledAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if alias != nil {
		c.Alias = *alias
	}

	return &c, nil
}

func (r *PasskeyRepository) Create(ctx context.Context, cred *models.PasskeyCredential) (*models.PasskeyCredential, error) {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO passkey_credentials (id, user_id, relying_party_id, origin, public_key, sign_count,
			transports, attestation_type, aaguid, backup_eligible, backup_state, alias, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + passkeyColumns

	return scanPasskeyRow(r.q.QueryRow(ctx, query,
		cred.ID, cred.UserID, cred.RelyingPartyID, cred.Origin, cred.PublicKey, cred.SignCount,
		cred.Transports, cred.AttestationType, cred.AAGUID, cred.BackupEligible, cred.BackupState,
		nullable(cred.Alias), cred.CreatedAt,
	))
}

func (r *PasskeyRepository) GetByID(ctx context.Context, id string) (*models.PasskeyCredential, error) {
	query := `SELECT ` + passkeyColumns + ` FROM passkey_credentials WHERE id = $1`
	return scanPasskeyRow(r.q.QueryRow(ctx, query, id))
}

func (r *PasskeyRepository) GetByUserID(ctx context.Context, userID string) ([]*models.PasskeyCredential, error) {
	query := `
		SELECT ` + passkeyColumns + `
		FROM passkey_credentials
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query passkey credentials: %w", err)
	}
	defer rows.Close()

	creds := make([]*models.PasskeyCredential, 0)
	for rows.Next() {
		cred, err := scanPasskeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan passkey credential: %w", err)
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating passkey rows: %w", err)
	}

	return creds, nil
}

// AdvanceSignCount persists a new signature counter only if it is strictly
// greater than the stored value. Zero rows means counter regression, the
// primary clone-detection signal, and the caller must fail the assertion.
// The comparison happens inside the UPDATE so it holds under concurrent
// assertions from the same credential.
func (r *PasskeyRepository) AdvanceSignCount(ctx context.Context, id string, newCount uint32) (bool, error) {
	query := `
		UPDATE passkey_credentials
		SET sign_count = $2, last_used_at = NOW()
		WHERE id = $1 AND sign_count < $2 AND disabled_at IS NULL
	`

	result, err := r.q.Exec(ctx, query, id, newCount)
	if err != nil {
		return false, fmt.Errorf("failed to advance sign count: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// TouchLastUsed records a successful assertion for credentials whose
// authenticator does not implement a signature counter.
func (r *PasskeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE passkey_credentials SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to update passkey last use: %w", err)
	}
	return nil
}

// SetAlias renames a credential.
func (r *PasskeyRepository) SetAlias(ctx context.Context, id, userID, alias string) error {
	result, err := r.q.Exec(ctx,
		`UPDATE passkey_credentials SET alias = $3 WHERE id = $1 AND user_id = $2`,
		id, userID, alias)
	if err != nil {
		return fmt.Errorf("failed to set passkey alias: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a credential owned by the given user.
func (r *PasskeyRepository) Delete(ctx context.Context, id, userID string) error {
	result, err := r.q.Exec(ctx,
		`DELETE FROM passkey_credentials WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete passkey credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
