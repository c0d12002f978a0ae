package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marenbeck/gatehouse/internal/database"
	"github.com/marenbeck/gatehouse/internal/models"
)

// AuthProfileRepository persists the auth-relevant state kept alongside a
// user: password hash, two-factor enrollment, and recovery codes.
type AuthProfileRepository struct {
	q  database.Querier
	db *database.DB // nil when scoped to a transaction
}

func NewAuthProfileRepository(db *database.DB) *AuthProfileRepository {
	return &AuthProfileRepository{q: db.Pool, db: db}
}

func (r *AuthProfileRepository) WithTx(tx pgx.Tx) *AuthProfileRepository {
	return &AuthProfileRepository{q: tx}
}

// inTransaction runs fn against a transaction-scoped copy of the
// repository, or directly when already inside one.
func (r *AuthProfileRepository) inTransaction(ctx context.Context, fn func(repo *AuthProfileRepository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return fn(r.WithTx(tx))
	})
}

const profileColumns = `user_id, password_hash, password_changed_at, two_factor_enabled,
	two_factor_method, two_factor_secret, two_factor_secret_nonce, two_factor_confirmed_at,
	created_at, updated_at`

func scanProfileRow(scanner rowScanner) (*models.UserAuthProfile, error) {
	var p models.UserAuthProfile
	var passwordHash, method *string
	var passwordChangedAt, confirmedAt *time.Time

	err := scanner.Scan(
		&p.UserID, &passwordHash, &passwordChangedAt, &p.TwoFactorEnabled,
		&method, &p.TwoFactorSecret, &p.TwoFactorSecretNonce, &confirmedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		p.PasswordHash = *passwordHash
	}
	if method != nil {
		p.TwoFactorMethod = *method
	}
	p.PasswordChangedAt = passwordChangedAt
	p.TwoFactorConfirmedAt = confirmedAt

	return &p, nil
}

func (r *AuthProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.UserAuthProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM auth_profiles WHERE user_id = $1`
	return scanProfileRow(r.q.QueryRow(ctx, query, userID))
}

func (r *AuthProfileRepository) Create(ctx context.Context, profile *models.UserAuthProfile) (*models.UserAuthProfile, error) {
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	query := `
		INSERT INTO auth_profiles (user_id, password_hash, password_changed_at, two_factor_enabled,
			two_factor_method, two_factor_secret, two_factor_secret_nonce, two_factor_confirmed_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + profileColumns

	var passwordHash, method *string
	if profile.PasswordHash != "" {
		passwordHash = &profile.PasswordHash
	}
	if profile.TwoFactorMethod != "" {
		method = &profile.TwoFactorMethod
	}

	return scanProfileRow(r.q.QueryRow(ctx, query,
		profile.UserID, passwordHash, profile.PasswordChangedAt, profile.TwoFactorEnabled,
		method, profile.TwoFactorSecret, profile.TwoFactorSecretNonce, profile.TwoFactorConfirmedAt,
		profile.CreatedAt, profile.UpdatedAt,
	))
}

// UpdatePassword replaces the stored hash and stamps the change time.
func (r *AuthProfileRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `
		UPDATE auth_profiles
		SET password_hash = $2, password_changed_at = NOW(), updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.q.Exec(ctx, query, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetPendingTwoFactor records a chosen method and encrypted secret with the
// enabled flag off. The method is pending until ConfirmTwoFactor completes
// the possession proof.
func (r *AuthProfileRepository) SetPendingTwoFactor(ctx context.Context, userID, method string, secret, nonce []byte) error {
	query := `
		UPDATE auth_profiles
		SET two_factor_method = $2, two_factor_secret = $3, two_factor_secret_nonce = $4,
			two_factor_enabled = FALSE, two_factor_confirmed_at = NULL, updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.q.Exec(ctx, query, userID, method, secret, nonce)
	if err != nil {
		return fmt.Errorf("failed to set pending two-factor method: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ConfirmTwoFactor flips the enabled flag and stamps the confirmation time.
// The guard on the pending method keeps a stale confirm request from
// enabling a method the user has since replaced.
func (r *AuthProfileRepository) ConfirmTwoFactor(ctx context.Context, userID, method string) error {
	query := `
		UPDATE auth_profiles
		SET two_factor_enabled = TRUE, two_factor_confirmed_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND two_factor_method = $2 AND two_factor_enabled = FALSE
	`

	result, err := r.q.Exec(ctx, query, userID, method)
	if err != nil {
		return fmt.Errorf("failed to confirm two-factor method: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DisableTwoFactor clears method, secret, enabled flag, and confirmation
// timestamp in one statement. Recovery codes are cleared separately inside
// the same transaction by the caller.
func (r *AuthProfileRepository) DisableTwoFactor(ctx context.Context, userID string) error {
	query := `
		UPDATE auth_profiles
		SET two_factor_enabled = FALSE, two_factor_method = NULL, two_factor_secret = NULL,
			two_factor_secret_nonce = NULL, two_factor_confirmed_at = NULL, updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.q.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ConfirmTwoFactorAtomic completes enrollment in one transaction: flips
// the enabled flag, stamps the confirmation time, and replaces the
// recovery code set.
func (r *AuthProfileRepository) ConfirmTwoFactorAtomic(ctx context.Context, userID, method string, codeHashes []string) error {
	return r.inTransaction(ctx, func(repo *AuthProfileRepository) error {
		if err := repo.ConfirmTwoFactor(ctx, userID, method); err != nil {
			return err
		}
		return repo.ReplaceRecoveryCodes(ctx, userID, codeHashes)
	})
}

// DisableTwoFactorAtomic clears secret, method, enabled flag, confirmation
// timestamp, and recovery codes in one transaction.
func (r *AuthProfileRepository) DisableTwoFactorAtomic(ctx context.Context, userID string) error {
	return r.inTransaction(ctx, func(repo *AuthProfileRepository) error {
		if err := repo.DisableTwoFactor(ctx, userID); err != nil {
			return err
		}
		return repo.DeleteRecoveryCodes(ctx, userID)
	})
}

// ReplaceRecoveryCodes deletes any existing codes for the user and inserts
// the given hashes.
func (r *AuthProfileRepository) ReplaceRecoveryCodes(ctx context.Context, userID string, codeHashes []string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear recovery codes: %w", err)
	}

	for _, hash := range codeHashes {
		_, err := r.q.Exec(ctx,
			`INSERT INTO recovery_codes (user_id, code_hash, created_at) VALUES ($1, $2, NOW())`,
			userID, hash)
		if err != nil {
			return fmt.Errorf("failed to insert recovery code: %w", err)
		}
	}
	return nil
}

// DeleteRecoveryCodes removes all recovery codes for the user.
func (r *AuthProfileRepository) DeleteRecoveryCodes(ctx context.Context, userID string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete recovery codes: %w", err)
	}
	return nil
}

// ConsumeRecoveryCode removes the matching code in a single DELETE. Exactly
// one concurrent caller can win the row, which makes each code single-use
// without a read-modify-write of the whole set.
func (r *AuthProfileRepository) ConsumeRecoveryCode(ctx context.Context, userID, codeHash string) (bool, error) {
	result, err := r.q.Exec(ctx,
		`DELETE FROM recovery_codes WHERE user_id = $1 AND code_hash = $2`,
		userID, codeHash)
	if err != nil {
		return false, fmt.Errorf("failed to consume recovery code: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// CountRecoveryCodes returns the number of unused codes left.
func (r *AuthProfileRepository) CountRecoveryCodes(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM recovery_codes WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recovery codes: %w", err)
	}
	return count, nil
}
