package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/repositories"
	"go.uber.org/zap"
)

// APIKeyRepository implements the repositories.APIKeyRepository interface
type APIKeyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB, logger *zap.Logger) repositories.APIKeyRepository {
	return &APIKeyRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores a new API key
func (r *APIKeyRepository) Insert(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_id, firm_id, name, description, key_hash, permissions, created_at, updated_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, $10)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		key.ID,
		key.UserID,
		key.FirmID,
		key.Name,
		key.Description,
		key.KeyHash,
		pq.Array(models.PermissionStrings(key.Permissions)),
		key.CreatedAt,
		key.ExpiresAt,
		key.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}

	r.logger.Debug("api key created", zap.String("id", key.ID.String()), zap.String("user_id", key.UserID.String()))
	return nil
}

// GetActiveByHash returns an active, unexpired key whose owner is active
func (r *APIKeyRepository) GetActiveByHash(ctx context.Context, hash string, now time.Time) (*repositories.APIKeyRecord, error) {
	query := `
		SELECT k.id, k.user_id, k.firm_id, k.name, k.description, k.permissions,
		       k.last_used, k.created_at, k.expires_at, k.is_active,
		       u.email, u.role, f.subscription_tier
		FROM api_keys k
		JOIN users u ON u.id = k.user_id
		JOIN law_firms f ON f.id = k.firm_id
		WHERE k.key_hash = $1
		  AND k.is_active = true
		  AND k.expires_at > $2
		  AND u.is_active = true
	`

	var (
		key   models.APIKey
		perms []string
		role  string
		tier  string
		rec   repositories.APIKeyRecord
	)
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, hash, now).Scan(
		&key.ID,
		&key.UserID,
		&key.FirmID,
		&key.Name,
		&key.Description,
		pq.Array(&perms),
		&key.LastUsed,
		&key.CreatedAt,
		&key.ExpiresAt,
		&key.IsActive,
		&rec.Email,
		&role,
		&tier,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("api key: %w", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}

	if key.Permissions, err = models.ParsePermissions(perms); err != nil {
		return nil, fmt.Errorf("api key %s: %w", key.ID, err)
	}
	if rec.Role, err = models.ParseRole(role); err != nil {
		return nil, fmt.Errorf("api key %s owner: %w", key.ID, err)
	}
	key.KeyHash = hash
	rec.Key = &key
	rec.SubscriptionTier = models.SubscriptionTier(tier)
	return &rec, nil
}

// ListByUser returns the user's keys, newest first
func (r *APIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	query := `
		SELECT id, user_id, firm_id, name, description, permissions, last_used, created_at, expires_at, is_active
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var (
			key   models.APIKey
			perms []string
		)
		if err := rows.Scan(
			&key.ID,
			&key.UserID,
			&key.FirmID,
			&key.Name,
			&key.Description,
			pq.Array(&perms),
			&key.LastUsed,
			&key.CreatedAt,
			&key.ExpiresAt,
			&key.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		if key.Permissions, err = models.ParsePermissions(perms); err != nil {
			return nil, fmt.Errorf("api key %s: %w", key.ID, err)
		}
		keys = append(keys, &key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api key rows: %w", err)
	}

	return keys, nil
}

// TouchLastUsed records the time the key was last used
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE api_keys SET last_used = $2 WHERE id = $1`

	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to update api key last used: %w", err)
	}
	return nil
}

// Deactivate disables the key when it belongs to userID
func (r *APIKeyRepository) Deactivate(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE api_keys
		SET is_active = false, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate api key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		r.logger.Debug("api key deactivated", zap.String("id", id.String()))
	}
	return rowsAffected > 0, nil
}
