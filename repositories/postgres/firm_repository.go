package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/repositories"
	"go.uber.org/zap"
)

// FirmRepository implements the repositories.FirmRepository interface
type FirmRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewFirmRepository creates a new firm repository
func NewFirmRepository(db *DB, logger *zap.Logger) repositories.FirmRepository {
	return &FirmRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new firm
func (r *FirmRepository) Create(ctx context.Context, firm *models.Firm) error {
	settings, err := json.Marshal(firm.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal firm settings: %w", err)
	}

	query := `
		INSERT INTO law_firms (id, name, jurisdiction, subscription_tier, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = GetExecutor(ctx, r.db).ExecContext(ctx, query,
		firm.ID,
		firm.Name,
		firm.Jurisdiction,
		string(firm.SubscriptionTier),
		settings,
		firm.CreatedAt,
		firm.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create firm: %w", err)
	}

	r.logger.Debug("firm created", zap.String("id", firm.ID.String()), zap.String("tier", string(firm.SubscriptionTier)))
	return nil
}

// GetByID retrieves a firm by ID
func (r *FirmRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Firm, error) {
	query := `
		SELECT id, name, jurisdiction, subscription_tier, settings, created_at, updated_at
		FROM law_firms
		WHERE id = $1
	`

	var (
		firm     models.Firm
		tier     string
		settings []byte
	)
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&firm.ID,
		&firm.Name,
		&firm.Jurisdiction,
		&tier,
		&settings,
		&firm.CreatedAt,
		&firm.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("firm %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get firm: %w", err)
	}

	firm.SubscriptionTier = models.SubscriptionTier(tier)
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &firm.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal firm settings: %w", err)
		}
	}
	return &firm, nil
}
