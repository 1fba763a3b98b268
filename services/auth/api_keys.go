package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	authz "github.com/upb/firmauth/internal/auth"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/repositories"
	"github.com/upb/firmauth/services"
	"github.com/upb/firmauth/utils"
	"go.uber.org/zap"
)

// apiKeyEntropyBytes is the amount of randomness after the key prefix
const apiKeyEntropyBytes = 24

// HashAPIKey returns the hex SHA-256 digest stored for a plaintext key
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// IsAPIKey reports whether the value carries the configured API key prefix
func (s *Service) IsAPIKey(value string) bool {
	return strings.HasPrefix(value, s.cfg.APIKeyPrefix)
}

// IssueAPIKey creates a key for the principal. The requested permissions must
// be held both by the principal and by the owner's current role and grants,
// so a session minted before a demotion cannot carry old rights into a key.
func (s *Service) IssueAPIKey(ctx context.Context, p authz.Principal, req models.APIKeyRequest) (*models.CreatedAPIKey, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, services.ErrInvalidInput.Wrap(err).WithDetail("fields", utils.GetValidationFields(err))
	}
	for _, perm := range req.Permissions {
		if !perm.IsValid() {
			return nil, services.ErrInvalidInput.
				WithMessage(fmt.Sprintf("unknown permission: %s", perm)).
				WithDetail("permission", string(perm))
		}
	}

	if missing := p.MissingPermissions(req.Permissions...); len(missing) > 0 {
		return nil, services.ErrPermissionEscalation.WithDetail("missing", models.PermissionStrings(missing))
	}

	days := req.ExpiresInDays
	if days == 0 {
		days = s.cfg.DefaultAPIKeyTTLDays
	}
	ttl := time.Duration(days) * 24 * time.Hour

	plaintext, err := s.generateAPIKey()
	if err != nil {
		return nil, services.WrapInternal("failed to generate API key", err)
	}

	key, err := services.WithTransactionResult(ctx, s.txManager, func(ctx context.Context, _ repositories.Transaction) (*models.APIKey, error) {
		owner, err := s.users.GetByID(ctx, p.UserID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, services.ErrUserInactive
			}
			return nil, services.WrapInternal("failed to load key owner", err)
		}
		if !owner.IsActive {
			return nil, services.ErrUserInactive
		}
		current := s.EffectivePermissions(owner.Role, owner.CustomPermissions)
		if missing := current.Missing(req.Permissions...); len(missing) > 0 {
			s.logger.Warn("API key request exceeds current permissions",
				zap.String("user_id", owner.ID.String()),
				zap.Strings("missing", models.PermissionStrings(missing)))
			return nil, services.ErrPermissionEscalation.WithDetail("missing", models.PermissionStrings(missing))
		}

		key := models.NewAPIKey(owner.ID, owner.FirmID, req.Name, req.Description, HashAPIKey(plaintext), req.Permissions, ttl)
		if err := s.apiKeys.Insert(ctx, key); err != nil {
			return nil, services.WrapInternal("failed to store API key", err)
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("API key issued",
		zap.String("key_id", key.ID.String()),
		zap.String("user_id", key.UserID.String()),
		zap.Strings("permissions", models.PermissionStrings(key.Permissions)),
		zap.Time("expires_at", key.ExpiresAt))

	return &models.CreatedAPIKey{
		APIKeySummary: key.Summary(s.codec.Now()),
		Key:           plaintext,
	}, nil
}

// VerifyAPIKey resolves a plaintext key to a Principal. The key's own
// permissions are the principal's permissions.
func (s *Service) VerifyAPIKey(ctx context.Context, key string) (authz.Principal, error) {
	p, err := s.verifyAPIKey(ctx, key)
	s.recordAttempt("api_key", err)
	return p, err
}

func (s *Service) verifyAPIKey(ctx context.Context, key string) (authz.Principal, error) {
	if !s.IsAPIKey(key) {
		return authz.Principal{}, services.ErrInvalidAPIKey
	}

	now := s.codec.Now()
	rec, err := s.apiKeys.GetActiveByHash(ctx, HashAPIKey(key), now)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return authz.Principal{}, services.ErrInvalidAPIKey
		}
		s.logger.Error("API key lookup failed", zap.Error(err))
		return authz.Principal{}, services.WrapInternal("failed to look up API key", err)
	}

	s.activity.RecordAPIKeyUse(ctx, rec.Key.ID, now)

	return authz.Principal{
		UserID:           rec.Key.UserID,
		FirmID:           rec.Key.FirmID,
		Email:            rec.Email,
		Role:             rec.Role,
		Permissions:      authz.NewPermissionSet(rec.Key.Permissions...),
		SubscriptionTier: rec.SubscriptionTier,
		CredentialKind:   authz.CredentialAPIKey,
	}, nil
}

// ListAPIKeys returns the principal's keys, newest first
func (s *Service) ListAPIKeys(ctx context.Context, p authz.Principal) ([]models.APIKeySummary, error) {
	keys, err := s.apiKeys.ListByUser(ctx, p.UserID)
	if err != nil {
		return nil, services.WrapInternal("failed to list API keys", err)
	}

	now := s.codec.Now()
	out := make([]models.APIKeySummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Summary(now))
	}
	return out, nil
}

// RevokeAPIKey deactivates one of the principal's keys
func (s *Service) RevokeAPIKey(ctx context.Context, p authz.Principal, keyID uuid.UUID) error {
	changed, err := s.apiKeys.Deactivate(ctx, keyID, p.UserID)
	if err != nil {
		return services.WrapInternal("failed to revoke API key", err)
	}
	if !changed {
		return services.ErrAPIKeyNotFound
	}

	s.logger.Info("API key revoked",
		zap.String("key_id", keyID.String()),
		zap.String("user_id", p.UserID.String()))
	return nil
}

func (s *Service) generateAPIKey() (string, error) {
	buf := make([]byte, apiKeyEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return s.cfg.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
