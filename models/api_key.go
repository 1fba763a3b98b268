package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a long-lived credential owned by a user. Only the SHA-256 hash of
// the key is stored; the plaintext is shown once at creation.
type APIKey struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	UserID      uuid.UUID    `json:"user_id" db:"user_id"`
	FirmID      uuid.UUID    `json:"firm_id" db:"firm_id"`
	Name        string       `json:"name" db:"name"`
	Description *string      `json:"description,omitempty" db:"description"`
	KeyHash     string       `json:"-" db:"key_hash"` // Never expose in JSON
	Permissions []Permission `json:"permissions" db:"permissions"`
	LastUsed    *time.Time   `json:"last_used,omitempty" db:"last_used"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at" db:"expires_at"`
	IsActive    bool         `json:"is_active" db:"is_active"`
}

// TableName returns the table name for the APIKey model
func (APIKey) TableName() string {
	return "api_keys"
}

// NewAPIKey creates a new active APIKey that expires after ttl
func NewAPIKey(userID, firmID uuid.UUID, name string, description *string, keyHash string, perms []Permission, ttl time.Duration) *APIKey {
	now := time.Now().UTC()
	return &APIKey{
		ID:          uuid.New(),
		UserID:      userID,
		FirmID:      firmID,
		Name:        name,
		Description: description,
		KeyHash:     keyHash,
		Permissions: perms,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		IsActive:    true,
	}
}

// IsExpired reports whether the key has expired at the given instant
func (k *APIKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// APIKeyRequest is the body accepted when creating an API key
type APIKeyRequest struct {
	Name          string       `json:"name" validate:"required,min=1,max=100"`
	Description   *string      `json:"description,omitempty" validate:"omitempty,max=500"`
	Permissions   []Permission `json:"permissions" validate:"required,min=1,dive,required"`
	ExpiresInDays int          `json:"expires_in_days" validate:"omitempty,min=1,max=3650"`
}

// DefaultAPIKeyTTLDays is used when a request does not set ExpiresInDays
const DefaultAPIKeyTTLDays = 365

// APIKeySummary is the listing view of a key. It never carries the hash.
type APIKeySummary struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
	LastUsed    *time.Time   `json:"last_used,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
	IsActive    bool         `json:"is_active"`
	IsExpired   bool         `json:"is_expired"`
}

// Summary builds the listing view of the key
func (k *APIKey) Summary(now time.Time) APIKeySummary {
	return APIKeySummary{
		ID:          k.ID,
		Name:        k.Name,
		Description: k.Description,
		Permissions: k.Permissions,
		LastUsed:    k.LastUsed,
		CreatedAt:   k.CreatedAt,
		ExpiresAt:   k.ExpiresAt,
		IsActive:    k.IsActive,
		IsExpired:   k.IsExpired(now),
	}
}

// CreatedAPIKey is returned once, right after creation, with the plaintext key
type CreatedAPIKey struct {
	APIKeySummary
	Key string `json:"api_key"`
}
