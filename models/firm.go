package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier is the billing tier of a firm. Tiers are ordered.
type SubscriptionTier string

const (
	TierBasic        SubscriptionTier = "basic"
	TierProfessional SubscriptionTier = "professional"
	TierEnterprise   SubscriptionTier = "enterprise"
)

// Level returns the ordinal of the tier. Unknown tiers are level 0 and satisfy nothing.
func (t SubscriptionTier) Level() int {
	switch t {
	case TierBasic:
		return 1
	case TierProfessional:
		return 2
	case TierEnterprise:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether t is the same as or above min
func (t SubscriptionTier) AtLeast(min SubscriptionTier) bool {
	return t.Level() > 0 && t.Level() >= min.Level()
}

// IsValid reports whether the tier is known
func (t SubscriptionTier) IsValid() bool {
	return t.Level() > 0
}

// Firm represents a tenant: a law firm whose users share quotas
type Firm struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	Name             string           `json:"name" db:"name"`
	Jurisdiction     string           `json:"jurisdiction" db:"jurisdiction"`
	SubscriptionTier SubscriptionTier `json:"subscription_tier" db:"subscription_tier"`
	Settings         map[string]any   `json:"settings,omitempty" db:"settings"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Firm model
func (Firm) TableName() string {
	return "law_firms"
}

// NewFirm creates a new Firm instance
func NewFirm(name, jurisdiction string, tier SubscriptionTier) *Firm {
	now := time.Now().UTC()
	return &Firm{
		ID:               uuid.New(),
		Name:             name,
		Jurisdiction:     jurisdiction,
		SubscriptionTier: tier,
		Settings:         map[string]any{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
