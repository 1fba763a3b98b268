package auth

import (
	"github.com/google/uuid"
	"github.com/upb/firmauth/models"
)

// CredentialKind records which credential a Principal was resolved from
type CredentialKind string

const (
	CredentialSession CredentialKind = "session"
	CredentialRenewal CredentialKind = "renewal"
	CredentialAPIKey  CredentialKind = "api_key"
)

// IsValid reports whether k is a known credential kind
func (k CredentialKind) IsValid() bool {
	switch k {
	case CredentialSession, CredentialRenewal, CredentialAPIKey:
		return true
	}
	return false
}

// Principal is the authenticated identity of a request. It is built fresh on
// every verification and never mutated afterwards.
type Principal struct {
	UserID           uuid.UUID
	FirmID           uuid.UUID
	Email            string
	Role             models.Role
	Permissions      PermissionSet
	SubscriptionTier models.SubscriptionTier
	CredentialKind   CredentialKind
}

// HasPermissions reports whether the principal holds every listed permission
func (p Principal) HasPermissions(perms ...models.Permission) bool {
	return p.Permissions.ContainsAll(perms...)
}

// MissingPermissions returns the listed permissions the principal lacks
func (p Principal) MissingPermissions(perms ...models.Permission) []models.Permission {
	return p.Permissions.Missing(perms...)
}

// HasTier reports whether the principal's firm is on min or a higher tier
func (p Principal) HasTier(min models.SubscriptionTier) bool {
	return p.SubscriptionTier.AtLeast(min)
}

// IsZero reports whether the principal is unset
func (p Principal) IsZero() bool {
	return p.UserID == uuid.Nil
}
