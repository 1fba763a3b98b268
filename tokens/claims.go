package tokens

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/firmauth/internal/auth"
	"github.com/upb/firmauth/models"
)

// Claims is the payload of session and renewal tokens. Renewal tokens carry
// identity only: no email, role, permissions or tier.
type Claims struct {
	jwt.RegisteredClaims
	UserID           string   `json:"user_id"`
	FirmID           string   `json:"firm_id"`
	Email            string   `json:"email,omitempty"`
	Role             string   `json:"role,omitempty"`
	Permissions      []string `json:"permissions,omitempty"`
	SubscriptionTier string   `json:"subscription_tier,omitempty"`
	TokenType        string   `json:"token_type"`
}

// UnmarshalJSON decodes claims rejecting unknown fields
func (c *Claims) UnmarshalJSON(data []byte) error {
	type plain Claims
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p plain
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*c = Claims(p)
	return nil
}

// Kind returns the credential kind named by token_type
func (c *Claims) Kind() auth.CredentialKind {
	return auth.CredentialKind(c.TokenType)
}

// RemainingTTL returns how long the token stays valid after now, never negative
func (c *Claims) RemainingTTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ParsedUserID returns user_id as a UUID. Only valid after Decode.
func (c *Claims) ParsedUserID() uuid.UUID {
	id, _ := uuid.Parse(c.UserID)
	return id
}

// Principal rebuilds the identity carried by a session token
func (c *Claims) Principal() (auth.Principal, error) {
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("invalid user_id: %w", err)
	}
	firmID, err := uuid.Parse(c.FirmID)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("invalid firm_id: %w", err)
	}
	role, err := models.ParseRole(c.Role)
	if err != nil {
		return auth.Principal{}, err
	}
	perms, err := models.ParsePermissions(c.Permissions)
	if err != nil {
		return auth.Principal{}, err
	}

	return auth.Principal{
		UserID:           userID,
		FirmID:           firmID,
		Email:            c.Email,
		Role:             role,
		Permissions:      auth.NewPermissionSet(perms...),
		SubscriptionTier: models.SubscriptionTier(c.SubscriptionTier),
		CredentialKind:   c.Kind(),
	}, nil
}

// validate checks the fields every token of the claimed type must carry
func (c *Claims) validate() error {
	if c.ExpiresAt == nil {
		return fmt.Errorf("missing exp")
	}
	if c.IssuedAt == nil {
		return fmt.Errorf("missing iat")
	}
	if c.ID == "" {
		return fmt.Errorf("missing jti")
	}
	if _, err := uuid.Parse(c.UserID); err != nil {
		return fmt.Errorf("invalid user_id: %w", err)
	}
	if c.Subject != c.UserID {
		return fmt.Errorf("sub does not match user_id")
	}
	if _, err := uuid.Parse(c.FirmID); err != nil {
		return fmt.Errorf("invalid firm_id: %w", err)
	}

	switch c.Kind() {
	case auth.CredentialSession:
		if c.Email == "" {
			return fmt.Errorf("missing email")
		}
		if !models.SubscriptionTier(c.SubscriptionTier).IsValid() {
			return fmt.Errorf("invalid subscription_tier %q", c.SubscriptionTier)
		}
		if _, err := c.Principal(); err != nil {
			return err
		}
	case auth.CredentialRenewal:
	default:
		return fmt.Errorf("invalid token_type %q", c.TokenType)
	}
	return nil
}
