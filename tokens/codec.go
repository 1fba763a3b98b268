// Package tokens issues and decodes the signed session and renewal tokens.
//
// Tokens are HS256 JWTs. The codec owns the expiry decision: the JWT
// library's own time validation is switched off and a token is expired once
// the current second reaches exp.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/firmauth/internal/auth"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/services"
)

// Codec signs and verifies tokens with a process-wide secret
type Codec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec creates a codec. The secret must not be empty.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token signing secret is empty")
	}
	return &Codec{
		secret: secret,
		now:    time.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}, nil
}

// WithClock returns a copy of the codec reading time from now
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// Now returns the codec's current time
func (c *Codec) Now() time.Time {
	return c.now()
}

// Issue signs a token of the given kind for p, expiring ttl from now. A
// negative ttl yields an already expired token.
func (c *Codec) Issue(p auth.Principal, kind auth.CredentialKind, ttl time.Duration) (string, error) {
	now := c.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		UserID:    p.UserID.String(),
		FirmID:    p.FirmID.String(),
		TokenType: string(kind),
	}

	switch kind {
	case auth.CredentialSession:
		claims.Email = p.Email
		claims.Role = string(p.Role)
		claims.Permissions = models.PermissionStrings(p.Permissions.Slice())
		claims.SubscriptionTier = string(p.SubscriptionTier)
	case auth.CredentialRenewal:
	default:
		return "", fmt.Errorf("cannot issue a token of kind %q", kind)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and structure of token and checks expiry.
// It returns services.ErrExpired or services.ErrMalformed on failure.
func (c *Codec) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, services.ErrMalformed.Wrap(err)
	}

	if err := claims.validate(); err != nil {
		return nil, services.ErrMalformed.Wrap(err)
	}

	if !c.now().Before(claims.ExpiresAt.Time) {
		return nil, services.ErrExpired
	}
	return claims, nil
}
