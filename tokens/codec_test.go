package tokens

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/firmauth/internal/auth"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/services"
)

var testSecret = []byte("test-secret-that-is-long-enough-000")

func newTestCodec(t *testing.T, now time.Time) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret)
	require.NoError(t, err)
	return c.WithClock(func() time.Time { return now })
}

func testPrincipal() auth.Principal {
	return auth.Principal{
		UserID:           uuid.New(),
		FirmID:           uuid.New(),
		Email:            "harvey@firm.test",
		Role:             models.RoleAttorney,
		Permissions:      auth.RolePermissions(models.RoleAttorney),
		SubscriptionTier: models.TierProfessional,
		CredentialKind:   auth.CredentialSession,
	}
}

func TestNewCodec_EmptySecret(t *testing.T) {
	_, err := NewCodec(nil)
	assert.Error(t, err)
}

func TestCodec_SessionRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := newTestCodec(t, now)
	p := testPrincipal()

	token, err := c.Issue(p, auth.CredentialSession, 30*time.Minute)
	require.NoError(t, err)

	claims, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, auth.CredentialSession, claims.Kind())
	assert.Equal(t, p.UserID.String(), claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, now.Add(30*time.Minute).Unix(), claims.ExpiresAt.Unix())

	got, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, p.UserID, got.UserID)
	assert.Equal(t, p.FirmID, got.FirmID)
	assert.Equal(t, p.Email, got.Email)
	assert.Equal(t, p.Role, got.Role)
	assert.Equal(t, p.SubscriptionTier, got.SubscriptionTier)
	assert.True(t, p.Permissions.Equal(got.Permissions))
}

func TestCodec_RenewalCarriesIdentityOnly(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := newTestCodec(t, now)
	p := testPrincipal()

	token, err := c.Issue(p, auth.CredentialRenewal, 720*time.Hour)
	require.NoError(t, err)

	claims, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, auth.CredentialRenewal, claims.Kind())
	assert.Equal(t, p.UserID, claims.ParsedUserID())
	assert.Empty(t, claims.Email)
	assert.Empty(t, claims.Role)
	assert.Empty(t, claims.Permissions)
	assert.Empty(t, claims.SubscriptionTier)

	payload := decodeSegment(t, strings.Split(token, ".")[1])
	assert.NotContains(t, payload, "permissions")
	assert.NotContains(t, payload, "role")
}

func TestCodec_IssueRejectsAPIKeyKind(t *testing.T) {
	c := newTestCodec(t, time.Now())
	_, err := c.Issue(testPrincipal(), auth.CredentialAPIKey, time.Minute)
	assert.Error(t, err)
}

func TestCodec_ExpiryBoundary(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	token, err := newTestCodec(t, issued).Issue(testPrincipal(), auth.CredentialSession, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		at      time.Time
		expired bool
	}{
		{"one second before exp", issued.Add(59 * time.Second), false},
		{"exactly at exp", issued.Add(time.Minute), true},
		{"after exp", issued.Add(2 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestCodec(t, tt.at).Decode(token)
			if tt.expired {
				assert.ErrorIs(t, err, services.ErrExpired)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCodec_NegativeTTLIsExpired(t *testing.T) {
	c := newTestCodec(t, time.Now())
	token, err := c.Issue(testPrincipal(), auth.CredentialSession, -time.Second)
	require.NoError(t, err)

	_, err = c.Decode(token)
	assert.ErrorIs(t, err, services.ErrExpired)
}

func TestCodec_Malformed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := newTestCodec(t, now)
	p := testPrincipal()

	valid, err := c.Issue(p, auth.CredentialSession, time.Hour)
	require.NoError(t, err)

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key interface{}) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}

	baseClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub":               p.UserID.String(),
			"user_id":           p.UserID.String(),
			"firm_id":           p.FirmID.String(),
			"email":             p.Email,
			"role":              "attorney",
			"permissions":       []string{"case:read"},
			"subscription_tier": "basic",
			"token_type":        "session",
			"exp":               now.Add(time.Hour).Unix(),
			"iat":               now.Unix(),
			"jti":               uuid.NewString(),
		}
	}

	with := func(mutate func(jwt.MapClaims)) string {
		claims := baseClaims()
		mutate(claims)
		return sign(claims, jwt.SigningMethodHS256, testSecret)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
		{"tampered signature", valid[:len(valid)-2] + "xx"},
		{"wrong secret", sign(baseClaims(), jwt.SigningMethodHS256, []byte("another-secret-another-secret-00"))},
		{"wrong algorithm", sign(baseClaims(), jwt.SigningMethodHS512, testSecret)},
		{"unknown field", with(func(m jwt.MapClaims) { m["admin"] = true })},
		{"missing exp", with(func(m jwt.MapClaims) { delete(m, "exp") })},
		{"missing jti", with(func(m jwt.MapClaims) { delete(m, "jti") })},
		{"missing email on session", with(func(m jwt.MapClaims) { delete(m, "email") })},
		{"unknown role", with(func(m jwt.MapClaims) { m["role"] = "janitor" })},
		{"unknown permission", with(func(m jwt.MapClaims) { m["permissions"] = []string{"case:burn"} })},
		{"unknown tier", with(func(m jwt.MapClaims) { m["subscription_tier"] = "platinum" })},
		{"unknown token type", with(func(m jwt.MapClaims) { m["token_type"] = "access" })},
		{"sub mismatch", with(func(m jwt.MapClaims) { m["sub"] = uuid.NewString() })},
		{"bad firm id", with(func(m jwt.MapClaims) { m["firm_id"] = "acme" })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.token)
			assert.ErrorIs(t, err, services.ErrMalformed)
		})
	}

	t.Run("expired and bad signature is malformed", func(t *testing.T) {
		claims := baseClaims()
		claims["exp"] = now.Add(-time.Hour).Unix()
		token := sign(claims, jwt.SigningMethodHS256, []byte("another-secret-another-secret-00"))
		_, err := c.Decode(token)
		assert.ErrorIs(t, err, services.ErrMalformed)
	})
}

func TestClaims_RemainingTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := newTestCodec(t, now)

	token, err := c.Issue(testPrincipal(), auth.CredentialSession, 90*time.Second)
	require.NoError(t, err)
	claims, err := c.Decode(token)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, claims.RemainingTTL(now))
	assert.Equal(t, time.Duration(0), claims.RemainingTTL(now.Add(time.Hour)))
}

func decodeSegment(t *testing.T, seg string) string {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return string(raw)
}
