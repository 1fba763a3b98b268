package middleware

import (
	"context"
	"net/http"
	"strings"

	authz "github.com/upb/firmauth/internal/auth"
	"github.com/upb/firmauth/internal/observability"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/services"
	"go.uber.org/zap"
)

// APIKeyHeader carries an API key as an alternative to the Authorization header
const APIKeyHeader = "X-API-Key"

// Authenticator resolves credentials to principals and checks them
type Authenticator interface {
	VerifySession(ctx context.Context, token string) (authz.Principal, error)
	VerifyAPIKey(ctx context.Context, key string) (authz.Principal, error)
	IsAPIKey(value string) bool
	RequirePermissions(p authz.Principal, perms ...models.Permission) error
	RequireTier(p authz.Principal, min models.SubscriptionTier) error
}

// AuthMiddleware provides authentication and authorization middleware
type AuthMiddleware struct {
	auth    Authenticator
	onError ErrorWriter
	logger  *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(auth Authenticator, onError ErrorWriter, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		auth:    auth,
		onError: onError,
		logger:  logger,
	}
}

// RequireAuth resolves the request's credential into a Principal. It accepts
// an API key in X-API-Key, or a bearer value that is either a session token
// or an API key.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := observability.WithRequest(ctx, m.logger)

		credential, isAPIKey := m.extractCredential(r)
		if credential == "" {
			logger.Debug("missing credentials")
			m.onError(w, services.ErrMalformed.WithMessage("missing or invalid authorization"), logger)
			return
		}

		var (
			p   authz.Principal
			err error
		)
		if isAPIKey {
			p, err = m.auth.VerifyAPIKey(ctx, credential)
		} else {
			p, err = m.auth.VerifySession(ctx, credential)
		}
		if err != nil {
			logger.Info("authentication failed",
				zap.Bool("api_key", isAPIKey),
				zap.String("code", string(services.GetErrorCode(err))))
			m.onError(w, err, logger)
			return
		}

		ctx = WithPrincipal(ctx, p)
		ctx = observability.ContextWithFields(ctx,
			zap.String("user_id", p.UserID.String()),
			zap.String("firm_id", p.FirmID.String()),
			zap.String("role", string(p.Role)),
			zap.String("tier", string(p.SubscriptionTier)),
			zap.String("credential_kind", string(p.CredentialKind)))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermissions rejects principals lacking any of perms.
// It must run after RequireAuth.
func (m *AuthMiddleware) RequirePermissions(perms ...models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				m.onError(w, services.ErrMalformed.WithMessage("authentication required"), m.logger)
				return
			}
			if err := m.auth.RequirePermissions(p, perms...); err != nil {
				observability.WithRequest(r.Context(), m.logger).Info("permission denied",
					zap.Strings("required", models.PermissionStrings(perms)))
				m.onError(w, err, m.logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTier rejects principals whose firm is below min.
// It must run after RequireAuth.
func (m *AuthMiddleware) RequireTier(min models.SubscriptionTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				m.onError(w, services.ErrMalformed.WithMessage("authentication required"), m.logger)
				return
			}
			if err := m.auth.RequireTier(p, min); err != nil {
				m.onError(w, err, m.logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractCredential returns the credential and whether it is an API key.
// X-API-Key takes precedence over the Authorization header.
func (m *AuthMiddleware) extractCredential(r *http.Request) (string, bool) {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key, true
	}
	token := extractBearerToken(r)
	if token == "" {
		return "", false
	}
	return token, m.auth.IsAPIKey(token)
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// BearerToken exposes the bearer value of r for handlers such as logout
func BearerToken(r *http.Request) string {
	return extractBearerToken(r)
}
