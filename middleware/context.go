package middleware

import (
	"context"
	"net/http"

	authz "github.com/upb/firmauth/internal/auth"
	"go.uber.org/zap"
)

// Context key type to avoid collisions
type contextKey string

// PrincipalKey is the context key for the authenticated principal
const PrincipalKey contextKey = "principal"

// ErrorWriter renders a service error as an HTTP response
type ErrorWriter func(w http.ResponseWriter, err error, logger *zap.Logger)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, p authz.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// PrincipalFromContext retrieves the principal set by RequireAuth
func PrincipalFromContext(ctx context.Context) (authz.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(authz.Principal)
	if !ok || p.IsZero() {
		return authz.Principal{}, false
	}
	return p, true
}
