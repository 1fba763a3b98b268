package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/upb/firmauth/internal/observability"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/services/ratelimit"
	"go.uber.org/zap"
)

// Limiter admits requests against tenant quotas
type Limiter interface {
	Admit(ctx context.Context, id ratelimit.Identifier, tier models.SubscriptionTier, class ratelimit.Class) (func(), error)
	UsageHeaders(ctx context.Context, id ratelimit.Identifier, tier models.SubscriptionTier) (ratelimit.Headers, error)
}

// RateLimitMiddleware enforces quotas before handlers run
type RateLimitMiddleware struct {
	limiter Limiter
	onError ErrorWriter
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a new RateLimitMiddleware
func NewRateLimitMiddleware(limiter Limiter, onError ErrorWriter, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		onError: onError,
		logger:  logger,
	}
}

// Limit charges the request to its firm, or to the client address when the
// request is anonymous, and holds a concurrency slot until the handler returns.
func (m *RateLimitMiddleware) Limit(class ratelimit.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := observability.WithRequest(ctx, m.logger)

			id := ratelimit.ForAddress(clientAddress(r))
			tier := models.TierBasic
			if p, ok := PrincipalFromContext(ctx); ok {
				id = ratelimit.ForPrincipal(p)
				tier = p.SubscriptionTier
			}

			release, err := m.limiter.Admit(ctx, id, tier, class)
			if err != nil {
				m.onError(w, err, logger)
				return
			}
			defer release()

			if headers, err := m.limiter.UsageHeaders(ctx, id, tier); err != nil {
				logger.Warn("failed to compute rate limit headers", zap.Error(err))
			} else {
				headers.Write(w.Header())
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientAddress is the host part of RemoteAddr. Proxy headers are honoured
// only when chi's RealIP middleware has already rewritten RemoteAddr.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
