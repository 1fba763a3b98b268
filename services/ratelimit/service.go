// Package ratelimit admits or rejects requests against per-tier quotas kept in
// the shared quota store.
//
// Each window is a fixed bucket counter: INCR, set the expiry on the first
// increment, reject when the count exceeds the limit. Rejected calls still
// consume their slot, so rejection is monotonic within a bucket.
//
// The concurrency cap is increment, compare, then decrement on rejection.
// This is not atomic: N acquires racing at the cap can all observe a count
// above it and be rejected, or briefly push the counter past the cap by up to
// N before their decrements land. The counter key expires after
// ConcurrencyTTL so a crashed process cannot leak slots forever.
//
// A release that drives the counter negative (a stale release after the key
// expired) floors it back to zero with a store-side script that only writes
// while the value is still negative, so a concurrent acquire is never lost.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	authz "github.com/upb/firmauth/internal/auth"
	"github.com/upb/firmauth/internal/observability"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/repositories"
	"github.com/upb/firmauth/services"
	"go.uber.org/zap"
)

// Window is a fixed quota window
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Duration returns the window length
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	}
	return 0
}

// Class selects the extra per-class quotas checked on top of the request windows
type Class string

const (
	ClassGeneral  Class = ""
	ClassLLM      Class = "llm"
	ClassDocument Class = "document"
	ClassResearch Class = "research"
)

// Identifier names the tenant a quota is charged to
type Identifier string

// ForPrincipal charges the principal's firm
func ForPrincipal(p authz.Principal) Identifier {
	return Identifier("firm:" + p.FirmID.String())
}

// ForAddress charges a client address. Used for unauthenticated traffic.
func ForAddress(addr string) Identifier {
	return Identifier("ip:" + addr)
}

// Config tunes the limiter
type Config struct {
	Enabled        bool
	ConcurrencyTTL time.Duration
	ReleaseTimeout time.Duration
}

// DefaultConfig returns the default limiter configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		ConcurrencyTTL: 300 * time.Second,
		ReleaseTimeout: 2 * time.Second,
	}
}

// Usage is the current counter values of a tenant
type Usage struct {
	Minute     int64 `json:"requests_this_minute"`
	Hour       int64 `json:"requests_this_hour"`
	Day        int64 `json:"requests_today"`
	Concurrent int64 `json:"concurrent_requests"`
}

// Headers is the minute-window quota state reported to clients
type Headers struct {
	Limit     int
	Remaining int
	Reset     int64
	Tier      models.SubscriptionTier
}

// Write sets the X-RateLimit-* headers
func (h Headers) Write(hdr http.Header) {
	hdr.Set("X-RateLimit-Limit", strconv.Itoa(h.Limit))
	hdr.Set("X-RateLimit-Remaining", strconv.Itoa(h.Remaining))
	hdr.Set("X-RateLimit-Reset", strconv.FormatInt(h.Reset, 10))
	hdr.Set("X-RateLimit-Tier", string(h.Tier))
}

// Service enforces quotas
type Service struct {
	store    repositories.QuotaStore
	policies *PolicySet
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time
}

// NewService creates a new rate limit Service
func NewService(store repositories.QuotaStore, policies *PolicySet, logger *zap.Logger, cfg Config) *Service {
	if policies == nil {
		policies = DefaultPolicySet()
	}
	if cfg.ConcurrencyTTL <= 0 {
		cfg.ConcurrencyTTL = DefaultConfig().ConcurrencyTTL
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = DefaultConfig().ReleaseTimeout
	}
	return &Service{
		store:    store,
		policies: policies,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock returns a copy of the service that reads time from now
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// Policies returns the tier table
func (s *Service) Policies() []models.RateLimitPolicy {
	return s.policies.All()
}

// Policy returns the policy for tier
func (s *Service) Policy(tier models.SubscriptionTier) models.RateLimitPolicy {
	return s.policies.For(tier)
}

type windowCheck struct {
	class  Class
	window Window
	limit  int
}

func checksFor(policy models.RateLimitPolicy, class Class) []windowCheck {
	checks := []windowCheck{
		{ClassGeneral, WindowMinute, policy.RequestsPerMinute},
		{ClassGeneral, WindowHour, policy.RequestsPerHour},
		{ClassGeneral, WindowDay, policy.RequestsPerDay},
	}
	switch class {
	case ClassLLM:
		checks = append(checks,
			windowCheck{ClassLLM, WindowMinute, policy.LLMCallsPerMinute},
			windowCheck{ClassLLM, WindowDay, policy.LLMCallsPerDay})
	case ClassDocument:
		checks = append(checks, windowCheck{ClassDocument, WindowDay, policy.DocumentsPerDay})
	case ClassResearch:
		checks = append(checks, windowCheck{ClassResearch, WindowDay, policy.ResearchSessionsPerDay})
	}
	return checks
}

// CheckAndRecord charges one request to every window that applies to class
// and rejects with a quota error on the first window over its limit.
func (s *Service) CheckAndRecord(ctx context.Context, id Identifier, policy models.RateLimitPolicy, class Class) error {
	now := s.now()

	for _, c := range checksFor(policy, class) {
		if c.limit <= 0 {
			continue
		}

		key := windowKey(id, c.class, c.window, now)
		count, err := s.store.Incr(ctx, key)
		if err != nil {
			return services.WrapInternal("quota store unavailable", err)
		}
		if count == 1 {
			if err := s.store.Expire(ctx, key, c.window.Duration()); err != nil {
				return services.WrapInternal("quota store unavailable", err)
			}
		}

		label := windowLabel(c.class, c.window)
		if count > int64(c.limit) {
			observability.RecordRateLimitDecision(string(policy.Tier), label, "rejected")
			s.logger.Info("rate limit exceeded",
				zap.String("tenant", string(id)),
				zap.String("window", label),
				zap.Int64("count", count),
				zap.Int("limit", c.limit))
			return services.NewQuotaExceeded(label, int64(c.window.Duration().Seconds()), c.limit)
		}
	}

	observability.RecordRateLimitDecision(string(policy.Tier), "all", "admitted")
	return nil
}

// Acquire takes a concurrency slot. The returned release is safe to call more
// than once and survives cancellation of ctx.
func (s *Service) Acquire(ctx context.Context, id Identifier, policy models.RateLimitPolicy) (func(), error) {
	if policy.ConcurrentRequests <= 0 {
		return func() {}, nil
	}

	key := concurrencyKey(id)
	count, err := s.store.Incr(ctx, key)
	if err != nil {
		return nil, services.WrapInternal("quota store unavailable", err)
	}
	if err := s.store.Expire(ctx, key, s.cfg.ConcurrencyTTL); err != nil {
		s.releaseDetached(ctx, id)
		return nil, services.WrapInternal("quota store unavailable", err)
	}

	if count > int64(policy.ConcurrentRequests) {
		s.releaseDetached(ctx, id)
		observability.RecordRateLimitDecision(string(policy.Tier), "concurrent", "rejected")
		return nil, services.NewConcurrencyExceeded(policy.ConcurrentRequests)
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.releaseDetached(ctx, id) })
	}, nil
}

// Admit runs the window checks then takes a concurrency slot. When the limiter
// is disabled every request is admitted.
func (s *Service) Admit(ctx context.Context, id Identifier, tier models.SubscriptionTier, class Class) (func(), error) {
	if !s.cfg.Enabled {
		return func() {}, nil
	}

	policy := s.policies.For(tier)
	if err := s.CheckAndRecord(ctx, id, policy, class); err != nil {
		return nil, err
	}
	return s.Acquire(ctx, id, policy)
}

// Release gives back a concurrency slot. The counter never stays below zero.
func (s *Service) Release(ctx context.Context, id Identifier) error {
	key := concurrencyKey(id)
	n, err := s.store.Decr(ctx, key)
	if err != nil {
		return err
	}
	if n < 0 {
		_, err = s.store.FloorAtZero(ctx, key, s.cfg.ConcurrencyTTL)
		return err
	}
	return nil
}

func (s *Service) releaseDetached(ctx context.Context, id Identifier) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ReleaseTimeout)
	defer cancel()

	if err := s.Release(ctx, id); err != nil {
		s.logger.Warn("failed to release concurrency slot",
			zap.String("tenant", string(id)),
			zap.Error(err))
	}
}

// UsageSnapshot reads the current counters without changing them
func (s *Service) UsageSnapshot(ctx context.Context, id Identifier) (Usage, error) {
	now := s.now()
	values, err := s.store.MultiGet(ctx,
		windowKey(id, ClassGeneral, WindowMinute, now),
		windowKey(id, ClassGeneral, WindowHour, now),
		windowKey(id, ClassGeneral, WindowDay, now),
		concurrencyKey(id),
	)
	if err != nil {
		return Usage{}, services.WrapInternal("quota store unavailable", err)
	}

	return Usage{
		Minute:     valueOrZero(values[0]),
		Hour:       valueOrZero(values[1]),
		Day:        valueOrZero(values[2]),
		Concurrent: valueOrZero(values[3]),
	}, nil
}

// UsageHeaders reports the minute window for tier
func (s *Service) UsageHeaders(ctx context.Context, id Identifier, tier models.SubscriptionTier) (Headers, error) {
	policy := s.policies.For(tier)
	now := s.now()

	count, _, err := s.store.Get(ctx, windowKey(id, ClassGeneral, WindowMinute, now))
	if err != nil {
		return Headers{}, services.WrapInternal("quota store unavailable", err)
	}

	remaining := policy.RequestsPerMinute - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Headers{
		Limit:     policy.RequestsPerMinute,
		Remaining: remaining,
		Reset:     (bucket(now, WindowMinute) + 1) * int64(time.Minute.Seconds()),
		Tier:      policy.Tier,
	}, nil
}

func bucket(now time.Time, w Window) int64 {
	return now.Unix() / int64(w.Duration().Seconds())
}

func windowKey(id Identifier, class Class, w Window, now time.Time) string {
	if class == ClassGeneral {
		return fmt.Sprintf("rate_limit:%s:%s:%d", id, w, bucket(now, w))
	}
	return fmt.Sprintf("rate_limit:%s:%s:%s:%d", id, class, w, bucket(now, w))
}

func windowLabel(class Class, w Window) string {
	if class == ClassGeneral {
		return string(w)
	}
	return string(class) + "_" + string(w)
}

func concurrencyKey(id Identifier) string {
	return "concurrent:" + string(id)
}

func valueOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
