package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	authz "github.com/upb/firmauth/internal/auth"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/repositories"
	"github.com/upb/firmauth/repositories/redisstore"
	"github.com/upb/firmauth/services"
	"go.uber.org/zap"
)

// fixed mid-minute instant so tests never straddle a bucket boundary
var testNow = time.Unix(1_700_000_010, 0)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisstore.NewQuotaStore(client, "", zap.NewNop())
	svc := NewService(store, DefaultPolicySet(), zap.NewNop(), DefaultConfig())
	return svc.WithClock(func() time.Time { return testNow }), mr
}

func TestIdentifier(t *testing.T) {
	firmID := uuid.New()
	assert.Equal(t, Identifier("firm:"+firmID.String()), ForPrincipal(authz.Principal{FirmID: firmID}))
	assert.Equal(t, Identifier("ip:10.0.0.1"), ForAddress("10.0.0.1"))
}

func TestPolicySet(t *testing.T) {
	set := DefaultPolicySet()
	assert.Equal(t, 500, set.For(models.TierEnterprise).RequestsPerMinute)
	assert.Equal(t, 30, set.For(models.SubscriptionTier("platinum")).RequestsPerMinute, "unknown tier falls back to basic")

	all := set.All()
	require.Len(t, all, 3)
	assert.Equal(t, models.TierBasic, all[0].Tier)
	assert.Equal(t, models.TierEnterprise, all[2].Tier)

	custom := NewPolicySet(map[models.SubscriptionTier]models.RateLimitPolicy{
		models.TierEnterprise: {RequestsPerMinute: 1},
	})
	assert.Equal(t, models.TierEnterprise, custom.For(models.TierEnterprise).Tier)
	assert.Equal(t, 30, custom.For(models.TierBasic).RequestsPerMinute)
}

func TestCheckAndRecord_MinuteWindow(t *testing.T) {
	svc, mr := newTestService(t)
	id := ForPrincipal(authz.Principal{FirmID: uuid.New()})
	policy := svc.Policy(models.TierBasic)

	for i := 0; i < 30; i++ {
		require.NoError(t, svc.CheckAndRecord(context.Background(), id, policy, ClassGeneral), "request %d", i+1)
	}

	err := svc.CheckAndRecord(context.Background(), id, policy, ClassGeneral)
	require.ErrorIs(t, err, services.ErrQuotaExceeded)
	details := services.GetErrorDetails(err)
	assert.Equal(t, "minute", details["window"])
	assert.Equal(t, int64(60), details["retry_after"])
	assert.Equal(t, 30, details["limit"])

	t.Run("rejection is monotonic within the bucket", func(t *testing.T) {
		assert.ErrorIs(t, svc.CheckAndRecord(context.Background(), id, policy, ClassGeneral), services.ErrQuotaExceeded)
	})

	t.Run("keys expire with their window", func(t *testing.T) {
		key := windowKey(id, ClassGeneral, WindowMinute, testNow)
		assert.Equal(t, "rate_limit:"+string(id)+":minute:"+strconv.FormatInt(testNow.Unix()/60, 10), key)
		assert.Equal(t, time.Minute, mr.TTL(key))
		assert.Equal(t, 24*time.Hour, mr.TTL(windowKey(id, ClassGeneral, WindowDay, testNow)))
	})

	t.Run("next bucket starts fresh", func(t *testing.T) {
		later := svc.WithClock(func() time.Time { return testNow.Add(time.Minute) })
		assert.NoError(t, later.CheckAndRecord(context.Background(), id, policy, ClassGeneral))
	})
}

func TestCheckAndRecord_DisabledWindows(t *testing.T) {
	svc, mr := newTestService(t)
	id := ForAddress("192.0.2.7")
	policy := models.RateLimitPolicy{Tier: models.TierBasic, RequestsPerMinute: 0, RequestsPerHour: 1}

	require.NoError(t, svc.CheckAndRecord(context.Background(), id, policy, ClassGeneral))
	assert.False(t, mr.Exists(windowKey(id, ClassGeneral, WindowMinute, testNow)))

	err := svc.CheckAndRecord(context.Background(), id, policy, ClassGeneral)
	assert.Equal(t, "hour", services.GetErrorDetails(err)["window"])
}

func TestCheckAndRecord_ClassQuotas(t *testing.T) {
	tests := []struct {
		name   string
		class  Class
		policy models.RateLimitPolicy
		window string
	}{
		{"llm minute", ClassLLM, models.RateLimitPolicy{LLMCallsPerMinute: 2, LLMCallsPerDay: 10}, "llm_minute"},
		{"llm day", ClassLLM, models.RateLimitPolicy{LLMCallsPerMinute: 10, LLMCallsPerDay: 2}, "llm_day"},
		{"documents", ClassDocument, models.RateLimitPolicy{DocumentsPerDay: 2}, "document_day"},
		{"research sessions", ClassResearch, models.RateLimitPolicy{ResearchSessionsPerDay: 2}, "research_day"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			id := ForPrincipal(authz.Principal{FirmID: uuid.New()})

			require.NoError(t, svc.CheckAndRecord(context.Background(), id, tt.policy, tt.class))
			require.NoError(t, svc.CheckAndRecord(context.Background(), id, tt.policy, tt.class))
			assert.NoError(t, svc.CheckAndRecord(context.Background(), id, tt.policy, ClassGeneral), "general traffic is not charged to the class")

			err := svc.CheckAndRecord(context.Background(), id, tt.policy, tt.class)
			require.ErrorIs(t, err, services.ErrQuotaExceeded)
			assert.Equal(t, tt.window, services.GetErrorDetails(err)["window"])
		})
	}
}

func TestAcquire_ConcurrencyCap(t *testing.T) {
	svc, mr := newTestService(t)
	id := ForPrincipal(authz.Principal{FirmID: uuid.New()})
	policy := models.RateLimitPolicy{Tier: models.TierBasic, ConcurrentRequests: 5}

	releases := make([]func(), 0, 5)
	for i := 0; i < 5; i++ {
		release, err := svc.Acquire(context.Background(), id, policy)
		require.NoError(t, err)
		releases = append(releases, release)
	}

	_, err := svc.Acquire(context.Background(), id, policy)
	require.ErrorIs(t, err, services.ErrConcurrencyExceeded)
	assert.Equal(t, 5, services.GetErrorDetails(err)["limit"])

	val, err := mr.Get(concurrencyKey(id))
	require.NoError(t, err)
	assert.Equal(t, "5", val, "rejected acquire gives its slot back")
	assert.Equal(t, 300*time.Second, mr.TTL(concurrencyKey(id)))

	releases[0]()
	releases[0]()
	val, _ = mr.Get(concurrencyKey(id))
	assert.Equal(t, "4", val, "release is idempotent")

	_, err = svc.Acquire(context.Background(), id, policy)
	assert.NoError(t, err)
}

func TestAcquire_ReleaseAfterCancellation(t *testing.T) {
	svc, mr := newTestService(t)
	id := ForAddress("198.51.100.1")
	policy := models.RateLimitPolicy{ConcurrentRequests: 1}

	ctx, cancel := context.WithCancel(context.Background())
	release, err := svc.Acquire(ctx, id, policy)
	require.NoError(t, err)

	cancel()
	release()

	val, _ := mr.Get(concurrencyKey(id))
	assert.Equal(t, "0", val)
}

func TestRelease_FloorsAtZero(t *testing.T) {
	svc, mr := newTestService(t)
	id := ForAddress("203.0.113.9")

	require.NoError(t, svc.Release(context.Background(), id))

	val, err := mr.Get(concurrencyKey(id))
	require.NoError(t, err)
	assert.Equal(t, "0", val)
}

// floorRaceStore lands an acquire between the decrement and the floor
type floorRaceStore struct {
	repositories.QuotaStore
}

func (s floorRaceStore) Decr(ctx context.Context, key string) (int64, error) {
	n, err := s.QuotaStore.Decr(ctx, key)
	if err != nil {
		return n, err
	}
	if _, err := s.QuotaStore.Incr(ctx, key); err != nil {
		return n, err
	}
	_, err = s.QuotaStore.Incr(ctx, key)
	return n, err
}

func TestRelease_FloorKeepsConcurrentAcquire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := floorRaceStore{QuotaStore: redisstore.NewQuotaStore(client, "", zap.NewNop())}
	svc := NewService(store, DefaultPolicySet(), zap.NewNop(), DefaultConfig())
	id := ForAddress("203.0.113.10")

	// Stale release on an expired key: -1, then two acquires land before the floor
	require.NoError(t, svc.Release(context.Background(), id))

	val, err := mr.Get(concurrencyKey(id))
	require.NoError(t, err)
	assert.Equal(t, "1", val)
}

func TestAdmit(t *testing.T) {
	t.Run("window rejection does not hold a slot", func(t *testing.T) {
		svc, mr := newTestService(t)
		id := ForPrincipal(authz.Principal{FirmID: uuid.New()})

		for i := 0; i < 30; i++ {
			release, err := svc.Admit(context.Background(), id, models.TierBasic, ClassGeneral)
			require.NoError(t, err)
			release()
		}

		_, err := svc.Admit(context.Background(), id, models.TierBasic, ClassGeneral)
		require.ErrorIs(t, err, services.ErrQuotaExceeded)

		val, _ := mr.Get(concurrencyKey(id))
		assert.Equal(t, "0", val)
	})

	t.Run("disabled limiter admits everything", func(t *testing.T) {
		_, mr := newTestService(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		svc := NewService(redisstore.NewQuotaStore(client, "", zap.NewNop()), nil, zap.NewNop(), Config{Enabled: false})
		for i := 0; i < 100; i++ {
			release, err := svc.Admit(context.Background(), ForAddress("x"), models.TierBasic, ClassGeneral)
			require.NoError(t, err)
			release()
		}
		assert.Empty(t, mr.Keys())
	})

	t.Run("store failure is internal", func(t *testing.T) {
		svc, mr := newTestService(t)
		mr.Close()

		_, err := svc.Admit(context.Background(), ForAddress("x"), models.TierBasic, ClassGeneral)
		assert.True(t, services.IsInternalError(err))
	})
}

func TestUsage(t *testing.T) {
	svc, _ := newTestService(t)
	id := ForPrincipal(authz.Principal{FirmID: uuid.New()})

	usage, err := svc.UsageSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, Usage{}, usage)

	for i := 0; i < 3; i++ {
		_, err := svc.Admit(context.Background(), id, models.TierProfessional, ClassGeneral)
		require.NoError(t, err)
	}

	usage, err = svc.UsageSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, Usage{Minute: 3, Hour: 3, Day: 3, Concurrent: 3}, usage)

	headers, err := svc.UsageHeaders(context.Background(), id, models.TierProfessional)
	require.NoError(t, err)
	assert.Equal(t, Headers{
		Limit:     100,
		Remaining: 97,
		Reset:     (testNow.Unix()/60 + 1) * 60,
		Tier:      models.TierProfessional,
	}, headers)

	hdr := http.Header{}
	headers.Write(hdr)
	assert.Equal(t, "97", hdr.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "professional", hdr.Get("X-RateLimit-Tier"))
}

func TestUsageHeaders_RemainingFloorsAtZero(t *testing.T) {
	svc, _ := newTestService(t)
	id := ForAddress("192.0.2.1")
	policy := svc.Policy(models.TierBasic)

	for i := 0; i < 35; i++ {
		_ = svc.CheckAndRecord(context.Background(), id, policy, ClassGeneral)
	}

	headers, err := svc.UsageHeaders(context.Background(), id, models.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, 0, headers.Remaining)
}
