package models

// RateLimitPolicy holds the quota numbers that apply to one subscription tier.
// A limit of zero or less disables that particular check.
type RateLimitPolicy struct {
	Tier                   SubscriptionTier `json:"tier"`
	RequestsPerMinute      int              `json:"requests_per_minute"`
	RequestsPerHour        int              `json:"requests_per_hour"`
	RequestsPerDay         int              `json:"requests_per_day"`
	ConcurrentRequests     int              `json:"concurrent_requests"`
	LLMCallsPerMinute      int              `json:"llm_calls_per_minute"`
	LLMCallsPerDay         int              `json:"llm_calls_per_day"`
	DocumentsPerDay        int              `json:"documents_per_day"`
	ResearchSessionsPerDay int              `json:"research_sessions_per_day"`
}

// DefaultRateLimitPolicies returns the built-in policy table keyed by tier
func DefaultRateLimitPolicies() map[SubscriptionTier]RateLimitPolicy {
	return map[SubscriptionTier]RateLimitPolicy{
		TierBasic: {
			Tier:                   TierBasic,
			RequestsPerMinute:      30,
			RequestsPerHour:        500,
			RequestsPerDay:         2000,
			ConcurrentRequests:     5,
			LLMCallsPerMinute:      10,
			LLMCallsPerDay:         100,
			DocumentsPerDay:        20,
			ResearchSessionsPerDay: 5,
		},
		TierProfessional: {
			Tier:                   TierProfessional,
			RequestsPerMinute:      100,
			RequestsPerHour:        2000,
			RequestsPerDay:         10000,
			ConcurrentRequests:     15,
			LLMCallsPerMinute:      50,
			LLMCallsPerDay:         500,
			DocumentsPerDay:        100,
			ResearchSessionsPerDay: 25,
		},
		TierEnterprise: {
			Tier:                   TierEnterprise,
			RequestsPerMinute:      500,
			RequestsPerHour:        10000,
			RequestsPerDay:         50000,
			ConcurrentRequests:     50,
			LLMCallsPerMinute:      200,
			LLMCallsPerDay:         2000,
			DocumentsPerDay:        500,
			ResearchSessionsPerDay: 100,
		},
	}
}
