package ratelimit

import (
	"sort"

	"github.com/upb/firmauth/models"
)

// PolicySet is the immutable tier to policy table
type PolicySet struct {
	byTier map[models.SubscriptionTier]models.RateLimitPolicy
}

// NewPolicySet copies policies into a PolicySet. A basic policy is required
// because unknown tiers fall back to it; the built-in one is used when absent.
func NewPolicySet(policies map[models.SubscriptionTier]models.RateLimitPolicy) *PolicySet {
	byTier := make(map[models.SubscriptionTier]models.RateLimitPolicy, len(policies)+1)
	for tier, p := range policies {
		p.Tier = tier
		byTier[tier] = p
	}
	if _, ok := byTier[models.TierBasic]; !ok {
		byTier[models.TierBasic] = models.DefaultRateLimitPolicies()[models.TierBasic]
	}
	return &PolicySet{byTier: byTier}
}

// DefaultPolicySet returns the built-in policy table
func DefaultPolicySet() *PolicySet {
	return NewPolicySet(models.DefaultRateLimitPolicies())
}

// For returns the policy for tier, or the basic policy for an unknown tier
func (s *PolicySet) For(tier models.SubscriptionTier) models.RateLimitPolicy {
	if p, ok := s.byTier[tier]; ok {
		return p
	}
	return s.byTier[models.TierBasic]
}

// All returns every policy ordered from the lowest tier up
func (s *PolicySet) All() []models.RateLimitPolicy {
	out := make([]models.RateLimitPolicy, 0, len(s.byTier))
	for _, p := range s.byTier {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Tier.Level() < out[j].Tier.Level()
	})
	return out
}
