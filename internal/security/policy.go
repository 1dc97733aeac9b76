package security

// Policy bundles the three in-memory abuse-prevention tables behind one
// value so handlers can be constructed with a single dependency instead of
// three. Each embedded table keeps its own mutex, locked independently and
// briefly; callers must never hold two of them at once.
type Policy struct {
	RateLimit *RateLimiter
	Blacklist *Blacklist
	Roaming   *RoamingTracker
}

// NewPolicy constructs an empty Policy with all three tables initialized,
// using the baseline rate-limit thresholds.
func NewPolicy() *Policy {
	return NewPolicyWithRateLimits(DefaultRateLimitConfigs())
}

// NewPolicyWithRateLimits constructs an empty Policy whose RateLimiter
// uses the given per-operation thresholds, typically DefaultRateLimitConfigs
// overridden by the operator's configuration.
func NewPolicyWithRateLimits(rateLimitConfigs map[Operation]RateLimitConfig) *Policy {
	return &Policy{
		RateLimit: NewRateLimiter(rateLimitConfigs),
		Blacklist: NewBlacklist(),
		Roaming:   NewRoamingTracker(),
	}
}
