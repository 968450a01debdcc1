/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Check(ctx context.Context, key string) (Result, error)
}

// FixedWindowLimiter applies a single Policy using fixed window counters kept in a shared State.
// Keys are namespaced by the policy name, so policies sharing one State never share counters.
type FixedWindowLimiter struct {
	state  *State
	policy Policy
}

var _ Limiter = (*FixedWindowLimiter)(nil)

// NewFixedWindowLimiter creates a new FixedWindowLimiter.
func NewFixedWindowLimiter(state *State, policy Policy) (*FixedWindowLimiter, error) {
	if state == nil {
		return nil, fmt.Errorf("state is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("policy %q: %w", policy.Name, err)
	}
	return &FixedWindowLimiter{state: state, policy: policy}, nil
}

// Check counts the request of key in the current window.
func (l *FixedWindowLimiter) Check(_ context.Context, key string) (Result, error) {
	return l.state.Check(namespacedKey(l.policy.Name, key), l.policy.Config)
}

// Policy returns the policy applied by the limiter.
func (l *FixedWindowLimiter) Policy() Policy {
	return l.policy
}

func namespacedKey(policyName, key string) string {
	if policyName == "" {
		return key
	}
	return policyName + ":" + key
}

// LimiterOpts represents options for NewLimiter.
type LimiterOpts struct {
	// MaxKeys bounds the number of tracked keys for algorithms that keep their own storage.
	MaxKeys int
	// Burst is the number of requests allowed above the steady rate by the leaky bucket.
	Burst int
}

// NewLimiter creates a Limiter of the given algorithm for policy.
// The fixed window algorithm counts in state; other algorithms keep their own storage.
func NewLimiter(alg Alg, state *State, policy Policy, opts LimiterOpts) (Limiter, error) {
	switch alg {
	case AlgFixedWindow, "":
		return NewFixedWindowLimiter(state, policy)
	case AlgSlidingWindow:
		return NewSlidingWindowLimiter(policy.Config, opts.MaxKeys)
	case AlgLeakyBucket:
		return NewLeakyBucketLimiter(policy.Config, opts.Burst, opts.MaxKeys)
	default:
		return nil, fmt.Errorf("unknown rate limiting algorithm %q", alg)
	}
}
