/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// LeakyBucketLimiter implements GCRA (Generic Cell Rate Algorithm). It's a leaky bucket variant algorithm.
// More details and good explanation of this alg is provided here: https://brandur.org/rate-limiting#gcra.
type LeakyBucketLimiter struct {
	limiter *throttled.GCRARateLimiterCtx
	cfg     Config
	now     func() time.Time
}

var _ Limiter = (*LeakyBucketLimiter)(nil)

// NewLeakyBucketLimiter creates a new leaky bucket rate limiter.
// Requests are spread evenly over the interval; maxBurst requests may exceed the steady rate.
func NewLeakyBucketLimiter(cfg Config, maxBurst, maxKeys int) (*LeakyBucketLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Limit == 0 {
		return nil, fmt.Errorf("%w: leaky bucket requires a positive limit", ErrInvalidConfig)
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	gcraStore, err := memstore.NewCtx(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new in-memory store: %w", err)
	}
	reqQuota := throttled.RateQuota{
		MaxRate:  throttled.PerDuration(cfg.Limit, cfg.Interval),
		MaxBurst: maxBurst,
	}
	gcraLimiter, err := throttled.NewGCRARateLimiterCtx(gcraStore, reqQuota)
	if err != nil {
		return nil, fmt.Errorf("new GCRA rate limiter: %w", err)
	}
	return &LeakyBucketLimiter{limiter: gcraLimiter, cfg: cfg, now: time.Now}, nil
}

// Check checks if the request should be allowed based on the rate limit.
func (l *LeakyBucketLimiter) Check(ctx context.Context, key string) (Result, error) {
	limited, res, err := l.limiter.RateLimitCtx(ctx, key, 1)
	if err != nil {
		return Result{}, err
	}
	now := l.now()
	if limited {
		return Result{Allowed: false, Limit: res.Limit, Remaining: 0, ResetAt: now.Add(res.RetryAfter)}, nil
	}
	return Result{Allowed: true, Limit: res.Limit, Remaining: res.Remaining, ResetAt: now.Add(res.ResetAfter)}, nil
}
