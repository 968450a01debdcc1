/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/billhaggle/reqguard/lrucache"
)

// SlidingWindowLimiter implements sliding window rate limiting algorithm.
// It weights the previous window's count by its overlap with the sliding interval,
// which smooths the burst a fixed window allows at window boundaries.
type SlidingWindowLimiter struct {
	getLimiter func(key string) *slidingwindow.Limiter
	cfg        Config
	now        func() time.Time
}

var _ Limiter = (*SlidingWindowLimiter)(nil)

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// With maxKeys = 0 all keys share a single window.
func NewSlidingWindowLimiter(cfg Config, maxKeys int) (*SlidingWindowLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	newLimiter := func() *slidingwindow.Limiter {
		lim, _ := slidingwindow.NewLimiter(
			cfg.Interval, int64(cfg.Limit), func() (slidingwindow.Window, slidingwindow.StopFunc) {
				return slidingwindow.NewLocalWindow()
			})
		return lim
	}
	if maxKeys == 0 {
		lim := newLimiter()
		return &SlidingWindowLimiter{
			cfg:        cfg,
			now:        time.Now,
			getLimiter: func(_ string) *slidingwindow.Limiter { return lim },
		}, nil
	}

	store, err := lrucache.New[string, *slidingwindow.Limiter](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &SlidingWindowLimiter{
		cfg: cfg,
		now: time.Now,
		getLimiter: func(key string) *slidingwindow.Limiter {
			lim, _ := store.GetOrAdd(key, newLimiter)
			return lim
		},
	}, nil
}

// Check checks if the request should be allowed based on the rate limit.
// Remaining is not tracked by the algorithm and is reported as -1 for allowed requests.
func (l *SlidingWindowLimiter) Check(_ context.Context, key string) (Result, error) {
	now := l.now()
	resetAt := windowStartAt(now, l.cfg.Interval).Add(l.cfg.Interval)
	if l.cfg.Limit > 0 && l.getLimiter(key).Allow() {
		return Result{Allowed: true, Limit: l.cfg.Limit, Remaining: -1, ResetAt: resetAt}, nil
	}
	return Result{Allowed: false, Limit: l.cfg.Limit, Remaining: 0, ResetAt: resetAt}, nil
}
