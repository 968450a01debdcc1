/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default backoff values.
const (
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMaxDelay     = 10 * time.Second
)

// BackoffConfig configures exponential backoff.
type BackoffConfig struct {
	InitialDelay time.Duration `mapstructure:"initialDelay" yaml:"initialDelay" json:"initialDelay"`
	MaxDelay     time.Duration `mapstructure:"maxDelay" yaml:"maxDelay" json:"maxDelay"`
}

// Validate checks that delays are usable.
func (c BackoffConfig) Validate() error {
	if c.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be positive, got %s", c.InitialDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max delay (%s) must not be less than initial delay (%s)", c.MaxDelay, c.InitialDelay)
	}
	return nil
}

// JitterSource provides randomness for jitter. *rand.Rand satisfies it.
type JitterSource interface {
	Int63n(n int64) int64
}

// ZeroJitter is a JitterSource that never adds jitter.
type ZeroJitter struct{}

// Int63n always returns 0.
func (ZeroJitter) Int63n(int64) int64 { return 0 }

// LockedJitterSource is a JitterSource safe for concurrent use.
type LockedJitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewJitterSource returns a concurrency-safe JitterSource seeded with seed.
// The same seed always yields the same sequence of delays.
func NewJitterSource(seed int64) *LockedJitterSource {
	return &LockedJitterSource{rnd: rand.New(rand.NewSource(seed))} //nolint:gosec // jitter does not need crypto randomness
}

// Int63n returns a non-negative pseudo-random number in [0, n).
func (s *LockedJitterSource) Int63n(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Int63n(n)
}

// BaseDelay returns min(MaxDelay, InitialDelay * 2^(attempt-1)), attempt is 1-indexed.
func BaseDelay(attempt int, cfg BackoffConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		if cfg.MaxDelay > 0 && d >= cfg.MaxDelay {
			break
		}
		d *= 2
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}

// Delay returns BaseDelay plus jitter uniformly distributed in [0, BaseDelay/2].
// A nil rnd means no jitter.
func Delay(attempt int, cfg BackoffConfig, rnd JitterSource) time.Duration {
	d := BaseDelay(attempt, cfg)
	if rnd == nil {
		return d
	}
	if half := int64(d / 2); half > 0 {
		d += time.Duration(rnd.Int63n(half + 1))
	}
	return d
}

// ExponentialJitterPolicy retries up to MaxRetries times with delays computed by Delay.
type ExponentialJitterPolicy struct {
	Config     BackoffConfig
	MaxRetries int
	Jitter     JitterSource
}

// NewExponentialJitterPolicy creates a new ExponentialJitterPolicy.
func NewExponentialJitterPolicy(cfg BackoffConfig, maxRetries int, jitter JitterSource) ExponentialJitterPolicy {
	return ExponentialJitterPolicy{Config: cfg, MaxRetries: maxRetries, Jitter: jitter}
}

// NewBackOff implements retry.Policy.
func (p ExponentialJitterPolicy) NewBackOff() backoff.BackOff {
	return &exponentialJitterBackOff{policy: p}
}

type exponentialJitterBackOff struct {
	policy  ExponentialJitterPolicy
	attempt int
}

// NextBackOff returns backoff.Stop once MaxRetries delays have been handed out.
func (b *exponentialJitterBackOff) NextBackOff() time.Duration {
	if b.attempt >= b.policy.MaxRetries {
		return backoff.Stop
	}
	b.attempt++
	return Delay(b.attempt, b.policy.Config, b.policy.Jitter)
}

func (b *exponentialJitterBackOff) Reset() {
	b.attempt = 0
}
