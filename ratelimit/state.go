/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/billhaggle/reqguard/lrucache"
)

// Record is the counter of a single key within a fixed window.
type Record struct {
	Key         string
	WindowStart time.Time
	Count       int
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed bool
	// Limit is the maximum number of requests per window.
	Limit int
	// Remaining is the number of requests left in the current window.
	// It's negative when the algorithm can't tell.
	Remaining int
	// ResetAt is the moment when the current window ends.
	ResetAt time.Time
}

// RetryAfter returns how long the caller should wait before the next attempt is allowed.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// StateOpts represents options for State.
type StateOpts struct {
	// MaxKeys bounds the number of tracked keys. Only records of ended windows are dropped to make room.
	// When every tracked key is inside its current window, a request with a new key is denied.
	// DefaultMaxKeys is used when it's 0.
	MaxKeys int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// MetricsCollector collects statistics of the underlying key store. Can be nil.
	MetricsCollector lrucache.MetricsCollector
}

// State holds fixed window counters of all keys.
// It's created once per process and shared by all limiters that count in fixed windows.
type State struct {
	mu      sync.Mutex
	records *lrucache.LRUCache[string, *Record]
	maxKeys int
	now     func() time.Time
}

// NewState creates an empty State.
func NewState(opts StateOpts) (*State, error) {
	if opts.MaxKeys == 0 {
		opts.MaxKeys = DefaultMaxKeys
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	records, err := lrucache.NewWithOpts[string, *Record](
		opts.MaxKeys, opts.MetricsCollector, lrucache.Options{Now: opts.Now})
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &State{records: records, maxKeys: opts.MaxKeys, now: opts.Now}, nil
}

// Check counts a request of key against cfg in the current fixed window.
//
// The window containing now starts at floor(now / Interval) * Interval (Unix epoch based).
// If the key has no record or its record belongs to another window, the counter starts from zero.
// The request is allowed and counted while Count < Limit. The read-reset-increment sequence
// is a single critical section, so concurrent checks of one key never exceed Limit.
// A new key that doesn't fit into the store is denied until some window ends.
func (s *State) Check(key string, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	now := s.now()
	windowStart := windowStartAt(now, cfg.Interval)
	resetAt := windowStart.Add(cfg.Interval)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found := s.records.Get(key)
	if !found || !rec.WindowStart.Equal(windowStart) {
		if !found && !s.hasRoomForKey() {
			return Result{Allowed: false, Limit: cfg.Limit, Remaining: 0, ResetAt: resetAt}, nil
		}
		rec = &Record{Key: key, WindowStart: windowStart}
		// The record is useless after the window ends, so it expires together with it.
		s.records.AddWithTTL(key, rec, resetAt.Sub(now))
	}

	if rec.Count < cfg.Limit {
		rec.Count++
		return Result{Allowed: true, Limit: cfg.Limit, Remaining: cfg.Limit - rec.Count, ResetAt: resetAt}, nil
	}
	return Result{Allowed: false, Limit: cfg.Limit, Remaining: 0, ResetAt: resetAt}, nil
}

// hasRoomForKey reports whether a new key can be tracked without evicting a current window.
// Must be called with s.mu held.
func (s *State) hasRoomForKey() bool {
	if s.records.Len() < s.maxKeys {
		return true
	}
	s.records.RemoveExpired()
	return s.records.Len() < s.maxKeys
}

// Peek returns a copy of the record for key if it belongs to a window that hasn't ended yet.
func (s *State) Peek(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.records.Get(key)
	if !found {
		return Record{}, false
	}
	return *rec, true
}

// Len returns the number of tracked keys.
func (s *State) Len() int {
	return s.records.Len()
}

// RunPeriodicCleanup drops records of ended windows every interval until ctx is done.
func (s *State) RunPeriodicCleanup(ctx context.Context, interval time.Duration) {
	s.records.RunPeriodicCleanup(ctx, interval)
}

// Now returns the current time as seen by the State.
func (s *State) Now() time.Time {
	return s.now()
}

func windowStartAt(now time.Time, interval time.Duration) time.Time {
	ns := now.UnixNano()
	start := ns - ns%int64(interval)
	if ns < 0 && ns%int64(interval) != 0 {
		start -= int64(interval)
	}
	return time.Unix(0, start).In(now.Location())
}
