/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/billhaggle/reqguard/ratelimit"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// RateLimitingRoundTripperAdaptation lets the upstream lower the pace with a response header
// carrying its own limit in requests per second.
type RateLimitingRoundTripperAdaptation struct {
	ResponseHeaderName string
	// SlackPercent keeps the pace this many percent below the announced limit.
	SlackPercent int
}

// RateLimitingRoundTripperOpts represents an options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration
	Adaptation  RateLimitingRoundTripperAdaptation
}

// RateLimitingRoundTripper paces outgoing requests with a token bucket,
// so the service doesn't exhaust the quota of the upstream by itself.
// A request waits for a token at most WaitTimeout.
type RateLimitingRoundTripper struct {
	Delegate http.RoundTripper
	Rate     ratelimit.Config
	Opts     RateLimitingRoundTripperOpts

	limiter   *rate.Limiter
	baseLimit rate.Limit
}

// NewRateLimitingRoundTripper creates a new RateLimitingRoundTripper with the rate ("5/s", "100/m").
func NewRateLimitingRoundTripper(delegate http.RoundTripper, maxRate ratelimit.Config) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, maxRate, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a new RateLimitingRoundTripper with the rate and options.
// For options that are not presented, the default values will be used.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, maxRate ratelimit.Config, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	if err := maxRate.Validate(); err != nil {
		return nil, err
	}
	if maxRate.Limit == 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if opts.Burst < 0 {
		return nil, fmt.Errorf("burst must be positive")
	}
	if opts.Burst == 0 {
		opts.Burst = DefaultRateLimitingBurst
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	if opts.Adaptation.SlackPercent < 0 || opts.Adaptation.SlackPercent > 100 {
		return nil, fmt.Errorf("slack percent must be in range [0..100]")
	}

	baseLimit := rate.Limit(float64(maxRate.Limit) / maxRate.Interval.Seconds())
	return &RateLimitingRoundTripper{
		Delegate:  delegate,
		Rate:      maxRate,
		Opts:      opts,
		limiter:   rate.NewLimiter(baseLimit, opts.Burst),
		baseLimit: baseLimit,
	}, nil
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := rt.wait(r.Context()); err != nil {
		if r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		return nil, err
	}

	resp, err := rt.Delegate.RoundTrip(r)
	if err != nil {
		return resp, err
	}
	if rt.Opts.Adaptation.ResponseHeaderName != "" {
		rt.adapt(resp)
	}
	return resp, nil
}

func (rt *RateLimitingRoundTripper) wait(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, rt.Opts.WaitTimeout)
	defer cancel()
	if err := rt.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RateLimitingWaitError{Inner: err}
	}
	return nil
}

// Limit returns the current pace in requests per second.
func (rt *RateLimitingRoundTripper) Limit() float64 {
	return float64(rt.limiter.Limit())
}

func (rt *RateLimitingRoundTripper) adapt(resp *http.Response) {
	newLimit := rt.baseLimit
	if v := resp.Header.Get(rt.Opts.Adaptation.ResponseHeaderName); v != "" {
		if announced, err := strconv.ParseFloat(v, 64); err == nil && announced >= 0 {
			l := rate.Limit(announced * float64(100-rt.Opts.Adaptation.SlackPercent) / 100)
			if l <= 0 {
				l = 1 // One request per second instead of stopping at all.
			}
			if l < newLimit {
				newLimit = l
			}
		}
	}
	if rt.limiter.Limit() != newLimit {
		rt.limiter.SetLimit(newLimit)
	}
}

// RateLimitingWaitError is returned in RoundTrip method of RateLimitingRoundTripper
// when a token isn't available within the wait timeout.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
