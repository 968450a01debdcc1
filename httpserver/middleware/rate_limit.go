/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/billhaggle/reqguard/log"
	"github.com/billhaggle/reqguard/ratelimit"
	"github.com/billhaggle/reqguard/restapi"
)

// RateLimitLogFieldKey it is the name of the logged field that contains a key for the requests rate limiter.
const RateLimitLogFieldKey = "rate_limit_key"

// RateLimitPolicyLogFieldKey is the name of the logged field that contains the name of the applied policy.
const RateLimitPolicyLogFieldKey = "rate_limit_policy"

// Informational rate limit headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// RateLimitParams contains data that relates to the rate limiting procedure
// and could be used for rejecting or handling an occurred error.
type RateLimitParams struct {
	ErrDomain  string
	Policy     string
	Key        string
	Result     ratelimit.Result
	RetryAfter time.Duration
}

// RateLimitOnRejectFunc is a function that is called for rejecting HTTP request when the rate limit is exceeded.
type RateLimitOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger)

// RateLimitOnErrorFunc is a function that is called when the key can't be derived or the limiter fails.
type RateLimitOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, err error, next http.Handler, logger log.FieldLogger)

// RateLimitGetKeyFunc is a function that is called for getting key for rate limiting.
// Returning bypass = true serves the request without counting it.
type RateLimitGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// RateLimitOpts represents an options for the RateLimit middleware.
type RateLimitOpts struct {
	// GetKey derives the caller key. RateLimitKeyByRemoteAddr is used when it's nil.
	GetKey RateLimitGetKeyFunc
	// Policy is the name of the applied policy, used in logs and metrics.
	Policy string
	// IncludeHeaders adds X-RateLimit-* headers to every counted response.
	IncludeHeaders bool
	// DryRun serves rejected requests anyway and only reports them.
	DryRun bool
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// MetricsCollector counts rejected requests. Can be nil.
	MetricsCollector RateLimitMetricsCollector

	OnReject         RateLimitOnRejectFunc
	OnRejectInDryRun RateLimitOnRejectFunc
	OnError          RateLimitOnErrorFunc
}

type rateLimitHandler struct {
	next      http.Handler
	limiter   ratelimit.Limiter
	errDomain string
	opts      RateLimitOpts
	onReject  RateLimitOnRejectFunc
	onError   RateLimitOnErrorFunc
}

// RateLimit is a middleware that limits the rate of HTTP requests per caller key.
// A rejected request gets 429 with the Retry-After header and the time to wait in the body,
// the wrapped handler is not invoked.
func RateLimit(limiter ratelimit.Limiter, errDomain string, opts RateLimitOpts) (func(next http.Handler) http.Handler, error) {
	if limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	if opts.GetKey == nil {
		opts.GetKey = RateLimitKeyByRemoteAddr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	onReject := makeRateLimitOnRejectFunc(opts)
	onError := makeRateLimitOnErrorFunc(opts)
	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:      next,
			limiter:   limiter,
			errDomain: errDomain,
			opts:      opts,
			onReject:  onReject,
			onError:   onError,
		}
	}, nil
}

// MustRateLimit is a version of RateLimit that panics if an error occurs.
func MustRateLimit(limiter ratelimit.Limiter, errDomain string, opts RateLimitOpts) func(next http.Handler) http.Handler {
	mw, err := RateLimit(limiter, errDomain, opts)
	if err != nil {
		panic(err)
	}
	return mw
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	params := RateLimitParams{ErrDomain: h.errDomain, Policy: h.opts.Policy}
	logger := GetLoggerFromContext(r.Context())

	key, bypass, err := h.opts.GetKey(r)
	if err != nil {
		h.onError(rw, r, params, fmt.Errorf("get rate limit key: %w", err), h.next, logger)
		return
	}
	if bypass {
		h.next.ServeHTTP(rw, r)
		return
	}
	params.Key = key

	res, err := h.limiter.Check(r.Context(), key)
	if err != nil {
		h.onError(rw, r, params, fmt.Errorf("check rate limit: %w", err), h.next, logger)
		return
	}
	params.Result = res

	now := h.opts.Now()
	if h.opts.IncludeHeaders {
		setRateLimitHeaders(rw, res, now)
	}
	if res.Allowed {
		h.next.ServeHTTP(rw, r)
		return
	}

	params.RetryAfter = res.RetryAfter(now)
	if h.opts.MetricsCollector != nil {
		h.opts.MetricsCollector.IncRejects(h.opts.Policy, h.opts.DryRun)
	}
	h.onReject(rw, r, params, h.next, logger)
}

func setRateLimitHeaders(rw http.ResponseWriter, res ratelimit.Result, now time.Time) {
	rw.Header().Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
	if res.Remaining >= 0 {
		rw.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
	}
	if !res.ResetAt.IsZero() {
		rw.Header().Set(HeaderRateLimitReset, strconv.FormatInt(restapi.RetryAfterSeconds(res.ResetAt.Sub(now)), 10))
	}
}

// DefaultRateLimitOnReject responds with 429, the Retry-After header and the exact wait in the body.
func DefaultRateLimitOnReject(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("too many requests",
			log.String(RateLimitLogFieldKey, params.Key),
			log.String(RateLimitPolicyLogFieldKey, params.Policy),
			log.DurationMs("retry_after_ms", params.RetryAfter),
		)
	}
	restapi.RespondTooManyRequests(rw, params.RetryAfter, "", logger)
}

// DefaultRateLimitOnError responds with 500 when the key can't be derived or the limiter fails.
func DefaultRateLimitOnError(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, err error, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error("rate limiting failed", log.Error(err),
			log.String(RateLimitLogFieldKey, params.Key),
			log.String(RateLimitPolicyLogFieldKey, params.Policy),
		)
	}
	restapi.RespondInternalError(rw, params.ErrDomain, logger)
}

// DefaultRateLimitOnRejectInDryRun logs the rejection and serves the request anyway.
func DefaultRateLimitOnRejectInDryRun(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("too many requests, serving will be continued because of dry run mode",
			log.String(RateLimitLogFieldKey, params.Key),
			log.String(RateLimitPolicyLogFieldKey, params.Policy),
		)
	}
	next.ServeHTTP(rw, r)
}

func makeRateLimitOnRejectFunc(opts RateLimitOpts) RateLimitOnRejectFunc {
	if opts.DryRun {
		if opts.OnRejectInDryRun != nil {
			return opts.OnRejectInDryRun
		}
		return DefaultRateLimitOnRejectInDryRun
	}
	if opts.OnReject != nil {
		return opts.OnReject
	}
	return DefaultRateLimitOnReject
}

func makeRateLimitOnErrorFunc(opts RateLimitOpts) RateLimitOnErrorFunc {
	if opts.OnError != nil {
		return opts.OnError
	}
	return DefaultRateLimitOnError
}
