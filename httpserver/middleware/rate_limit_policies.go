/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"

	"github.com/vasayxtx/go-glob"

	"github.com/billhaggle/reqguard/ratelimit"
)

type rateLimitRoute struct {
	pattern string
	match   func(s string) bool
	policy  string
}

// RateLimitPolicies holds one RateLimit middleware per named policy.
// All fixed window policies count in the same State, keys are namespaced by the policy name.
type RateLimitPolicies struct {
	middlewares   map[string]func(next http.Handler) http.Handler
	routes        []rateLimitRoute
	defaultPolicy string
}

// NewRateLimitPolicies creates middlewares for all policies of cfg.
// opts are shared by all policies, Policy, DryRun and IncludeHeaders are taken from cfg.
func NewRateLimitPolicies(
	cfg *ratelimit.PoliciesConfig, state *ratelimit.State, errDomain string, opts RateLimitOpts,
) (*RateLimitPolicies, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &RateLimitPolicies{
		middlewares:   make(map[string]func(next http.Handler) http.Handler, len(cfg.Policies)),
		defaultPolicy: cfg.DefaultPolicy,
	}
	for _, name := range cfg.PolicyNames() {
		policy, _ := cfg.Policy(name)
		limiter, err := ratelimit.NewLimiter(cfg.Alg, state, policy,
			ratelimit.LimiterOpts{MaxKeys: cfg.MaxKeys, Burst: cfg.Burst})
		if err != nil {
			return nil, fmt.Errorf("new limiter for policy %q: %w", name, err)
		}
		policyOpts := opts
		policyOpts.Policy = name
		policyOpts.DryRun = opts.DryRun || cfg.DryRun
		policyOpts.IncludeHeaders = opts.IncludeHeaders || cfg.IncludeHeaders
		if p.middlewares[name], err = RateLimit(limiter, errDomain, policyOpts); err != nil {
			return nil, fmt.Errorf("new rate limit middleware for policy %q: %w", name, err)
		}
	}
	for _, route := range cfg.Routes {
		p.routes = append(p.routes, rateLimitRoute{
			pattern: route.Pattern,
			match:   glob.Compile(route.Pattern),
			policy:  route.Policy,
		})
	}
	return p, nil
}

// Middleware returns the middleware of the named policy.
func (p *RateLimitPolicies) Middleware(policy string) (func(next http.Handler) http.Handler, error) {
	mw, ok := p.middlewares[policy]
	if !ok {
		return nil, fmt.Errorf("unknown rate limit policy %q", policy)
	}
	return mw, nil
}

// MustMiddleware is a version of Middleware that panics if the policy is unknown.
func (p *RateLimitPolicies) MustMiddleware(policy string) func(next http.Handler) http.Handler {
	mw, err := p.Middleware(policy)
	if err != nil {
		panic(err)
	}
	return mw
}

// PolicyForPath returns the policy of the first route whose pattern matches urlPath,
// or the default policy. Empty result means the path is not limited.
func (p *RateLimitPolicies) PolicyForPath(urlPath string) string {
	for i := range p.routes {
		if p.routes[i].match(urlPath) {
			return p.routes[i].policy
		}
	}
	return p.defaultPolicy
}

// RateLimitByRoute is a middleware that applies the policy selected by the request path.
func RateLimitByRoute(policies *RateLimitPolicies) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handlers := make(map[string]http.Handler, len(policies.middlewares))
		for name, mw := range policies.middlewares {
			handlers[name] = mw(next)
		}
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if h, ok := handlers[policies.PolicyForPath(r.URL.Path)]; ok {
				h.ServeHTTP(rw, r)
				return
			}
			next.ServeHTTP(rw, r)
		})
	}
}
