/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides the outbound transport chain: request id propagation,
// user agent, bearer authentication, client-side pacing, logging and metrics of outgoing requests.
package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/billhaggle/reqguard/log"
)

// CloneHTTPRequest creates a shallow copy of the request along with a deep copy of the Headers.
func CloneHTTPRequest(req *http.Request) *http.Request {
	r := new(http.Request)
	*r = *req
	r.Header = CloneHTTPHeader(req.Header)
	return r
}

// CloneHTTPHeader creates a deep copy of an http.Header.
func CloneHTTPHeader(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for key, values := range in {
		newValues := make([]string, len(values))
		copy(newValues, values)
		out[key] = newValues
	}
	return out
}

// Opts provides options for NewTransport and NewHTTPClient functions.
type Opts struct {
	// Delegate is the innermost RoundTripper. A clone of http.DefaultTransport is used when it's nil.
	Delegate http.RoundTripper

	// RequestType is a type of request ("llm", "storage") used in logs and metrics.
	RequestType string

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider is a function that provides a request ID.
	RequestIDProvider func(ctx context.Context) string

	// MetricsCollector is used when metrics are enabled in the configuration.
	MetricsCollector MetricsCollector

	// AuthProvider takes precedence over the static token from the configuration.
	AuthProvider AuthProvider

	// UserAgentUpdateStrategy defines how the configured user agent is combined with the request's one.
	UserAgentUpdateStrategy UserAgentUpdateStrategy
}

// NewTransport wraps the delegate transport with logging, metrics, pacing, bearer auth, user agent
// and request id round trippers according to the configuration.
// Logging is the innermost layer, so it sees the request exactly as it's sent.
func NewTransport(cfg *Config, opts Opts) (http.RoundTripper, error) {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.Log.Enabled {
		logOpts := cfg.Log.TransportOpts()
		logOpts.LoggerProvider = opts.LoggerProvider
		delegate = NewLoggingRoundTripperWithOpts(delegate, opts.RequestType, logOpts)
	}

	if cfg.Metrics.Enabled && opts.MetricsCollector != nil {
		delegate = NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{
			RequestType: opts.RequestType,
			Collector:   opts.MetricsCollector,
		})
	}

	if cfg.RateLimits.Enabled {
		var err error
		if delegate, err = NewRateLimitingRoundTripperWithOpts(
			delegate, cfg.RateLimits.Rate, cfg.RateLimits.TransportOpts(),
		); err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	authProvider := opts.AuthProvider
	if authProvider == nil && cfg.Auth.Token != "" {
		authProvider = StaticTokenProvider(cfg.Auth.Token)
	}
	if authProvider != nil {
		delegate = NewAuthBearerRoundTripperWithOpts(delegate, authProvider, AuthBearerRoundTripperOpts{
			TokenScope: cfg.Auth.Scope,
		})
	}

	delegate = NewUserAgentRoundTripperWithOpts(delegate, cfg.UserAgent, UserAgentRoundTripperOpts{
		UpdateStrategy: opts.UserAgentUpdateStrategy,
	})

	delegate = NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{
		RequestIDProvider: opts.RequestIDProvider,
	})

	return delegate, nil
}

// MustTransport creates the transport chain and panics if any error occurs.
func MustTransport(cfg *Config, opts Opts) http.RoundTripper {
	rt, err := NewTransport(cfg, opts)
	if err != nil {
		panic(err)
	}
	return rt
}

// NewHTTPClient creates an http.Client over the transport chain with the configured timeout.
func NewHTTPClient(cfg *Config, opts Opts) (*http.Client, error) {
	rt, err := NewTransport(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: rt, Timeout: cfg.Timeout}, nil
}
