/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqclient

import (
	"net/http"

	"github.com/billhaggle/reqguard/schema"
)

type callOptions struct {
	requestID    string
	replaceStale bool
	dedupeKey    string
	header       http.Header
	maxRetries   int
	requestType  string
	strategies   []schema.ExtractionStrategy
}

// CallOption configures a single call.
type CallOption func(o *callOptions)

// WithRequestID sets the id under which the call is registered (and sent in X-Request-ID).
// An id is generated when it's not set.
func WithRequestID(id string) CallOption {
	return func(o *callOptions) {
		o.requestID = id
	}
}

// WithReplaceStale allows the call to take over the id of a pending call, which is cancelled.
func WithReplaceStale() CallOption {
	return func(o *callOptions) {
		o.replaceStale = true
	}
}

// WithDedupeKey makes concurrent calls with the same key share one execution and its outcome.
func WithDedupeKey(key string) CallOption {
	return func(o *callOptions) {
		o.dedupeKey = key
	}
}

// WithHeader adds a header to every attempt of the call.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Add(key, value)
	}
}

// WithMaxRetries overrides the configured number of retries for the call.
func WithMaxRetries(n int) CallOption {
	return func(o *callOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithRequestType sets the type of the call used in logs and metrics ("chat_completion").
func WithRequestType(requestType string) CallOption {
	return func(o *callOptions) {
		o.requestType = requestType
	}
}

// WithExtractionStrategies overrides schema.DefaultStrategies for Call.
func WithExtractionStrategies(strategies ...schema.ExtractionStrategy) CallOption {
	return func(o *callOptions) {
		o.strategies = strategies
	}
}
