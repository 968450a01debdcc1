/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const headerAuthorization = "Authorization"

// ErrEmptyToken is returned by auth providers that have no token to give.
var ErrEmptyToken = errors.New("empty auth token")

// AuthBearerRoundTripperError is returned in RoundTrip method of AuthBearerRoundTripper
// when the token can't be obtained.
type AuthBearerRoundTripperError struct {
	Inner error
}

func (e *AuthBearerRoundTripperError) Error() string {
	return fmt.Sprintf("auth bearer round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *AuthBearerRoundTripperError) Unwrap() error {
	return e.Inner
}

// AuthProvider provides tokens for bearer authorization.
type AuthProvider interface {
	GetToken(ctx context.Context, scope ...string) (string, error)
}

// AuthProviderInvalidator is implemented by providers that cache tokens.
// Invalidate is called when the upstream answers 401, so the next attempt gets a fresh token.
type AuthProviderInvalidator interface {
	Invalidate()
}

// AuthProviderFunc allows to use an ordinary function as AuthProvider.
type AuthProviderFunc func(ctx context.Context, scope ...string) (string, error)

// GetToken calls f(ctx, scope...).
func (f AuthProviderFunc) GetToken(ctx context.Context, scope ...string) (string, error) {
	return f(ctx, scope...)
}

// StaticTokenProvider always returns the same token, e.g. an API key of the LLM service.
type StaticTokenProvider string

// GetToken returns the token.
func (p StaticTokenProvider) GetToken(_ context.Context, _ ...string) (string, error) {
	if p == "" {
		return "", ErrEmptyToken
	}
	return string(p), nil
}

// AuthBearerRoundTripperOpts is options for AuthBearerRoundTripper.
type AuthBearerRoundTripperOpts struct {
	TokenScope []string
}

// AuthBearerRoundTripper sets Authorization HTTP header in outgoing requests that don't have it.
type AuthBearerRoundTripper struct {
	Delegate     http.RoundTripper
	AuthProvider AuthProvider
	Opts         AuthBearerRoundTripperOpts
}

// NewAuthBearerRoundTripper creates a new AuthBearerRoundTripper.
func NewAuthBearerRoundTripper(delegate http.RoundTripper, authProvider AuthProvider) *AuthBearerRoundTripper {
	return NewAuthBearerRoundTripperWithOpts(delegate, authProvider, AuthBearerRoundTripperOpts{})
}

// NewAuthBearerRoundTripperWithOpts creates a new AuthBearerRoundTripper with options.
func NewAuthBearerRoundTripperWithOpts(
	delegate http.RoundTripper, authProvider AuthProvider, opts AuthBearerRoundTripperOpts,
) *AuthBearerRoundTripper {
	return &AuthBearerRoundTripper{Delegate: delegate, AuthProvider: authProvider, Opts: opts}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *AuthBearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(headerAuthorization) != "" {
		return rt.Delegate.RoundTrip(req)
	}
	token, err := rt.AuthProvider.GetToken(req.Context(), rt.Opts.TokenScope...)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close() // Per RoundTripper contract.
		}
		return nil, &AuthBearerRoundTripperError{Inner: err}
	}
	req = CloneHTTPRequest(req) // Per RoundTripper contract.
	req.Header.Set(headerAuthorization, "Bearer "+token)

	resp, err := rt.Delegate.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := rt.AuthProvider.(AuthProviderInvalidator); ok {
			inv.Invalidate()
		}
	}
	return resp, err
}
