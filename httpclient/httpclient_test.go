/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/billhaggle/reqguard/httpserver/middleware"
	"github.com/billhaggle/reqguard/log/logtest"
	"github.com/billhaggle/reqguard/ratelimit"
	"github.com/billhaggle/reqguard/testutil"
)

func newTestConfig() *Config {
	return &Config{
		Timeout:   10 * time.Second,
		UserAgent: "bill-helper/1.0",
		Log:       LogConfig{Enabled: true, Mode: LoggingModeAll},
	}
}

func TestNewTransport(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		rw.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	cfg := newTestConfig()
	cfg.Auth.Token = "sk-test"
	cfg.Metrics.Enabled = true
	cfg.RateLimits = RateLimitConfig{Enabled: true, Rate: ratelimit.Config{Interval: time.Second, Limit: 100}}

	collector := NewPrometheusMetricsCollector("")
	collector.MustRegister(prometheus.NewRegistry())

	logger := logtest.NewRecorder()
	client, err := NewHTTPClient(cfg, Opts{RequestType: "llm", MetricsCollector: collector})
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, client.Timeout)

	ctx := NewContextWithRequestID(middleware.NewContextWithLogger(context.Background(), logger), "call-42")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusTeapot, resp.StatusCode)

	require.Equal(t, "call-42", gotHeaders.Get(middleware.HeaderRequestID))
	require.Equal(t, "bill-helper/1.0", gotHeaders.Get("User-Agent"))
	require.Equal(t, "Bearer sk-test", gotHeaders.Get("Authorization"))

	require.Len(t, logger.Entries(), 1)
	require.Contains(t, logger.Entries()[0].Text, "client http request POST "+server.URL+" req type llm status code 418")
	idField, found := logger.Entries()[0].FindField("request_id")
	require.True(t, found)
	require.Equal(t, "call-42", string(idField.Bytes))

	testutil.RequireSamplesCountInHistogram(t, collector.Durations.WithLabelValues(
		"llm", req.URL.Host, "POST llm", "418").(prometheus.Histogram), 1)
}

func TestNewTransport_AuthProviderOverridesToken(t *testing.T) {
	delegate := &capturingTransport{}
	cfg := newTestConfig()
	cfg.Auth.Token = "static"
	rt, err := NewTransport(cfg, Opts{
		Delegate: delegate,
		AuthProvider: AuthProviderFunc(func(ctx context.Context, scope ...string) (string, error) {
			return "dynamic", nil
		}),
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "http://upstream.local/v1/models", nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, "Bearer dynamic", delegate.lastReq.Header.Get("Authorization"))
}

func TestNewTransport_InvalidRate(t *testing.T) {
	cfg := newTestConfig()
	cfg.RateLimits = RateLimitConfig{Enabled: true, Rate: ratelimit.Config{Interval: time.Second}}
	_, err := NewTransport(cfg, Opts{})
	require.ErrorContains(t, err, "create rate limiting round tripper")
	require.Panics(t, func() { MustTransport(cfg, Opts{}) })
}

func TestCloneHTTPRequest(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://upstream.local", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test", "a")

	clone := CloneHTTPRequest(req)
	clone.Header.Set("X-Test", "b")
	require.Equal(t, "a", req.Header.Get("X-Test"))
	require.Equal(t, "b", clone.Header.Get("X-Test"))
}
