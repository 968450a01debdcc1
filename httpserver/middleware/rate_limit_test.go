/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"

	"github.com/billhaggle/reqguard/log"
	"github.com/billhaggle/reqguard/log/logtest"
	"github.com/billhaggle/reqguard/ratelimit"
	"github.com/billhaggle/reqguard/restapi"
	"github.com/billhaggle/reqguard/testutil"
)

const testErrDomain = "Gateway"

// 30 seconds into a minute window.
var testNow = time.Unix(1_700_000_010, 0)

type mockRateLimitNextHandler struct {
	called atomic.Int32
}

func (h *mockRateLimitNextHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	h.called.Inc()
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("ok"))
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("storage is broken")
}

type RateLimitTestSuite struct {
	suite.Suite
	state *ratelimit.State
	now   time.Time
}

func TestRateLimit(t *testing.T) {
	suite.Run(t, new(RateLimitTestSuite))
}

func (ts *RateLimitTestSuite) SetupTest() {
	ts.now = testNow
	var err error
	ts.state, err = ratelimit.NewState(ratelimit.StateOpts{Now: func() time.Time { return ts.now }})
	ts.Require().NoError(err)
}

func (ts *RateLimitTestSuite) newLimiter(limit int) ratelimit.Limiter {
	limiter, err := ratelimit.NewFixedWindowLimiter(ts.state,
		ratelimit.Policy{Name: ratelimit.PolicyStandard, Config: ratelimit.Config{Interval: time.Minute, Limit: limit}})
	ts.Require().NoError(err)
	return limiter
}

func (ts *RateLimitTestSuite) newOpts() RateLimitOpts {
	return RateLimitOpts{Policy: ratelimit.PolicyStandard, Now: func() time.Time { return ts.now }}
}

func (ts *RateLimitTestSuite) serve(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/resource", nil)
	req.RemoteAddr = remoteAddr
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func (ts *RateLimitTestSuite) TestAllowsUpToLimitThenRejects() {
	next := &mockRateLimitNextHandler{}
	h := MustRateLimit(ts.newLimiter(5), testErrDomain, ts.newOpts())(next)

	for i := 0; i < 5; i++ {
		resp := ts.serve(h, "10.0.0.1:1234")
		ts.Require().Equal(http.StatusOK, resp.Code)
		ts.Require().Equal("ok", resp.Body.String())
	}

	resp := ts.serve(h, "10.0.0.1:1234")
	ts.Require().Equal(int32(5), next.called.Load())
	ts.Require().Equal("30", resp.Header().Get(restapi.HeaderRetryAfter))
	body := testutil.RequireThrottledInRecorder(ts.T(), resp)
	ts.Require().Equal(int64(30_000), body.RetryAfterMs)

	// Other callers have their own counters.
	ts.Require().Equal(http.StatusOK, ts.serve(h, "10.0.0.2:1234").Code)
}

func (ts *RateLimitTestSuite) TestNewWindowResetsCounter() {
	next := &mockRateLimitNextHandler{}
	h := MustRateLimit(ts.newLimiter(1), testErrDomain, ts.newOpts())(next)

	ts.Require().Equal(http.StatusOK, ts.serve(h, "10.0.0.1:1234").Code)
	ts.Require().Equal(http.StatusTooManyRequests, ts.serve(h, "10.0.0.1:1234").Code)

	ts.now = ts.now.Add(30 * time.Second)
	ts.Require().Equal(http.StatusOK, ts.serve(h, "10.0.0.1:1234").Code)
	ts.Require().Equal(int32(2), next.called.Load())
}

func (ts *RateLimitTestSuite) TestZeroLimitAlwaysDenies() {
	next := &mockRateLimitNextHandler{}
	h := MustRateLimit(ts.newLimiter(0), testErrDomain, ts.newOpts())(next)
	ts.Require().Equal(http.StatusTooManyRequests, ts.serve(h, "10.0.0.1:1234").Code)
	ts.Require().Zero(next.called.Load())
}

func (ts *RateLimitTestSuite) TestIncludeHeaders() {
	opts := ts.newOpts()
	opts.IncludeHeaders = true
	h := MustRateLimit(ts.newLimiter(2), testErrDomain, opts)(&mockRateLimitNextHandler{})

	resp := ts.serve(h, "10.0.0.1:1234")
	ts.Require().Equal(http.StatusOK, resp.Code)
	ts.Require().Equal("2", resp.Header().Get(HeaderRateLimitLimit))
	ts.Require().Equal("1", resp.Header().Get(HeaderRateLimitRemaining))
	ts.Require().Equal("30", resp.Header().Get(HeaderRateLimitReset))

	ts.serve(h, "10.0.0.1:1234")
	resp = ts.serve(h, "10.0.0.1:1234")
	ts.Require().Equal(http.StatusTooManyRequests, resp.Code)
	ts.Require().Equal("0", resp.Header().Get(HeaderRateLimitRemaining))
}

func (ts *RateLimitTestSuite) TestNoHeadersByDefault() {
	h := MustRateLimit(ts.newLimiter(2), testErrDomain, ts.newOpts())(&mockRateLimitNextHandler{})
	resp := ts.serve(h, "10.0.0.1:1234")
	ts.Require().Empty(resp.Header().Get(HeaderRateLimitLimit))
}

func (ts *RateLimitTestSuite) TestLimiterErrorRespondsInternalError() {
	next := &mockRateLimitNextHandler{}
	logger := logtest.NewRecorder()
	h := MustRateLimit(failingLimiter{}, testErrDomain, ts.newOpts())(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(NewContextWithLogger(req.Context(), logger))
	resp := httptest.NewRecorder()
	ts.Require().NotPanics(func() { h.ServeHTTP(resp, req) })

	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusInternalServerError, testErrDomain, restapi.ErrCodeInternal)
	ts.Require().Zero(next.called.Load())
	_, found := logger.FindEntry("rate limiting failed")
	ts.Require().True(found)
}

func (ts *RateLimitTestSuite) TestKeyErrorRespondsInternalError() {
	next := &mockRateLimitNextHandler{}
	opts := ts.newOpts()
	opts.GetKey = RateLimitKeyByHeader("X-Api-Key", false)
	h := MustRateLimit(ts.newLimiter(1), testErrDomain, opts)(next)

	resp := ts.serve(h, "10.0.0.1:1234")
	testutil.RequireErrorInRecorder(ts.T(), resp, http.StatusInternalServerError, testErrDomain, restapi.ErrCodeInternal)
	ts.Require().Zero(next.called.Load())
}

func (ts *RateLimitTestSuite) TestBypass() {
	next := &mockRateLimitNextHandler{}
	opts := ts.newOpts()
	opts.GetKey = RateLimitKeyByHeader("X-Api-Key", true)
	h := MustRateLimit(ts.newLimiter(0), testErrDomain, opts)(next)

	ts.Require().Equal(http.StatusOK, ts.serve(h, "10.0.0.1:1234").Code)
	ts.Require().Equal(int32(1), next.called.Load())
	ts.Require().Zero(ts.state.Len())
}

func (ts *RateLimitTestSuite) TestDryRun() {
	next := &mockRateLimitNextHandler{}
	metrics := NewRateLimitPrometheusMetrics("")
	logger := logtest.NewRecorder()
	opts := ts.newOpts()
	opts.DryRun = true
	opts.MetricsCollector = metrics
	h := MustRateLimit(ts.newLimiter(1), testErrDomain, opts)(next)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(NewContextWithLogger(req.Context(), logger))
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		ts.Require().Equal(http.StatusOK, resp.Code)
	}
	ts.Require().Equal(int32(3), next.called.Load())
	ts.Require().Equal(2.0, promtest.ToFloat64(metrics.RejectsTotal.WithLabelValues(ratelimit.PolicyStandard, "true")))
	entries := logger.FindAllEntriesByFilter(func(e logtest.RecordedEntry) bool {
		return e.Text == "too many requests, serving will be continued because of dry run mode"
	})
	ts.Require().Len(entries, 2)
}

func (ts *RateLimitTestSuite) TestRejectsAreCounted() {
	metrics := NewRateLimitPrometheusMetrics("")
	opts := ts.newOpts()
	opts.MetricsCollector = metrics
	h := MustRateLimit(ts.newLimiter(1), testErrDomain, opts)(&mockRateLimitNextHandler{})
	ts.serve(h, "10.0.0.1:1234")
	ts.serve(h, "10.0.0.1:1234")
	ts.serve(h, "10.0.0.1:1234")
	ts.Require().Equal(2.0, promtest.ToFloat64(metrics.RejectsTotal.WithLabelValues(ratelimit.PolicyStandard, "false")))
}

func (ts *RateLimitTestSuite) TestCustomOnReject() {
	var gotParams RateLimitParams
	opts := ts.newOpts()
	opts.OnReject = func(rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, _ log.FieldLogger) {
		gotParams = params
		rw.WriteHeader(http.StatusServiceUnavailable)
	}
	h := MustRateLimit(ts.newLimiter(0), testErrDomain, opts)(&mockRateLimitNextHandler{})
	resp := ts.serve(h, "10.0.0.1:1234")
	ts.Require().Equal(http.StatusServiceUnavailable, resp.Code)
	ts.Require().Equal("10.0.0.1", gotParams.Key)
	ts.Require().Equal(ratelimit.PolicyStandard, gotParams.Policy)
	ts.Require().Equal(30*time.Second, gotParams.RetryAfter)
}

func (ts *RateLimitTestSuite) TestConcurrentRequestsNeverExceedLimit() {
	const limit = 10
	next := &mockRateLimitNextHandler{}
	h := MustRateLimit(ts.newLimiter(limit), testErrDomain, ts.newOpts())(next)

	var rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ts.serve(h, "10.0.0.1:1234").Code == http.StatusTooManyRequests {
				rejected.Inc()
			}
		}()
	}
	wg.Wait()
	ts.Require().Equal(int32(limit), next.called.Load())
	ts.Require().Equal(int32(40), rejected.Load())
}

func TestRateLimit_NilLimiter(t *testing.T) {
	_, err := RateLimit(nil, testErrDomain, RateLimitOpts{})
	require.Error(t, err)
	require.Panics(t, func() { MustRateLimit(nil, testErrDomain, RateLimitOpts{}) })
}
