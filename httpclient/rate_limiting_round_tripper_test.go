/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/billhaggle/reqguard/ratelimit"
)

type responseInfo struct {
	resp       *http.Response
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

func doGet(c *http.Client, url string) responseInfo {
	startedAt := time.Now()
	resp, err := c.Get(url)
	finishedAt := time.Now()
	if err == nil {
		_ = resp.Body.Close()
	}
	return responseInfo{resp, err, startedAt, finishedAt}
}

func makeTestServerForRateLimitingRoundTripper(adaptiveRateLimitHeader string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if adaptiveRateLimitHeader != "" {
			if rl := r.URL.Query().Get("rateLimit"); rl != "" {
				rw.Header().Set(adaptiveRateLimitHeader, rl)
			}
		}
		_, _ = rw.Write([]byte("ok"))
	}))
}

func perSecond(n int) ratelimit.Config {
	return ratelimit.Config{Interval: time.Second, Limit: n}
}

func TestNewRateLimitingRoundTripper(t *testing.T) {
	tests := []struct {
		Name      string
		Rate      ratelimit.Config
		Opts      RateLimitingRoundTripperOpts
		WantErrIs error
	}{
		{Name: "rate limit is negative", Rate: perSecond(-1), WantErrIs: ratelimit.ErrInvalidConfig},
		{Name: "interval is zero", Rate: ratelimit.Config{Limit: 1}, WantErrIs: ratelimit.ErrInvalidConfig},
		{Name: "rate limit is zero", Rate: perSecond(0)},
		{Name: "burst is negative", Rate: perSecond(1), Opts: RateLimitingRoundTripperOpts{Burst: -1}},
		{Name: "slack percent < 0", Rate: perSecond(1),
			Opts: RateLimitingRoundTripperOpts{Adaptation: RateLimitingRoundTripperAdaptation{SlackPercent: -1}}},
		{Name: "slack percent > 100", Rate: perSecond(1),
			Opts: RateLimitingRoundTripperOpts{Adaptation: RateLimitingRoundTripperAdaptation{SlackPercent: 101}}},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.Name, func(t *testing.T) {
			_, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, tt.Rate, tt.Opts)
			require.Error(t, err)
			if tt.WantErrIs != nil {
				require.ErrorIs(t, err, tt.WantErrIs)
			}
		})
	}

	rt, err := NewRateLimitingRoundTripper(http.DefaultTransport, ratelimit.Config{Interval: time.Minute, Limit: 120})
	require.NoError(t, err)
	require.Equal(t, 2.0, rt.Limit())
}

func TestRateLimitingRoundTripper_RoundTrip(t *testing.T) {
	const allowedTimeDeviation = time.Millisecond * 100

	server := makeTestServerForRateLimitingRoundTripper("")
	defer server.Close()

	makeClient := func(rateLimit int, waitTimeout time.Duration) *http.Client {
		tr, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, perSecond(rateLimit),
			RateLimitingRoundTripperOpts{WaitTimeout: waitTimeout})
		require.NoError(t, err)
		return &http.Client{Transport: tr}
	}

	t.Run("waiting is timed out for the 2nd request", func(t *testing.T) {
		client := makeClient(1, time.Millisecond*500)

		respInfo := doGet(client, server.URL)
		require.NoError(t, respInfo.err)
		require.Equal(t, http.StatusOK, respInfo.resp.StatusCode)
		require.WithinDuration(t, respInfo.startedAt, respInfo.finishedAt, allowedTimeDeviation)

		respInfo = doGet(client, server.URL)
		var waitErr *RateLimitingWaitError
		require.ErrorAs(t, respInfo.err, &waitErr)
		require.WithinDuration(t, respInfo.startedAt, respInfo.finishedAt, allowedTimeDeviation,
			"error should be returned without waiting")
	})

	t.Run("the 2nd request is paced", func(t *testing.T) {
		client := makeClient(1, time.Second*2)

		respInfo := doGet(client, server.URL)
		require.NoError(t, respInfo.err)
		require.WithinDuration(t, respInfo.startedAt, respInfo.finishedAt, allowedTimeDeviation)

		respInfo = doGet(client, server.URL)
		require.NoError(t, respInfo.err)
		require.WithinDuration(t, respInfo.startedAt.Add(time.Second), respInfo.finishedAt, allowedTimeDeviation)
	})

	t.Run("concurrent requests are paced", func(t *testing.T) {
		const rateLimit = 4
		client := makeClient(rateLimit, time.Second*2)

		batchStartedAt := time.Now()
		var wg sync.WaitGroup
		errs := make(chan error, rateLimit)
		for i := 0; i < rateLimit; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- doGet(client, server.URL).err
			}()
		}
		wg.Wait()
		close(errs)
		require.WithinDuration(t, batchStartedAt.Add(time.Second-time.Second/rateLimit), time.Now(), allowedTimeDeviation)
		for err := range errs {
			require.NoError(t, err)
		}
	})

	t.Run("cancelled context is returned as is", func(t *testing.T) {
		tr, err := NewRateLimitingRoundTripper(http.DefaultTransport, perSecond(1))
		require.NoError(t, err)
		require.NoError(t, tr.wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		_, err = tr.RoundTrip(req)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRateLimitingRoundTripper_Adaptation(t *testing.T) {
	const header = "X-Rate-Limit"

	server := makeTestServerForRateLimitingRoundTripper(header)
	defer server.Close()

	makeAdaptiveClient := func(rateLimit int, slackPercent int) (*http.Client, *RateLimitingRoundTripper) {
		tr, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, perSecond(rateLimit), RateLimitingRoundTripperOpts{
			Burst:      100,
			Adaptation: RateLimitingRoundTripperAdaptation{ResponseHeaderName: header, SlackPercent: slackPercent},
		})
		require.NoError(t, err)
		return &http.Client{Transport: tr}, tr
	}

	tests := []struct {
		name      string
		rateLimit int
		slack     int
		query     string
		wantLimit float64
	}{
		{name: "lowered by the header", rateLimit: 5, query: "?rateLimit=1", wantLimit: 1},
		{name: "never above configured", rateLimit: 10, query: "?rateLimit=20", wantLimit: 10},
		{name: "slack percent", rateLimit: 10, slack: 20, query: "?rateLimit=10", wantLimit: 8},
		{name: "garbage is ignored", rateLimit: 100, query: "?rateLimit=foobar", wantLimit: 100},
		{name: "negative is ignored", rateLimit: 100, query: "?rateLimit=-1", wantLimit: 100},
		{name: "zero keeps one per second", rateLimit: 10, query: "?rateLimit=0", wantLimit: 1},
		{name: "no header restores configured", rateLimit: 10, query: "", wantLimit: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport := makeAdaptiveClient(tt.rateLimit, tt.slack)
			respInfo := doGet(client, server.URL+"?rateLimit=2")
			require.NoError(t, respInfo.err)
			respInfo = doGet(client, server.URL+tt.query)
			require.NoError(t, respInfo.err)
			require.Equal(t, http.StatusOK, respInfo.resp.StatusCode)
			require.InDelta(t, tt.wantLimit, transport.Limit(), 0.0001)
		})
	}
}
