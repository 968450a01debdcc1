/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestInflightGroup(t *testing.T) {
	t.Run("participants join the running execution", func(t *testing.T) {
		g := newInflightGroup()
		first, joined := g.join("k")
		require.False(t, joined)
		second, joined := g.join("k")
		require.True(t, joined)
		require.Same(t, first, second)
		require.Equal(t, 2, g.participants("k"))

		g.complete("k", first, &Response{Attempts: 1}, nil)
		<-second.done
		require.Equal(t, 1, second.resp.Attempts)
		require.Equal(t, 0, g.participants("k"))

		third, joined := g.join("k")
		require.False(t, joined, "completed execution must not be joined")
		require.NotSame(t, first, third)
	})

	t.Run("execution is cancelled when the last participant leaves", func(t *testing.T) {
		g := newInflightGroup()
		call, _ := g.join("k")
		_, _ = g.join("k")

		g.leave("k", call)
		require.False(t, call.token.IsCancelled())
		require.Equal(t, 1, g.participants("k"))

		g.leave("k", call)
		require.True(t, call.token.IsCancelled())
		fresh, joined := g.join("k")
		require.False(t, joined)
		require.NotSame(t, call, fresh)

		g.complete("k", call, nil, errors.New("late"))
		require.Equal(t, 1, g.participants("k"), "late completion must not release the fresh execution")
	})
}

func TestSharedOutcome(t *testing.T) {
	call := &inflightCall{err: &Error{Kind: KindServer, RequestID: "leader", Attempts: 3}}
	_, err := sharedOutcome(call, "follower")
	callErr := requireCallError(t, err, KindServer, 3)
	require.Equal(t, "follower", callErr.RequestID)
	require.Equal(t, "leader", call.err.(*Error).RequestID, "shared error must not be mutated")

	call = &inflightCall{resp: &Response{RequestID: "leader", Body: []byte("{}")}}
	resp, err := sharedOutcome(call, "follower")
	require.NoError(t, err)
	require.Equal(t, "follower", resp.RequestID)
	require.Equal(t, "leader", call.resp.RequestID)
}

// blockingServer answers 200 after release is closed and counts requests aborted by the client.
func blockingServer(hits, aborted *atomic.Int32, release <-chan struct{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		hits.Inc()
		select {
		case <-release:
			_, _ = rw.Write([]byte(`{"ok":true}`))
		case <-r.Context().Done():
			aborted.Inc()
		}
	}))
}

type dedupeResult struct {
	resp *Response
	err  error
}

func startDeduplicated(ctx context.Context, c *Client, id string) <-chan dedupeResult {
	resCh := make(chan dedupeResult, 1)
	go func() {
		resp, err := c.Do(ctx, Request{Path: "/v1/models"}, WithDedupeKey("models"), WithRequestID(id))
		resCh <- dedupeResult{resp, err}
	}()
	return resCh
}

func waitParticipants(t *testing.T, c *Client, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.inflight.participants("models") == want
	}, time.Second, time.Millisecond)
}

func TestClient_Dedupe_EveryParticipantIsPending(t *testing.T) {
	hits, aborted := atomic.NewInt32(0), atomic.NewInt32(0)
	release := make(chan struct{})
	server := blockingServer(hits, aborted, release)
	defer server.Close()
	c := newTestClient(t, server.URL, &sleepRecorder{}, nil)

	leader := startDeduplicated(context.Background(), c, "leader")
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
	follower := startDeduplicated(context.Background(), c, "follower")
	waitParticipants(t, c, 2)
	require.ElementsMatch(t, []string{"leader", "follower"}, c.Pending())

	_, err := c.Do(context.Background(), Request{Path: "/v1/models"}, WithDedupeKey("models"), WithRequestID("follower"))
	requireCallError(t, err, KindDuplicateID, 0)

	close(release)
	for _, res := range []dedupeResult{<-leader, <-follower} {
		require.NoError(t, res.err)
		require.Equal(t, `{"ok":true}`, string(res.resp.Body))
	}
	require.Equal(t, int32(1), hits.Load())
	require.Empty(t, c.Pending())
}

func TestClient_Dedupe_CancelFollower(t *testing.T) {
	hits, aborted := atomic.NewInt32(0), atomic.NewInt32(0)
	release := make(chan struct{})
	server := blockingServer(hits, aborted, release)
	defer server.Close()
	c := newTestClient(t, server.URL, &sleepRecorder{}, nil)

	leader := startDeduplicated(context.Background(), c, "leader")
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
	follower := startDeduplicated(context.Background(), c, "follower")
	waitParticipants(t, c, 2)

	require.True(t, c.Cancel("follower"))
	res := <-follower
	callErr := requireCallError(t, res.err, KindCancelled, 0)
	require.Equal(t, "follower", callErr.RequestID)
	require.Equal(t, []string{"leader"}, c.Pending())
	require.False(t, c.Cancel("follower"), "second cancel is a no-op")

	close(release)
	res = <-leader
	require.NoError(t, res.err)
	require.Equal(t, "leader", res.resp.RequestID)
	require.Equal(t, int32(0), aborted.Load())
}

func TestClient_Dedupe_CancelLeaderWhileFollowerWaits(t *testing.T) {
	hits, aborted := atomic.NewInt32(0), atomic.NewInt32(0)
	release := make(chan struct{})
	server := blockingServer(hits, aborted, release)
	defer server.Close()
	c := newTestClient(t, server.URL, &sleepRecorder{}, nil)

	leader := startDeduplicated(context.Background(), c, "leader")
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
	follower := startDeduplicated(context.Background(), c, "follower")
	waitParticipants(t, c, 2)

	require.True(t, c.Cancel("leader"))
	res := <-leader
	requireCallError(t, res.err, KindCancelled, 0)
	require.Equal(t, []string{"follower"}, c.Pending())

	close(release)
	res = <-follower
	require.NoError(t, res.err)
	require.Equal(t, "follower", res.resp.RequestID)
	require.Equal(t, `{"ok":true}`, string(res.resp.Body))
	require.Equal(t, int32(1), hits.Load())
	require.Equal(t, int32(0), aborted.Load())
}

func TestClient_Dedupe_LastParticipantLeavingAbortsExecution(t *testing.T) {
	hits, aborted := atomic.NewInt32(0), atomic.NewInt32(0)
	release := make(chan struct{})
	server := blockingServer(hits, aborted, release)
	defer server.Close()
	c := newTestClient(t, server.URL, &sleepRecorder{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	leader := startDeduplicated(ctx, c, "leader")
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
	follower := startDeduplicated(context.Background(), c, "follower")
	waitParticipants(t, c, 2)

	cancel()
	callErr := requireCallError(t, (<-leader).err, KindCancelled, 0)
	require.ErrorIs(t, callErr, context.Canceled)
	require.True(t, c.Cancel("follower"))
	requireCallError(t, (<-follower).err, KindCancelled, 0)

	require.Eventually(t, func() bool { return aborted.Load() == 1 }, time.Second, time.Millisecond)
	require.Empty(t, c.Pending())

	close(release)
	resp, err := c.Do(context.Background(), Request{Path: "/v1/models"}, WithDedupeKey("models"))
	require.NoError(t, err)
	require.Equal(t, 1, resp.Attempts)
	require.Equal(t, int32(2), hits.Load())
}
