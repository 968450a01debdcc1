/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"

	"github.com/stretchr/testify/require"
)

// ThrottledRespData is the body of a 429 response of the rate limiting middleware.
type ThrottledRespData struct {
	Error        string `json:"error"`
	RetryAfterMs int64  `json:"retryAfterMs"`
}

// RequireThrottledInRecorder asserts that the recorded response is a 429 with consistent
// Retry-After header and retryAfterMs body field, and returns the decoded body.
func RequireThrottledInRecorder(t require.TestingT, resp *httptest.ResponseRecorder) ThrottledRespData {
	markHelper(t)
	return requireThrottled(t, resp.Code, resp.Header(), resp.Body)
}

// RequireThrottledInResponse is like RequireThrottledInRecorder but for http.Response.
func RequireThrottledInResponse(t require.TestingT, resp *http.Response) ThrottledRespData {
	markHelper(t)
	return requireThrottled(t, resp.StatusCode, resp.Header, resp.Body)
}

func requireThrottled(t require.TestingT, code int, header http.Header, body io.Reader) ThrottledRespData {
	markHelper(t)
	require.Equal(t, http.StatusTooManyRequests, code)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))

	var data ThrottledRespData
	require.NoError(t, json.NewDecoder(body).Decode(&data))
	require.NotEmpty(t, data.Error)
	require.GreaterOrEqual(t, data.RetryAfterMs, int64(0))

	retryAfterSecs, err := strconv.ParseInt(header.Get("Retry-After"), 10, 64)
	require.NoError(t, err, "Retry-After must be whole seconds")
	require.Equal(t, (data.RetryAfterMs+999)/1000, retryAfterSecs, "Retry-After must be retryAfterMs rounded up")
	return data
}
