/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqclient

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/billhaggle/reqguard/restapi"
)

// maxRetryAfter is the ceiling of parsed hints so huge values don't overflow time.Duration.
const maxRetryAfter = time.Duration(math.MaxInt64)

// parseRetryAfter returns the wait requested by a throttled response.
// The exact "retryAfterMs" of the JSON body wins over the Retry-After header
// (delay in seconds or an HTTP date).
func parseRetryAfter(header http.Header, body []byte, now time.Time) (time.Duration, bool) {
	if d, ok := parseRetryAfterFromBody(body); ok {
		return d, true
	}
	return parseRetryAfterFromHeader(header.Get(restapi.HeaderRetryAfter), now)
}

func parseRetryAfterFromBody(body []byte) (time.Duration, bool) {
	if len(body) == 0 {
		return 0, false
	}
	var data struct {
		RetryAfterMs *float64 `json:"retryAfterMs"`
	}
	if err := json.Unmarshal(body, &data); err != nil || data.RetryAfterMs == nil || *data.RetryAfterMs < 0 {
		return 0, false
	}
	ns := *data.RetryAfterMs * float64(time.Millisecond)
	if ns >= float64(maxRetryAfter) {
		return maxRetryAfter, true
	}
	return time.Duration(ns), true
}

func parseRetryAfterFromHeader(val string, now time.Time) (time.Duration, bool) {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, false
	}
	secs, err := strconv.ParseInt(val, 10, 64)
	if err == nil || errors.Is(err, strconv.ErrRange) {
		switch {
		case secs < 0:
			return 0, false
		case secs > int64(maxRetryAfter/time.Second):
			return maxRetryAfter, true
		}
		return time.Duration(secs) * time.Second, true
	}
	t, err := http.ParseTime(val)
	if err != nil {
		return 0, false
	}
	if d := t.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}
