/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"io"
	"net/http"
	"strings"
)

type roundTripperFunc func(r *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// capturingTransport records the last request and answers with the given status.
type capturingTransport struct {
	status  int
	header  http.Header
	lastReq *http.Request
	calls   int
}

func (ct *capturingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	ct.calls++
	ct.lastReq = r
	header := ct.header
	if header == nil {
		header = http.Header{}
	}
	status := ct.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    r,
	}, nil
}
