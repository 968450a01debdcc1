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

	"github.com/stretchr/testify/require"
)

// ErrorRespData is the error of a restapi error response ({"error": {...}}).
type ErrorRespData struct {
	Domain  string                 `json:"domain"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context"`
}

type errorEnvelope struct {
	Error *ErrorRespData `json:"error"`
}

// RequireErrorInRecorder asserts that the recorded response is a restapi error with the given status,
// domain and code, and returns the decoded error.
func RequireErrorInRecorder(
	t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string,
) ErrorRespData {
	markHelper(t)
	return requireError(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireErrorInResponse is like RequireErrorInRecorder but for http.Response. The body is not closed.
func RequireErrorInResponse(
	t require.TestingT, resp *http.Response, wantHTTPCode int, wantErrDomain, wantErrCode string,
) ErrorRespData {
	markHelper(t)
	return requireError(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

func requireError(
	t require.TestingT, code int, header http.Header, body io.Reader, wantHTTPCode int, wantErrDomain, wantErrCode string,
) ErrorRespData {
	markHelper(t)
	require.Equal(t, wantHTTPCode, code)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	var envelope errorEnvelope
	require.NoError(t, json.NewDecoder(body).Decode(&envelope))
	require.NotNil(t, envelope.Error, `body must be {"error": {...}}`)
	if envelope.Error == nil {
		return ErrorRespData{}
	}
	require.Equal(t, wantErrDomain, envelope.Error.Domain)
	require.Equal(t, wantErrCode, envelope.Error.Code)
	return *envelope.Error
}

// RequireJSONInRecorder asserts that the recorded response is JSON that decodes into dest equal to want.
// want and dest must be pointers of the same type.
func RequireJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want, dest interface{}) {
	markHelper(t)
	requireJSON(t, resp.Header(), resp.Body, want, dest)
}

// RequireJSONInResponse is like RequireJSONInRecorder but for http.Response.
func RequireJSONInResponse(t require.TestingT, resp *http.Response, want, dest interface{}) {
	markHelper(t)
	requireJSON(t, resp.Header, resp.Body, want, dest)
}

func requireJSON(t require.TestingT, header http.Header, body io.Reader, want, dest interface{}) {
	markHelper(t)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(body).Decode(dest))
	require.Equal(t, want, dest)
}
