/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// MockT records failures instead of stopping the test, so helpers can be checked for failing.
type MockT struct {
	Failed bool
	Msg    string
}

func (m *MockT) Errorf(format string, args ...interface{}) {
	m.Failed = true
	m.Msg = fmt.Sprintf(format, args...)
}

func (m *MockT) FailNow() {
	m.Failed = true
}

func newJSONRecorder(code int, body string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	resp.Header().Set("Content-Type", contentTypeAppJSON)
	resp.WriteHeader(code)
	_, _ = resp.WriteString(body)
	return resp
}

func TestRequireErrorInRecorder(t *testing.T) {
	const body = `{"error":{"domain":"Gateway","code":"notFound","message":"Not found.","context":{"id":"abc"}}}`

	errData := RequireErrorInRecorder(t, newJSONRecorder(http.StatusNotFound, body), http.StatusNotFound, "Gateway", "notFound")
	require.Equal(t, "Not found.", errData.Message)
	require.Equal(t, map[string]interface{}{"id": "abc"}, errData.Context)

	tests := []struct {
		name       string
		resp       *httptest.ResponseRecorder
		wantDomain string
		wantCode   string
	}{
		{"wrong status", newJSONRecorder(http.StatusBadRequest, body), "Gateway", "notFound"},
		{"wrong domain", newJSONRecorder(http.StatusNotFound, body), "Other", "notFound"},
		{"wrong code", newJSONRecorder(http.StatusNotFound, body), "Gateway", "internalError"},
		{"not wrapped", newJSONRecorder(http.StatusNotFound, `{"domain":"Gateway","code":"notFound"}`), "Gateway", "notFound"},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			mockT := &MockT{}
			RequireErrorInRecorder(mockT, tt.resp, http.StatusNotFound, tt.wantDomain, tt.wantCode)
			require.True(t, mockT.Failed)
		})
	}
}

func TestRequireJSONInRecorder(t *testing.T) {
	type data struct {
		ID string `json:"id"`
	}

	RequireJSONInRecorder(t, newJSONRecorder(http.StatusOK, `{"id":"42"}`), &data{ID: "42"}, &data{})

	mockT := &MockT{}
	RequireJSONInRecorder(mockT, newJSONRecorder(http.StatusOK, `{"id":"43"}`), &data{ID: "42"}, &data{})
	require.True(t, mockT.Failed)
}

func TestRequireNoErrorInChannel(t *testing.T) {
	RequireNoErrorInChannel(t, make(chan error, 1))

	errs := make(chan error, 1)
	errs <- errors.New("boom")
	mockT := &MockT{}
	RequireNoErrorInChannel(mockT, errs)
	require.True(t, mockT.Failed)
}

func TestRequireSamplesCount(t *testing.T) {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_duration_seconds"})
	hist.Observe(0.1)
	hist.Observe(0.2)
	RequireSamplesCountInHistogram(t, hist, 2)

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total"})
	counter.Add(3)
	RequireSamplesCountInCounter(t, counter, 3)

	mockT := &MockT{}
	RequireSamplesCountInCounter(mockT, counter, 1)
	require.True(t, mockT.Failed)
}

func TestWaitPortAndListeningServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	wantPort := ln.Addr().(*net.TCPAddr).Port
	port, err := WaitPortAndListeningServer("127.0.0.1", func() int { return wantPort }, time.Second)
	require.NoError(t, err)
	require.Equal(t, wantPort, port)

	_, err = WaitPortAndListeningServer("127.0.0.1", func() int { return 0 }, 50*time.Millisecond)
	require.Error(t, err)
}
