/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains assertion helpers shared by the tests of the gateway packages.
package testutil

import (
	"time"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

type tHelper interface {
	Helper()
}

func markHelper(t require.TestingT) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
}

// RequireNoErrorInChannel asserts that a buffered channel of errors is empty or holds nil.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	markHelper(t)
	select {
	case err := <-c:
		require.NoError(t, err, msgAndArgs...)
	default:
	}
}

// WaitPortAndListeningServer waits until getPort returns a non-zero port
// and a TCP connection to host:port succeeds. It returns the port.
func WaitPortAndListeningServer(host string, getPort func() int, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	port, err := waitPort(getPort, deadline)
	if err != nil {
		return 0, err
	}
	return port, waitListening("tcp", joinHostPort(host, port), deadline)
}
