/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqclient

import (
	"context"

	"go.uber.org/atomic"
)

// ConnectivityChecker tells whether the network is known to be unavailable.
// A call fails fast with KindOffline instead of spending its retry budget while it reports false.
type ConnectivityChecker interface {
	IsOnline(ctx context.Context) bool
}

// ConnectivityCheckerFunc is an adapter to allow the use of ordinary functions as ConnectivityChecker.
type ConnectivityCheckerFunc func(ctx context.Context) bool

// IsOnline implements ConnectivityChecker.
func (f ConnectivityCheckerFunc) IsOnline(ctx context.Context) bool {
	return f(ctx)
}

// AlwaysOnline never reports the network as unavailable.
var AlwaysOnline ConnectivityChecker = ConnectivityCheckerFunc(func(context.Context) bool { return true })

// ConnectivityState is a ConnectivityChecker switched by an external observer
// (e.g. the periodic upstream probe of the gateway).
type ConnectivityState struct {
	online atomic.Bool
}

// NewConnectivityState creates a new ConnectivityState with the given initial state.
func NewConnectivityState(online bool) *ConnectivityState {
	s := &ConnectivityState{}
	s.online.Store(online)
	return s
}

// SetOnline updates the state and reports whether it changed.
func (s *ConnectivityState) SetOnline(online bool) bool {
	return s.online.Swap(online) != online
}

// IsOnline implements ConnectivityChecker.
func (s *ConnectivityState) IsOnline(context.Context) bool {
	return s.online.Load()
}
