/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/billhaggle/reqguard/log/logtest"
)

type mockUnit struct {
	startErr   error
	stopErr    error
	block      chan struct{}
	started    atomic.Bool
	stopped    atomic.Bool
	gracefully atomic.Bool
	stopOrder  *[]string
	name       string
}

func newMockUnit(name string, order *[]string) *mockUnit {
	return &mockUnit{name: name, block: make(chan struct{}), stopOrder: order}
}

func (u *mockUnit) Start(fatalErr chan<- error) {
	u.started.Store(true)
	if u.startErr != nil {
		fatalErr <- u.startErr
		return
	}
	<-u.block
}

func (u *mockUnit) Stop(gracefully bool) error {
	if u.stopped.Swap(true) {
		return nil
	}
	u.gracefully.Store(gracefully)
	if u.stopOrder != nil {
		*u.stopOrder = append(*u.stopOrder, u.name)
	}
	close(u.block)
	return u.stopErr
}

type mockMetricsUnit struct {
	*mockUnit
	registered atomic.Int32
}

func (u *mockMetricsUnit) MustRegisterMetrics() { u.registered.Inc() }
func (u *mockMetricsUnit) UnregisterMetrics()   { u.registered.Dec() }

func TestService_StopsOnSignal(t *testing.T) {
	unit := &mockMetricsUnit{mockUnit: newMockUnit("server", nil)}
	svc := NewWithOpts(logtest.NewRecorder(), unit, Opts{ShutdownSignals: []os.Signal{syscall.SIGUSR1}})

	done := make(chan error, 1)
	go func() { done <- svc.Start() }()
	require.Eventually(t, unit.started.Load, time.Second, time.Millisecond)
	require.Equal(t, int32(1), unit.registered.Load())

	svc.Signals <- syscall.SIGUSR1
	require.NoError(t, <-done)
	require.True(t, unit.gracefully.Load())
	require.Equal(t, int32(0), unit.registered.Load())
}

func TestService_StopsOnContextCancel(t *testing.T) {
	unit := newMockUnit("server", nil)
	unit.stopErr = errors.New("stop failed")
	svc := NewWithOpts(logtest.NewRecorder(), unit, Opts{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.StartContext(ctx) }()
	require.Eventually(t, unit.started.Load, time.Second, time.Millisecond)
	cancel()
	require.ErrorContains(t, <-done, "stop failed")
}

func TestService_FatalError(t *testing.T) {
	unit := newMockUnit("server", nil)
	unit.startErr = errors.New("address already in use")
	svc := NewWithOpts(logtest.NewRecorder(), unit, Opts{})
	require.ErrorContains(t, svc.Start(), "address already in use")
}

func TestCompositeUnit(t *testing.T) {
	t.Run("stops in reverse order", func(t *testing.T) {
		var order []string
		cu := NewCompositeUnit(newMockUnit("a", &order), newMockUnit("b", &order), newMockUnit("c", &order))
		fatalErr := make(chan error, 1)
		done := make(chan struct{})
		go func() {
			cu.Start(fatalErr)
			close(done)
		}()
		require.Eventually(t, func() bool {
			for _, u := range cu.Units {
				if !u.(*mockUnit).started.Load() {
					return false
				}
			}
			return true
		}, time.Second, time.Millisecond)

		require.NoError(t, cu.Stop(true))
		<-done
		require.Equal(t, []string{"c", "b", "a"}, order)
		require.Len(t, fatalErr, 0)
	})

	t.Run("failure stops other units", func(t *testing.T) {
		failing := newMockUnit("failing", nil)
		failing.startErr = errors.New("boom")
		running := newMockUnit("running", nil)
		cu := NewCompositeUnit(running, failing)

		fatalErr := make(chan error, 1)
		cu.Start(fatalErr)
		require.ErrorContains(t, <-fatalErr, "boom")
		require.True(t, running.stopped.Load())
		require.False(t, running.gracefully.Load())
	})

	t.Run("metrics of nested units", func(t *testing.T) {
		unit := &mockMetricsUnit{mockUnit: newMockUnit("m", nil)}
		cu := NewCompositeUnit(unit, newMockUnit("plain", nil))
		cu.MustRegisterMetrics()
		require.Equal(t, int32(1), unit.registered.Load())
		cu.UnregisterMetrics()
		require.Equal(t, int32(0), unit.registered.Load())
	})
}
