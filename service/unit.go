/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"fmt"
	"sync"
)

// Unit is a component of the gateway process with its own lifecycle (HTTP server, background probe, ...).
type Unit interface {
	// Start runs the unit. It may return immediately or block for the unit's lifetime.
	// A failure is written to fatalErr, which must not be used after Start returns.
	Start(fatalErr chan<- error)
	// Stop halts the unit. It may be called even if Start failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}

// CompositeUnit starts units concurrently and stops them in reverse order.
type CompositeUnit struct {
	Units []Unit
}

var _ Unit = (*CompositeUnit)(nil)
var _ MetricsRegisterer = (*CompositeUnit)(nil)

// NewCompositeUnit creates a new CompositeUnit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// Start starts all units and blocks until every Start returns.
// If any unit fails, the rest are stopped non-gracefully and the first failure is reported.
func (cu *CompositeUnit) Start(fatalErr chan<- error) {
	errs := make(chan error, len(cu.Units))
	var wg sync.WaitGroup
	for _, u := range cu.Units {
		wg.Add(1)
		go func(u Unit) {
			defer wg.Done()
			unitErr := make(chan error, 1)
			u.Start(unitErr)
			select {
			case err := <-unitErr:
				errs <- err
				if stopErr := cu.Stop(false); stopErr != nil {
					errs <- stopErr
				}
			default:
			}
		}(u)
	}
	wg.Wait()
	close(errs)

	var all []error
	for err := range errs {
		all = append(all, err)
	}
	if len(all) != 0 {
		fatalErr <- fmt.Errorf("composite unit: %w", errors.Join(all...))
	}
}

// Stop stops units in reverse order and joins their errors.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	var errs []error
	for i := len(cu.Units) - 1; i >= 0; i-- {
		if err := cu.Units[i].Stop(gracefully); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MustRegisterMetrics registers metrics of all units that own them.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of all units that own them.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}
