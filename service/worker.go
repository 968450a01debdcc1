/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/billhaggle/reqguard/log"
)

// Worker performs some (usually long-running) work.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run implements Worker.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker runs the underlying worker every interval until ctx is done.
// Errors of single runs are logged and don't stop the loop.
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	logger   log.FieldLogger
}

// NewPeriodicWorker creates a new PeriodicWorker. The first run happens immediately.
func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return &PeriodicWorker{worker: worker, interval: interval, logger: logger}
}

// Run implements Worker.
func (pw *PeriodicWorker) Run(ctx context.Context) error {
	pw.logger.Info(fmt.Sprintf("running periodic worker (interval=%s)...", pw.interval))
	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()
	for {
		if err := pw.worker.Run(ctx); err != nil && ctx.Err() == nil {
			pw.logger.Warn("periodic worker run failed", log.Error(err))
		}
		select {
		case <-ctx.Done():
			pw.logger.Info("periodic worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// WorkerUnit presents Worker as Unit. Stop cancels the context passed to Run.
type WorkerUnit struct {
	worker  Worker
	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ Unit = (*WorkerUnit)(nil)

// NewWorkerUnit creates a new WorkerUnit.
func NewWorkerUnit(worker Worker) *WorkerUnit {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerUnit{worker: worker, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Start runs the worker and blocks until it returns.
func (u *WorkerUnit) Start(fatalErr chan<- error) {
	if u.started.Swap(true) {
		fatalErr <- fmt.Errorf("worker unit is already started")
		return
	}
	defer close(u.done)
	if err := u.worker.Run(u.ctx); err != nil {
		fatalErr <- err
	}
}

// Stop cancels the worker. When gracefully is set, it waits for Run to return.
func (u *WorkerUnit) Stop(gracefully bool) error {
	u.cancel()
	if gracefully && u.started.Load() {
		<-u.done
	}
	return nil
}
