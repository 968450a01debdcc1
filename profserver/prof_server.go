/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides a pprof HTTP server that runs next to the gateway as a separate service.Unit.
package profserver

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/billhaggle/reqguard/httpserver/middleware"
	"github.com/billhaggle/reqguard/log"
	"github.com/billhaggle/reqguard/service"
)

// ProfServer serves pprof endpoints under /debug/pprof/.
type ProfServer struct {
	HTTPServer *http.Server
	Logger     log.FieldLogger

	listener net.Listener
	ready    chan struct{}
	done     chan struct{}
	started  atomic.Bool
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new ProfServer. listener may be nil, then cfg.Address is listened.
func New(cfg *Config, logger log.FieldLogger, listener net.Listener) *ProfServer {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{RequestStart: true}),
	)
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		Logger:   logger,
		listener: listener,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start serves profiling requests in a blocking way.
func (s *ProfServer) Start(fatalError chan<- error) {
	s.started.Store(true)
	defer close(s.done)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))
	logger.Info("starting profiling HTTP server...")

	if s.listener == nil {
		var err error
		if s.listener, err = net.Listen("tcp", s.HTTPServer.Addr); err != nil {
			logger.Error("profiling HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
	}
	close(s.ready)

	if err := s.HTTPServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
	logger.Info("profiling HTTP server closed")
}

// Addr waits until the server listens and returns its address.
func (s *ProfServer) Addr() net.Addr {
	<-s.ready
	return s.listener.Addr()
}

// Stop closes the server. Profiling requests are never waited for.
func (s *ProfServer) Stop(bool) error {
	s.Logger.Info("closing profiling HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("profiling HTTP server closing error", log.Error(err))
		return err
	}
	if s.started.Load() {
		<-s.done
	}
	return nil
}
