/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpserver provides the HTTP server of the gateway: a chi router with system endpoints
// and an http.Server wrapper that implements service.Unit.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/atomic"

	"github.com/billhaggle/reqguard/log"
	"github.com/billhaggle/reqguard/service"
)

// HTTPServer is a wrapper around http.Server that implements service.Unit.
type HTTPServer struct {
	HTTPServer *http.Server
	Logger     log.FieldLogger
	Config     *Config

	listener net.Listener
	port     atomic.Int32
	done     chan struct{}
	started  atomic.Bool
}

var _ service.Unit = (*HTTPServer)(nil)

// New creates a new HTTPServer serving handler. listener may be nil, then Config.Address is listened.
func New(cfg *Config, logger log.FieldLogger, handler http.Handler, listener net.Listener) *HTTPServer {
	return &HTTPServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			WriteTimeout:      cfg.Timeouts.Write,
			ReadTimeout:       cfg.Timeouts.Read,
			ReadHeaderTimeout: cfg.Timeouts.ReadHeader,
			IdleTimeout:       cfg.Timeouts.Idle,
		},
		Logger:   logger,
		Config:   cfg,
		listener: listener,
		done:     make(chan struct{}),
	}
}

// OnShutdown registers f to be called when a graceful shutdown begins,
// before in-flight requests are waited for.
func (s *HTTPServer) OnShutdown(f func()) {
	s.HTTPServer.RegisterOnShutdown(f)
}

// Start starts the HTTP server in a blocking way.
func (s *HTTPServer) Start(fatalError chan<- error) {
	s.started.Store(true)
	defer close(s.done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.Config.Timeouts.Shutdown),
	)
	logger.Info("starting HTTP server...")

	if s.listener == nil {
		var err error
		if s.listener, err = net.Listen("tcp", s.HTTPServer.Addr); err != nil {
			logger.Error("HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
	}
	if _, portStr, err := net.SplitHostPort(s.listener.Addr().String()); err == nil {
		if port, convErr := strconv.Atoi(portStr); convErr == nil {
			s.port.Store(int32(port))
		}
	}

	if err := s.HTTPServer.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("HTTP server closed")
			return
		}
		logger.Error("HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the HTTP server. A graceful stop waits for in-flight requests up to the shutdown timeout.
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("HTTP server closing error", log.Error(err))
			return err
		}
		s.waitDone()
		return nil
	}

	ctx := context.Background()
	if s.Config.Timeouts.Shutdown > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.Timeouts.Shutdown)
		defer cancel()
	}
	s.Logger.Info("shutting down HTTP server...", log.Duration("timeout", s.Config.Timeouts.Shutdown))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("HTTP server shutting down error", log.Error(err))
		return err
	}
	s.waitDone()
	s.Logger.Info("HTTP server shut down")
	return nil
}

func (s *HTTPServer) waitDone() {
	if s.started.Load() {
		<-s.done
	}
}

// GetPort returns the port the server listens on, 0 until it's started.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}

// URL returns the base URL of the started server.
func (s *HTTPServer) URL() string {
	return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(s.GetPort()))
}
