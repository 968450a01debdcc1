/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/billhaggle/reqguard/httpserver/middleware"
	"github.com/billhaggle/reqguard/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logger mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper implements http.RoundTripper for logging outbound requests.
type LoggingRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// ReqType is a type of request ("llm", "storage").
	// The request type from the context (see NewContextWithRequestType) takes precedence.
	ReqType string

	// Opts are the options for the logging round tripper.
	Opts LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider is a function that provides a context-specific logger.
	// middleware.GetLoggerFromContext is used by default.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode of logging: none, all, failed. All by default.
	Mode LoggingMode

	// SlowRequestThreshold is a threshold for slow requests.
	// Requests that took longer are logged at warn level.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that log requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, reqType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, reqType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that log requests with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, reqType string, opts LoggingRoundTripperOpts,
) http.RoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	return &LoggingRoundTripper{Delegate: delegate, ReqType: reqType, Opts: opts}
}

func (rt *LoggingRoundTripper) getLogger(ctx context.Context) log.FieldLogger {
	if rt.Opts.LoggerProvider != nil {
		return rt.Opts.LoggerProvider(ctx)
	}
	return middleware.GetLoggerFromContext(ctx)
}

// RoundTrip adds logging capabilities to the HTTP transport.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	logger := rt.getLogger(ctx)
	start := time.Now()

	resp, err := rt.Delegate.RoundTrip(r)
	if logger == nil {
		return resp, err
	}
	elapsed := time.Since(start)

	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest)
	slow := rt.Opts.SlowRequestThreshold > 0 && elapsed >= rt.Opts.SlowRequestThreshold
	if rt.Opts.Mode == LoggingModeFailed && !failed && !slow {
		return resp, err
	}

	reqType := GetRequestTypeFromContext(ctx)
	if reqType == "" {
		reqType = rt.ReqType
	}
	fields := []log.Field{
		log.String("client_type", reqType),
		log.String("method", r.Method),
		log.String("url", r.URL.String()),
		log.DurationMs("duration_ms", elapsed),
	}
	if requestID := r.Header.Get(middleware.HeaderRequestID); requestID != "" {
		fields = append(fields, log.String("request_id", requestID))
	}
	if attempt := GetAttemptFromContext(ctx); attempt > 0 {
		fields = append(fields, log.Int("attempt", attempt))
	}

	msg := fmt.Sprintf("client http request %s %s req type %s ", r.Method, r.URL.String(), reqType)
	if resp != nil {
		fields = append(fields, log.Int("status", resp.StatusCode))
		msg += fmt.Sprintf("status code %d, ", resp.StatusCode)
	}
	msg += fmt.Sprintf("time taken %.3fs", elapsed.Seconds())

	switch {
	case err != nil:
		logger.Error(msg+fmt.Sprintf(", err %+v", err), append(fields, log.Error(err))...)
	case slow:
		logger.Warn(msg, append(fields, log.Bool("slow_request", true))...)
	default:
		logger.Info(msg, fields...)
	}
	return resp, err
}
