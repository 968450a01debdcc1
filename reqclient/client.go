/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/billhaggle/reqguard/httpclient"
	"github.com/billhaggle/reqguard/httpserver/middleware"
	"github.com/billhaggle/reqguard/log"
	"github.com/billhaggle/reqguard/retry"
)

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Opts represents options for the Client.
type Opts struct {
	// Transport performs attempts. http.DefaultTransport is used when it's nil.
	// Usually it's the chain built by httpclient.NewTransport.
	Transport http.RoundTripper

	// Registry tracks pending calls. A new one is created when it's nil.
	// Several clients may share one registry so a single CancelAll reaches all of them.
	Registry *Registry

	// Connectivity is consulted before every attempt. AlwaysOnline is used when it's nil.
	Connectivity ConnectivityChecker

	// Jitter is the randomness of backoff delays. retry.ZeroJitter is used when it's nil.
	Jitter retry.JitterSource

	// Sleep waits between attempts. A timer-based wait is used when it's nil.
	Sleep SleepFunc

	// Now is the clock for Retry-After dates. time.Now is used when it's nil.
	Now func() time.Time

	// GenerateID generates ids of calls that don't have one. xid is used when it's nil.
	GenerateID func() string

	// Logger is used when the context doesn't carry one (see middleware.NewContextWithLogger).
	Logger log.FieldLogger

	// RequestType is the default type of calls used in logs and metrics.
	RequestType string

	MetricsCollector MetricsCollector
}

// Request is an outbound call.
type Request struct {
	Method string
	// Path is appended to the base address. An absolute URL is used as is.
	Path string
	// Payload is sent as is if it's []byte, json.RawMessage or string, nothing is sent if it's nil,
	// otherwise it's encoded as JSON.
	Payload interface{}
	Header  http.Header
}

// Response is the successful (2xx) outcome of a call.
type Response struct {
	RequestID  string
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Client is the resilient request client.
// Every call retries transient failures with exponential backoff, may be cancelled by its id
// and never returns an error other than *Error.
type Client struct {
	cfg          Config
	httpClient   *http.Client
	registry     *Registry
	connectivity ConnectivityChecker
	jitter       retry.JitterSource
	sleep        SleepFunc
	now          func() time.Time
	generateID   func() string
	logger       log.FieldLogger
	requestType  string
	metrics      MetricsCollector
	inflight     *inflightGroup
}

// New creates a new Client. The configuration is validated.
func New(cfg *Config, opts Opts) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:          *cfg,
		httpClient:   &http.Client{Transport: opts.Transport},
		registry:     opts.Registry,
		connectivity: opts.Connectivity,
		jitter:       opts.Jitter,
		sleep:        opts.Sleep,
		now:          opts.Now,
		generateID:   opts.GenerateID,
		logger:       opts.Logger,
		requestType:  opts.RequestType,
		metrics:      opts.MetricsCollector,
		inflight:     newInflightGroup(),
	}
	c.cfg.BaseAddress = strings.TrimRight(c.cfg.BaseAddress, "/")
	if c.httpClient.Transport == nil {
		c.httpClient.Transport = http.DefaultTransport
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	if c.connectivity == nil {
		c.connectivity = AlwaysOnline
	}
	if c.jitter == nil {
		c.jitter = retry.ZeroJitter{}
	}
	if c.sleep == nil {
		c.sleep = sleepWithTimer
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.generateID == nil {
		c.generateID = func() string { return xid.New().String() }
	}
	if c.logger == nil {
		c.logger = log.NewDisabledLogger()
	}
	if c.metrics == nil {
		c.metrics = disabledMetrics{}
	}
	return c, nil
}

// Must creates a new Client and panics if any error occurs.
func Must(cfg *Config, opts Opts) *Client {
	c, err := New(cfg, opts)
	if err != nil {
		panic(err)
	}
	return c
}

// Registry returns the registry of pending calls.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Cancel cancels the pending call with the id. It's a no-op when the call is absent or completed.
func (c *Client) Cancel(id string) bool {
	return c.registry.Cancel(id)
}

// CancelAll cancels all pending calls and returns their number.
func (c *Client) CancelAll() int {
	return c.registry.CancelAll()
}

// Pending returns ids of pending calls.
func (c *Client) Pending() []string {
	return c.registry.IDs()
}

// Do executes the call with retries. On success, the response status is 2xx.
// Any failure is returned as *Error.
func (c *Client) Do(ctx context.Context, req Request, opts ...CallOption) (*Response, error) {
	o := c.makeCallOptions(opts)
	if o.dedupeKey != "" {
		return c.doDeduplicated(ctx, req, o)
	}
	return c.do(ctx, req, o)
}

func (c *Client) makeCallOptions(opts []CallOption) callOptions {
	o := callOptions{maxRetries: -1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxRetries < 0 {
		o.maxRetries = c.cfg.MaxRetries
	}
	if o.requestType == "" {
		o.requestType = c.requestType
	}
	return o
}

func (c *Client) callID(o callOptions) string {
	if o.requestID != "" {
		return o.requestID
	}
	return c.generateID()
}

func (c *Client) callLogger(ctx context.Context, id string, o callOptions) log.FieldLogger {
	return c.getLogger(ctx).With(log.String("request_id", id), log.String("client_type", o.requestType))
}

func (c *Client) do(ctx context.Context, req Request, o callOptions) (*Response, error) {
	id := c.callID(o)
	logger := c.callLogger(ctx, id, o)

	body, err := encodePayload(req.Payload)
	if err != nil {
		return nil, c.finish(logger, o, &Error{Kind: KindClient, Message: "encode payload", RequestID: id, Cause: err})
	}

	token, err := c.registry.Register(id, o.replaceStale)
	if err != nil {
		return nil, c.finish(logger, o, &Error{
			Kind: KindDuplicateID, Message: "request id is already pending", RequestID: id, Cause: err})
	}
	defer c.registry.Deregister(id, token)

	return c.execute(ctx, token, id, req, body, o, logger)
}

// execute runs attempts until success, a terminal failure, exhaustion or cancellation via ctx or token.
func (c *Client) execute(
	ctx context.Context, token *CancelToken, id string, req Request, body []byte, o callOptions, logger log.FieldLogger,
) (*Response, error) {
	callCtx, stop := withCancelToken(ctx, token)
	defer stop()

	cancelled := func(attempts int) *Error {
		e := &Error{Kind: KindCancelled, Message: "request cancelled", Attempts: attempts, RequestID: id}
		if !token.IsCancelled() {
			e.Cause = ctx.Err()
		}
		return e
	}

	for attempt := 1; ; attempt++ {
		if token.IsCancelled() || ctx.Err() != nil {
			return nil, c.finish(logger, o, cancelled(attempt-1))
		}
		if !c.connectivity.IsOnline(callCtx) {
			return nil, c.finish(logger, o, &Error{
				Kind: KindOffline, Message: "network is unavailable", Attempts: attempt - 1, RequestID: id})
		}

		c.metrics.IncAttempts(o.requestType)
		resp, attemptErr := c.attempt(callCtx, id, attempt, req, body, o)
		if token.IsCancelled() || ctx.Err() != nil {
			return nil, c.finish(logger, o, cancelled(attempt)) // A late result is discarded.
		}
		if attemptErr == nil {
			resp.Attempts = attempt
			c.metrics.IncCalls(o.requestType, OutcomeSuccess)
			return resp, nil
		}
		attemptErr.Attempts = attempt
		attemptErr.RequestID = id

		if !attemptErr.Kind.Retryable() {
			return nil, c.finish(logger, o, attemptErr)
		}
		if attempt > o.maxRetries {
			return nil, c.finish(logger, o, &Error{
				Kind:       KindRequestFailed,
				Message:    fmt.Sprintf("giving up after %d attempt(s)", attempt),
				Attempts:   attempt,
				RequestID:  id,
				StatusCode: attemptErr.StatusCode,
				Cause:      attemptErr,
			})
		}

		delay := retry.Delay(attempt, c.cfg.Backoff(), c.jitter)
		if attemptErr.RetryAfter > delay {
			delay = attemptErr.RetryAfter
		}
		c.metrics.IncRetries(o.requestType, attemptErr.Kind)
		logger.Warn(fmt.Sprintf("attempt %d failed, retrying in %s", attempt, delay),
			log.Int("attempt", attempt),
			log.String("error_kind", string(attemptErr.Kind)),
			log.DurationMs("delay_ms", delay),
			log.Error(attemptErr))

		if err := c.sleep(callCtx, delay); err != nil {
			return nil, c.finish(logger, o, cancelled(attempt))
		}
	}
}

func (c *Client) finish(logger log.FieldLogger, o callOptions, err *Error) *Error {
	c.metrics.IncCalls(o.requestType, string(err.Kind))
	switch err.Kind {
	case KindCancelled:
		logger.Info("request cancelled", log.Int("attempts", err.Attempts))
	default:
		logger.Error("request failed", log.String("error_kind", string(err.Kind)),
			log.Int("attempts", err.Attempts), log.Error(err))
	}
	return err
}

type attemptResult struct {
	statusCode int
	header     http.Header
	body       []byte
	err        error
	tooLarge   bool
}

// attempt performs a single transport attempt bounded by the configured timeout.
// The caller stops waiting as soon as ctx is done, even if the transport ignores it.
func (c *Client) attempt(
	ctx context.Context, id string, attempt int, req Request, body []byte, o callOptions,
) (*Response, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	attemptCtx = httpclient.NewContextWithRequestID(attemptCtx, id)
	attemptCtx = httpclient.NewContextWithAttempt(attemptCtx, attempt)
	if o.requestType != "" {
		attemptCtx = httpclient.NewContextWithRequestType(attemptCtx, o.requestType)
	}

	httpReq, err := c.newHTTPRequest(attemptCtx, req, body, o)
	if err != nil {
		return nil, &Error{Kind: KindClient, Message: "build request", Cause: err}
	}

	resCh := make(chan attemptResult, 1)
	go func() {
		resCh <- c.roundTrip(httpReq)
	}()

	var res attemptResult
	select {
	case res = <-resCh:
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, &Error{Kind: KindCancelled, Message: "request cancelled", Cause: ctx.Err()}
		}
		return nil, &Error{Kind: KindTransientNetwork,
			Message: fmt.Sprintf("attempt timed out after %s", c.cfg.Timeout), Cause: attemptCtx.Err()}
	}

	if res.err != nil {
		return nil, c.classifyTransportError(ctx, attemptCtx, res.err)
	}
	if res.tooLarge {
		return nil, &Error{Kind: KindValidation, StatusCode: res.statusCode,
			Message: fmt.Sprintf("response body exceeds %s", c.cfg.MaxResponseBodySize)}
	}
	return c.classifyResponse(id, res)
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request, body []byte, o callOptions) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.makeURL(req.Path), bodyReader)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for _, h := range []http.Header{req.Header, o.header} {
		for key, values := range h {
			httpReq.Header.Del(key)
			for _, v := range values {
				httpReq.Header.Add(key, v)
			}
		}
	}
	return httpReq, nil
}

func (c *Client) makeURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") || c.cfg.BaseAddress == "" {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.cfg.BaseAddress + path
}

func (c *Client) roundTrip(httpReq *http.Request) attemptResult {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return attemptResult{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	limit := int64(c.cfg.MaxResponseBodySize)
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return attemptResult{err: fmt.Errorf("read response body: %w", err)}
	}
	res := attemptResult{statusCode: resp.StatusCode, header: resp.Header, body: body}
	if int64(len(body)) > limit {
		res.body = nil
		res.tooLarge = true
	}
	return res
}

func (c *Client) classifyTransportError(ctx, attemptCtx context.Context, err error) *Error {
	if ctx.Err() != nil {
		return &Error{Kind: KindCancelled, Message: "request cancelled", Cause: ctx.Err()}
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTransientNetwork,
			Message: fmt.Sprintf("attempt timed out after %s", c.cfg.Timeout), Cause: err}
	}
	var waitErr *httpclient.RateLimitingWaitError
	if errors.As(err, &waitErr) {
		return &Error{Kind: KindRateLimitExceeded, Message: "client-side rate limit exceeded", Cause: err}
	}
	var authErr *httpclient.AuthBearerRoundTripperError
	if errors.As(err, &authErr) {
		return &Error{Kind: KindClient, Message: "authorize request", Cause: err}
	}
	return &Error{Kind: KindTransientNetwork, Message: "transport failure", Cause: err}
}

func (c *Client) classifyResponse(id string, res attemptResult) (*Response, *Error) {
	status := res.statusCode
	switch {
	case status >= 200 && status < 300:
		return &Response{RequestID: id, StatusCode: status, Header: res.header, Body: res.body}, nil
	case status == http.StatusTooManyRequests:
		retryAfter, _ := parseRetryAfter(res.header, res.body, c.now())
		return nil, &Error{Kind: KindTooManyRequests, StatusCode: status, RetryAfter: retryAfter,
			Message: "upstream responded with 429 Too Many Requests"}
	case status >= 500:
		return nil, &Error{Kind: KindServer, StatusCode: status,
			Message: fmt.Sprintf("upstream responded with %d %s", status, http.StatusText(status))}
	default:
		return nil, &Error{Kind: KindClient, StatusCode: status,
			Message: fmt.Sprintf("upstream responded with %d %s", status, http.StatusText(status))}
	}
}

func (c *Client) getLogger(ctx context.Context) log.FieldLogger {
	if l := middleware.GetLoggerFromContext(ctx); l != nil {
		return l
	}
	return c.logger
}

func encodePayload(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return json.Marshal(p)
	}
}

// withCancelToken returns a context that's done when ctx is done or the token is cancelled.
func withCancelToken(ctx context.Context, token *CancelToken) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-token.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func sleepWithTimer(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
