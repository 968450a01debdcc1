/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package gateway assembles the reqguard gateway: an HTTP API that forwards chat completions
// to an upstream LLM service through the resilient request client, limits the rate of inbound
// requests per caller and lets callers list and cancel pending upstream requests.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/billhaggle/reqguard/httpclient"
	"github.com/billhaggle/reqguard/httpserver"
	"github.com/billhaggle/reqguard/httpserver/middleware"
	"github.com/billhaggle/reqguard/log"
	"github.com/billhaggle/reqguard/lrucache"
	"github.com/billhaggle/reqguard/profserver"
	"github.com/billhaggle/reqguard/ratelimit"
	"github.com/billhaggle/reqguard/reqclient"
	"github.com/billhaggle/reqguard/restapi"
	"github.com/billhaggle/reqguard/retry"
	"github.com/billhaggle/reqguard/service"
)

const (
	requestTypeUpstream = "upstream"
	requestTypeProbe    = "probe"
)

// Opts represents options for the Gateway.
type Opts struct {
	// Listener is served instead of listening on server.address.
	Listener net.Listener
	// UpstreamTransport is the innermost transport of upstream requests.
	// A clone of http.DefaultTransport is used when it's nil.
	UpstreamTransport http.RoundTripper
	// Registry receives the gateway's metrics and is served on /metrics. A new one is created when it's nil.
	Registry *prometheus.Registry
	// Jitter of retry delays. Randomized jitter is used when it's nil.
	Jitter retry.JitterSource
	// Sleep waits between attempts of upstream calls. Used in tests.
	Sleep reqclient.SleepFunc
}

type metricsCollector interface {
	MustRegister(reg prometheus.Registerer)
	Unregister(reg prometheus.Registerer)
}

// Gateway is the whole gateway process presented as service.Unit.
type Gateway struct {
	Client       *reqclient.Client
	Connectivity *reqclient.ConnectivityState
	Server       *httpserver.HTTPServer
	Router       chi.Router

	cfg      *Config
	logger   log.FieldLogger
	registry *prometheus.Registry
	metrics  []metricsCollector
	units    *service.CompositeUnit

	runtimeCollectors []prometheus.Collector
}

var _ service.Unit = (*Gateway)(nil)
var _ service.MetricsRegisterer = (*Gateway)(nil)

// New creates a new Gateway. Nothing is started until Start is called.
func New(cfg *Config, logger log.FieldLogger, opts Opts) (*Gateway, error) {
	g := &Gateway{
		cfg:          cfg,
		logger:       logger,
		registry:     opts.Registry,
		Connectivity: reqclient.NewConnectivityState(true),
	}
	if g.registry == nil {
		g.registry = prometheus.NewRegistry()
	}
	ns := cfg.Gateway.MetricsNamespace
	jitter := opts.Jitter
	if jitter == nil {
		jitter = retry.NewJitterSource(time.Now().UnixNano())
	}

	stateMetrics := lrucache.NewPrometheusMetricsWithOpts(lrucache.PrometheusMetricsOpts{
		Namespace: ns, Name: "rate_limit_keys"})
	state, err := ratelimit.NewState(ratelimit.StateOpts{
		MaxKeys: cfg.RateLimit.MaxKeys, MetricsCollector: stateMetrics})
	if err != nil {
		return nil, fmt.Errorf("new rate limit state: %w", err)
	}
	rateLimitMetrics := middleware.NewRateLimitPrometheusMetrics(ns)
	policies, err := g.newRateLimitPolicies(state, rateLimitMetrics)
	if err != nil {
		return nil, err
	}

	transportMetrics := httpclient.NewPrometheusMetricsCollector(ns)
	transport, err := httpclient.NewTransport(cfg.Transport, httpclient.Opts{
		Delegate:          opts.UpstreamTransport,
		RequestType:       requestTypeUpstream,
		LoggerProvider:    g.contextLogger,
		RequestIDProvider: httpclient.DefaultRequestIDProvider,
		MetricsCollector:  transportMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("new upstream transport: %w", err)
	}

	clientMetrics := reqclient.NewPrometheusMetrics(ns)
	if g.Client, err = reqclient.New(cfg.Client, reqclient.Opts{
		Transport:        transport,
		Connectivity:     g.Connectivity,
		Jitter:           jitter,
		Sleep:            opts.Sleep,
		Logger:           logger,
		RequestType:      requestTypeUpstream,
		MetricsCollector: clientMetrics,
	}); err != nil {
		return nil, fmt.Errorf("new upstream client: %w", err)
	}
	g.metrics = []metricsCollector{stateMetrics, rateLimitMetrics, transportMetrics, clientMetrics}
	g.runtimeCollectors = []prometheus.Collector{
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})}

	h := &handlers{
		client:      g.Client,
		settings:    cfg.Gateway,
		maxBodySize: uint64(cfg.Server.MaxBodySize),
		logger:      logger,
	}
	g.Router = httpserver.NewRouter(logger, httpserver.RouterOpts{
		RootMiddlewares: g.rootMiddlewares(),
		APIRoutes: func(router chi.Router) {
			router.Use(middleware.RateLimitByRoute(policies))
			h.routes(router)
		},
		ErrorDomain:    ErrorDomain,
		HealthCheck:    g.healthCheck,
		MetricsHandler: promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}),
	})

	g.Server = httpserver.New(cfg.Server, logger, g.Router, opts.Listener)
	g.Server.OnShutdown(func() {
		if n := g.Client.CancelAll(); n > 0 {
			logger.Info(fmt.Sprintf("cancelled %d pending upstream request(s)", n))
		}
	})

	units := []service.Unit{g.Server}
	if cfg.RateLimit.CleanupInterval > 0 {
		units = append(units, service.NewWorkerUnit(service.WorkerFunc(func(ctx context.Context) error {
			state.RunPeriodicCleanup(ctx, cfg.RateLimit.CleanupInterval)
			return nil
		})))
	}
	if cfg.Gateway.Probe.Enabled && cfg.Client.BaseAddress != "" {
		prober, probeErr := g.newProber(opts.UpstreamTransport, jitter)
		if probeErr != nil {
			return nil, probeErr
		}
		units = append(units, service.NewWorkerUnit(
			service.NewPeriodicWorker(prober, cfg.Gateway.Probe.Interval, logger.With(log.String("worker", "probe")))))
	}
	if cfg.Prof.Enabled {
		units = append(units, profserver.New(cfg.Prof, logger.With(log.String("server", "prof")), nil))
	}
	g.units = service.NewCompositeUnit(units...)
	return g, nil
}

func (g *Gateway) rootMiddlewares() []func(http.Handler) http.Handler {
	serverCfg := g.cfg.Server
	mws := []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.LoggingWithOpts(g.logger, middleware.LoggingOpts{
			RequestStart:         serverCfg.Log.RequestStart,
			ExcludedEndpoints:    serverCfg.Log.ExcludedEndpoints,
			SlowRequestThreshold: serverCfg.Log.SlowRequestThreshold,
		}),
		middleware.Recovery(ErrorDomain),
	}
	if serverCfg.IdentityHeader != "" {
		mws = append(mws, middleware.IdentityFromHeader(serverCfg.IdentityHeader))
	}
	return mws
}

func (g *Gateway) newRateLimitPolicies(
	state *ratelimit.State, metrics middleware.RateLimitMetricsCollector,
) (*middleware.RateLimitPolicies, error) {
	policiesCfg := *g.cfg.RateLimit
	if len(policiesCfg.Routes) == 0 {
		policiesCfg.Routes = DefaultRateLimitRoutes
	}

	var getKey middleware.RateLimitGetKeyFunc = middleware.RateLimitKeyByRemoteAddr
	if len(g.cfg.Server.TrustedProxies) > 0 {
		var err error
		if getKey, err = middleware.RateLimitKeyByForwardedFor(g.cfg.Server.TrustedProxies); err != nil {
			return nil, fmt.Errorf("rate limit key by forwarded address: %w", err)
		}
	}
	if g.cfg.Server.IdentityHeader != "" {
		getKey = middleware.RateLimitKeyByIdentity(getKey)
	}

	policies, err := middleware.NewRateLimitPolicies(&policiesCfg, state, ErrorDomain, middleware.RateLimitOpts{
		GetKey:           getKey,
		MetricsCollector: metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("new rate limit policies: %w", err)
	}
	return policies, nil
}

func (g *Gateway) newProber(delegate http.RoundTripper, jitter retry.JitterSource) (*Prober, error) {
	transportCfg := *g.cfg.Transport
	transportCfg.RateLimits.Enabled = false
	transportCfg.Metrics.Enabled = false
	transport, err := httpclient.NewTransport(&transportCfg, httpclient.Opts{
		Delegate:    delegate,
		RequestType: requestTypeProbe,
	})
	if err != nil {
		return nil, fmt.Errorf("new probe transport: %w", err)
	}
	probeURL := strings.TrimRight(g.cfg.Client.BaseAddress, "/") + "/" + strings.TrimLeft(g.cfg.Gateway.Probe.Path, "/")
	policy := retry.NewExponentialJitterPolicy(g.cfg.Client.Backoff(), g.cfg.Gateway.Probe.MaxRetries, jitter)
	return NewProber(&http.Client{Transport: transport, Timeout: g.cfg.Client.Timeout},
		probeURL, g.Connectivity, policy, g.logger.With(log.String("worker", "probe"))), nil
}

func (g *Gateway) contextLogger(ctx context.Context) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(ctx); logger != nil {
		return logger
	}
	return g.logger
}

func (g *Gateway) healthCheck(context.Context) (httpserver.HealthCheckResult, error) {
	upstream := httpserver.HealthCheckStatusOK
	if !g.Connectivity.IsOnline(context.Background()) {
		upstream = httpserver.HealthCheckStatusFail
	}
	return httpserver.HealthCheckResult{"upstream": upstream}, nil
}

// Start starts the HTTP server and the background workers. It blocks until all of them return.
func (g *Gateway) Start(fatalErr chan<- error) {
	g.units.Start(fatalErr)
}

// Stop stops the gateway. A graceful stop cancels pending upstream requests and waits for in-flight
// inbound requests up to server.timeouts.shutdown.
func (g *Gateway) Stop(gracefully bool) error {
	if !gracefully {
		g.Client.CancelAll()
	}
	return g.units.Stop(gracefully)
}

// MustRegisterMetrics registers all metrics of the gateway in its registry.
func (g *Gateway) MustRegisterMetrics() {
	g.registry.MustRegister(g.runtimeCollectors...)
	restapi.MustInitAndRegisterMetrics(g.cfg.Gateway.MetricsNamespace, g.registry)
	for _, m := range g.metrics {
		m.MustRegister(g.registry)
	}
}

// UnregisterMetrics unregisters all metrics of the gateway from its registry.
func (g *Gateway) UnregisterMetrics() {
	for _, m := range g.metrics {
		m.Unregister(g.registry)
	}
	restapi.UnregisterMetrics(g.registry)
	for _, c := range g.runtimeCollectors {
		g.registry.Unregister(c)
	}
}

// Registry returns the Prometheus registry served on /metrics.
func (g *Gateway) Registry() *prometheus.Registry {
	return g.registry
}
