/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/billhaggle/reqguard/log"
	"github.com/billhaggle/reqguard/restapi"
)

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	// RootMiddlewares are applied to every route, system endpoints included.
	RootMiddlewares []func(http.Handler) http.Handler
	// APIRoutes are mounted under /api.
	APIRoutes   func(router chi.Router)
	ErrorDomain string
	HealthCheck HealthCheck
	// MetricsHandler serves /metrics. promhttp.Handler() is used when it's nil.
	MetricsHandler http.Handler
}

// NewRouter creates a new chi.Router with /healthz, /metrics and the API routes.
// Unknown routes and methods are answered with errors in the restapi format.
func NewRouter(logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	router.Use(opts.RootMiddlewares...)

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", metricsHandler)
	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(opts.HealthCheck))

	if opts.APIRoutes != nil {
		router.Route("/api", opts.APIRoutes)
	}

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
		restapi.RespondError(rw, http.StatusNotFound, apiErr, logger)
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain,
			restapi.HTTPCodeToErrorCode(http.StatusMethodNotAllowed), "Method not allowed.")
		restapi.RespondError(rw, http.StatusMethodNotAllowed, apiErr, logger)
	})
	return router
}

// GetChiRoutePattern returns the chi route pattern the request matched ("/api/v1/requests/{id}").
func GetChiRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}
