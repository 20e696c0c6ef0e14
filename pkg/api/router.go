package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/coursemetrics/pkg/cache"
	"github.com/platinummonkey/coursemetrics/pkg/httputil"
	"github.com/platinummonkey/coursemetrics/pkg/observability"
)

// RouterConfig holds the dependencies of the API router. Cache and Metrics
// are optional.
type RouterConfig struct {
	Dashboards Dashboards
	Cache      *cache.Manager
	Metrics    *observability.Metrics
	Logger     logrus.FieldLogger
}

// NewRouter builds the API router with request IDs, request logging, panic
// recovery and HTTP metrics applied to every route
func NewRouter(cfg RouterConfig) *mux.Router {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := mux.NewRouter()
	r.Use(httputil.RequestIDMiddleware)
	r.Use(httputil.LoggingMiddleware(log))
	r.Use(observability.RecoveryMiddleware(log))
	r.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))

	NewAnalyticsHandlers(cfg.Dashboards, log).RegisterRoutes(r)
	if cfg.Cache != nil {
		NewCacheHandlers(cfg.Cache, log).RegisterRoutes(r)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// NewServer returns an HTTP server for handler with read, write and idle timeouts
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
