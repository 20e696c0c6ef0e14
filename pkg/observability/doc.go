// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown for the
// coursemetrics server.
//
// # Logging
//
// Loggers are logrus loggers emitting JSON:
//
//	logger := observability.NewLogger("info", os.Stdout)
//	ctx = observability.WithRequestID(ctx, reqID)
//	observability.WithContextFields(ctx, logger).Warn("slow snapshot")
//
// WithContextFields adds request_id, user_id and, inside a recording span,
// trace_id and span_id.
//
// # Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveSnapshot("course", elapsed, err)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	observability.RegisterMetricsEndpoint(router, registry)
//
// HTTP metrics are labelled with the mux route template, not the raw path.
// With OTLP enabled, AttachOTel mirrors snapshot and source observations
// into OpenTelemetry instruments.
//
// # Health
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(router, checker)
//
// A failed database makes the service unhealthy (503); a failed Redis only
// degrades it.
//
// # Shutdown
//
//	sm := observability.NewShutdownManager(logger, server, 0)
//	sm.Register("cron", stopCron)
//	sm.Register("database", closeDB)
//	err := sm.Wait(signalCtx)
package observability
