package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/coursemetrics/pkg/analytics"
	"github.com/platinummonkey/coursemetrics/pkg/api"
	"github.com/platinummonkey/coursemetrics/pkg/cache"
	"github.com/platinummonkey/coursemetrics/pkg/config"
	"github.com/platinummonkey/coursemetrics/pkg/observability"
	"github.com/platinummonkey/coursemetrics/pkg/report"
	"github.com/platinummonkey/coursemetrics/pkg/storage"
	"github.com/platinummonkey/coursemetrics/pkg/storage/postgres"
)

// activeWindow is the look-back of the active users gauge
const activeWindow = 30 * 24 * time.Hour

var (
	runOnce = flag.Bool("run-once", false, "Warm the dashboards and export the platform report once, then exit")
	migrate = flag.Bool("migrate", false, "Apply the analytics schema to the primary database before starting")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("coursemetrics exited with error")
	}
}

// app holds the wired components shared by the jobs and servers
type app struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	conns    *postgres.ConnectionManager
	store    *postgres.Store
	redis    *redis.Client
	cache    *cache.Manager
	service  *analytics.Service
	metrics  *observability.Metrics
	exporter *report.Exporter
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics(providers.MeterProvider)
		if err != nil {
			return fmt.Errorf("failed to create OpenTelemetry instruments: %w", err)
		}
		metrics.AttachOTel(otelMetrics)
	}

	a, err := wire(ctx, cfg, logger, registry, metrics)
	if err != nil {
		return err
	}

	if *runOnce {
		defer a.close()
		a.warm(ctx)
		if a.exporter != nil {
			if _, err := a.exporter.ExportPlatform(ctx); err != nil {
				return fmt.Errorf("report export failed: %w", err)
			}
		}
		logger.Info("Run-once completed")
		return observability.ShutdownOTel(context.Background(), providers, logger)
	}

	a.conns.StartHealthCheckRoutine(ctx, 30*time.Second)

	scheduler, err := a.schedule()
	if err != nil {
		a.close()
		return err
	}
	scheduler.Start()

	router := api.NewRouter(api.RouterConfig{
		Dashboards: a.service,
		Cache:      a.cache,
		Metrics:    metrics,
		Logger:     logger,
	})
	apiServer := api.NewServer(net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		otelhttp.NewHandler(router, "coursemetrics.api"))
	apiServer.ReadTimeout = cfg.Server.ReadTimeout
	apiServer.WriteTimeout = cfg.Server.WriteTimeout
	apiServer.IdleTimeout = cfg.Server.IdleTimeout

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(a.conns.Primary(), a.redis))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}
	healthServer := api.NewServer(net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort), healthRouter)

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("health server", healthServer.Shutdown)
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.Register("cache", func(context.Context) error {
		if a.redis == nil {
			return nil
		}
		return a.redis.Close()
	})
	shutdown.Register("database", func(context.Context) error {
		return a.conns.Close()
	})

	serverErrs := make(chan error, 2)
	for name, srv := range map[string]*http.Server{"api": apiServer, "health": healthServer} {
		go func(name string, srv *http.Server) {
			logger.WithFields(logrus.Fields{"server": name, "addr": srv.Addr}).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrs <- fmt.Errorf("%s server: %w", name, err)
			}
		}(name, srv)
	}

	select {
	case err := <-serverErrs:
		logger.WithError(err).Error("HTTP server failed")
		stop()
		if shutdownErr := shutdown.Shutdown(); shutdownErr != nil {
			logger.WithError(shutdownErr).Error("Shutdown completed with errors")
		}
		return err
	case <-ctx.Done():
	}
	return shutdown.Wait(ctx)
}

func wire(ctx context.Context, cfg *config.Config, logger *logrus.Logger, registry *prometheus.Registry, metrics *observability.Metrics) (*app, error) {
	conns, err := postgres.NewConnectionManager(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if *migrate {
		if err := postgres.Migrate(ctx, conns.Primary()); err != nil {
			conns.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		logger.Info("Analytics schema applied")
	}

	a := &app{
		cfg:     cfg,
		log:     logger,
		conns:   conns,
		metrics: metrics,
		store:   postgres.NewStore(conns, postgres.WithMetrics(metrics), postgres.WithLogger(logger)),
	}

	managerOpts := []cache.ManagerOption{
		cache.WithLogger(logger),
		cache.WithSingleFlight(cfg.Cache.SingleFlight),
	}
	if cfg.Storage.RedisURL != "" {
		client, err := storage.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			// The in-memory tier serves alone until the next restart
			logger.WithError(err).Warn("Shared cache tier unavailable")
		} else {
			a.redis = client
			managerOpts = append(managerOpts, cache.WithRemote(cache.NewRedisTier(client, cfg.Cache.RedisPrefix)))
		}
	}

	cacheStore := cache.NewStore(cfg.Cache.Namespaces, cache.WithMetrics(cache.NewMetrics(registry)))
	a.cache = cache.NewManager(cacheStore, managerOpts...)
	a.service = analytics.NewService(a.store, a.cache,
		analytics.WithLogger(logger),
		analytics.WithMetrics(metrics),
	)

	if cfg.Report.Enabled {
		s3Client, err := report.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to create report storage: %w", err)
		}
		a.exporter = report.NewExporter(s3Client, a.service,
			report.WithPrefix(cfg.Report.Prefix),
			report.WithLogger(logger),
		)
	}

	return a, nil
}

type scheduledJob struct {
	name     string
	schedule string
	job      func()
}

func (a *app) schedule() (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	jobs := []scheduledJob{
		{"warm", a.cfg.Jobs.WarmSchedule, func() { a.warm(context.Background()) }},
		{"sweep", a.cfg.Jobs.SweepSchedule, a.sweep},
	}
	if a.exporter != nil {
		jobs = append(jobs, scheduledJob{"report", a.cfg.Jobs.ReportSchedule, a.exportReport})
	}

	for _, j := range jobs {
		if j.schedule == "" {
			a.log.WithField("job", j.name).Info("Job disabled")
			continue
		}
		if _, err := c.AddFunc(j.schedule, observability.SafeJob(a.log, j.name+" job", j.job)); err != nil {
			return nil, fmt.Errorf("failed to schedule %s job: %w", j.name, err)
		}
		a.log.WithFields(logrus.Fields{"job": j.name, "schedule": j.schedule}).Info("Job scheduled")
	}
	return c, nil
}

// warm recomputes the platform dashboard and the configured instructor and
// course dashboards, replacing any unexpired snapshot, then publishes the
// platform gauges
func (a *app) warm(ctx context.Context) {
	start := time.Now()
	log := a.log.WithField("job", "warm")

	if err := a.service.Refresh(ctx, analytics.DashboardPlatform, ""); err != nil {
		log.WithError(err).Error("Failed to warm platform dashboard")
	}
	for _, id := range a.cfg.Jobs.WarmInstructors {
		if err := a.service.Refresh(ctx, analytics.DashboardInstructor, id); err != nil {
			log.WithError(err).WithField("instructor_id", id).Warn("Failed to warm instructor dashboard")
		}
	}
	for _, id := range a.cfg.Jobs.WarmCourses {
		if err := a.service.Refresh(ctx, analytics.DashboardCourse, id); err != nil {
			log.WithError(err).WithField("course_id", id).Warn("Failed to warm course dashboard")
		}
	}

	active, err := a.store.CountActiveUsers(ctx, time.Now().UTC().Add(-activeWindow))
	if err != nil {
		log.WithError(err).Error("Failed to count active users")
		return
	}
	enrollments, err := a.store.CountEnrollments(ctx, analytics.EnrollmentFilter{})
	if err != nil {
		log.WithError(err).Error("Failed to count enrollments")
		return
	}
	a.metrics.RecordPlatformTotals(active, enrollments)

	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Dashboards warmed")
}

// sweep drops expired cache entries and samples pool statistics
func (a *app) sweep() {
	if purged := a.cache.Store().PurgeExpired(); purged > 0 {
		a.log.WithField("purged", purged).Debug("Purged expired cache entries")
	}
	a.metrics.RecordDBStats(a.conns.Primary().Stats())
	if a.redis != nil {
		stats := a.redis.PoolStats()
		a.metrics.RecordRedisPool(stats.TotalConns, stats.IdleConns)
	}
}

func (a *app) exportReport() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := a.exporter.ExportPlatform(ctx); err != nil {
		a.log.WithError(err).Error("Platform report export failed")
	}
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.conns.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close database connections")
	}
}
