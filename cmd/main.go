package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/certwatch/internal/adapters/http/api"
	"github.com/okian/certwatch/internal/adapters/http/site"
	"github.com/okian/certwatch/internal/adapters/http/swagger"
	"github.com/okian/certwatch/internal/adapters/repository"
	app "github.com/okian/certwatch/internal/app"
	"github.com/okian/certwatch/internal/config"
	"github.com/okian/certwatch/pkg/logger"
	"github.com/okian/certwatch/pkg/metrics"
	gormlogger "gorm.io/gorm/logger"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (.env -> defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// The logger is configured from cfg, so it is not available yet.
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithLevel(cfg.LogLevel)); err != nil {
		_, _ = os.Stderr.WriteString("invalid log settings; falling back to text/info: " + err.Error() + "\n")
		if err := logger.Init(); err != nil {
			_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
			os.Exit(1)
		}
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "certwatch stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// run opens storage, starts the service and serves HTTP until ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	store, err := repository.Open(cfg.DatabaseDSN, repository.WithSQLLogLevel(sqlLogLevel(cfg.LogLevel)))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn(ctx, "closing database failed", logger.Error(err))
		}
	}()
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	svc := newService(cfg, store)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go metrics.CollectSystem(ctx, systemMetricsInterval)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newService maps configuration onto service options.
func newService(cfg *config.Config, store app.Store) *app.Service {
	return app.New(store,
		app.WithLogger(logger.Get().Named("service")),
		app.WithWorkerCount(cfg.DetectionWorkers),
		app.WithQueueSize(cfg.JobQueueSize),
		app.WithDedupeSize(cfg.IdempotencyCacheSize),
		app.WithHorizonDays(cfg.DetectionHorizonDays),
		app.WithDetectionInterval(cfg.DetectionInterval()),
		app.WithThresholds(cfg.CriticalDays, cfg.UrgentDays, cfg.UpcomingDays),
		app.WithLegalFloor(cfg.LegalPriorityFloor),
		app.WithHoursPerDay(cfg.HoursPerDay),
		app.WithDefaultTrainingDays(cfg.TrainingDays()),
	)
}

// newHandler registers the docs and business routes.
func newHandler(ctx context.Context, svc *app.Service) http.Handler {
	mux := http.NewServeMux()
	site.Register(ctx, mux)
	swagger.Register(ctx, mux)
	api.NewServer(svc).Register(ctx, mux)
	return mux
}

// sqlLogLevel turns on gorm's SQL log only when debugging.
func sqlLogLevel(level string) gormlogger.LogLevel {
	if level == "debug" {
		return gormlogger.Info
	}
	return gormlogger.Silent
}

// startServiceMetricsUpdater publishes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateServiceMetrics copies queue and worker figures from the service stats.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
	if active, ok := stats["activeWorkers"].(int); ok {
		metrics.UpdateWorkerActiveCount(active)
	}
}
