package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-queue/internal/config"
	healthHandler "github.com/jwalitptl/clinic-queue/internal/handler/health"
	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/internal/repository/postgres"
	"github.com/jwalitptl/clinic-queue/internal/service/estimator"
	queueService "github.com/jwalitptl/clinic-queue/internal/service/queue"
	"github.com/jwalitptl/clinic-queue/internal/service/sequence"
	settingsService "github.com/jwalitptl/clinic-queue/internal/service/settings"
	internalWorker "github.com/jwalitptl/clinic-queue/internal/worker"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/messaging"
	"github.com/jwalitptl/clinic-queue/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
	"github.com/jwalitptl/clinic-queue/pkg/validator"
	"github.com/jwalitptl/clinic-queue/pkg/worker"
)

func setupHealthCheck(port int, pinger healthHandler.Pinger) *http.Server {
	engine := gin.New()
	engine.Use(middleware.Recovery())
	healthHandler.NewHandler(pinger).RegisterRoutes(&engine.RouterGroup)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("health check server failed")
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize logger
	appLogger := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	log.Logger = *appLogger.Zerolog()

	m := metrics.NewMetrics("clinic_queue", "worker", nil)

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis broker
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Redis broker")
	}
	events := messaging.NewBrokerAdapter(broker, log.Logger)
	defer events.Close()

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	patientRepo := postgres.NewPatientRepository(baseRepo)
	settingsRepo := postgres.NewSettingsRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	serviceLogRepo := postgres.NewServiceLogRepository(baseRepo)

	v := validator.New()
	queueSvc := queueService.NewService(
		patientRepo,
		sequence.NewAllocator(settingsRepo, cfg.Clinic.Code, appLogger, m),
		estimator.NewService(patientRepo, settingsRepo, nil, appLogger),
		v,
		queueService.Config{Location: cfg.Clinic.Location()},
		appLogger,
		m,
	)
	settingsSvc := settingsService.NewService(settingsRepo, v, appLogger, m)

	processor, err := worker.NewOutboxProcessor(
		outboxRepo,
		events,
		worker.OutboxProcessorConfig{
			Channel:       cfg.Redis.Channel,
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval,
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay,
		},
		appLogger.WithFields(map[string]interface{}{"component": "outbox"}),
		m,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid outbox configuration")
	}

	cleanup := internalWorker.NewCleanupWorker(queueSvc, outboxRepo, internalWorker.CleanupConfig{
		Interval:             cfg.Cleanup.Interval,
		RetentionHours:       cfg.Cleanup.RetentionHours,
		OutboxRetentionHours: cfg.Cleanup.OutboxRetentionHours,
	}, appLogger.WithFields(map[string]interface{}{"component": "cleanup"}))

	// Setup health check endpoints
	healthSrv := setupHealthCheck(cfg.Server.WorkerPort, postgres.NewPinger(db))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	run := func(start func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(ctx)
		}()
	}

	run(processor.Start)
	run(cleanup.Start)
	if cfg.RollingAverage.Enabled {
		rolling := internalWorker.NewServiceTimeWorker(
			serviceLogRepo,
			settingsSvc,
			cfg.RollingAverage.Interval,
			cfg.RollingAverage.Window,
			appLogger.WithFields(map[string]interface{}{"component": "service_time"}),
		)
		run(rolling.Start)
	}

	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health check server forced to shutdown")
	}
	log.Info().Msg("worker exited properly")
}
