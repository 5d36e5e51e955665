package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-queue/internal/config"
	"github.com/jwalitptl/clinic-queue/internal/email"
	adminHandler "github.com/jwalitptl/clinic-queue/internal/handler/admin"
	healthHandler "github.com/jwalitptl/clinic-queue/internal/handler/health"
	queueHandler "github.com/jwalitptl/clinic-queue/internal/handler/queue"
	staffHandler "github.com/jwalitptl/clinic-queue/internal/handler/staff"
	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/internal/realtime"
	"github.com/jwalitptl/clinic-queue/internal/repository/postgres"
	"github.com/jwalitptl/clinic-queue/internal/router"
	"github.com/jwalitptl/clinic-queue/internal/service/admission"
	"github.com/jwalitptl/clinic-queue/internal/service/estimator"
	"github.com/jwalitptl/clinic-queue/internal/service/notification"
	queueService "github.com/jwalitptl/clinic-queue/internal/service/queue"
	"github.com/jwalitptl/clinic-queue/internal/service/sequence"
	settingsService "github.com/jwalitptl/clinic-queue/internal/service/settings"
	"github.com/jwalitptl/clinic-queue/internal/sms"
	"github.com/jwalitptl/clinic-queue/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/messaging"
	"github.com/jwalitptl/clinic-queue/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
	"github.com/jwalitptl/clinic-queue/pkg/validator"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	log.Logger = *appLogger.Zerolog()

	m := metrics.NewMetrics("clinic_queue", "api", nil)

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	patientRepo := postgres.NewPatientRepository(baseRepo)
	settingsRepo := postgres.NewSettingsRepository(baseRepo)

	// Initialize Redis message broker
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	events := messaging.NewBrokerAdapter(broker, log.Logger)
	defer events.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := realtime.NewHub(realtime.DefaultClientBuffer, appLogger, m)
	if err := hub.Run(ctx, events, cfg.Redis.Channel); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe realtime hub")
	}

	// One breaker per channel.
	onStateChange := func(name, from, to string) {
		log.Warn().Str("breaker", name).Str("from", from).Str("to", to).Msg("circuit breaker state changed")
	}
	smsSender := notification.WithBreaker(
		sms.NewLogSender(log.Logger.With().Str("channel", "sms").Logger()),
		circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:          "sms",
			MaxFailures:   5,
			Timeout:       30 * time.Second,
			OnStateChange: onStateChange,
		}),
	)
	emailSender := notification.WithBreaker(
		email.NewSMTPSender(email.Config{
			Host:     cfg.Notification.SMTP.Host,
			Port:     cfg.Notification.SMTP.Port,
			Username: cfg.Notification.SMTP.Username,
			Password: cfg.Notification.SMTP.Password,
			From:     cfg.Notification.SMTP.From,
		}),
		circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:          "email",
			MaxFailures:   5,
			Timeout:       time.Minute,
			OnStateChange: onStateChange,
		}),
	)

	dispatcher := notification.NewDispatcher(
		smsSender,
		emailSender,
		settingsRepo,
		patientRepo,
		notification.Config{
			Threshold:     cfg.Notification.Threshold,
			QueueSize:     cfg.Notification.QueueSize,
			DedupTTL:      cfg.Notification.DedupTTL,
			RatePerSecond: cfg.Notification.RatePerSecond,
			Burst:         cfg.Notification.Burst,
			SendTimeout:   cfg.Notification.SendTimeout,
		},
		appLogger,
		m,
	)
	go dispatcher.Start(ctx)

	var notifier estimator.Notifier
	if cfg.Notification.Enabled {
		notifier = dispatcher
	}

	// Initialize services
	v := validator.New()
	estimatorSvc := estimator.NewService(patientRepo, settingsRepo, notifier, appLogger)
	allocator := sequence.NewAllocator(settingsRepo, cfg.Clinic.Code, appLogger, m)
	queueSvc := queueService.NewService(
		patientRepo,
		allocator,
		estimatorSvc,
		v,
		queueService.Config{Location: cfg.Clinic.Location()},
		appLogger,
		m,
	)
	settingsSvc := settingsService.NewService(settingsRepo, v, appLogger, m)
	policy := admission.NewPolicy(queueSvc, settingsRepo, admission.Config{
		MaxQueueLength: cfg.Clinic.MaxQueueLength,
		EnforceHours:   cfg.Clinic.EnforceHours,
		Location:       cfg.Clinic.Location(),
	})

	// Initialize handlers
	queueH := queueHandler.NewHandler(queueSvc, estimatorSvc, policy, allocator, hub)
	staffH := staffHandler.NewHandler(queueSvc)
	adminH := adminHandler.NewHandler(settingsSvc, allocator, queueSvc, dispatcher)
	healthH := healthHandler.NewHandler(postgres.NewPinger(db))

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer)

	// Setup router
	gin.SetMode(cfg.Server.Mode)
	joinRate := rate.Inf
	if cfg.Server.JoinRate > 0 {
		joinRate = rate.Limit(cfg.Server.JoinRate)
	}
	r := router.NewRouter(authMiddleware, queueH, staffH, adminH, healthH, router.RouterConfig{
		JoinRate:    joinRate,
		JoinBurst:   cfg.Server.JoinBurst,
		MaxBodySize: cfg.Server.MaxBodySize,
		Metrics:     m,
	})
	r.Setup()

	// Create server. WriteTimeout stays zero by default so the event stream
	// is not cut off.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	srv.RegisterOnShutdown(hub.Close)

	// Start server
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting queue api")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	cancel()

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
