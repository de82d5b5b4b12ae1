package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/avalon-clinic/scheduling-engine/internal/api/router"
	"github.com/avalon-clinic/scheduling-engine/internal/appointments"
	appconfig "github.com/avalon-clinic/scheduling-engine/internal/config"
	"github.com/avalon-clinic/scheduling-engine/internal/observability/metrics"
	"github.com/avalon-clinic/scheduling-engine/internal/payments"
	"github.com/avalon-clinic/scheduling-engine/internal/scheduling"
	"github.com/avalon-clinic/scheduling-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting scheduling-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"clinic_timezone", cfg.ClinicTimezone,
	)

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "timezone", cfg.ClinicTimezone, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	schedMetrics := metrics.NewSchedulingMetrics(registry)

	// Scheduling core.
	generator := scheduling.NewGenerator(loc, cfg.MaxGenerationRangeDays)
	store := scheduling.NewStore(pool, generator, loc, logger)
	slotService := scheduling.NewSlotService(store, loc, cfg.SameDayLeadTime, logger).
		WithMetrics(schedMetrics)

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		cache := scheduling.NewSlotCache(redisClient, cfg.SlotCacheTTL, logger)
		store.WithCache(cache)
		slotService.WithCache(cache)
		logger.Info("slot cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.SlotCacheTTL.String())
	}

	// Payment gateway adapter.
	var gateway payments.Gateway
	switch {
	case cfg.GatewayBaseURL != "":
		gateway = payments.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, logger,
			payments.WithTimeout(cfg.GatewayTimeout),
			payments.WithMetrics(schedMetrics),
		)
	case cfg.AllowFakeGateway:
		logger.Warn("using fake payment gateway; never enable this in production")
		gateway = payments.NewFakeGateway(cfg.PublicBaseURL, logger)
	default:
		logger.Error("PAYMENT_GATEWAY_BASE_URL is required unless ALLOW_FAKE_GATEWAY is set")
		os.Exit(1)
	}
	paymentRepo := payments.NewRepository(pool)

	// Booking orchestrator.
	apptRepo := appointments.NewRepository(pool)
	apptService := appointments.NewService(
		apptRepo, store, gateway, paymentRepo, int64(cfg.AppointmentAmount), logger,
	).WithMetrics(schedMetrics)

	reconciler := appointments.NewReconciler(apptService, logger).
		WithInterval(cfg.ReconcileInterval).
		WithThreshold(cfg.ReconcileThreshold).
		WithMetrics(schedMetrics)
	go reconciler.Start(ctx)

	// Handlers and router.
	schedulingHandler := scheduling.NewHandler(store, slotService, logger).WithMetrics(schedMetrics)
	appointmentsHandler := appointments.NewHandler(apptService, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		SchedulingHandler:   schedulingHandler,
		AppointmentsHandler: appointmentsHandler,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerSecond:  cfg.RateLimitPerSecond,
		RateLimitBurst:      cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
