package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/sergeJAVA/contractor-service/api"
	"github.com/sergeJAVA/contractor-service/api/controllers"
	"github.com/sergeJAVA/contractor-service/api/routes"
	"github.com/sergeJAVA/contractor-service/internal/cron"
	"github.com/sergeJAVA/contractor-service/pkg/config"
	"github.com/sergeJAVA/contractor-service/pkg/db"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
	"github.com/sergeJAVA/contractor-service/pkg/metrics"
	"github.com/sergeJAVA/contractor-service/pkg/migrate"
	"github.com/sergeJAVA/contractor-service/pkg/outbox"
	"github.com/sergeJAVA/contractor-service/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		_ = dbClient.Close()
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		_ = dbClient.Close()
		os.Exit(1)
	}
	closeConnections := func() {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing connections", err)
		}
	}

	service, err := buildService(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		closeConnections()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	probes := routes.NewProbeRouter(cfg, logg, map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}, prometheus.DefaultGatherer)
	serverErr := make(chan error, 1)
	go func() {
		err := api.Serve(ctx, logg, "probes", ":"+cfg.Cron.MetricsPort, probes)
		if err != nil {
			stop()
		}
		serverErr <- err
	}()

	logg.Info(ctx, "starting cron worker")
	runErr := service.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	stop()

	if err := multierr.Append(runErr, <-serverErr); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		closeConnections()
		os.Exit(1)
	}

	closeConnections()
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	repo := outbox.NewRepository(dbClient.DB(), cfg.Outbox.ClaimTTL)
	jobParams := cron.OutboxJobParams{
		Logger:   logg,
		Metrics:  metrics.NewBacklogMetrics(prometheus.DefaultRegisterer),
		ClaimTTL: cfg.Outbox.ClaimTTL,
	}
	staleClaims, err := cron.NewStaleClaimsJob(repo, jobParams)
	if err != nil {
		return nil, fmt.Errorf("stale claims job: %w", err)
	}
	backlog, err := cron.NewBacklogJob(repo, jobParams)
	if err != nil {
		return nil, fmt.Errorf("backlog job: %w", err)
	}
	registry, err := cron.NewRegistry(staleClaims, backlog)
	if err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
