package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/sergeJAVA/contractor-service/api"
	"github.com/sergeJAVA/contractor-service/api/controllers"
	"github.com/sergeJAVA/contractor-service/api/routes"
	"github.com/sergeJAVA/contractor-service/internal/consumer"
	"github.com/sergeJAVA/contractor-service/pkg/codec"
	"github.com/sergeJAVA/contractor-service/pkg/config"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
	"github.com/sergeJAVA/contractor-service/pkg/metrics"
	"github.com/sergeJAVA/contractor-service/pkg/outbox/idempotency"
	"github.com/sergeJAVA/contractor-service/pkg/rabbitmq"
	"github.com/sergeJAVA/contractor-service/pkg/redis"
)

const serviceName = "contractor-consumer"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	dedup, err := idempotency.NewManager(redisClient, cfg.Consumer.IdempotencyTTL, cfg.Consumer.ProcessingLease)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		_ = redisClient.Close()
		os.Exit(1)
	}

	topology := rabbitmq.TopologyFromConfig(cfg.Rabbit)
	rabbitClient, err := rabbitmq.NewClient(rabbitmq.Options{
		URL:              cfg.Rabbit.URL,
		Topology:         topology,
		ReconnectInitial: cfg.Rabbit.ReconnectInitial,
		ReconnectMax:     cfg.Rabbit.ReconnectMax,
		Logger:           logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create rabbitmq client", err)
		_ = redisClient.Close()
		os.Exit(1)
	}
	closeConnections := func() {
		if err := multierr.Combine(rabbitClient.Close(), redisClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing connections", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"queue":       topology.Queue,
	})

	rabbitClient.Start(ctx)

	worker, err := consumer.New(consumer.Params{
		Config:      cfg.Consumer,
		Queue:       topology.Queue,
		Source:      rabbitClient,
		Idempotency: dedup,
		Decoder:     codec.NewContractor(),
		Handler:     consumer.LogHandler(logg),
		Logger:      logg,
		Metrics:     metrics.NewConsumerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(ctx, "failed to create consumer", err)
		closeConnections()
		os.Exit(1)
	}

	probes := routes.NewProbeRouter(cfg, logg, map[string]controllers.Pinger{
		"rabbitmq": rabbitClient,
		"redis":    redisClient,
	}, prometheus.DefaultGatherer)
	serverErr := make(chan error, 1)
	go func() {
		err := api.Serve(ctx, logg, "probes", ":"+cfg.Consumer.MetricsPort, probes)
		if err != nil {
			stop()
		}
		serverErr <- err
	}()

	logg.Info(ctx, "starting contractor consumer")
	runErr := worker.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	stop()

	if err := multierr.Append(runErr, <-serverErr); err != nil {
		logg.Error(ctx, "contractor consumer stopped unexpectedly", err)
		closeConnections()
		os.Exit(1)
	}
	closeConnections()
	logg.Info(ctx, "contractor consumer shutting down gracefully")
}
