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
	"github.com/sergeJAVA/contractor-service/internal/relay"
	"github.com/sergeJAVA/contractor-service/pkg/codec"
	"github.com/sergeJAVA/contractor-service/pkg/config"
	"github.com/sergeJAVA/contractor-service/pkg/db"
	"github.com/sergeJAVA/contractor-service/pkg/instance"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
	"github.com/sergeJAVA/contractor-service/pkg/metrics"
	"github.com/sergeJAVA/contractor-service/pkg/migrate"
	"github.com/sergeJAVA/contractor-service/pkg/outbox"
	"github.com/sergeJAVA/contractor-service/pkg/rabbitmq"
)

const serviceName = "outbox-relay"

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

	topology := rabbitmq.TopologyFromConfig(cfg.Rabbit)
	rabbitClient, err := rabbitmq.NewClient(rabbitmq.Options{
		URL:              cfg.Rabbit.URL,
		Topology:         topology,
		ContentType:      codec.ContentType,
		MessageType:      codec.ContractorType,
		ReconnectInitial: cfg.Rabbit.ReconnectInitial,
		ReconnectMax:     cfg.Rabbit.ReconnectMax,
		Logger:           logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create rabbitmq client", err)
		_ = dbClient.Close()
		os.Exit(1)
	}
	// os.Exit skips deferred calls, so every exit path below closes explicitly
	closeConnections := func() {
		if err := multierr.Combine(rabbitClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing connections", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	// Keeps retrying in the background when the broker is not up yet.
	rabbitClient.Start(ctx)

	repo := outbox.NewRepository(dbClient.DB(), cfg.Outbox.ClaimTTL)
	service, err := relay.NewService(relay.ServiceParams{
		Config:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		Store:      repo,
		Decoder:    codec.NewContractor(),
		Publisher:  rabbitClient,
		Metrics:    metrics.NewRelayMetrics(prometheus.DefaultRegisterer),
		WorkerID:   instance.GetID(),
		RoutingKey: topology.UpdateRoutingKey(),
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox relay", err)
		closeConnections()
		os.Exit(1)
	}

	admin := routes.NewAdminRouter(cfg, logg, routes.AdminDeps{
		Outbox: repo,
		Checks: map[string]controllers.Pinger{
			"db":       dbClient,
			"rabbitmq": rabbitClient,
		},
		Gatherer: prometheus.DefaultGatherer,
	})
	serverErr := make(chan error, 1)
	go func() {
		err := api.Serve(ctx, logg, "admin", ":"+cfg.Admin.Port, admin)
		if err != nil {
			stop()
		}
		serverErr <- err
	}()

	logg.Info(ctx, "starting outbox relay")
	runErr := service.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	stop()

	if err := multierr.Append(runErr, <-serverErr); err != nil {
		logg.Error(ctx, "outbox relay stopped unexpectedly", err)
		closeConnections()
		os.Exit(1)
	}
	closeConnections()
	logg.Info(ctx, "outbox relay shutting down gracefully")
}
