package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sergeJAVA/contractor-service/api"
	"github.com/sergeJAVA/contractor-service/api/controllers"
	"github.com/sergeJAVA/contractor-service/api/routes"
	"github.com/sergeJAVA/contractor-service/internal/contractors"
	"github.com/sergeJAVA/contractor-service/pkg/codec"
	"github.com/sergeJAVA/contractor-service/pkg/config"
	"github.com/sergeJAVA/contractor-service/pkg/db"
	"github.com/sergeJAVA/contractor-service/pkg/instance"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
	"github.com/sergeJAVA/contractor-service/pkg/migrate"
	"github.com/sergeJAVA/contractor-service/pkg/outbox"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	closeConnections := func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		closeConnections()
		os.Exit(1)
	}

	outboxWriter := outbox.NewService(outbox.NewRepository(dbClient.DB(), cfg.Outbox.ClaimTTL), codec.NewContractor(), logg)
	contractorService, err := contractors.NewService(contractors.ServiceParams{
		DB:        dbClient,
		Repo:      contractors.NewRepository(dbClient.DB()),
		Outbox:    outboxWriter,
		Logger:    logg,
		Validator: validator.New(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create contractor service", err)
		closeConnections()
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.API.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	handler := routes.NewAPIRouter(cfg, logg, routes.APIDeps{
		Contractors: contractorService,
		Checks:      map[string]controllers.Pinger{"db": dbClient},
		Gatherer:    prometheus.DefaultGatherer,
	})
	if err := api.Serve(ctx, logg, "api", addr, handler); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		closeConnections()
		os.Exit(1)
	}
	closeConnections()
	logg.Info(ctx, "api server shut down gracefully")
}
