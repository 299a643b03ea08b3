package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/sergeJAVA/contractor-service/pkg/config"
	"github.com/sergeJAVA/contractor-service/pkg/db"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
	"github.com/sergeJAVA/contractor-service/pkg/migrate"
)

func main() {
	// bootstrap logger early (then re-init after config load)
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory on disk (create, validate)")

	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")

	flag.Parse()

	// Commands that do NOT require config or DB
	switch *cmd {
	case "create":
		if *name == "" {
			fmt.Fprintln(os.Stderr, "missing -name for create")
			os.Exit(1)
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create migration: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("created migration:", path)
		return

	case "validate":
		if err := migrate.ValidateEmbedded(); err != nil {
			fmt.Fprintf(os.Stderr, "embedded migration validation failed: %v\n", err)
			os.Exit(1)
		}
		if err := migrate.ValidateDir(*dir); err != nil {
			fmt.Fprintf(os.Stderr, "migration validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
	})

	if cfg.FeatureFlags.UseSQLite {
		fmt.Fprintln(os.Stderr, "goose migrations target postgres; sqlite schemas are created by AutoMigrate")
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	requireResource(ctx, logg, "database", err)

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		_ = dbClient.Close()
		requireResource(ctx, logg, "sql database", err)
	}

	logg.Info(ctx, "migrate ready")

	runErr := runCommand(ctx, sqlDB, *cmd, *version)
	if err := dbClient.Close(); err != nil {
		logg.Error(ctx, "error closing database", err)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, sqlDB *sql.DB, cmd, version string) error {
	switch cmd {
	case "up", "down", "status":
		if err := migrate.Run(ctx, sqlDB, cmd); err != nil {
			return fmt.Errorf("goose %s failed: %w", cmd, err)
		}
	case "version":
		if version == "" {
			return errors.New("missing -version for version command")
		}
		if err := migrate.MigrateToVersion(ctx, sqlDB, version); err != nil {
			return fmt.Errorf("goose version migrate failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown -cmd value: %s", cmd)
	}
	return nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
