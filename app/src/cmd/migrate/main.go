package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hemrs/app/src/database"
	"hemrs/app/src/infra"
)

func main() {
	cfg, logger := initEnvironment()

	migrationsDir := flag.String("dir", cfg.MigrationsDir, "directory with SQL migration files (falls back to the embedded set)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checkDatabaseConnection(ctx, cfg, logger)
	runMigrations(ctx, cfg, logger, *migrationsDir)
}

func initEnvironment() (infra.Config, *infra.Logger) {
	logger := infra.NewLogger(os.Stdout, "migrate")
	cfg, err := infra.LoadConfig()
	if err != nil {
		logger.Fatalf(context.Background(), "load config: %v", err)
	}
	return cfg, logger
}

func checkDatabaseConnection(ctx context.Context, cfg infra.Config, logger *infra.Logger) {
	if !database.ShouldCheckDatabase(cfg) {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := database.WaitForDatabase(waitCtx, cfg, logger); err != nil {
		logger.Fatalf(ctx, "database connectivity check failed: %v", err)
	}
}

func runMigrations(ctx context.Context, cfg infra.Config, logger *infra.Logger, migrationsDir string) {
	dsn, err := database.BuildDatabaseDSN(cfg)
	if err != nil {
		logger.Fatalf(ctx, "failed to build database DSN: %v", err)
	}

	db, err := database.Connect(ctx, &database.Config{Driver: cfg.DatabaseDriver, DSN: dsn})
	if err != nil {
		logger.Fatalf(ctx, "connect: %v", err)
	}
	defer db.Close()

	if err := database.ApplyMigrations(ctx, db, database.MigrationsSource(migrationsDir), logger); err != nil {
		logger.Fatalf(ctx, "migrate: %v", err)
	}
	logger.Println(ctx, "migrations applied")
}
