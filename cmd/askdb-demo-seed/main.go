package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/demo/seed"
	"github.com/askdb/askdb/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("askdb-demo-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	seedCfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo seed config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	dialect, err := database.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		logger.Error("invalid database dialect", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.DBConfig{
		Dialect:      dialect,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		logger.Error("failed to open database",
			slog.String("dsn", observability.MaskDSN(cfg.Database.DSN)),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	logger.Info("seeding demo database",
		slog.String("dialect", string(dialect)),
		slog.String("dsn", observability.MaskDSN(cfg.Database.DSN)),
		slog.Int64("seed", seedCfg.Seed),
		slog.Bool("drop_existing", seedCfg.DropExisting),
	)
	if _, err := seed.Seed(ctx, db, dialect, seedCfg, logger); err != nil {
		logger.Error("demo seed failed", slog.Any("error", err))
		stop()
		_ = db.Close()
		os.Exit(1)
	}
}
