package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askdb/askdb/internal/api"
	"github.com/askdb/askdb/internal/api/uistatic"
	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/prompt"
	"github.com/askdb/askdb/internal/query/sqldb"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/voice"
)

func main() {
	cfg, err := config.LoadFromEnv("askdb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	dialect, err := database.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		logger.Error("invalid database dialect", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("opening database",
		slog.String("dialect", string(dialect)),
		slog.String("dsn", observability.MaskDSN(cfg.Database.DSN)),
	)
	db, err := database.Open(context.Background(), database.DBConfig{
		Dialect:         dialect,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	examples, err := prompt.LoadExamples(cfg.Prompt.ExamplesFile)
	if err != nil {
		logger.Error("failed to load prompt examples", slog.Any("error", err))
		os.Exit(1)
	}
	prompts := prompt.NewBuilder(examples)
	schemas := schema.NewCache(schema.NewInspector(db, dialect), cfg.Database.SchemaTimeout, logger)

	completer, err := nl2sql.NewCompleter(context.Background(), cfg.AI)
	if err != nil {
		logger.Error("failed to initialize language model client", slog.Any("error", err))
		os.Exit(1)
	}
	generator, err := nl2sql.NewGenerator(completer, prompts, nl2sql.GeneratorConfig{
		AttemptTimeout: cfg.AI.Timeout,
		RetryDelay:     500 * time.Millisecond,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize sql generator", slog.Any("error", err))
		os.Exit(1)
	}

	transcriber, err := voice.NewTranscriber(context.Background(), cfg.Voice)
	if err != nil {
		logger.Error("failed to initialize voice transcriber", slog.Any("error", err))
		os.Exit(1)
	}

	service, err := pipeline.NewService(pipeline.Dependencies{
		Schemas:   schemas,
		Prompts:   prompts,
		Generator: generator,
		Executor: sqldb.NewEngine(db, dialect, sqldb.Options{
			QueryTimeout:    cfg.Database.QueryTimeout,
			DefaultRowLimit: cfg.Policy.RowLimit,
			Logger:          logger,
		}),
		Policy: pipeline.Policy{
			AllowMutations: cfg.Policy.AllowMutations,
			RowLimit:       cfg.Policy.RowLimit,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to initialize pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	// Warm the schema cache; a failure here is reported per request instead.
	warmCtx, cancelWarm := context.WithTimeout(context.Background(), cfg.Database.SchemaTimeout)
	if description, err := schemas.Get(warmCtx); err != nil {
		logger.Warn("initial schema load failed", slog.Any("error", err))
	} else {
		logger.Info("schema loaded",
			slog.Int("tables", len(description.Tables)),
			slog.Int("columns", description.ColumnCount()),
		)
	}
	cancelWarm()

	deps := api.Dependencies{
		Logger:         logger,
		Pipeline:       service,
		Schemas:        schemas,
		MaxUploadBytes: cfg.Voice.MaxUploadBytes,
		UI:             uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			database.HealthCheck(db),
			api.CheckModelConfig(cfg),
		),
		DependencyTimeout: 2 * time.Second,
	}
	if transcriber != nil {
		deps.Transcriber = transcriber
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		if validator.Len() == 0 {
			logger.Warn("auth is required but no static keys are configured")
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("provider", generator.Provider()),
			slog.String("model", generator.Model()),
			slog.Bool("voice", transcriber != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
