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

	"github.com/joho/godotenv"

	"github.com/deniscovei/fraudchat/internal/api"
	"github.com/deniscovei/fraudchat/internal/auth"
	"github.com/deniscovei/fraudchat/internal/chat"
	"github.com/deniscovei/fraudchat/internal/config"
	"github.com/deniscovei/fraudchat/internal/llm"
	"github.com/deniscovei/fraudchat/internal/observability"
	"github.com/deniscovei/fraudchat/internal/schema"
	"github.com/deniscovei/fraudchat/internal/sqlexec"
	"github.com/deniscovei/fraudchat/internal/sqlguard"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("fraudchat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, err := sqlexec.Open(context.Background(), sqlexec.DBConfig{
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

	executor := sqlexec.NewExecutor(db)
	schemaRepo := schema.NewRepository(db, cfg.Chat.SchemaCacheTTL)
	validator := sqlguard.New(cfg.Chat.MaxStatementLength)

	client, err := llm.NewHTTPClient(llm.HTTPConfig{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		Timeout:        cfg.LLM.Timeout,
		MaxRetries:     cfg.LLM.MaxRetries,
		RetryBaseDelay: cfg.LLM.RetryBaseDelay,
	})
	if err != nil {
		logger.Error("failed to initialize llm client", slog.Any("error", err))
		os.Exit(1)
	}

	orchestrator := chat.NewOrchestrator(
		chat.NewGenerator(client, chat.GeneratorConfig{MaxTokens: cfg.Chat.GenerateMaxTokens}),
		chat.NewExplainer(client, logger, chat.ExplainerConfig{MaxTokens: cfg.Chat.ExplainMaxTokens}),
		validator,
		executor,
		schemaRepo,
		logger,
		chat.OrchestratorConfig{
			RowCap:            cfg.Chat.RowCap,
			QueryTimeout:      cfg.Chat.QueryTimeout,
			RequestTimeout:    cfg.Chat.RequestTimeout,
			ExplainSampleRows: cfg.Chat.ExplainSampleRows,
		},
	)

	deps := api.Dependencies{
		Logger:       logger,
		Readiness:    schemaRepo.HealthCheck,
		Orchestrator: orchestrator,
		Validator:    validator,
		Executor:     executor,
		Schemas:      schemaRepo,
	}
	if cfg.Auth.Required {
		keyValidator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, keyValidator)
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
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
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
