package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/analystproxy/analystproxy/internal/analyst"
	"github.com/analystproxy/analystproxy/internal/api"
	"github.com/analystproxy/analystproxy/internal/api/uistatic"
	"github.com/analystproxy/analystproxy/internal/auth"
	"github.com/analystproxy/analystproxy/internal/config"
	"github.com/analystproxy/analystproxy/internal/conversation"
	"github.com/analystproxy/analystproxy/internal/gateway"
	"github.com/analystproxy/analystproxy/internal/observability"
	"github.com/analystproxy/analystproxy/internal/orchestrator"
	"github.com/analystproxy/analystproxy/internal/snapshot"
	"github.com/analystproxy/analystproxy/internal/warehouse"
)

var version = "dev"

type capabilities struct {
	analyzer  analyst.Analyzer
	completer analyst.Completer
	feedback  analyst.FeedbackSender
}

func main() {
	cfg, err := config.LoadFromEnv("analyst-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	conn, err := warehouse.Open(context.Background(), cfg.Warehouse)
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = conn.DB().Close() }()

	remote, err := buildCapabilities(context.Background(), cfg, conn)
	if err != nil {
		logger.Error("failed to initialize analyst backend", slog.Any("error", err))
		os.Exit(1)
	}

	snapshots, err := snapshot.Open(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open snapshot backend", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = snapshots.Close() }()

	store := conversation.NewMemoryStore()
	if snapshots.Enabled() {
		restoreCtx, cancel := context.WithTimeout(context.Background(), cfg.Snapshot.Timeout)
		restored, err := store.LoadFrom(restoreCtx, snapshots.Snapshotter)
		cancel()
		if err != nil {
			logger.Error("failed to restore conversations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("restored conversations", slog.Int("count", restored))
	}

	executor := warehouse.NewExecutor(conn, cfg.Warehouse.RowLimit)
	answerer := orchestrator.New(remote.analyzer, remote.completer, executor, logger, orchestrator.Config{
		ServiceTopic:    cfg.Analyst.ServiceTopic,
		DataDescription: cfg.Analyst.DataDescription,
		Temperature:     cfg.Analyst.Temperature,
		MaxTokens:       cfg.Analyst.MaxTokens,
	})

	deps := api.Dependencies{
		Logger:        logger,
		Version:       version,
		Conversations: store,
		Answerer:      answerer,
		Feedback:      remote.feedback,
		Executor:      executor,
		UI:            uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			conn.DB().PingContext,
			snapshots.Check,
		),
		DependencyTimeout: 2 * time.Second,
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
			slog.String("version", version),
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
	exitCode := 0
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		exitCode = 1
	}

	if snapshots.Enabled() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.Snapshot.Timeout)
		saved, err := store.SaveTo(flushCtx, snapshots.Snapshotter)
		flushCancel()
		if err != nil {
			logger.Error("failed to flush conversations", slog.Any("error", err))
			exitCode = 1
		} else {
			logger.Info("flushed conversations", slog.Int("count", saved))
		}
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// buildCapabilities selects the stub or remote analysis backend. The stub
// backend seeds demo data into an embedded duckdb warehouse.
func buildCapabilities(ctx context.Context, cfg config.Config, conn warehouse.Connection) (capabilities, error) {
	switch cfg.Analyst.Backend {
	case config.BackendStub:
		if cfg.Warehouse.Driver == "duckdb" {
			if err := warehouse.SeedDemo(ctx, conn.DB()); err != nil {
				return capabilities{}, fmt.Errorf("seed demo data: %w", err)
			}
		}
		stub := analyst.Stub{}
		return capabilities{analyzer: stub, completer: stub, feedback: stub}, nil
	case config.BackendRemote:
		gw, err := gateway.New(conn, gateway.ProxyProbe(cfg.Analyst.EmbeddedProxyURL))
		if err != nil {
			return capabilities{}, err
		}
		client, err := analyst.NewClient(analyst.ClientConfig{
			Gateway:  gw,
			ProxyURL: cfg.Analyst.EmbeddedProxyURL,
			Model:    cfg.Analyst.CompletionModel,
			Timeout:  cfg.Analyst.Timeout,
		})
		if err != nil {
			return capabilities{}, err
		}
		return capabilities{analyzer: client, completer: client, feedback: client}, nil
	default:
		return capabilities{}, fmt.Errorf("%w: unknown analyst backend %q", gateway.ErrConfiguration, cfg.Analyst.Backend)
	}
}
