// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/tkralj/gradivo/internal/api"
	"github.com/tkralj/gradivo/internal/content"
	"github.com/tkralj/gradivo/internal/dbpool"
	"github.com/tkralj/gradivo/internal/docstore"
	"github.com/tkralj/gradivo/internal/gateway"
	"github.com/tkralj/gradivo/internal/importer"
	"github.com/tkralj/gradivo/internal/mcpserver"
	"github.com/tkralj/gradivo/internal/schema"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("records_path", cfg.Databases.RecordsPath),
		slog.String("content_path", cfg.Databases.ContentPath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Open both domain databases.
	pools, err := dbpool.Open(cfg.Databases.RecordsPath, cfg.Databases.ContentPath, cfg.Databases.StatementTimeout.Std())
	if err != nil {
		return fmt.Errorf("init databases: %w", err)
	}
	defer pools.Close()

	// Core components.
	intro := schema.New(pools, cfg.Databases.SchemaCacheTTL.Std())
	gateways := map[dbpool.Domain]*gateway.Gateway{
		dbpool.DomainRecords: gateway.New(pools, dbpool.DomainRecords, intro),
		dbpool.DomainContent: gateway.New(pools, dbpool.DomainContent, intro),
	}
	docs := docstore.New(pools)
	composer := content.New(pools, docs)

	if app.mcpStdio {
		logger.Info("Starting MCP server on stdio")
		return mcpserver.New(gateways, composer).ServeStdio()
	}

	apiRouter := api.NewRouter(gateways, intro, composer, docs)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start the drop-folder importer.
	if cfg.Import.Enabled {
		g.Go(func() error {
			return importer.Watch(gCtx, docs, cfg.Import.WatchDir, logger, nil)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
