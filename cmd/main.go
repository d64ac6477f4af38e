// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evreg/signupd/internal/config"
	"github.com/evreg/signupd/internal/database"
	"github.com/evreg/signupd/internal/engine"
	"github.com/evreg/signupd/internal/handler"
	"github.com/evreg/signupd/internal/notify"
	"github.com/evreg/signupd/internal/repository"
	"github.com/evreg/signupd/internal/service"
	"github.com/evreg/signupd/internal/token"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pool, err := database.NewPool(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("connected to postgres", "host", cfg.DB.Host, "db", cfg.DB.Name)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Wire up layers.
	eventRepo := repository.NewEventRepository(pool)
	signupRepo := repository.NewSignupRepository(pool)
	audit := repository.NewAuditRepository(pool, logger)
	tokens := token.New(cfg.SignupSecret, cfg.LegacySalt)

	notifier := notify.NewDispatcher(&notify.LogMailer{Logger: logger}, logger, registry)
	defer notifier.Stop()

	eng := engine.New(pool, eventRepo, signupRepo, notifier, audit, logger, cfg.ConfirmGrace, registry)
	eventSvc := service.NewEventService(eventRepo, signupRepo, eng, audit, logger)
	signupSvc := service.NewSignupService(eventRepo, signupRepo, eng, tokens, audit, logger, cfg.ConfirmGrace)
	api := handler.New(eventSvc, signupSvc, cfg.AdminToken)

	// Periodic purge of expired unconfirmed holds.
	go signupSvc.Run(ctx, cfg.SweepInterval)

	// Build the router.
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger(logger))

	r.Get("/health", handler.HealthCheck)
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	api.Routes(r)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Block until SIGINT, SIGTERM, or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
