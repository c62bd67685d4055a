package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dentalink/consult/internal/api"
	"github.com/dentalink/consult/internal/auth"
	"github.com/dentalink/consult/internal/config"
	"github.com/dentalink/consult/internal/websocket"
)

func main() {
	config.LoadEnvFiles(".env", "../.env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.Environment == "development" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize adapters
	backends, err := newBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	var issuer *auth.Issuer
	if cfg.AuthEnabled {
		issuer, err = auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			return fmt.Errorf("failed to create token issuer: %w", err)
		}
	} else {
		logger.Warn("Authentication disabled")
	}

	hub := websocket.NewHub(backends.controllerFactory(cfg, logger), logger)
	defer hub.Close()

	cleanup := websocket.NewConversationCleanupService(hub, cfg.IdleTTL, cfg.CleanupPeriod, logger)
	cleanup.Start()
	defer cleanup.Stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, hub, issuer, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Server started",
			zap.String("addr", cfg.Addr()),
			zap.String("inference", cfg.InferenceBackend),
			zap.String("speech", cfg.SpeechBackend),
			zap.String("persistence", cfg.PersistenceBackend),
			zap.String("snapshots", cfg.SnapshotBackend))
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Wait for interrupt signal to gracefully shutdown the server
		<-gctx.Done()
		logger.Info("Server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
