package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"valutatrade/config"
	httpHandler "valutatrade/internal/adapter/http/handler"
	"valutatrade/internal/app"
	"valutatrade/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml or ./config/config.yaml)")
	specPath := flag.String("openapi", "docs/api/openapi.yaml", "path to the OpenAPI document served at /swagger")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Str("base_currency", cfg.Rates.BaseCurrency).
		Int("port", cfg.Server.Port).
		Msg("Starting ValutaTrade Hub")

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile(*specPath); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	application, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build application")
	}
	defer application.Close()

	application.Start(ctx)

	// HTTP Server with graceful shutdown
	srv := application.Server()

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	stop()

	log.Info().Msg("Server exited")
}
