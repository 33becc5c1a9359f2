package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/seanblong/docsearch/internal/app"
	"github.com/seanblong/docsearch/internal/auth"
	"github.com/seanblong/docsearch/internal/config"
	"github.com/seanblong/docsearch/internal/server"
	"github.com/spf13/pflag"
)

func main() {
	// Create flagset for configuration
	fs := pflag.NewFlagSet("docsearch-api", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	logger.Info().Str("provider", cfg.Provider).Str("backend", cfg.StoreBackend).Str("log_level", cfg.LogLevel).Bool("auth_enabled", cfg.Auth.Enabled).Msg("starting docsearch api")

	authenticator, err := auth.New(auth.Config{
		Enabled:   cfg.Auth.Enabled,
		JwtSecret: cfg.Auth.JwtSecret,
		Issuer:    cfg.Auth.Issuer,
		TokenTTL:  cfg.Auth.TokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure authentication")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open search components")
	}
	defer a.Close()

	srv := &server.Server{
		Search: a.Search,
		Store:  a.Store,
		Auth:   authenticator,
		TopK:   cfg.TopK,
		Logger: logger,
	}
	if err := srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Error().Err(err).Msg("api server stopped")
		a.Close()
		os.Exit(1)
	}
}
