package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/seanblong/docsearch/internal/app"
	"github.com/seanblong/docsearch/internal/config"
	"github.com/seanblong/docsearch/internal/indexer"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("docsearch-indexer", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.DocsDir == "" {
		logger.Fatal().Msg("docs directory is required (--docs-dir or DOCSEARCH_DOCS_DIR)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open search components")
	}
	defer a.Close()

	ix := indexer.New(a.Store, a.Index, a.Client, indexer.Options{
		Root:     cfg.DocsDir,
		Workers:  cfg.Workers,
		EmbedRPS: cfg.EmbedRPS,
	})

	if err := ix.EnsureIndex(ctx, cfg.ForceReindex); err != nil {
		logger.Error().Err(err).Msg("failed to prepare index")
		a.Close()
		os.Exit(1)
	}

	report, err := ix.Run(ctx)
	logger.Info().
		Str("run_id", report.RunID).
		Int("documents", report.Documents).
		Int("chunks", report.Chunks).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("reused", report.Reused).
		Dur("duration", report.Duration).
		Msg("ingestion report")
	if err != nil {
		logger.Error().Err(err).Msg("ingestion aborted")
		a.Close()
		os.Exit(1)
	}
}
