// Command query is an interactive prompt that answers questions from the
// indexed documents.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/seanblong/docsearch/internal/app"
	"github.com/seanblong/docsearch/internal/config"
	"github.com/seanblong/docsearch/internal/search"
	"github.com/seanblong/docsearch/pkg/models"
	"github.com/spf13/pflag"
)

const (
	queryTimeout = 60 * time.Second

	embeddingUnavailableText = "The embedding provider is unavailable, so the question could not be searched. Please try again."
	queryFailedText          = "The question could not be answered. Please try again."
)

type answerer interface {
	Query(ctx context.Context, q string, k int) (models.Answer, error)
}

func main() {
	fs := pflag.NewFlagSet("docsearch-query", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open search components")
	}
	defer a.Close()

	repl(ctx, os.Stdin, os.Stdout, a.Search, cfg.TopK)
}

// repl answers one question per input line until quit or end of input.
func repl(ctx context.Context, in io.Reader, out io.Writer, svc answerer, k int) {
	fmt.Fprintln(out, "Ask a question about your documents (quit to exit).")
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !sc.Scan() {
			return
		}
		q := strings.TrimSpace(sc.Text())
		switch strings.ToLower(q) {
		case "":
			continue
		case "quit", "exit", "q":
			return
		}

		qctx, cancel := context.WithTimeout(ctx, queryTimeout)
		answer, err := svc.Query(qctx, q, k)
		cancel()
		fmt.Fprintln(out)
		switch {
		case errors.Is(err, search.ErrEmbeddingUnavailable):
			zlog.Error().Err(err).Msg("query failed")
			fmt.Fprintln(out, embeddingUnavailableText)
		case err != nil:
			zlog.Error().Err(err).Msg("query failed")
			fmt.Fprintln(out, queryFailedText)
		default:
			fmt.Fprintln(out, answer.Text)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
