// Package search answers queries by embedding them, ranking the corpus with
// a pluggable Strategy and composing a cited answer from the top results.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/docsearch/internal/ai"
	"github.com/seanblong/docsearch/internal/citation"
	"github.com/seanblong/docsearch/pkg/models"
)

var (
	// ErrEmbeddingUnavailable means the query could not be vectorized. It is
	// never reported as an empty result.
	ErrEmbeddingUnavailable = fmt.Errorf("embedding unavailable: %w", ai.ErrProviderUnavailable)

	ErrEmptyQuery = errors.New("query is empty")
)

const (
	NoResultsAnswer = "I couldn't find any relevant information in the documents to answer your question."
	ApologyAnswer   = "I encountered an error while generating the answer. Please try again."
)

type Service struct {
	Client   ai.Client
	Strategy Strategy
}

// NewService creates a new search service with the provided AI client and strategy
func NewService(client ai.Client, strategy Strategy) *Service {
	return &Service{
		Client:   client,
		Strategy: strategy,
	}
}

// Search returns at most k chunks ranked by similarity to q, best first.
func (s *Service) Search(ctx context.Context, q string, k int) ([]models.RankedResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return []models.RankedResult{}, nil
	}

	vec, err := ai.EmbedQuery(ctx, s.Client, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	res, err := s.Strategy.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		log.Info().Str("strategy", s.Strategy.Name()).Str("query", q).Msg("no chunks to rank, corpus is empty")
		return []models.RankedResult{}, nil
	}
	for i := range res {
		res[i].Rank = i + 1
	}
	return res, nil
}

// Query retrieves the top k chunks for q and asks the answer model for a
// cited answer. Only query and embedding failures are returned; a failed
// store read yields the no-results answer and a failed composition yields
// the apology answer with the citations still attached.
func (s *Service) Query(ctx context.Context, q string, k int) (models.Answer, error) {
	ans := models.Answer{
		Query:     strings.TrimSpace(q),
		Citations: []models.Citation{},
		Strategy:  s.Strategy.Name(),
	}

	res, err := s.Search(ctx, q, k)
	if err != nil {
		if errors.Is(err, ErrEmptyQuery) || errors.Is(err, ErrEmbeddingUnavailable) {
			return ans, err
		}
		log.Error().Err(err).Str("query", ans.Query).Msg("retrieval failed")
		res = nil
	}
	if len(res) == 0 {
		ans.Text = NoResultsAnswer
		return ans, nil
	}

	ans.Citations = citation.Assemble(res)
	text, err := s.Client.Answer(ctx, ans.Query, ans.Citations)
	if err != nil {
		log.Error().Err(err).Str("query", ans.Query).Int("sources", len(ans.Citations)).Msg("answer generation failed")
		ans.Text = ApologyAnswer
		return ans, nil
	}
	ans.Text = text + citation.Footer(ans.Citations)
	return ans, nil
}
