package ai

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/seanblong/docsearch/internal/citation"
	"github.com/seanblong/docsearch/pkg/models"
)

// ErrProviderUnavailable marks every failure of an embedding or answer
// generation call, whatever the underlying cause.
var ErrProviderUnavailable = errors.New("provider unavailable")

// Client provides both embedding and answer composition capabilities
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Answer(ctx context.Context, query string, sources []models.Citation) (string, error)
	Dim() int
}

// QueryEmbedder is implemented by clients whose models embed search queries
// differently from documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedQuery embeds a search query with c, using the query embedding when c
// offers one.
func EmbedQuery(ctx context.Context, c Client, text string) ([]float32, error) {
	if qe, ok := c.(QueryEmbedder); ok {
		return qe.EmbedQuery(ctx, text)
	}
	return c.Embed(ctx, text)
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

const defaultTimeout = 30 * time.Second

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey      string
	BaseURL     string
	EmbedModel  string
	AnswerModel string
	Dim         int
	ProjectID   string
	Provider    Provider
	Location    string
	Timeout     time.Duration
}

// ParseProvider maps a configured provider name onto a Provider.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return ProviderOpenAI, nil
	case "vertexai", "google":
		return ProviderVertexAI, nil
	case "stub":
		return ProviderStub, nil
	default:
		return "", errors.New("unsupported provider: " + name)
	}
}

// NewClient creates a new AI client based on configuration
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrProviderUnavailable, err)
}

// SystemPrompt instructs the answer model to ground and cite its answer.
const SystemPrompt = `You are a helpful assistant that answers questions based on provided document excerpts.

IMPORTANT INSTRUCTIONS:
1. Base your answer ONLY on the provided sources
2. Always include citations in your response using [Source X] format
3. If the sources don't contain enough information, say so clearly
4. Be specific and cite exact sources for each claim`

// UserPrompt renders the question together with the numbered sources.
func UserPrompt(query string, sources []models.Citation) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\nAvailable Sources:\n")
	b.WriteString(citation.Context(sources))
	b.WriteString("Please provide a comprehensive answer with proper citations.")
	return b.String()
}

const defaultStubDim = 256

// StubClient is an offline Client. Embeddings are hashed bags of words, so
// identical text always maps to the identical unit vector.
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = defaultStubDim
	}
	return &StubClient{dim: dim}
}

// Embed implements the embedding functionality
func (s *StubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("stub embed", err)
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil, unavailable("stub embed", errors.New("cannot embed empty text"))
	}

	vec := make([]float32, s.dim)
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[int(sum>>1)%s.dim] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// Answer lists the sources it was given, one citation marker per source.
func (s *StubClient) Answer(ctx context.Context, query string, sources []models.Citation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", unavailable("stub answer", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d source(s) for %q:", len(sources), query)
	for _, src := range sources {
		preview := strings.TrimSpace(src.Content)
		if r := []rune(preview); len(r) > 120 {
			preview = string(r[:120]) + "..."
		}
		fmt.Fprintf(&b, "\n- %s [Source %d]", preview, src.SourceNumber)
	}
	return b.String(), nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}
