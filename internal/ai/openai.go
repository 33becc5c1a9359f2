package ai

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/seanblong/docsearch/pkg/models"
)

type OpenAIClient struct {
	config *ClientConfig
	client *openai.Client
	http   *http.Client
}

func NewOpenAIClient(config *ClientConfig) *OpenAIClient {
	// Set default models if not provided
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-3-small"
	}
	if config.AnswerModel == "" {
		config.AnswerModel = "gpt-4o-mini"
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Dim == 0 {
		// Set default dimensions based on the embedding model
		switch config.EmbedModel {
		case "text-embedding-3-large":
			config.Dim = 3072
		default:
			// text-embedding-3-small and text-embedding-ada-002
			config.Dim = 1536
		}
	}

	transport := &http.Transport{}

	// Check for environment variable to skip TLS verification (for corporate proxies, etc.)
	if skipTLS, _ := strconv.ParseBool(os.Getenv("DOCSEARCH_SKIP_TLS_VERIFY")); skipTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	httpClient := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}

	c := &OpenAIClient{config: config, http: httpClient}
	c.client = c.newAPIClient()
	return c
}

func (c *OpenAIClient) newAPIClient() *openai.Client {
	cc := openai.DefaultConfig(c.config.APIKey)
	if c.config.BaseURL != "" {
		cc.BaseURL = strings.TrimRight(c.config.BaseURL, "/")
	}
	hc := c.http
	if strings.HasPrefix(c.config.APIKey, "sk-proj-") && c.config.ProjectID != "" {
		copied := *c.http
		copied.Transport = projectTransport{project: c.config.ProjectID, next: transportOrDefault(c.http.Transport)}
		hc = &copied
	}
	cc.HTTPClient = hc
	return openai.NewClientWithConfig(cc)
}

// projectTransport adds the OpenAI-Project header required by project keys.
type projectTransport struct {
	project string
	next    http.RoundTripper
}

func (t projectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("OpenAI-Project", t.project)
	return t.next.RoundTrip(req)
}

func transportOrDefault(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}

// Embed implements the embedding functionality
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.config.APIKey == "" {
		return nil, unavailable("openai embed", errors.New("PROVIDER_API_KEY unset"))
	}
	if strings.TrimSpace(text) == "" {
		return nil, unavailable("openai embed", errors.New("cannot embed empty text"))
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.config.EmbedModel),
		Input: []string{text},
	}
	if strings.HasPrefix(c.config.EmbedModel, "text-embedding-3") {
		req.Dimensions = c.config.Dim
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, unavailable("openai embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, unavailable("openai embed", errors.New("no embedding"))
	}

	src := resp.Data[0].Embedding
	v := make([]float32, len(src))
	for i := range src {
		v[i] = float32(src[i])
	}
	return v, nil
}

// Answer composes a cited answer from the numbered sources.
func (c *OpenAIClient) Answer(ctx context.Context, query string, sources []models.Citation) (string, error) {
	if c.config.APIKey == "" {
		return "", unavailable("openai answer", errors.New("PROVIDER_API_KEY unset"))
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.AnswerModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(query, sources)},
		},
		Temperature: 0.1,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", unavailable("openai answer", err)
	}
	if len(resp.Choices) == 0 {
		return "", unavailable("openai answer", errors.New("no choices"))
	}

	s := strings.TrimSpace(resp.Choices[0].Message.Content)
	if s == "" {
		return "", unavailable("openai answer", errors.New("empty answer"))
	}
	return s, nil
}

func (c *OpenAIClient) Dim() int {
	return c.config.Dim
}
