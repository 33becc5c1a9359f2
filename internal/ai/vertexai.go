package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/seanblong/docsearch/pkg/models"
	"google.golang.org/genai"
)

type VertexAIClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewVertexAIClient creates a new client for the Google Gemini API.
func NewVertexAIClient(ctx context.Context, config *ClientConfig) (*VertexAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	// Defaults for Gemini API
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.AnswerModel == "" {
		config.AnswerModel = "gemini-2.0-flash"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if strings.TrimSpace(config.ProjectID) != "" {
		cc.Project = config.ProjectID
	}
	if strings.TrimSpace(config.Location) != "" {
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &VertexAIClient{
		config: config,
		client: client,
	}, nil
}

const (
	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

// Embed embeds a document chunk using the Gemini API.
func (c *VertexAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, taskDocument)
}

// EmbedQuery embeds a search query, which Vertex models encode differently
// from the documents they are matched against.
func (c *VertexAIClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, taskQuery)
}

func (c *VertexAIClient) embedConfig(task string) *genai.EmbedContentConfig {
	dim := int32(c.config.Dim)
	return &genai.EmbedContentConfig{
		TaskType:             task,
		OutputDimensionality: &dim,
	}
}

func (c *VertexAIClient) embed(ctx context.Context, text, task string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, unavailable("vertexai embed", errors.New("cannot embed empty text"))
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, genai.Text(text), c.embedConfig(task))
	if err != nil {
		return nil, unavailable("vertexai embed", err)
	}
	if res == nil || len(res.Embeddings) == 0 {
		return nil, unavailable("vertexai embed", errors.New("no embedding returned"))
	}

	return res.Embeddings[0].Values, nil
}

// Answer composes a cited answer using the Gemini API
func (c *VertexAIClient) Answer(ctx context.Context, query string, sources []models.Citation) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	system := genai.Text(SystemPrompt)
	temp := float32(0.1)
	cfg := genai.GenerateContentConfig{
		Temperature:       &temp,
		MaxOutputTokens:   1000,
		SystemInstruction: system[0],
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.AnswerModel, genai.Text(UserPrompt(query, sources)), &cfg)
	if err != nil {
		return "", unavailable("vertexai answer", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", unavailable("vertexai answer", errors.New("no answer returned"))
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return "", unavailable("vertexai answer", errors.New("empty answer"))
	}
	return answer, nil
}

func (c *VertexAIClient) Dim() int {
	return c.config.Dim
}
