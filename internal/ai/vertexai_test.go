package ai

import (
	"context"
	"testing"
	"time"
)

func TestNewVertexAIClient_NilConfig(t *testing.T) {
	if _, err := NewVertexAIClient(context.Background(), nil); err == nil {
		t.Error("Expected error for nil config")
	}
}

func TestNewVertexAIClient_Defaults(t *testing.T) {
	config := &ClientConfig{APIKey: "test-api-key"}

	c, err := NewVertexAIClient(context.Background(), config)
	if err != nil {
		t.Fatalf("NewVertexAIClient failed: %v", err)
	}
	if config.EmbedModel != "text-embedding-005" {
		t.Errorf("Expected default embed model, got %q", config.EmbedModel)
	}
	if config.AnswerModel != "gemini-2.0-flash" {
		t.Errorf("Expected default answer model, got %q", config.AnswerModel)
	}
	if c.Dim() != 768 {
		t.Errorf("Expected default dim 768, got %d", c.Dim())
	}
	if config.Timeout != defaultTimeout {
		t.Errorf("Expected default timeout, got %v", config.Timeout)
	}
	if config.Location != "" {
		t.Errorf("Expected no location with an API key, got %q", config.Location)
	}
}

func TestVertexAIClient_TaskTypes(t *testing.T) {
	c, err := NewVertexAIClient(context.Background(), &ClientConfig{APIKey: "test-api-key", Dim: 256})
	if err != nil {
		t.Fatalf("NewVertexAIClient failed: %v", err)
	}
	var _ QueryEmbedder = c

	tests := []struct {
		task string
		want string
	}{
		{taskDocument, "RETRIEVAL_DOCUMENT"},
		{taskQuery, "RETRIEVAL_QUERY"},
	}
	for _, tt := range tests {
		cfg := c.embedConfig(tt.task)
		if cfg.TaskType != tt.want {
			t.Errorf("Expected task type %q, got %q", tt.want, cfg.TaskType)
		}
		if cfg.OutputDimensionality == nil || *cfg.OutputDimensionality != 256 {
			t.Errorf("Expected output dimensionality 256, got %v", cfg.OutputDimensionality)
		}
	}
}

func TestNewVertexAIClient_KeepsExplicitValues(t *testing.T) {
	config := &ClientConfig{
		APIKey:      "test-api-key",
		EmbedModel:  "custom-embed",
		AnswerModel: "custom-answer",
		Dim:         256,
		Timeout:     time.Second,
	}
	c, err := NewVertexAIClient(context.Background(), config)
	if err != nil {
		t.Fatalf("NewVertexAIClient failed: %v", err)
	}
	if config.EmbedModel != "custom-embed" || config.AnswerModel != "custom-answer" {
		t.Errorf("Expected explicit models to be preserved, got %q / %q", config.EmbedModel, config.AnswerModel)
	}
	if c.Dim() != 256 {
		t.Errorf("Expected dim 256, got %d", c.Dim())
	}
	if config.Timeout != time.Second {
		t.Errorf("Expected explicit timeout to be preserved, got %v", config.Timeout)
	}
}
