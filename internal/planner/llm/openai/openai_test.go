package openai

import (
	"errors"
	"testing"
	"time"
)

func TestNewValidatesAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.chatModel != defaultChatModel {
		t.Errorf("expected default chat model %q, got %q", defaultChatModel, c.chatModel)
	}
	if c.embeddingModel != defaultEmbeddingModel {
		t.Errorf("expected default embedding model %q, got %q", defaultEmbeddingModel, c.embeddingModel)
	}
	if c.maxRetries != defaultMaxRetries {
		t.Errorf("expected default max retries %d, got %d", defaultMaxRetries, c.maxRetries)
	}
	if c.retryDelay != defaultRetryDelay {
		t.Errorf("expected default retry delay %v, got %v", defaultRetryDelay, c.retryDelay)
	}
}

func TestNewHonoursOverrides(t *testing.T) {
	c, err := New(Config{
		APIKey:         "test-key",
		ChatModel:      "gpt-4o",
		EmbeddingModel: "text-embedding-3-large",
		MaxRetries:     5,
		RetryDelay:     2 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.chatModel != "gpt-4o" || c.embeddingModel != "text-embedding-3-large" {
		t.Errorf("overrides not applied: %+v", c)
	}
	if c.maxRetries != 5 || c.retryDelay != 2*time.Second {
		t.Errorf("overrides not applied: %+v", c)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		retry bool
	}{
		{"nil error", nil, false},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"429", errors.New("HTTP 429 too many requests"), true},
		{"500", errors.New("500 internal server error"), true},
		{"502", errors.New("502 bad gateway"), true},
		{"503", errors.New("503 service unavailable"), true},
		{"504", errors.New("504 gateway timeout"), true},
		{"timeout", errors.New("request timeout"), true},
		{"deadline exceeded", errors.New("context deadline exceeded"), true},
		{"invalid api key", errors.New("invalid API key"), false},
		{"unknown", errors.New("something went wrong"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.retry {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.retry)
			}
		})
	}
}
