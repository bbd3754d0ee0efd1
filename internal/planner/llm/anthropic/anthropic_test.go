package anthropic

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
	if c.defaultModel != defaultModel {
		t.Errorf("expected default model %q, got %q", defaultModel, c.defaultModel)
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
		APIKey:     "test-key",
		Model:      "claude-opus-4",
		MaxRetries: 5,
		RetryDelay: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.defaultModel != "claude-opus-4" {
		t.Errorf("expected model override, got %q", c.defaultModel)
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
		{"rate_limit", errors.New("rate_limit_error: slow down"), true},
		{"429", errors.New("HTTP 429"), true},
		{"too many requests", errors.New("too many requests"), true},
		{"500", errors.New("500 internal server error"), true},
		{"503", errors.New("503 service unavailable"), true},
		{"timeout", errors.New("request timeout"), true},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"invalid request", errors.New("invalid_request_error: bad field"), false},
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
