package bedrock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New(context.Background(), Config{})
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
	c, err := New(context.Background(), Config{
		Region:     "eu-west-1",
		Model:      "anthropic.claude-3-haiku-20240307-v1:0",
		MaxRetries: 5,
		RetryDelay: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.defaultModel != "anthropic.claude-3-haiku-20240307-v1:0" {
		t.Errorf("expected model override, got %q", c.defaultModel)
	}
	if c.maxRetries != 5 || c.retryDelay != 2*time.Second {
		t.Errorf("overrides not applied: %+v", c)
	}
}

func TestNewWithExplicitStaticCredentials(t *testing.T) {
	c, err := New(context.Background(), Config{
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secretexample",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.client == nil {
		t.Fatal("expected a constructed bedrockruntime client")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		retry bool
	}{
		{"nil error", nil, false},
		{"throttling exception", errors.New("ThrottlingException: rate exceeded"), true},
		{"too many requests exception", errors.New("TooManyRequestsException"), true},
		{"service unavailable exception", errors.New("ServiceUnavailableException"), true},
		{"rate limit", errors.New("rate limit hit"), true},
		{"429", errors.New("HTTP 429"), true},
		{"500", errors.New("500 internal server error"), true},
		{"timeout", errors.New("request timeout"), true},
		{"validation exception", errors.New("ValidationException: bad input"), false},
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
