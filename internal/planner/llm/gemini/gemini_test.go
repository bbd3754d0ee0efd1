package gemini

import (
	"context"
	"errors"
	"testing"
)

func TestNewValidatesAPIKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing API key")
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
		{"resource exhausted", errors.New("resource exhausted"), true},
		{"quota", errors.New("quota exceeded"), true},
		{"500", errors.New("500 internal server error"), true},
		{"503", errors.New("503 service unavailable"), true},
		{"timeout", errors.New("request timeout"), true},
		{"deadline exceeded", errors.New("context deadline exceeded"), true},
		{"connection refused", errors.New("connection refused"), true},
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
