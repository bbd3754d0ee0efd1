// Package gemini adapts google.golang.org/genai to the planner's
// LLMClient seam.
package gemini

import (
	"context"
	"strings"
	"time"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/planner"
	"google.golang.org/genai"
)

const (
	defaultModel      = "gemini-2.0-flash"
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// Config configures a Client.
type Config struct {
	APIKey     string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
}

// Client implements planner.LLMClient against the Gemini GenerateContent API.
type Client struct {
	client       *genai.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

var _ planner.LLMClient = (*Client)(nil)

// New constructs a Client. APIKey is required.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, herr.New(herr.Validation, "gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, herr.Wrap(herr.Internal, err, "gemini: create client")
	}

	return &Client{
		client:       client,
		defaultModel: cfg.Model,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

// Complete issues a non-streaming GenerateContent call, retrying
// transient failures with linear backoff. JSONOnly has no first-class
// counterpart in this API, so it is folded into the system instruction
// — REQUEST_PLAN parses the response defensively either way.
func (c *Client) Complete(ctx context.Context, req planner.CompletionRequest) (planner.CompletionResponse, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	config := &genai.GenerateContentConfig{}
	system := req.System
	if req.JSONOnly {
		system += "\n\nRespond with a bare JSON object and no surrounding prose."
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	var resp *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err = c.client.Models.GenerateContent(ctx, c.defaultModel, contents, config)
		if err == nil {
			break
		}
		if !isRetryableError(err) {
			return planner.CompletionResponse{}, herr.Wrap(herr.Permanent, err, "gemini completion")
		}
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return planner.CompletionResponse{}, herr.Wrap(herr.Timeout, ctx.Err(), "gemini completion cancelled")
		case <-time.After(c.retryDelay * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return planner.CompletionResponse{}, herr.Wrap(herr.Transient, err, "gemini completion: max retries exceeded")
	}

	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}
	return planner.CompletionResponse{Content: text.String()}, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "429", "too many requests", "resource exhausted", "quota", "500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout", "timeout", "deadline exceeded", "connection reset", "connection refused"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
