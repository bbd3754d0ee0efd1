// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// planner's LLMClient seam.
package anthropic

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/planner"
)

const (
	defaultModel      = "claude-sonnet-4-20250514"
	defaultMaxTokens  = 4096
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// Config configures a Client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
}

// Client implements planner.LLMClient against Claude's Messages API.
type Client struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

var _ planner.LLMClient = (*Client)(nil)

// New constructs a Client. APIKey is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, herr.New(herr.Validation, "anthropic: API key is required")
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

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.Model,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

// Complete issues a non-streaming Messages.New call, retrying transient
// failures with exponential backoff. JSONOnly has no first-class
// counterpart in the Messages API, so it is folded into System instead
// — REQUEST_PLAN parses the response defensively either way.
func (c *Client) Complete(ctx context.Context, req planner.CompletionRequest) (planner.CompletionResponse, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.defaultModel),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	system := req.System
	if req.JSONOnly {
		system += "\n\nRespond with a bare JSON object and no surrounding prose."
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	var msg *anthropic.Message
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		msg, err = c.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		if !isRetryableError(err) {
			return planner.CompletionResponse{}, herr.Wrap(herr.Permanent, err, "anthropic completion")
		}
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return planner.CompletionResponse{}, herr.Wrap(herr.Timeout, ctx.Err(), "anthropic completion cancelled")
		case <-time.After(c.retryDelay * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return planner.CompletionResponse{}, herr.Wrap(herr.Transient, err, "anthropic completion: max retries exceeded")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			text.WriteString(block.Text)
		}
	}
	return planner.CompletionResponse{Content: text.String()}, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate_limit", "429", "too many requests", "500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout", "timeout", "deadline exceeded", "connection reset", "connection refused"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
