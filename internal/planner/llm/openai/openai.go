// Package openai adapts github.com/sashabaranov/go-openai to the
// planner's LLMClient and Embedder seams.
package openai

import (
	"context"
	"strings"
	"time"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/planner"
	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultChatModel      = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultMaxRetries     = 3
	defaultRetryDelay     = time.Second
)

// Config configures a Client.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	MaxRetries     int
	RetryDelay     time.Duration
}

// Client implements planner.LLMClient and planner.Embedder against the
// OpenAI chat completions and embeddings endpoints.
type Client struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	maxRetries     int
	retryDelay     time.Duration
}

var (
	_ planner.LLMClient = (*Client)(nil)
	_ planner.Embedder  = (*Client)(nil)
)

// New constructs a Client. APIKey is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, herr.New(herr.Validation, "openai: API key is required")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = defaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultEmbeddingModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:         openai.NewClientWithConfig(clientCfg),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
	}, nil
}

// Complete issues a non-streaming chat completion. JSONOnly, when set,
// asks the model to respond with a bare JSON object via response_format;
// REQUEST_PLAN still parses the response defensively either way.
func (c *Client) Complete(ctx context.Context, req planner.CompletionRequest) (planner.CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.JSONOnly {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err = c.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			break
		}
		if !isRetryableError(err) {
			return planner.CompletionResponse{}, herr.Wrap(herr.Permanent, err, "openai completion")
		}
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return planner.CompletionResponse{}, herr.Wrap(herr.Timeout, ctx.Err(), "openai completion cancelled")
		case <-time.After(c.retryDelay * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return planner.CompletionResponse{}, herr.Wrap(herr.Transient, err, "openai completion: max retries exceeded")
	}
	if len(resp.Choices) == 0 {
		return planner.CompletionResponse{}, herr.New(herr.Transient, "openai completion: empty choices")
	}
	return planner.CompletionResponse{Content: resp.Choices[0].Message.Content}, nil
}

// Embed generates a single embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "openai embedding")
	}
	if len(resp.Data) == 0 {
		return nil, herr.New(herr.Transient, "openai embedding: no data returned")
	}
	return resp.Data[0].Embedding, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
