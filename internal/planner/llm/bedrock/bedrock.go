// Package bedrock adapts the AWS Bedrock Converse API to the planner's
// LLMClient seam.
package bedrock

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/planner"
	bedrockdiscovery "github.com/hearthai/hearth/internal/providers/bedrock"
)

const (
	defaultModel      = "anthropic.claude-3-sonnet-20240229-v1:0"
	defaultRegion     = "us-east-1"
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// Config configures a Client.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Model           string
	MaxRetries      int
	RetryDelay      time.Duration
}

// Client implements planner.LLMClient against the Bedrock Converse API.
type Client struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
	region       string
}

var _ planner.LLMClient = (*Client)(nil)

// New constructs a Client, resolving AWS credentials via the explicit
// static pair if given or the default credential chain otherwise.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
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

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, herr.Wrap(herr.Internal, err, "bedrock: load AWS config")
	}

	return &Client{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.Model,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		region:       cfg.Region,
	}, nil
}

// ListModels discovers the foundation models available to this client's
// region, optionally restricted to the given providers (e.g. "anthropic",
// "meta"). Results are cached for an hour by the underlying discovery
// client.
func (c *Client) ListModels(ctx context.Context, providerFilter []string) ([]bedrockdiscovery.ModelDefinition, error) {
	models, err := bedrockdiscovery.DiscoverModels(ctx, &bedrockdiscovery.DiscoveryConfig{
		Region:         c.region,
		ProviderFilter: providerFilter,
	})
	if err != nil {
		return nil, herr.Wrap(herr.Transient, err, "bedrock: discover models")
	}
	return models, nil
}

// Complete issues a non-streaming Converse call, retrying throttling and
// transient AWS errors with linear backoff.
func (c *Client) Complete(ctx context.Context, req planner.CompletionRequest) (planner.CompletionResponse, error) {
	messages := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.defaultModel),
		Messages: messages,
	}
	system := req.System
	if req.JSONOnly {
		system += "\n\nRespond with a bare JSON object and no surrounding prose."
	}
	if system != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if req.MaxTokens > 0 {
		in.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(req.MaxTokens))}
	}

	var out *bedrockruntime.ConverseOutput
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		out, err = c.client.Converse(ctx, in)
		if err == nil {
			break
		}
		if !isRetryableError(err) {
			return planner.CompletionResponse{}, herr.Wrap(herr.Permanent, err, "bedrock converse")
		}
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return planner.CompletionResponse{}, herr.Wrap(herr.Timeout, ctx.Err(), "bedrock converse cancelled")
		case <-time.After(c.retryDelay * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return planner.CompletionResponse{}, herr.Wrap(herr.Transient, err, "bedrock converse: max retries exceeded")
	}

	msgOutput, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return planner.CompletionResponse{}, herr.New(herr.Transient, "bedrock converse: unexpected output shape")
	}

	var text strings.Builder
	for _, block := range msgOutput.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(tb.Value)
		}
	}
	return planner.CompletionResponse{Content: text.String()}, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"ThrottlingException", "TooManyRequestsException", "ServiceUnavailableException"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	lower := strings.ToLower(msg)
	for _, s := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
