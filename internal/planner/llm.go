package planner

import (
	"context"

	"github.com/hearthai/hearth/pkg/models"
)

// ChatMessage is one turn in a completion request's conversation
// window, independent of any one provider's wire format.
type ChatMessage struct {
	Role    string
	Content string
}

// CompletionRequest is a provider-agnostic chat completion call.
type CompletionRequest struct {
	System    string
	Messages  []ChatMessage
	MaxTokens int
	// JSONOnly asks the provider to constrain its response to a bare
	// JSON object where supported; providers that can't enforce this
	// still receive the instruction via System and are expected to
	// comply on a best-effort basis — REQUEST_PLAN parses defensively
	// either way.
	JSONOnly bool
}

// CompletionResponse is a provider's reply.
type CompletionResponse struct {
	Content string
}

// LLMClient is the planner's seam onto a concrete model backend. The
// anthropic/openai/bedrock/gemini adapters under planner/llm each
// implement this against their own SDK.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Embedder turns text into a vector for conversation-context recall.
// Structurally identical to (and satisfied by the same concrete types
// as) the memory engine's own Embedder, kept as a separate interface
// so this package doesn't need to import internal/memory.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ToolLister is the narrow slice of the tool registry the planner
// needs to describe available tools to the model. The planner never
// calls a tool directly — dispatch is the correlated tool_execute /
// tool_executed event exchange in dispatch.go.
type ToolLister interface {
	ListTools(ctx context.Context) ([]models.ToolDescriptor, error)
}
