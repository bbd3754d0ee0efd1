// Package planner runs the per-message deterministic state machine:
// persist the inbound message, build context from recent history and
// semantic memory recall, request a structured plan from the model,
// act on it (a final reply or a correlated tool call), and finish with
// best-effort, non-blocking memory extraction and compaction checks.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hearthai/hearth/internal/eventbus"
	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/memory"
	"github.com/hearthai/hearth/internal/messagestore"
	"github.com/hearthai/hearth/internal/observability"
	"github.com/hearthai/hearth/pkg/models"
)

const (
	defaultHistoryWindow = 10
	defaultMemoryLimit   = 10
	defaultToolTimeout   = 30 * time.Second
	defaultMaxTokens     = 1024

	// minExtractableLength is the §4.6 "skip short messages (<10 chars)"
	// threshold for best-effort memory extraction.
	minExtractableLength = 10

	// defaultCompactionThreshold is the message-count trigger at which
	// MAYBE_COMPACT attempts a summary of the conversation's older
	// messages. It is deliberately generous: compaction is a
	// best-effort background concern, not a hard budget enforcement.
	defaultCompactionThreshold = 40
)

// recallKinds are the Memory kinds BUILD_CONTEXT recalls, per §4.6.
var recallKinds = []models.MemoryKind{models.MemoryKindFact, models.MemoryKindPreference, models.MemoryKindSummary}

// fillerPatterns are inbound messages too low-signal to extract
// memories from even when they clear the length floor.
var fillerPatterns = []string{"ok", "okay", "thanks", "thank you", "yes", "no", "sure", "lol", "haha", "got it", "cool"}

// Config configures a Planner's behavior beyond its required
// collaborators, all optional with sane defaults.
type Config struct {
	HistoryWindow       int
	MemoryRecallLimit   int
	ToolTimeout         time.Duration
	MaxTokens           int
	CompactionThreshold int
	SystemPrompt        string
}

// Planner owns one conversation's worth of processing at a time; a
// single Planner value is safe to reuse across conversations and
// concurrent calls to ProcessMessage.
type Planner struct {
	messages messagestore.Store
	memories *memory.Engine
	llm      LLMClient
	embedder Embedder
	tools    ToolLister
	bus      *eventbus.Bus
	dispatch *toolDispatcher
	log      *observability.Logger

	cfg Config
}

// New constructs a Planner. tools may be nil if no tool set is wired
// yet; the plan contract then degrades to final-only responses, since
// the model is told no tools are available.
func New(messages messagestore.Store, memories *memory.Engine, llm LLMClient, embedder Embedder, tools ToolLister, bus *eventbus.Bus, log *observability.Logger, cfg Config) *Planner {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.MemoryRecallLimit <= 0 {
		cfg.MemoryRecallLimit = defaultMemoryLimit
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = defaultToolTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.CompactionThreshold <= 0 {
		cfg.CompactionThreshold = defaultCompactionThreshold
	}
	return &Planner{
		messages: messages,
		memories: memories,
		llm:      llm,
		embedder: embedder,
		tools:    tools,
		bus:      bus,
		dispatch: newToolDispatcher(bus, cfg.ToolTimeout),
		log:      log,
		cfg:      cfg,
	}
}

// ProcessMessage runs one full turn of the state machine for an
// inbound user message and returns the outcome. EXTRACT_MEMORIES and
// MAYBE_COMPACT run in background goroutines and never affect the
// returned result or error.
func (p *Planner) ProcessMessage(ctx context.Context, convID, userID, content string, source models.SourceDescriptor) (*models.TurnResult, error) {
	if err := p.ensureConversation(ctx, convID, userID); err != nil {
		return nil, err
	}

	userMsg := &models.Message{
		ID:             models.NewID(models.KindMessage),
		ConversationID: convID,
		UserID:         userID,
		Role:           models.RoleUser,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := p.messages.Save(ctx, userMsg); err != nil {
		return nil, herr.Wrap(herr.Transient, err, "persist inbound message")
	}

	promptCtx, history, err := p.buildContext(ctx, convID, userID)
	if err != nil && p.log != nil {
		p.log.Error(ctx, "build context failed, continuing with empty memory context", "error", err)
	}

	tctx := models.ToolContext{UserID: userID, ConversationID: convID, Source: source}
	result := p.runTurn(ctx, promptCtx, history, tctx)

	assistantMsg := &models.Message{
		ID:             models.NewID(models.KindMessage),
		ConversationID: convID,
		UserID:         userID,
		Role:           models.RoleAssistant,
		Content:        result.AssistantText,
		CreatedAt:      time.Now(),
	}
	if err := p.messages.Save(ctx, assistantMsg); err != nil {
		return nil, herr.Wrap(herr.Transient, err, "persist assistant message")
	}
	result.MessageID = assistantMsg.ID

	p.bus.Publish(ctx, models.Event{
		Kind:      models.EventMessageCreated,
		Publisher: "planner",
		Timestamp: time.Now(),
		Payload:   assistantMsg,
	})

	go p.extractMemories(context.Background(), userID, convID, content, userMsg.ID)
	go p.maybeCompact(context.Background(), convID, userID, len(history)+1)

	return result, nil
}

func (p *Planner) ensureConversation(ctx context.Context, convID, userID string) error {
	_, err := p.messages.GetConversation(ctx, convID)
	if err == nil {
		return nil
	}
	if !herr.Is(err, herr.NotFound) {
		return herr.Wrap(herr.Transient, err, "get conversation")
	}
	now := time.Now()
	return p.messages.SaveConversation(ctx, &models.Conversation{
		ID: convID, UserID: userID, CreatedAt: now, UpdatedAt: now,
	})
}

// promptContext is the formatted material REQUEST_PLAN folds into its
// system prompt: recent history as chat turns, plus a memory digest.
type promptContext struct {
	historyMessages []ChatMessage
	memoryDigest    string
}

// buildContext implements §4.6's (a)-(d): recent history, semantic
// recall with a list fallback, folded into a system-prompt digest.
func (p *Planner) buildContext(ctx context.Context, convID, userID string) (promptContext, []*models.Message, error) {
	history, err := p.messages.FindByConversation(ctx, convID, p.cfg.HistoryWindow)
	if err != nil {
		return promptContext{}, nil, herr.Wrap(herr.Transient, err, "load message history")
	}

	chatHistory := make([]ChatMessage, 0, len(history))
	for _, m := range history {
		chatHistory = append(chatHistory, ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	memories, err := p.recallMemories(ctx, history, userID)
	if err != nil && p.log != nil {
		p.log.Error(ctx, "memory recall failed, system prompt will omit memory context", "error", err)
	}

	return promptContext{historyMessages: chatHistory, memoryDigest: formatMemoryDigest(memories)}, history, nil
}

// recallMemories tries semantic search first; on failure or an empty
// result it falls back to a plain filtered list, per §4.6(c).
func (p *Planner) recallMemories(ctx context.Context, history []*models.Message, userID string) ([]*models.Memory, error) {
	query := latestUserContent(history)
	if query != "" && p.embedder != nil {
		if results, err := p.memories.Search(ctx, models.SearchRequest{
			Query: query, UserID: userID, Kinds: recallKinds, Limit: p.cfg.MemoryRecallLimit,
		}); err == nil && len(results) > 0 {
			out := make([]*models.Memory, 0, len(results))
			for _, r := range results {
				out = append(out, r.Memory)
			}
			return out, nil
		}
	}
	return p.memories.List(ctx, models.MemoryFilter{
		UserID: userID, Kinds: recallKinds, Limit: p.cfg.MemoryRecallLimit,
	})
}

func latestUserContent(history []*models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

func formatMemoryDigest(memories []*models.Memory) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known context about this user:\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", m.Kind, m.Title, m.Content)
	}
	return b.String()
}

// runTurn drives REQUEST_PLAN -> DECIDE -> (tool dispatch + summarise)
// with the spec's layered fallback chain, and always returns a
// TurnResult with non-empty AssistantText.
func (p *Planner) runTurn(ctx context.Context, promptCtx promptContext, history []*models.Message, tctx models.ToolContext) *models.TurnResult {
	plan, planErr := p.requestPlan(ctx, promptCtx)
	if planErr != nil {
		return p.fallback(ctx, promptCtx, models.OutcomePlannerErr, planErr)
	}

	switch plan.Kind {
	case models.PlanFinal:
		return &models.TurnResult{Outcome: models.OutcomeFinal, AssistantText: plan.Content}

	case models.PlanToolCall:
		toolResult, err := p.dispatch.Dispatch(ctx, plan.Tool, plan.Args, tctx, models.RetryOptions{})
		if err != nil {
			return p.fallback(ctx, promptCtx, models.OutcomePlannerErr, err)
		}
		summary, err := p.summarise(ctx, promptCtx, plan.Tool, toolResult)
		if err != nil {
			return p.fallback(ctx, promptCtx, models.OutcomePlannerErr, err)
		}
		return &models.TurnResult{
			Outcome: models.OutcomeToolCall, AssistantText: summary,
			ToolName: plan.Tool, ToolResult: &toolResult,
		}

	default:
		return p.fallback(ctx, promptCtx, models.OutcomeParseError, nil)
	}
}

// fallback implements FALLBACK_PLAIN_CHAT, and FALLBACK_ECHO if that
// also fails: the turn always ends with something to say.
func (p *Planner) fallback(ctx context.Context, promptCtx promptContext, outcome models.TurnOutcome, cause error) *models.TurnResult {
	if p.log != nil {
		p.log.Error(ctx, "planner falling back to plain chat", "outcome", outcome, "cause", cause)
	}

	req := CompletionRequest{
		System:    p.systemPrompt(promptCtx, false),
		Messages:  promptCtx.historyMessages,
		MaxTokens: p.cfg.MaxTokens,
	}
	resp, err := p.llm.Complete(ctx, req)
	if err == nil && strings.TrimSpace(resp.Content) != "" {
		return &models.TurnResult{Outcome: outcome, AssistantText: resp.Content}
	}

	if p.log != nil {
		p.log.Error(ctx, "plain-chat fallback also failed, echoing last user message", "error", err)
	}
	return &models.TurnResult{Outcome: outcome, AssistantText: echoFallbackText(promptCtx)}
}

func echoFallbackText(promptCtx promptContext) string {
	for i := len(promptCtx.historyMessages) - 1; i >= 0; i-- {
		if promptCtx.historyMessages[i].Role == string(models.RoleUser) {
			return promptCtx.historyMessages[i].Content
		}
	}
	return ""
}

// requestPlan issues the structured-output completion call and parses
// its response into a Plan, rejecting any shape that doesn't cleanly
// decode as one of the two contract members — no silent coercion.
func (p *Planner) requestPlan(ctx context.Context, promptCtx promptContext) (models.Plan, error) {
	req := CompletionRequest{
		System:    p.systemPrompt(promptCtx, true),
		Messages:  promptCtx.historyMessages,
		MaxTokens: p.cfg.MaxTokens,
		JSONOnly:  true,
	}
	resp, err := p.llm.Complete(ctx, req)
	if err != nil {
		return models.Plan{}, herr.Wrap(herr.Transient, err, "request plan")
	}
	return parsePlan(resp.Content)
}

// parsePlan strictly decodes raw as a Plan: unknown fields or a Kind
// outside {final, tool_call} both produce a parse_error-kind Plan
// rather than an error, since a parse error is a DECIDE branch, not a
// call failure.
func parsePlan(raw string) (models.Plan, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(raw))))
	dec.DisallowUnknownFields()
	var plan models.Plan
	if err := dec.Decode(&plan); err != nil {
		return models.Plan{Kind: ""}, nil
	}
	switch plan.Kind {
	case models.PlanFinal:
		if strings.TrimSpace(plan.Content) == "" {
			return models.Plan{Kind: ""}, nil
		}
	case models.PlanToolCall:
		if strings.TrimSpace(plan.Tool) == "" {
			return models.Plan{Kind: ""}, nil
		}
	default:
		return models.Plan{Kind: ""}, nil
	}
	return plan, nil
}

// summarise makes the second LLM call the tool branch requires: the
// model turns a raw tool result into assistant-facing prose.
func (p *Planner) summarise(ctx context.Context, promptCtx promptContext, tool string, result models.ToolResult) (string, error) {
	resultJSON, _ := json.Marshal(result)
	req := CompletionRequest{
		System: p.systemPrompt(promptCtx, false) +
			"\n\nThe tool \"" + tool + "\" was just called. Its result:\n" + string(resultJSON) +
			"\n\nReply to the user in plain prose summarising this outcome.",
		Messages:  promptCtx.historyMessages,
		MaxTokens: p.cfg.MaxTokens,
	}
	resp, err := p.llm.Complete(ctx, req)
	if err != nil {
		return "", herr.Wrap(herr.Transient, err, "summarise tool result")
	}
	return resp.Content, nil
}

func (p *Planner) systemPrompt(promptCtx promptContext, structured bool) string {
	var b strings.Builder
	if p.cfg.SystemPrompt != "" {
		b.WriteString(p.cfg.SystemPrompt)
		b.WriteString("\n\n")
	}
	if promptCtx.memoryDigest != "" {
		b.WriteString(promptCtx.memoryDigest)
		b.WriteString("\n")
	}
	if structured {
		b.WriteString(structuredOutputInstructions)
		if p.tools != nil {
			if tools, err := p.tools.ListTools(context.Background()); err == nil && len(tools) > 0 {
				b.WriteString("\nAvailable tools:\n")
				for _, t := range tools {
					fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.ShortDescription)
				}
			}
		}
	}
	return b.String()
}

const structuredOutputInstructions = `Respond with exactly one JSON object, no surrounding text, matching one of:
{"type": "final", "content": "<string>"}
{"type": "tool_call", "tool": "<name>", "args": {...}}`
