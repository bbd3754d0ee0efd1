package planner_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hearthai/hearth/internal/eventbus"
	"github.com/hearthai/hearth/internal/memory"
	"github.com/hearthai/hearth/internal/memory/flatindex"
	"github.com/hearthai/hearth/internal/memory/rowstore"
	"github.com/hearthai/hearth/internal/messagestore"
	"github.com/hearthai/hearth/internal/planner"
	"github.com/hearthai/hearth/internal/toolexec"
	"github.com/hearthai/hearth/internal/toolbox"
	"github.com/hearthai/hearth/internal/workqueue"
	"github.com/hearthai/hearth/pkg/models"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 0, 0}, nil
}

// scriptedLLM returns queued responses in order, one per Complete call.
type scriptedLLM struct {
	responses []string
	calls     int32
}

func (s *scriptedLLM) Complete(ctx context.Context, req planner.CompletionRequest) (planner.CompletionResponse, error) {
	i := int(atomic.AddInt32(&s.calls, 1)) - 1
	if i >= len(s.responses) {
		return planner.CompletionResponse{Content: `{"worth": false}`}, nil
	}
	return planner.CompletionResponse{Content: s.responses[i]}, nil
}

func newEngine(t *testing.T) *memory.Engine {
	t.Helper()
	idx, err := flatindex.New("")
	if err != nil {
		t.Fatalf("new flatindex: %v", err)
	}
	return memory.New(rowstore.NewMemoryStore(), idx, stubEmbedder{}, nil)
}

func TestProcessMessageFinalPlanPersistsAssistantReply(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(nil)
	msgs := messagestore.NewMemoryStore()
	mem := newEngine(t)

	llm := &scriptedLLM{responses: []string{
		`{"type": "final", "content": "Hello there"}`,
	}}

	p := planner.New(msgs, mem, llm, stubEmbedder{}, nil, bus, nil, planner.Config{})

	result, err := p.ProcessMessage(ctx, "conv-1", "user-1", "hi", models.SourceDescriptor{Kind: models.SourceGUI})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	if result.Outcome != models.OutcomeFinal {
		t.Fatalf("expected final outcome, got %v", result.Outcome)
	}
	if result.AssistantText != "Hello there" {
		t.Fatalf("unexpected assistant text: %q", result.AssistantText)
	}

	history, err := msgs.FindByConversation(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("find by conversation: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(history))
	}
	if history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected role ordering: %+v", history)
	}
}

func TestProcessMessageParseErrorFallsBackToPlainChat(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(nil)
	msgs := messagestore.NewMemoryStore()
	mem := newEngine(t)

	llm := &scriptedLLM{responses: []string{
		`not json at all`,
		`I can still help in plain text.`,
	}}

	p := planner.New(msgs, mem, llm, stubEmbedder{}, nil, bus, nil, planner.Config{})
	result, err := p.ProcessMessage(ctx, "conv-2", "user-1", "what's up", models.SourceDescriptor{Kind: models.SourceGUI})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	if result.Outcome != models.OutcomeParseError {
		t.Fatalf("expected parse_error outcome, got %v", result.Outcome)
	}
	if result.AssistantText != "I can still help in plain text." {
		t.Fatalf("unexpected fallback text: %q", result.AssistantText)
	}
}

func TestProcessMessageToolCallDispatchesThroughEventBusAndSummarises(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(nil)
	msgs := messagestore.NewMemoryStore()
	mem := newEngine(t)

	registry := toolbox.New(nil, time.Minute)
	set := toolbox.NewSystemSet("system")
	descriptor, fn := toolbox.EchoTool()
	set.Add(descriptor, fn)
	if err := registry.Register(ctx, set); err != nil {
		t.Fatalf("register: %v", err)
	}
	queue := workqueue.New(workqueue.NewMemoryStore(), bus, nil)
	svc := toolexec.New(registry, bus, queue, nil)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start toolexec: %v", err)
	}

	llm := &scriptedLLM{responses: []string{
		`{"type": "tool_call", "tool": "echo", "args": {"text": "ping"}}`,
		`The echo tool returned "ping".`,
	}}

	p := planner.New(msgs, mem, llm, stubEmbedder{}, registry, bus, nil, planner.Config{ToolTimeout: 2 * time.Second})
	result, err := p.ProcessMessage(ctx, "conv-3", "user-1", "echo ping please", models.SourceDescriptor{Kind: models.SourceGUI})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	if result.Outcome != models.OutcomeToolCall {
		t.Fatalf("expected tool_call outcome, got %v", result.Outcome)
	}
	if result.ToolResult == nil || !result.ToolResult.OK {
		t.Fatalf("expected an ok tool result, got %+v", result.ToolResult)
	}
	if !strings.Contains(result.AssistantText, "ping") {
		t.Fatalf("unexpected summarised text: %q", result.AssistantText)
	}
}

func TestExtractMemoriesSkipsShortMessages(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(nil)
	msgs := messagestore.NewMemoryStore()
	mem := newEngine(t)

	llm := &scriptedLLM{responses: []string{
		`{"type": "final", "content": "ok"}`,
	}}

	p := planner.New(msgs, mem, llm, stubEmbedder{}, nil, bus, nil, planner.Config{})
	if _, err := p.ProcessMessage(ctx, "conv-4", "user-1", "hi", models.SourceDescriptor{Kind: models.SourceGUI}); err != nil {
		t.Fatalf("process message: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	found, err := mem.List(ctx, models.MemoryFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no extracted memories for a short message, got %d", len(found))
	}
}

func TestExtractMemoriesAddsWorthwhileFact(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(nil)
	msgs := messagestore.NewMemoryStore()
	mem := newEngine(t)

	extraction, _ := json.Marshal(map[string]any{
		"worth": true, "kind": "fact", "title": "Birthday", "content": "User's birthday is March 3rd.",
	})
	llm := &scriptedLLM{responses: []string{
		`{"type": "final", "content": "Noted!"}`,
		string(extraction),
	}}

	p := planner.New(msgs, mem, llm, stubEmbedder{}, nil, bus, nil, planner.Config{})
	if _, err := p.ProcessMessage(ctx, "conv-5", "user-1", "My birthday is March 3rd, remember that.", models.SourceDescriptor{Kind: models.SourceGUI}); err != nil {
		t.Fatalf("process message: %v", err)
	}

	var found []*models.Memory
	for i := 0; i < 20; i++ {
		time.Sleep(10 * time.Millisecond)
		var err error
		found, err = mem.List(ctx, models.MemoryFilter{UserID: "user-1"})
		if err != nil {
			t.Fatalf("list memories: %v", err)
		}
		if len(found) > 0 {
			break
		}
	}
	if len(found) != 1 {
		t.Fatalf("expected exactly 1 extracted memory, got %d", len(found))
	}
	if found[0].Kind != models.MemoryKindFact {
		t.Fatalf("expected fact kind, got %v", found[0].Kind)
	}
}
