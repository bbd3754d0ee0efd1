package models

// PlanKind is the tagged union discriminator the planner's structured
// output contract requires: every LLM plan response is exactly one of
// these two shapes, or it is a parse error.
type PlanKind string

const (
	PlanFinal    PlanKind = "final"
	PlanToolCall PlanKind = "tool_call"
)

// Plan is the parsed, validated form of the LLM's structured response.
// Content is set iff Kind is PlanFinal; Tool/Args are set iff Kind is
// PlanToolCall. Any response that doesn't cleanly decode into one of
// these two shapes never becomes a Plan — it is a parse error instead.
type Plan struct {
	Kind    PlanKind       `json:"type"`
	Content string         `json:"content,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
}

// TurnOutcome classifies how a planner turn concluded, for logging and
// for the caller deciding whether to surface an error banner.
type TurnOutcome string

const (
	OutcomeFinal       TurnOutcome = "final"
	OutcomeToolCall    TurnOutcome = "tool_call"
	OutcomeParseError  TurnOutcome = "parse_error"
	OutcomePlannerErr  TurnOutcome = "planner_err"
)

// TurnResult is what a completed planner turn hands back to its
// caller: the persisted assistant message's content plus how it got
// there.
type TurnResult struct {
	Outcome        TurnOutcome
	AssistantText  string
	MessageID      string
	ToolName       string
	ToolResult     *ToolResult
}
