package models

import "time"

// EventKind is a member of the event bus's closed set of event kinds.
// Publishing any other string is a programmer error; subscribers must
// be able to enumerate this set exhaustively.
type EventKind string

const (
	EventMessageCreated       EventKind = "message_created"
	EventJobUpdated           EventKind = "job_updated"
	EventMemoryUpdated        EventKind = "memory_updated"
	EventSourceMessage        EventKind = "source_message"
	EventSchedulerTaskUpdated EventKind = "scheduler_task_updated"
	EventGUIAction            EventKind = "gui_action"
	EventGUIResponse          EventKind = "gui_response"
	EventAvatarPoke           EventKind = "avatar_poke"
	EventToolExecute          EventKind = "tool_execute"
	EventToolExecuted         EventKind = "tool_executed"
	// Log-kind events use the log_ prefix; IsLogKind recognizes any
	// member of that sub-family without enumerating each one, per the
	// cycle-break rule in the event bus's contract.
	EventLogGeneric EventKind = "log_generic"
)

// IsLogKind reports whether kind belongs to the log_* family. Log-kind
// events must never be produced as a side effect of handling a
// log-kind event (cycle break).
func IsLogKind(kind EventKind) bool {
	return len(kind) >= 4 && kind[:4] == "log_"
}

// Event is one publication on the event bus.
type Event struct {
	Kind      EventKind `json:"kind"`
	Publisher string    `json:"publisher"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolExecutePayload is the payload of a tool_execute event.
type ToolExecutePayload struct {
	ExecutionID string       `json:"executionId"`
	ToolName    string       `json:"toolName"`
	Args        any          `json:"args"`
	Ctx         ToolContext  `json:"ctx"`
	Retry       RetryOptions `json:"retry"`
}

// ToolExecutedPayload is the payload of a tool_executed event.
type ToolExecutedPayload struct {
	ExecutionID string      `json:"executionId"`
	ToolName    string      `json:"toolName"`
	Result      ToolResult  `json:"result"`
	Ctx         ToolContext `json:"ctx"`
}

// RetryOptions carries the caller's desired retry policy for a tool
// execution's underlying work-queue job.
type RetryOptions struct {
	MaxAttempts int `json:"maxAttempts,omitempty"`
}

// JobUpdatedPayload is the payload of a job_updated event.
type JobUpdatedPayload struct {
	JobID string   `json:"jobId"`
	Queue string   `json:"queue"`
	State JobState `json:"state"`
}

// SchedulerTaskUpdatedPayload is the payload of a scheduler_task_updated event.
type SchedulerTaskUpdatedPayload struct {
	TaskID string `json:"taskId"`
}

// MemoryUpdatedPayload is the payload of a memory_updated event.
type MemoryUpdatedPayload struct {
	MemoryID string `json:"memoryId"`
	Op       string `json:"op"` // "created", "updated", "deleted"
}

// SourceMessagePayload is the payload of a source_message event,
// emitted by an inbound channel adapter for the planner to consume.
type SourceMessagePayload struct {
	ConversationID string           `json:"conversationId"`
	UserID         string           `json:"userId"`
	Content        string           `json:"content"`
	Source         SourceDescriptor `json:"source"`
}
