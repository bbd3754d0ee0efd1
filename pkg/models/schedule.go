package models

import "time"

// ScheduledTaskType selects what a ScheduledTask does when it fires.
type ScheduledTaskType string

const (
	TaskTypeToolCall ScheduledTaskType = "tool_call"
	TaskTypeEvent    ScheduledTaskType = "event"
)

// TaskPayload carries the type-specific dispatch data for a
// ScheduledTask. When Type is tool_call, ToolName must be present.
type TaskPayload struct {
	EventTopic   string         `json:"eventTopic,omitempty"`
	ToolName     string         `json:"toolName,omitempty"`
	Args         map[string]any `json:"args,omitempty"`
	EventPayload map[string]any `json:"eventPayload,omitempty"`
}

// ScheduledTask is a cron-scheduled unit of recurring work owned by a
// user, dispatched by the Scheduler.
type ScheduledTask struct {
	ID             string            `json:"id"`
	Type           ScheduledTaskType `json:"type"`
	Schedule       string            `json:"schedule"`
	Payload        TaskPayload       `json:"payload"`
	UserID         string            `json:"userId"`
	ConversationID string            `json:"conversationId,omitempty"`
	Enabled        bool              `json:"enabled"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	LastRun        *time.Time        `json:"lastRun,omitempty"`
	NextRun        *time.Time        `json:"nextRun,omitempty"`
}
