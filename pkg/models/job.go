package models

import "time"

// JobState is a node in the work queue's job state machine:
// queued -> running -> (completed | failed), with failed re-entering
// queued until maxAttempts is exhausted.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Priority is a job's scheduling priority; higher runs first, FIFO
// within a priority.
type Priority int

const (
	PriorityLow    Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
)

// ToolContext is passed unchanged through the tool execution pipeline.
type ToolContext struct {
	UserID         string           `json:"userId"`
	ConversationID string           `json:"conversationId"`
	Source         SourceDescriptor `json:"source"`
	TraceID        string           `json:"traceId,omitempty"`
	Meta           map[string]any   `json:"meta,omitempty"`
}

// Job is one unit of work durably tracked by a named queue.
type Job struct {
	ID          string         `json:"id"`
	Queue       string         `json:"queue"`
	Payload     any            `json:"payload"`
	Ctx         ToolContext    `json:"ctx"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"maxAttempts"`
	Priority    Priority       `json:"priority"`
	State       JobState       `json:"state"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Error       string         `json:"error,omitempty"`
}
