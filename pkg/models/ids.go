// Package models defines the core data types shared across Hearth's
// runtime fabric: messages, memories, scheduled tasks, jobs, tools, and
// the event envelope that ties them together.
package models

import "github.com/google/uuid"

// IDKind is the short prefix every opaque entity id carries, e.g. "msg"
// in "msg-3f9c...". Ids are generated once at creation time and are
// immutable afterwards.
type IDKind string

const (
	KindMessage       IDKind = "msg"
	KindMemory        IDKind = "mem"
	KindTask          IDKind = "task"
	KindJob           IDKind = "job"
	KindExecution     IDKind = "exec"
	KindConversation  IDKind = "conv"
)

// NewID generates a new opaque id with the given kind prefix.
func NewID(kind IDKind) string {
	return string(kind) + "-" + uuid.NewString()
}
