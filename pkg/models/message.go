package models

import "time"

// Role is the author of a message within a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// SourceKind describes where an inbound message originated.
type SourceKind string

const (
	SourceGUI        SourceKind = "gui"
	SourceScheduler  SourceKind = "scheduler"
	SourceWhatsApp   SourceKind = "whatsapp"
	SourceEmail      SourceKind = "email"
	SourceTelegram   SourceKind = "telegram"
	SourceSlack      SourceKind = "slack"
	SourceDiscord    SourceKind = "discord"
	SourceMatrix     SourceKind = "matrix"
	SourceMattermost SourceKind = "mattermost"
	SourceSystem     SourceKind = "system"
	SourceOther      SourceKind = "other"
)

// SourceDescriptor describes the origin of an inbound message.
type SourceDescriptor struct {
	ID    string         `json:"id"`
	Kind  SourceKind     `json:"kind"`
	Label string         `json:"label,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// Message is one entry in a conversation's append-only log. Once
// created a Message is never mutated; it is only ever removed as part
// of deleting its whole conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	UserID         string         `json:"userId"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	CreatedAt      time.Time      `json:"createdAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Conversation groups messages under one user.
type Conversation struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Title     string         `json:"title,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
