package models

import "time"

// MemoryKind classifies the kind of knowledge a Memory captures.
type MemoryKind string

const (
	MemoryKindFact       MemoryKind = "fact"
	MemoryKindPreference MemoryKind = "preference"
	MemoryKindSummary    MemoryKind = "summary"
	MemoryKindEpisode    MemoryKind = "episode"
)

// SourceReferenceType identifies what a SourceReference points at.
type SourceReferenceType string

const (
	SourceReferenceMessage  SourceReferenceType = "message"
	SourceReferenceMemory   SourceReferenceType = "memory"
	SourceReferenceExternal SourceReferenceType = "external"
)

// SourceReference back-references the material a Memory was derived
// from, so a compacted summary can be traced to the messages (or prior
// memories) it was built from.
type SourceReference struct {
	Type      SourceReferenceType `json:"type"`
	ID        string               `json:"id"`
	Timestamp time.Time            `json:"timestamp"`
	Excerpt   string               `json:"excerpt,omitempty"`
}

// Memory is a typed, indexed, semantically searchable unit of
// knowledge about a user. Its embedding dimension must equal the
// configured collection dimension; a Memory is "coherent" iff a row
// exists in the row store and a point with the same id exists in the
// vector index.
type Memory struct {
	ID                string            `json:"id"`
	UserID            string            `json:"userId"`
	Kind              MemoryKind        `json:"kind"`
	Title             string            `json:"title"`
	Content           string            `json:"content"`
	Tags              []string          `json:"tags,omitempty"`
	ConversationID    string            `json:"conversationId,omitempty"`
	SourceReferences  []SourceReference `json:"sourceReferences,omitempty"`
	IsCompaktified    bool              `json:"isCompaktified"`
	CompaktifiedFrom  []string          `json:"compaktifiedFrom,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	Embedding         []float32         `json:"-"`
}

// EmbeddingText is the canonical text embedded for a Memory, per the
// memory store's insert/update contract: title followed by content.
func (m *Memory) EmbeddingText() string {
	return m.Title + "\n" + m.Content
}

// MemoryWrite is the input to the memory store's add operation: every
// field the caller controls, before an id/timestamps are assigned.
type MemoryWrite struct {
	UserID           string
	Kind             MemoryKind
	Title            string
	Content          string
	Tags             []string
	ConversationID   string
	SourceReferences []SourceReference
	CompaktifiedFrom []string
}

// MemoryPatch is a partial update to an existing Memory. Nil fields are
// left unchanged.
type MemoryPatch struct {
	Title   *string
	Content *string
	Tags    *[]string
}

// MemoryFilter restricts a List or Search call.
type MemoryFilter struct {
	UserID         string
	Kinds          []MemoryKind
	Tags           []string
	ConversationID string
	IsCompaktified *bool
	Limit          int
	Offset         int
}

// SearchRequest is the input to the memory store's semantic search.
type SearchRequest struct {
	Query  string
	UserID string
	Kinds  []MemoryKind
	Tags   []string
	Limit  int
}

// SearchResult pairs a Memory with its vector similarity score.
type SearchResult struct {
	Memory *Memory
	Score  float32
}
