// Package messagestore implements the append-only conversation
// message log: Save rejects a duplicate id with Conflict, and
// FindByConversation returns messages in strict ascending CreatedAt
// order, tie-broken by id, per the message log's ordering invariant.
package messagestore

import (
	"context"

	"github.com/hearthai/hearth/pkg/models"
)

// Store persists Messages and Conversations.
type Store interface {
	Save(ctx context.Context, m *models.Message) error
	FindByConversation(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
	SaveConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}
