package messagestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/hearthai/hearth/internal/messagestore"
	"github.com/hearthai/hearth/pkg/models"
)

func TestSaveRejectsDuplicateID(t *testing.T) {
	store := messagestore.NewMemoryStore()
	ctx := context.Background()

	m := &models.Message{ID: "msg-1", ConversationID: "conv-1", Role: models.RoleUser, Content: "hi", CreatedAt: time.Now()}
	if err := store.Save(ctx, m); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.Save(ctx, m); err == nil {
		t.Fatalf("expected conflict on duplicate id")
	}
}

func TestFindByConversationOrdersByCreatedAtThenID(t *testing.T) {
	store := messagestore.NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	// Two messages share a timestamp to exercise the id tie-break.
	msgs := []*models.Message{
		{ID: "msg-c", ConversationID: "conv-1", Role: models.RoleUser, Content: "c", CreatedAt: base},
		{ID: "msg-a", ConversationID: "conv-1", Role: models.RoleUser, Content: "a", CreatedAt: base},
		{ID: "msg-b", ConversationID: "conv-1", Role: models.RoleUser, Content: "b", CreatedAt: base.Add(time.Second)},
	}
	for _, m := range msgs {
		if err := store.Save(ctx, m); err != nil {
			t.Fatalf("save %s: %v", m.ID, err)
		}
	}

	got, err := store.FindByConversation(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	order := []string{got[0].ID, got[1].ID, got[2].ID}
	want := []string{"msg-a", "msg-c", "msg-b"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order: got %v want %v", order, want)
		}
	}
}

func TestDeleteConversationRemovesItsMessages(t *testing.T) {
	store := messagestore.NewMemoryStore()
	ctx := context.Background()

	if err := store.Save(ctx, &models.Message{ID: "msg-1", ConversationID: "conv-1", Role: models.RoleUser, Content: "hi", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.DeleteConversation(ctx, "conv-1"); err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	got, err := store.FindByConversation(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("find after delete: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no messages after conversation delete, got %d", len(got))
	}
}
