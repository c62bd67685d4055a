package memory

import (
	"context"
	"testing"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/domain/repositories"
)

func TestRecords_MessagesKeepOrderPerConversation(t *testing.T) {
	r := NewRecords()
	ctx := context.Background()
	messages := r.Messages()

	for _, id := range []string{"m1", "m2", "m3"} {
		if err := messages.Create(ctx, "conv-1", repositories.MessageRecord{ID: id, Role: entities.MessageRoleUser, Content: id}); err != nil {
			t.Fatalf("Failed to create message: %v", err)
		}
	}
	messages.Create(ctx, "conv-2", repositories.MessageRecord{ID: "other"})

	got, err := messages.ListByConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(got) != 3 || got[0].ID != "m1" || got[2].ID != "m3" {
		t.Errorf("Unexpected messages %+v", got)
	}

	if err := messages.Create(ctx, "conv-1", repositories.MessageRecord{ID: "m1"}); err == nil {
		t.Error("Expected duplicate ID to be rejected")
	}
	if err := messages.Create(ctx, "", repositories.MessageRecord{ID: "x"}); err == nil {
		t.Error("Expected empty conversation ID to be rejected")
	}
}

func TestRecords_Segments(t *testing.T) {
	r := NewRecords()
	ctx := context.Background()

	if err := r.Segments().Create(ctx, "conv-1", repositories.SegmentRecord{ID: "s1", Text: "notă"}); err != nil {
		t.Fatalf("Failed to create segment: %v", err)
	}
	got, _ := r.Segments().ListByConversation(ctx, "conv-1")
	if len(got) != 1 || got[0].Text != "notă" {
		t.Errorf("Unexpected segments %+v", got)
	}
	if none, _ := r.Segments().ListByConversation(ctx, "conv-2"); len(none) != 0 {
		t.Errorf("Expected no segments for another conversation, got %d", len(none))
	}
}

func TestRecords_StoreIsolatesCopies(t *testing.T) {
	r := NewRecords()
	ctx := context.Background()
	store := r.Store()

	if got, err := store.Load(ctx, "conv-1"); err != nil || got != nil {
		t.Fatalf("Expected nil snapshot, got %v, %v", got, err)
	}

	conv := entities.NewConsultation("conv-1", "ro-RO")
	conv.Triage.LastQuestions = []string{"De când?"}
	if err := store.Save(ctx, conv); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	conv.Triage.LastQuestions[0] = "changed"

	loaded, err := store.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if loaded.Triage.LastQuestions[0] != "De când?" {
		t.Errorf("Expected stored snapshot unaffected by caller edits, got %v", loaded.Triage.LastQuestions)
	}

	if err := store.Save(ctx, &entities.Consultation{}); err == nil {
		t.Error("Expected invalid consultation to be rejected")
	}

	store.Delete(ctx, "conv-1")
	if gone, _ := store.Load(ctx, "conv-1"); gone != nil {
		t.Error("Expected snapshot deleted")
	}
}
