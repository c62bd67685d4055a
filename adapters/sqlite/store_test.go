package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/domain/repositories"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConversationSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	missing, err := s.Load(ctx, "absent")
	if err != nil || missing != nil {
		t.Fatalf("expected nil snapshot, got %v, %v", missing, err)
	}

	conv := entities.NewConsultation("conv-1", "ro-RO")
	conv.Triage = entities.TriageContext{State: entities.TriageStateClarifying, Round: 1, LastQuestions: []string{"De când?"}}
	conv.LastSubmittedSeq = 4
	if err := s.Save(ctx, conv); err != nil {
		t.Fatalf("save: %v", err)
	}
	conv.Triage.Round = 2
	if err := s.Save(ctx, conv); err != nil {
		t.Fatalf("save again: %v", err)
	}

	loaded, err := s.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Triage.Round != 2 || loaded.Triage.LastQuestions[0] != "De când?" {
		t.Errorf("unexpected triage %+v", loaded.Triage)
	}
	if loaded.LastSubmittedSeq != 4 || loaded.Language != "ro-RO" {
		t.Errorf("unexpected snapshot %+v", loaded)
	}

	if err := s.Delete(ctx, "conv-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gone, _ := s.Load(ctx, "conv-1"); gone != nil {
		t.Error("expected snapshot deleted")
	}
}

func TestSaveRejectsInvalidConsultation(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save(context.Background(), &entities.Consultation{}); err == nil {
		t.Error("expected validation error")
	}
	if err := s.Save(context.Background(), nil); err == nil {
		t.Error("expected error for nil consultation")
	}
}

func TestMessagesOrderedByCreation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// inserted out of order on purpose
	records := []repositories.MessageRecord{
		{ID: "m2", Role: entities.MessageRoleAssistant, Content: "De când?", OutputType: entities.OutputTypeText, CreatedAt: base.Add(time.Second)},
		{ID: "m1", Role: entities.MessageRoleUser, Content: "Mă doare", CreatedAt: base},
	}
	for _, rec := range records {
		if err := s.Messages().Create(ctx, "conv-1", rec); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := s.Messages().Create(ctx, "conv-1", records[0]); err == nil {
		t.Error("expected duplicate id to fail")
	}

	got, err := s.Messages().ListByConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].ID != "m1" || got[1].OutputType != entities.OutputTypeText {
		t.Errorf("unexpected order %+v", got)
	}
	if !got[0].CreatedAt.Equal(base) {
		t.Errorf("expected createdAt %v, got %v", base, got[0].CreatedAt)
	}
}

func TestSegmentsPersist(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := s.Segments().Create(ctx, "conv-1", repositories.SegmentRecord{ID: "s1", Text: "notă", StartTs: start, EndTs: start.Add(time.Minute)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Segments().ListByConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Text != "notă" || !got[0].EndTs.Equal(start.Add(time.Minute)) {
		t.Errorf("unexpected segments %+v", got)
	}
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consult.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Save(context.Background(), entities.NewConsultation("conv-1", "ro-RO")); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if got, _ := reopened.Load(context.Background(), "conv-1"); got == nil {
		t.Error("expected snapshot to survive reopen")
	}
}
