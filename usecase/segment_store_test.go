package usecase

import (
	"fmt"
	"testing"
	"time"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/domain/repositories"
)

func newTestSegmentStore() *SegmentStore {
	s := NewSegmentStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ids := 0
	s.newID = func() string {
		ids++
		return fmt.Sprintf("seg-%d", ids)
	}
	return s
}

func TestSegmentStore_BeginIsIdempotent(t *testing.T) {
	s := newTestSegmentStore()

	first := s.BeginSegment()
	second := s.BeginSegment()

	if first.ID != second.ID {
		t.Errorf("Expected same open segment, got %s and %s", first.ID, second.ID)
	}
	if len(s.Segments()) != 1 {
		t.Errorf("Expected 1 segment, got %d", len(s.Segments()))
	}
	if first.Status != entities.SegmentStatusDraft {
		t.Errorf("Expected draft status, got %s", first.Status)
	}
}

func TestSegmentStore_AppendAndClose(t *testing.T) {
	s := newTestSegmentStore()
	s.BeginSegment()

	if !s.AppendFinalText("mă doare") {
		t.Fatal("Expected append to open draft to succeed")
	}
	s.AppendFinalText("  măseaua  ")

	seg, ok := s.CloseSegment("de minte")
	if !ok {
		t.Fatal("Expected close to finalize the draft")
	}

	if seg.Text != "mă doare măseaua de minte" {
		t.Errorf("Expected merged text, got %q", seg.Text)
	}
	if seg.Status != entities.SegmentStatusFinalized {
		t.Errorf("Expected finalized status, got %s", seg.Status)
	}
	if seg.EndedAt == nil || !seg.EndedAt.After(seg.StartedAt) {
		t.Error("Expected ended_at after started_at")
	}
	if _, open := s.OpenSegment(); open {
		t.Error("Expected no open segment after close")
	}
}

func TestSegmentStore_AppendWithoutDraftIsDropped(t *testing.T) {
	s := newTestSegmentStore()
	s.BeginSegment()
	s.AppendFinalText("prima")
	s.CloseSegment("")

	if s.AppendFinalText("late text") {
		t.Error("Expected append after finalize to be dropped")
	}

	segs := s.Segments()
	if segs[0].Text != "prima" {
		t.Errorf("Finalized segment must not change, got %q", segs[0].Text)
	}
}

func TestSegmentStore_CloseWithoutOpenSegment(t *testing.T) {
	s := newTestSegmentStore()

	if _, ok := s.CloseSegment(""); ok {
		t.Error("Expected no-op when closing nothing with no text")
	}
	if len(s.Segments()) != 0 {
		t.Errorf("Expected no segments, got %d", len(s.Segments()))
	}

	seg, ok := s.CloseSegment("text rămas")
	if !ok {
		t.Fatal("Expected trailing text to become its own segment")
	}
	if seg.Text != "text rămas" || seg.Status != entities.SegmentStatusFinalized {
		t.Errorf("Unexpected segment %+v", seg)
	}
}

func TestSegmentStore_Transcript(t *testing.T) {
	s := newTestSegmentStore()

	s.BeginSegment()
	s.AppendFinalText("  unu ")
	s.CloseSegment("")

	s.BeginSegment()
	s.CloseSegment("")

	s.BeginSegment()
	s.AppendFinalText("trei")

	got := s.Transcript()
	if got != "unu trei" {
		t.Errorf("Expected %q, got %q", "unu trei", got)
	}
	if again := s.Transcript(); again != got {
		t.Errorf("Transcript must be idempotent, got %q then %q", got, again)
	}
}

func TestSegmentStore_EditDoesNotMutateText(t *testing.T) {
	s := newTestSegmentStore()
	s.BeginSegment()
	s.AppendFinalText("dinte trei șase")
	seg, _ := s.CloseSegment("")

	edited, err := s.EditSegment(seg.ID, "dintele 36")
	if err != nil {
		t.Fatalf("Failed to edit segment: %v", err)
	}
	if edited.Text != "dinte trei șase" {
		t.Errorf("Raw text changed to %q", edited.Text)
	}
	if s.Transcript() != "dintele 36" {
		t.Errorf("Expected transcript to use edited text, got %q", s.Transcript())
	}

	if _, err := s.EditSegment(seg.ID, " "); err != nil {
		t.Fatalf("Failed to clear edit: %v", err)
	}
	if s.Transcript() != "dinte trei șase" {
		t.Errorf("Expected transcript to fall back to raw text, got %q", s.Transcript())
	}

	if _, err := s.EditSegment("missing", "x"); err != ErrSegmentNotFound {
		t.Errorf("Expected ErrSegmentNotFound, got %v", err)
	}
}

func TestSegmentStore_Delete(t *testing.T) {
	s := newTestSegmentStore()
	s.BeginSegment()
	s.AppendFinalText("a")
	first, _ := s.CloseSegment("")
	open := s.BeginSegment()
	s.AppendFinalText("b")

	if err := s.DeleteSegment(first.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	cur, ok := s.OpenSegment()
	if !ok || cur.ID != open.ID {
		t.Error("Open draft should survive deleting an earlier segment")
	}

	if err := s.DeleteSegment(open.ID); err != nil {
		t.Fatalf("Failed to delete open draft: %v", err)
	}
	if s.AppendFinalText("c") {
		t.Error("Append after deleting the draft should be dropped")
	}
	if err := s.DeleteSegment(open.ID); err != ErrSegmentNotFound {
		t.Errorf("Expected ErrSegmentNotFound, got %v", err)
	}
}

func TestSegmentStore_FinalizedSinceAndOrdering(t *testing.T) {
	s := newTestSegmentStore()
	for _, text := range []string{"a", "b", "c"} {
		s.BeginSegment()
		s.CloseSegment(text)
	}
	s.BeginSegment()

	since := s.FinalizedSince(1)
	if len(since) != 2 || since[0].Text != "b" || since[1].Text != "c" {
		t.Errorf("Unexpected segments since seq 1: %+v", since)
	}

	segs := s.Segments()
	for i := 1; i < len(segs); i++ {
		if segs[i].Seq <= segs[i-1].Seq {
			t.Errorf("Expected increasing seq, got %d after %d", segs[i].Seq, segs[i-1].Seq)
		}
	}
}

func TestSegmentStore_RestoreRecords(t *testing.T) {
	s := newTestSegmentStore()
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s.RestoreRecords([]repositories.SegmentRecord{
		{ID: "r1", Text: "unu", StartTs: start, EndTs: start.Add(time.Minute)},
		{ID: "r2", Text: "doi", StartTs: start.Add(2 * time.Minute), EndTs: start.Add(3 * time.Minute)},
	})

	if s.Transcript() != "unu doi" {
		t.Errorf("Expected restored transcript, got %q", s.Transcript())
	}

	next := s.BeginSegment()
	if next.Seq != 3 {
		t.Errorf("Expected next seq 3, got %d", next.Seq)
	}
}

func TestSegmentStore_RestoreFinalizesDrafts(t *testing.T) {
	s := newTestSegmentStore()
	s.Restore([]entities.Segment{{ID: "d", Seq: 4, Text: "draft", Status: entities.SegmentStatusDraft}})

	segs := s.Segments()
	if segs[0].Status != entities.SegmentStatusFinalized || segs[0].EndedAt == nil {
		t.Errorf("Expected restored draft to be finalized, got %+v", segs[0])
	}
	if s.AppendFinalText("x") {
		t.Error("Expected no open segment after restore")
	}
}
