package usecase

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/domain/repositories"
)

var ErrSegmentNotFound = errors.New("segment not found")

// SegmentStore turns recognized text into ordered segments. At most one
// segment is open (draft) at a time; finalized segments only change through
// explicit user edits, which never touch the recognized text.
type SegmentStore struct {
	mu       sync.Mutex
	segments []entities.Segment
	open     int
	nextSeq  int

	now   func() time.Time
	newID func() string
}

// NewSegmentStore creates an empty store
func NewSegmentStore() *SegmentStore {
	return &SegmentStore{
		open:    -1,
		nextSeq: 1,
		now:     time.Now,
		newID:   newID,
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// BeginSegment opens a draft segment, or returns the one already open
func (s *SegmentStore) BeginSegment() entities.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open < 0 {
		s.segments = append(s.segments, s.newSegmentLocked())
		s.open = len(s.segments) - 1
	}
	return cloneSegment(s.segments[s.open])
}

func (s *SegmentStore) newSegmentLocked() entities.Segment {
	seg := entities.Segment{
		ID:        s.newID(),
		Seq:       s.nextSeq,
		Status:    entities.SegmentStatusDraft,
		StartedAt: s.now(),
	}
	s.nextSeq++
	return seg
}

// AppendFinalText adds confirmed text to the open draft. It reports false and
// drops the text when no draft is open.
func (s *SegmentStore) AppendFinalText(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open < 0 {
		return false
	}
	s.segments[s.open].AppendText(text)
	return true
}

// CloseSegment merges trailing text into the open draft and finalizes it.
// With no open draft, non-empty text becomes a finalized segment of its own
// and empty text is a no-op reported as false.
func (s *SegmentStore) CloseSegment(finalText string) (entities.Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open < 0 {
		if strings.TrimSpace(finalText) == "" {
			return entities.Segment{}, false
		}
		seg := s.newSegmentLocked()
		seg.AppendText(finalText)
		seg.Finalize(s.now())
		s.segments = append(s.segments, seg)
		return cloneSegment(seg), true
	}

	seg := &s.segments[s.open]
	seg.AppendText(finalText)
	seg.Finalize(s.now())
	s.open = -1
	return cloneSegment(*seg), true
}

// OpenSegment returns the current draft, if any
func (s *SegmentStore) OpenSegment() (entities.Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open < 0 {
		return entities.Segment{}, false
	}
	return cloneSegment(s.segments[s.open]), true
}

// Transcript joins the display text of every segment in order, skipping
// empty ones. Drafts contribute their text so far.
func (s *SegmentStore) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return transcriptOf(s.segments)
}

func transcriptOf(segments []entities.Segment) string {
	parts := make([]string, 0, len(segments))
	for i := range segments {
		text := strings.TrimSpace(segments[i].DisplayText())
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Segments returns a copy of all segments in creation order
func (s *SegmentStore) Segments() []entities.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneSegments(s.segments)
}

// FinalizedSince returns finalized segments with Seq greater than seq
func (s *SegmentStore) FinalizedSince(seq int) []entities.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entities.Segment
	for _, seg := range s.segments {
		if seg.Seq > seq && seg.Status == entities.SegmentStatusFinalized {
			out = append(out, cloneSegment(seg))
		}
	}
	return out
}

// EditSegment sets the display override of a segment. An empty text clears it.
func (s *SegmentStore) EditSegment(id, text string) (entities.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return entities.Segment{}, ErrSegmentNotFound
	}
	if strings.TrimSpace(text) == "" {
		s.segments[i].EditedText = nil
	} else {
		edited := text
		s.segments[i].EditedText = &edited
	}
	return cloneSegment(s.segments[i]), nil
}

// DeleteSegment removes a segment. Deleting the open draft closes recording
// into nothing; later confirmed text is dropped until a new segment begins.
func (s *SegmentStore) DeleteSegment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return ErrSegmentNotFound
	}
	s.segments = append(s.segments[:i], s.segments[i+1:]...)
	switch {
	case s.open == i:
		s.open = -1
	case s.open > i:
		s.open--
	}
	return nil
}

// Restore replaces the store content with a saved snapshot. Drafts left
// over from a previous process are finalized since nothing can extend them.
func (s *SegmentStore) Restore(segments []entities.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.segments = cloneSegments(segments)
	s.open = -1
	s.nextSeq = 1
	for i := range s.segments {
		if s.segments[i].IsDraft() {
			s.segments[i].Finalize(s.now())
		}
		if s.segments[i].Seq >= s.nextSeq {
			s.nextSeq = s.segments[i].Seq + 1
		}
	}
}

// RestoreRecords rebuilds finalized segments from persisted records, in the
// order received.
func (s *SegmentStore) RestoreRecords(records []repositories.SegmentRecord) {
	segments := make([]entities.Segment, 0, len(records))
	for i, rec := range records {
		ended := rec.EndTs
		segments = append(segments, entities.Segment{
			ID:        rec.ID,
			Seq:       i + 1,
			Text:      rec.Text,
			Status:    entities.SegmentStatusFinalized,
			StartedAt: rec.StartTs,
			EndedAt:   &ended,
		})
	}
	s.Restore(segments)
}

func (s *SegmentStore) indexLocked(id string) int {
	for i := range s.segments {
		if s.segments[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneSegments(in []entities.Segment) []entities.Segment {
	out := make([]entities.Segment, len(in))
	for i := range in {
		out[i] = cloneSegment(in[i])
	}
	return out
}

func cloneSegment(seg entities.Segment) entities.Segment {
	if seg.EditedText != nil {
		edited := *seg.EditedText
		seg.EditedText = &edited
	}
	if seg.EndedAt != nil {
		ended := *seg.EndedAt
		seg.EndedAt = &ended
	}
	return seg
}
