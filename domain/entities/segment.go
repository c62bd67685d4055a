package entities

import (
	"errors"
	"strings"
	"time"
)

// SegmentStatus represents the lifecycle state of a transcript segment
type SegmentStatus string

const (
	SegmentStatusDraft     SegmentStatus = "draft"
	SegmentStatusFinalized SegmentStatus = "finalized"
)

// Segment is a contiguous span of recognized speech between one start and one stop
type Segment struct {
	ID         string        `json:"id" bson:"_id"`
	Seq        int           `json:"seq" bson:"seq"`
	Text       string        `json:"text" bson:"text"`
	EditedText *string       `json:"edited_text,omitempty" bson:"edited_text,omitempty"`
	Status     SegmentStatus `json:"status" bson:"status"`
	StartedAt  time.Time     `json:"started_at" bson:"started_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
}

// DisplayText returns the user override when present, otherwise the recognized text
func (s *Segment) DisplayText() string {
	if s.EditedText != nil {
		return *s.EditedText
	}
	return s.Text
}

// IsDraft reports whether the segment still accepts recognized text
func (s *Segment) IsDraft() bool {
	return s.Status == SegmentStatusDraft
}

// AppendText joins text onto the segment with a single space
func (s *Segment) AppendText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if s.Text == "" {
		s.Text = text
		return
	}
	s.Text = strings.TrimSpace(s.Text) + " " + text
}

// Finalize closes the segment at the given time
func (s *Segment) Finalize(at time.Time) {
	s.Status = SegmentStatusFinalized
	s.EndedAt = &at
}

// Validate validates the segment data
func (s *Segment) Validate() error {
	if s.ID == "" {
		return errors.New("segment id is required")
	}
	if s.Status != SegmentStatusDraft && s.Status != SegmentStatusFinalized {
		return errors.New("invalid segment status")
	}
	if s.Status == SegmentStatusFinalized && s.EndedAt == nil {
		return errors.New("finalized segment requires ended_at")
	}
	return nil
}
