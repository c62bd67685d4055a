package entities

import (
	"errors"
	"time"
)

// ConsultationStatus represents the status of a consultation
type ConsultationStatus string

const (
	ConsultationStatusActive ConsultationStatus = "active"
	ConsultationStatusClosed ConsultationStatus = "closed"
)

// Consultation is the locally cached snapshot of one conversation,
// restored on reload before the persistence API is consulted.
type Consultation struct {
	ID               string             `json:"id"`
	ClinicianID      string             `json:"clinician_id,omitempty"`
	Language         string             `json:"language"`
	Status           ConsultationStatus `json:"status"`
	CreatedAt        time.Time          `json:"created_at"`
	LastActiveAt     time.Time          `json:"last_active_at"`
	Messages         []Message          `json:"messages"`
	Segments         []Segment          `json:"segments"`
	Triage           TriageContext      `json:"triage"`
	LastSubmittedSeq int                `json:"last_submitted_seq"`
}

// NewConsultation creates an empty consultation
func NewConsultation(id, language string) *Consultation {
	now := time.Now()
	return &Consultation{
		ID:           id,
		Language:     language,
		Status:       ConsultationStatusActive,
		CreatedAt:    now,
		LastActiveAt: now,
		Messages:     make([]Message, 0),
		Segments:     make([]Segment, 0),
		Triage:       NewTriageContext(),
	}
}

// Touch records activity on the consultation
func (c *Consultation) Touch(now time.Time) {
	c.LastActiveAt = now
}

// IdleSince reports whether the consultation saw no activity for at least ttl
func (c *Consultation) IdleSince(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.LastActiveAt) >= ttl
}

// Close marks the consultation as closed
func (c *Consultation) Close(now time.Time) {
	c.Status = ConsultationStatusClosed
	c.Touch(now)
}

// Validate validates the consultation data
func (c *Consultation) Validate() error {
	if c.ID == "" {
		return errors.New("consultation id is required")
	}
	if c.Status != ConsultationStatusActive && c.Status != ConsultationStatusClosed {
		return errors.New("invalid consultation status")
	}
	for i := range c.Messages {
		if err := c.Messages[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.Segments {
		if err := c.Segments[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
