package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/domain/repositories"
)

// Records is an in-memory store for messages, segments and snapshots.
// It is suitable for development and single-instance deployments.
type Records struct {
	mu        sync.RWMutex
	messages  map[string][]repositories.MessageRecord // conversation_id -> messages
	segments  map[string][]repositories.SegmentRecord // conversation_id -> segments
	snapshots map[string]*entities.Consultation       // conversation_id -> snapshot
	ids       map[string]struct{}                     // record ids already stored
}

// NewRecords creates an empty in-memory store
func NewRecords() *Records {
	return &Records{
		messages:  make(map[string][]repositories.MessageRecord),
		segments:  make(map[string][]repositories.SegmentRecord),
		snapshots: make(map[string]*entities.Consultation),
		ids:       make(map[string]struct{}),
	}
}

// Messages returns the message repository view
func (r *Records) Messages() repositories.MessageRepository {
	return messageRepository{r}
}

// Segments returns the segment repository view
func (r *Records) Segments() repositories.SegmentRepository {
	return segmentRepository{r}
}

// Store returns the conversation store view
func (r *Records) Store() repositories.ConversationStore {
	return conversationStore{r}
}

func (r *Records) claimLocked(id string) error {
	if id == "" {
		return errors.New("record ID cannot be empty")
	}
	if _, exists := r.ids[id]; exists {
		return errors.New("record with this ID already exists")
	}
	r.ids[id] = struct{}{}
	return nil
}

type messageRepository struct{ *Records }

func (m messageRepository) Create(ctx context.Context, conversationID string, record repositories.MessageRecord) error {
	if conversationID == "" {
		return errors.New("conversation ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.claimLocked(record.ID); err != nil {
		return err
	}
	m.messages[conversationID] = append(m.messages[conversationID], record)
	return nil
}

func (m messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]repositories.MessageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]repositories.MessageRecord(nil), m.messages[conversationID]...), nil
}

type segmentRepository struct{ *Records }

func (s segmentRepository) Create(ctx context.Context, conversationID string, record repositories.SegmentRecord) error {
	if conversationID == "" {
		return errors.New("conversation ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.claimLocked(record.ID); err != nil {
		return err
	}
	s.segments[conversationID] = append(s.segments[conversationID], record)
	return nil
}

func (s segmentRepository) ListByConversation(ctx context.Context, conversationID string) ([]repositories.SegmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]repositories.SegmentRecord(nil), s.segments[conversationID]...), nil
}

type conversationStore struct{ *Records }

func (c conversationStore) Load(ctx context.Context, id string) (*entities.Consultation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, exists := c.snapshots[id]
	if !exists {
		return nil, nil
	}
	return copyConsultation(snap), nil
}

func (c conversationStore) Save(ctx context.Context, consultation *entities.Consultation) error {
	if consultation == nil {
		return errors.New("consultation cannot be nil")
	}
	if err := consultation.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots[consultation.ID] = copyConsultation(consultation)
	return nil
}

func (c conversationStore) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.snapshots, id)
	return nil
}

// copyConsultation copies the slices a caller could append to or edit
func copyConsultation(in *entities.Consultation) *entities.Consultation {
	out := *in
	out.Messages = append([]entities.Message(nil), in.Messages...)
	out.Segments = append([]entities.Segment(nil), in.Segments...)
	out.Triage = in.Triage.Clone()
	return &out
}
