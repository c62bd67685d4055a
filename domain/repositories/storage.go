package repositories

import (
	"context"
	"time"

	"github.com/dentalink/consult/domain/entities"
)

// MessageRecord is the persisted form of a message
type MessageRecord struct {
	ID         string               `json:"id" bson:"_id"`
	Role       entities.MessageRole `json:"role" bson:"role"`
	Content    string               `json:"content" bson:"content"`
	OutputType entities.OutputType  `json:"output_type,omitempty" bson:"output_type,omitempty"`
	CreatedAt  time.Time            `json:"createdAt" bson:"created_at"`
}

// SegmentRecord is the persisted form of a finalized segment
type SegmentRecord struct {
	ID      string    `json:"id" bson:"_id"`
	Text    string    `json:"text" bson:"text"`
	StartTs time.Time `json:"startTs" bson:"start_ts"`
	EndTs   time.Time `json:"endTs" bson:"end_ts"`
}

// MessageRepository defines data access methods for conversation messages
type MessageRepository interface {
	Create(ctx context.Context, conversationID string, record MessageRecord) error
	// ListByConversation returns records in the order they were created
	ListByConversation(ctx context.Context, conversationID string) ([]MessageRecord, error)
}

// SegmentRepository defines data access methods for transcript segments
type SegmentRepository interface {
	Create(ctx context.Context, conversationID string, record SegmentRecord) error
	ListByConversation(ctx context.Context, conversationID string) ([]SegmentRecord, error)
}

// ConversationStore keeps a local snapshot of each conversation
type ConversationStore interface {
	// Load returns nil without error when no snapshot exists
	Load(ctx context.Context, id string) (*entities.Consultation, error)
	Save(ctx context.Context, consultation *entities.Consultation) error
	Delete(ctx context.Context, id string) error
}
