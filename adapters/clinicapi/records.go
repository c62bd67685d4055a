package clinicapi

import (
	"context"
	"errors"
	"net/url"

	"go.uber.org/zap"

	"github.com/dentalink/consult/domain/repositories"
)

// MessageRepository persists conversation messages through the clinic API
type MessageRepository struct {
	client *Client
}

// NewMessageRepository creates a message repository on top of client
func NewMessageRepository(client *Client) *MessageRepository {
	return &MessageRepository{client: client}
}

// Create implements repositories.MessageRepository
func (r *MessageRepository) Create(ctx context.Context, conversationID string, record repositories.MessageRecord) error {
	if conversationID == "" {
		return errors.New("conversation ID cannot be empty")
	}
	return r.client.post(ctx, recordsPath(conversationID, "messages"), record)
}

// ListByConversation implements repositories.MessageRepository
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]repositories.MessageRecord, error) {
	var records []repositories.MessageRecord
	if err := r.client.get(ctx, recordsPath(conversationID, "messages"), &records); err != nil {
		r.client.logger.Error("Failed to list messages", zap.Error(err), zap.String("conversation_id", conversationID))
		return nil, err
	}
	return records, nil
}

// SegmentRepository persists finalized segments through the clinic API
type SegmentRepository struct {
	client *Client
}

// NewSegmentRepository creates a segment repository on top of client
func NewSegmentRepository(client *Client) *SegmentRepository {
	return &SegmentRepository{client: client}
}

// Create implements repositories.SegmentRepository
func (r *SegmentRepository) Create(ctx context.Context, conversationID string, record repositories.SegmentRecord) error {
	if conversationID == "" {
		return errors.New("conversation ID cannot be empty")
	}
	return r.client.post(ctx, recordsPath(conversationID, "segments"), record)
}

// ListByConversation implements repositories.SegmentRepository
func (r *SegmentRepository) ListByConversation(ctx context.Context, conversationID string) ([]repositories.SegmentRecord, error) {
	var records []repositories.SegmentRecord
	if err := r.client.get(ctx, recordsPath(conversationID, "segments"), &records); err != nil {
		r.client.logger.Error("Failed to list segments", zap.Error(err), zap.String("conversation_id", conversationID))
		return nil, err
	}
	return records, nil
}

func recordsPath(conversationID, kind string) string {
	return "/conversations/" + url.PathEscape(conversationID) + "/" + kind
}
