package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/dentalink/consult/domain/entities"
)

type snapshotDocument struct {
	ID           string                 `bson:"_id"`
	Consultation *entities.Consultation `bson:"consultation"`
	UpdatedAt    time.Time              `bson:"updated_at"`
}

// ConversationStore keeps conversation snapshots in MongoDB, one document per conversation
type ConversationStore struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewConversationStore creates a new MongoDB conversation store
func NewConversationStore(db *mongo.Database, logger *zap.Logger) *ConversationStore {
	return &ConversationStore{
		collection: db.Collection("conversations"),
		logger:     logger,
	}
}

// Load implements repositories.ConversationStore
func (s *ConversationStore) Load(ctx context.Context, id string) (*entities.Consultation, error) {
	var doc snapshotDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	return doc.Consultation, nil
}

// Save implements repositories.ConversationStore
func (s *ConversationStore) Save(ctx context.Context, consultation *entities.Consultation) error {
	if consultation == nil {
		return errors.New("consultation cannot be nil")
	}
	if err := consultation.Validate(); err != nil {
		return fmt.Errorf("invalid consultation: %w", err)
	}

	doc := snapshotDocument{
		ID:           consultation.ID,
		Consultation: consultation,
		UpdatedAt:    time.Now(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": consultation.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// Delete implements repositories.ConversationStore
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	s.logger.Info("Conversation snapshot deleted", zap.String("conversation_id", id))
	return nil
}
