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

	"github.com/dentalink/consult/domain/repositories"
)

type messageDocument struct {
	ConversationID             string `bson:"conversation_id"`
	repositories.MessageRecord `bson:",inline"`
}

type segmentDocument struct {
	ConversationID             string `bson:"conversation_id"`
	repositories.SegmentRecord `bson:",inline"`
}

// MessageRepository stores conversation messages in MongoDB
type MessageRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMessageRepository creates a new MongoDB message repository
func NewMessageRepository(db *mongo.Database, logger *zap.Logger) *MessageRepository {
	collection := db.Collection("messages")
	ensureIndexes(collection, logger, "created_at")
	return &MessageRepository{collection: collection, logger: logger}
}

// Create implements repositories.MessageRepository
func (r *MessageRepository) Create(ctx context.Context, conversationID string, record repositories.MessageRecord) error {
	if conversationID == "" {
		return errors.New("conversation ID cannot be empty")
	}
	if record.ID == "" {
		return errors.New("message ID cannot be empty")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, messageDocument{ConversationID: conversationID, MessageRecord: record})
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByConversation implements repositories.MessageRepository
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]repositories.MessageRecord, error) {
	var docs []messageDocument
	if err := findOrdered(ctx, r.collection, conversationID, "created_at", &docs); err != nil {
		r.logger.Error("Failed to list messages", zap.Error(err), zap.String("conversation_id", conversationID))
		return nil, err
	}

	records := make([]repositories.MessageRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.MessageRecord)
	}
	return records, nil
}

// SegmentRepository stores finalized transcript segments in MongoDB
type SegmentRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewSegmentRepository creates a new MongoDB segment repository
func NewSegmentRepository(db *mongo.Database, logger *zap.Logger) *SegmentRepository {
	collection := db.Collection("segments")
	ensureIndexes(collection, logger, "start_ts")
	return &SegmentRepository{collection: collection, logger: logger}
}

// Create implements repositories.SegmentRepository
func (r *SegmentRepository) Create(ctx context.Context, conversationID string, record repositories.SegmentRecord) error {
	if conversationID == "" {
		return errors.New("conversation ID cannot be empty")
	}
	if record.ID == "" {
		return errors.New("segment ID cannot be empty")
	}

	_, err := r.collection.InsertOne(ctx, segmentDocument{ConversationID: conversationID, SegmentRecord: record})
	if err != nil {
		return fmt.Errorf("failed to create segment: %w", err)
	}
	return nil
}

// ListByConversation implements repositories.SegmentRepository
func (r *SegmentRepository) ListByConversation(ctx context.Context, conversationID string) ([]repositories.SegmentRecord, error) {
	var docs []segmentDocument
	if err := findOrdered(ctx, r.collection, conversationID, "start_ts", &docs); err != nil {
		r.logger.Error("Failed to list segments", zap.Error(err), zap.String("conversation_id", conversationID))
		return nil, err
	}

	records := make([]repositories.SegmentRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.SegmentRecord)
	}
	return records, nil
}

// findOrdered decodes every document of a conversation sorted by timeField.
// Ids are time-ordered uuids, so they break ties in creation order.
func findOrdered(ctx context.Context, collection *mongo.Collection, conversationID, timeField string, out interface{}) error {
	filter := bson.M{"conversation_id": conversationID}
	opts := options.Find().SetSort(bson.D{
		{Key: timeField, Value: 1},
		{Key: "_id", Value: 1},
	})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", collection.Name(), err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", collection.Name(), err)
	}
	return nil
}

func ensureIndexes(collection *mongo.Collection, logger *zap.Logger, timeField string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{
				{Key: "conversation_id", Value: 1},
				{Key: timeField, Value: 1},
			},
		})
		if err != nil {
			logger.Error("Failed to create indexes",
				zap.String("collection", collection.Name()),
				zap.Error(err))
			return
		}
		logger.Info("Indexes created successfully", zap.String("collection", collection.Name()))
	}()
}
