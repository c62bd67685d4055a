package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	defaultURI            = "mongodb://localhost:27017"
	defaultDatabase       = "consult"
	defaultMaxPoolSize    = 10
	defaultConnectTimeout = 10 * time.Second
	appName               = "consult"
)

// Config holds the MongoDB connection settings
type Config struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

// ValidateConfig fills in defaults for unset fields
func ValidateConfig(config *Config, logger *zap.Logger) error {
	if config == nil {
		return errors.New("mongo config cannot be nil")
	}
	if config.URI == "" {
		config.URI = defaultURI
		logger.Info("Using default MongoDB URI", zap.String("uri", config.URI))
	}
	if config.Database == "" {
		config.Database = defaultDatabase
		logger.Info("Using default MongoDB database", zap.String("database", config.Database))
	}
	if config.MaxPoolSize == 0 {
		config.MaxPoolSize = defaultMaxPoolSize
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	return nil
}

// Client owns the connection and the conversation database
type Client struct {
	conn     *mongo.Client
	Database *mongo.Database
	logger   *zap.Logger
}

// NewClient connects and verifies the primary answers before returning
func NewClient(ctx context.Context, config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(&config, logger); err != nil {
		return nil, err
	}

	opts := options.Client().
		ApplyURI(config.URI).
		SetAppName(appName).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Minute).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(config.ConnectTimeout)

	ctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	conn, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := conn.Ping(ctx, readpref.Primary()); err != nil {
		conn.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("MongoDB connected", zap.String("database", config.Database))
	return &Client{
		conn:     conn,
		Database: conn.Database(config.Database),
		logger:   logger,
	}, nil
}

// Messages returns the message records of the database
func (c *Client) Messages() *MessageRepository {
	return NewMessageRepository(c.Database, c.logger)
}

// Segments returns the segment records of the database
func (c *Client) Segments() *SegmentRepository {
	return NewSegmentRepository(c.Database, c.logger)
}

// Conversations returns the snapshot store of the database
func (c *Client) Conversations() *ConversationStore {
	return NewConversationStore(c.Database, c.logger)
}

func (c *Client) Close(ctx context.Context) error {
	if err := c.conn.Disconnect(ctx); err != nil {
		c.logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
		return err
	}
	return nil
}
