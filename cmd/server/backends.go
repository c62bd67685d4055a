package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dentalink/consult/adapters/clinicapi"
	"github.com/dentalink/consult/adapters/llm"
	"github.com/dentalink/consult/adapters/memory"
	"github.com/dentalink/consult/adapters/mongo"
	"github.com/dentalink/consult/adapters/sqlite"
	"github.com/dentalink/consult/adapters/stt"
	"github.com/dentalink/consult/domain/repositories"
	"github.com/dentalink/consult/internal/config"
	"github.com/dentalink/consult/internal/streaming"
	"github.com/dentalink/consult/internal/websocket"
	"github.com/dentalink/consult/usecase"
)

// backends holds the adapters selected by configuration
type backends struct {
	inference  repositories.InferenceChannel
	recognizer repositories.SpeechRecognizer
	messages   repositories.MessageRepository
	segments   repositories.SegmentRepository
	store      repositories.ConversationStore

	closers []func()
}

func newBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	switch cfg.InferenceBackend {
	case config.BackendGemini:
		gemini, err := llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			Temperature: cfg.GeminiTemp,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		b.inference = gemini
	case config.BackendHTTP:
		c, err := clinicapi.NewClient(clinicapi.Config{BaseURL: cfg.InferenceURL, Token: cfg.ClinicAPIToken}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create inference client: %w", err)
		}
		b.inference = c
	default:
		b.inference = llm.NewMockInference()
	}

	switch cfg.SpeechBackend {
	case config.BackendGoogle:
		google, err := stt.NewGoogleRecognizer(ctx, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create speech client: %w", err)
		}
		b.recognizer = google
		b.closers = append(b.closers, func() { google.Close() })
	case config.BackendNone:
		logger.Warn("Speech recognition disabled")
	default:
		b.recognizer = stt.NewMockRecognizer(logger)
	}

	var mongoClient *mongo.Client
	if cfg.UsesMongo() {
		mongoClient, err = mongo.NewClient(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		b.closers = append(b.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mongoClient.Close(ctx)
		})
	}

	var db *sqlite.Store
	if cfg.UsesSQLite() {
		db, err = sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		b.closers = append(b.closers, func() { db.Close() })
		logger.Info("SQLite database opened", zap.String("path", cfg.SQLitePath))
	}

	records := memory.NewRecords()

	switch cfg.PersistenceBackend {
	case config.BackendMongo:
		b.messages = mongoClient.Messages()
		b.segments = mongoClient.Segments()
	case config.BackendAPI:
		c, err := clinicapi.NewClient(clinicapi.Config{BaseURL: cfg.ClinicAPIURL, Token: cfg.ClinicAPIToken}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create clinic API client: %w", err)
		}
		b.messages = clinicapi.NewMessageRepository(c)
		b.segments = clinicapi.NewSegmentRepository(c)
	case config.BackendSQLite:
		b.messages = db.Messages()
		b.segments = db.Segments()
	default:
		b.messages = records.Messages()
		b.segments = records.Segments()
	}

	switch cfg.SnapshotBackend {
	case config.BackendMongo:
		b.store = mongoClient.Conversations()
	case config.BackendSQLite:
		b.store = db
	default:
		b.store = records.Store()
	}

	return b, nil
}

// controllerFactory builds conversation controllers on top of the backends
func (b *backends) controllerFactory(cfg *config.Config, logger *zap.Logger) websocket.ControllerFactory {
	return func(conversationID string, observer usecase.Observer) *usecase.ConversationController {
		return usecase.NewConversationController(usecase.ControllerConfig{
			ConversationID: conversationID,
			Language:       cfg.SpeechLanguage,
			Transcription: usecase.TranscriptionConfig{
				Audio: repositories.AudioConfig{
					SampleRate: cfg.SpeechSampleRate,
					Encoding:   cfg.SpeechEncoding,
					Language:   cfg.SpeechLanguage,
				},
				FlushGrace:         cfg.FlushGrace,
				MaxRestartAttempts: cfg.MaxRestartAttempts,
			},
			Streaming: streaming.Config{Window: cfg.StreamWindow},
		}, usecase.ControllerDeps{
			Inference:  b.inference,
			Recognizer: b.recognizer,
			Messages:   b.messages,
			Segments:   b.segments,
			Store:      b.store,
			Observer:   observer,
		}, logger)
	}
}

// Close releases backend connections in reverse order of creation
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
