package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/domain/repositories"
)

func TestValidateConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := Config{}
	if err := ValidateConfig(&cfg, logger); err != nil {
		t.Fatalf("Expected defaults applied, got %v", err)
	}
	if cfg.URI != defaultURI || cfg.Database != defaultDatabase {
		t.Errorf("Expected default URI and database, got %+v", cfg)
	}
	if cfg.MaxPoolSize != defaultMaxPoolSize || cfg.ConnectTimeout != defaultConnectTimeout {
		t.Errorf("Expected default pool and timeout, got %+v", cfg)
	}

	custom := Config{URI: "mongodb://db:27017", Database: "clinic", MaxPoolSize: 3, ConnectTimeout: time.Second}
	if err := ValidateConfig(&custom, logger); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if custom.Database != "clinic" || custom.MaxPoolSize != 3 || custom.ConnectTimeout != time.Second {
		t.Errorf("Expected explicit settings kept, got %+v", custom)
	}

	if err := ValidateConfig(nil, logger); err == nil {
		t.Error("Expected error for nil config")
	}
}

// TestMongoRepositories_Integration requires a running MongoDB instance
// (skipped if MONGODB_URI is not set)
func TestMongoRepositories_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	client, err := NewClient(ctx, Config{URI: mongoURI, Database: "consult_test"}, logger)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Close(ctx)
	defer client.Database.Drop(ctx)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("MessagesInCreationOrder", func(t *testing.T) {
		repo := client.Messages()
		records := []repositories.MessageRecord{
			{ID: "m1", Role: entities.MessageRoleUser, Content: "Mă doare", CreatedAt: base},
			{ID: "m2", Role: entities.MessageRoleAssistant, Content: "De când?", OutputType: entities.OutputTypeText, CreatedAt: base.Add(time.Second)},
		}
		for _, rec := range records {
			if err := repo.Create(ctx, "conv-1", rec); err != nil {
				t.Fatalf("Failed to create message: %v", err)
			}
		}
		if err := repo.Create(ctx, "conv-2", repositories.MessageRecord{ID: "other", Role: entities.MessageRoleUser, Content: "x"}); err != nil {
			t.Fatalf("Failed to create message: %v", err)
		}

		got, err := repo.ListByConversation(ctx, "conv-1")
		if err != nil {
			t.Fatalf("Failed to list messages: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 messages, got %d", len(got))
		}
		if got[0].ID != "m1" || got[1].OutputType != entities.OutputTypeText {
			t.Errorf("Unexpected records %+v", got)
		}
		if !got[0].CreatedAt.Equal(base) {
			t.Errorf("Expected created_at %v, got %v", base, got[0].CreatedAt)
		}
	})

	t.Run("Segments", func(t *testing.T) {
		repo := client.Segments()
		err := repo.Create(ctx, "conv-1", repositories.SegmentRecord{ID: "s1", Text: "notă", StartTs: base, EndTs: base.Add(time.Minute)})
		if err != nil {
			t.Fatalf("Failed to create segment: %v", err)
		}

		got, err := repo.ListByConversation(ctx, "conv-1")
		if err != nil {
			t.Fatalf("Failed to list segments: %v", err)
		}
		if len(got) != 1 || got[0].Text != "notă" {
			t.Errorf("Unexpected segments %+v", got)
		}
	})

	t.Run("ConversationStore", func(t *testing.T) {
		store := client.Conversations()

		missing, err := store.Load(ctx, "absent")
		if err != nil || missing != nil {
			t.Fatalf("Expected nil without error for a missing snapshot, got %v, %v", missing, err)
		}

		conv := entities.NewConsultation("conv-1", "ro-RO")
		conv.Triage = entities.TriageContext{State: entities.TriageStateClarifying, Round: 2, LastQuestions: []string{"De când?"}}
		if err := store.Save(ctx, conv); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}
		conv.Triage.Round = 3
		if err := store.Save(ctx, conv); err != nil {
			t.Fatalf("Failed to save again: %v", err)
		}

		loaded, err := store.Load(ctx, "conv-1")
		if err != nil {
			t.Fatalf("Failed to load: %v", err)
		}
		if loaded.Triage.Round != 3 || loaded.Triage.LastQuestions[0] != "De când?" {
			t.Errorf("Unexpected triage %+v", loaded.Triage)
		}

		if err := store.Delete(ctx, "conv-1"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if gone, _ := store.Load(ctx, "conv-1"); gone != nil {
			t.Error("Expected snapshot deleted")
		}
	})
}
