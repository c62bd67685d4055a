package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Backend names accepted by the *_BACKEND variables
const (
	BackendMock    = "mock"
	BackendGemini  = "gemini"
	BackendHTTP    = "http"
	BackendGoogle  = "google"
	BackendMemory  = "memory"
	BackendMongo   = "mongo"
	BackendAPI     = "api"
	BackendSQLite  = "sqlite"
	BackendNone    = "none"
	defaultEnvFile = ".env"
)

// Config holds the environment driven configuration for the consult server
type Config struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Authentication
	JWTSecret   string        `env:"JWT_SECRET"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
	AuthEnabled bool          `env:"AUTH_ENABLED" envDefault:"true"`

	// Inference
	InferenceBackend string  `env:"INFERENCE_BACKEND" envDefault:"mock"` // mock, gemini or http
	GeminiAPIKey     string  `env:"GEMINI_API_KEY"`
	GeminiModel      string  `env:"GEMINI_MODEL"`
	GeminiTemp       float32 `env:"GEMINI_TEMPERATURE" envDefault:"0.4"`
	InferenceURL     string  `env:"INFERENCE_URL"`

	// Speech recognition
	SpeechBackend      string `env:"SPEECH_BACKEND" envDefault:"mock"` // mock, google or none
	SpeechLanguage     string `env:"SPEECH_LANGUAGE" envDefault:"ro-RO"`
	SpeechSampleRate   int    `env:"SPEECH_SAMPLE_RATE" envDefault:"16000"`
	SpeechEncoding     string `env:"SPEECH_ENCODING" envDefault:"LINEAR16"`
	MaxRestartAttempts int    `env:"SPEECH_MAX_RESTARTS" envDefault:"3"`

	// Persistence of messages and segments
	PersistenceBackend string `env:"PERSISTENCE_BACKEND" envDefault:"memory"` // memory, mongo, api or sqlite
	MongoURI           string `env:"MONGODB_URI"`
	MongoDatabase      string `env:"MONGODB_DATABASE" envDefault:"consult"`
	ClinicAPIURL       string `env:"CLINIC_API_URL"`
	ClinicAPIToken     string `env:"CLINIC_API_TOKEN"`

	// Local conversation snapshots
	SnapshotBackend string `env:"SNAPSHOT_BACKEND" envDefault:"sqlite"` // memory, mongo or sqlite
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"consult.sqlite"`

	// Pipeline tuning
	StreamWindow  time.Duration `env:"STREAM_WINDOW" envDefault:"50ms"`
	FlushGrace    time.Duration `env:"FLUSH_GRACE" envDefault:"300ms"`
	IdleTTL       time.Duration `env:"CONVERSATION_IDLE_TTL" envDefault:"30m"`
	CleanupPeriod time.Duration `env:"CONVERSATION_CLEANUP_PERIOD" envDefault:"5m"`
}

// LoadEnvFiles loads .env style files that exist, earlier paths first.
// Variables already set in the environment win.
func LoadEnvFiles(paths ...string) {
	if len(paths) == 0 {
		paths = []string{defaultEnvFile}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}

// Load parses environment variables into Config
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.InferenceBackend = normalize(cfg.InferenceBackend)
	cfg.SpeechBackend = normalize(cfg.SpeechBackend)
	cfg.PersistenceBackend = normalize(cfg.PersistenceBackend)
	cfg.SnapshotBackend = normalize(cfg.SnapshotBackend)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every selected backend has what it needs
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.AuthEnabled && strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED is true")
	}

	switch c.InferenceBackend {
	case BackendMock:
	case BackendGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when INFERENCE_BACKEND is gemini")
		}
	case BackendHTTP:
		if c.InferenceURL == "" {
			return fmt.Errorf("INFERENCE_URL is required when INFERENCE_BACKEND is http")
		}
	default:
		return fmt.Errorf("unsupported INFERENCE_BACKEND %q", c.InferenceBackend)
	}

	switch c.SpeechBackend {
	case BackendMock, BackendGoogle, BackendNone:
	default:
		return fmt.Errorf("unsupported SPEECH_BACKEND %q", c.SpeechBackend)
	}

	switch c.PersistenceBackend {
	case BackendMemory, BackendSQLite:
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when PERSISTENCE_BACKEND is mongo")
		}
	case BackendAPI:
		if c.ClinicAPIURL == "" {
			return fmt.Errorf("CLINIC_API_URL is required when PERSISTENCE_BACKEND is api")
		}
	default:
		return fmt.Errorf("unsupported PERSISTENCE_BACKEND %q", c.PersistenceBackend)
	}

	switch c.SnapshotBackend {
	case BackendMemory, BackendSQLite:
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when SNAPSHOT_BACKEND is mongo")
		}
	default:
		return fmt.Errorf("unsupported SNAPSHOT_BACKEND %q", c.SnapshotBackend)
	}

	if c.IdleTTL <= 0 {
		return fmt.Errorf("CONVERSATION_IDLE_TTL must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// UsesMongo reports whether any backend needs a MongoDB connection
func (c *Config) UsesMongo() bool {
	return c.PersistenceBackend == BackendMongo || c.SnapshotBackend == BackendMongo
}

// UsesSQLite reports whether any backend needs the SQLite database
func (c *Config) UsesSQLite() bool {
	return c.PersistenceBackend == BackendSQLite || c.SnapshotBackend == BackendSQLite
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
