package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/domain/repositories"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id        TEXT PRIMARY KEY,
	payload   TEXT NOT NULL,
	updatedAt REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id             TEXT PRIMARY KEY,
	conversationId TEXT NOT NULL,
	role           TEXT NOT NULL,
	content        TEXT NOT NULL,
	outputType     TEXT NOT NULL DEFAULT '',
	createdAt      REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversationId, createdAt);
CREATE TABLE IF NOT EXISTS segments (
	id             TEXT PRIMARY KEY,
	conversationId TEXT NOT NULL,
	text           TEXT NOT NULL,
	startTs        REAL NOT NULL,
	endTs          REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_segments_conversation ON segments(conversationId, startTs);
`

// Store keeps conversation snapshots and records in a local SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path with WAL.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Messages returns the message repository backed by this database.
func (s *Store) Messages() repositories.MessageRepository { return messageRepository{s} }

// Segments returns the segment repository backed by this database.
func (s *Store) Segments() repositories.SegmentRepository { return segmentRepository{s} }

// Load implements repositories.ConversationStore.
func (s *Store) Load(ctx context.Context, id string) (*entities.Consultation, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM conversations WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	var c entities.Consultation
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return &c, nil
}

// Save implements repositories.ConversationStore.
func (s *Store) Save(ctx context.Context, consultation *entities.Consultation) error {
	if consultation == nil {
		return errors.New("consultation cannot be nil")
	}
	if err := consultation.Validate(); err != nil {
		return fmt.Errorf("invalid consultation: %w", err)
	}

	payload, err := json.Marshal(consultation)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, payload, updatedAt) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updatedAt = excluded.updatedAt
	`, consultation.ID, string(payload), unixFromTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// Delete implements repositories.ConversationStore.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

type messageRepository struct{ *Store }

func (r messageRepository) Create(ctx context.Context, conversationID string, record repositories.MessageRecord) error {
	if conversationID == "" {
		return errors.New("conversation ID cannot be empty")
	}
	if record.ID == "" {
		return errors.New("message ID cannot be empty")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversationId, role, content, outputType, createdAt)
		VALUES (?, ?, ?, ?, ?, ?)
	`, record.ID, conversationID, string(record.Role), record.Content, string(record.OutputType), unixFromTime(record.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]repositories.MessageRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role, content, outputType, createdAt
		FROM messages
		WHERE conversationId = ?
		ORDER BY createdAt ASC, rowid ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var records []repositories.MessageRecord
	for rows.Next() {
		var rec repositories.MessageRecord
		var role, outputType string
		var createdAt float64
		if err := rows.Scan(&rec.ID, &role, &rec.Content, &outputType, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		rec.Role = entities.MessageRole(role)
		rec.OutputType = entities.OutputType(outputType)
		rec.CreatedAt = timeFromUnix(createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

type segmentRepository struct{ *Store }

func (r segmentRepository) Create(ctx context.Context, conversationID string, record repositories.SegmentRecord) error {
	if conversationID == "" {
		return errors.New("conversation ID cannot be empty")
	}
	if record.ID == "" {
		return errors.New("segment ID cannot be empty")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO segments (id, conversationId, text, startTs, endTs) VALUES (?, ?, ?, ?, ?)
	`, record.ID, conversationID, record.Text, unixFromTime(record.StartTs), unixFromTime(record.EndTs))
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

func (r segmentRepository) ListByConversation(ctx context.Context, conversationID string) ([]repositories.SegmentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, text, startTs, endTs
		FROM segments
		WHERE conversationId = ?
		ORDER BY startTs ASC, rowid ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var records []repositories.SegmentRecord
	for rows.Next() {
		var rec repositories.SegmentRecord
		var startTs, endTs float64
		if err := rows.Scan(&rec.ID, &rec.Text, &startTs, &endTs); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		rec.StartTs = timeFromUnix(startTs)
		rec.EndTs = timeFromUnix(endTs)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func unixFromTime(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(f float64) time.Time {
	if f == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
