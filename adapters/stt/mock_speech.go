package stt

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dentalink/consult/domain/repositories"
)

// mockPhrases are recognized one after another as audio accumulates
var mockPhrases = []string{
	"pacientul acuză durere la măseaua de minte",
	"durerea a început acum trei zile",
	"se accentuează la rece și noaptea",
	"nu a luat analgezice",
}

// WordBytes is how much audio the mock needs to "hear" one more word
const WordBytes = 3200

// MockRecognizer is a placeholder recognizer for development. It reveals
// canned phrases word by word as audio arrives.
type MockRecognizer struct {
	logger *zap.Logger
}

// NewMockRecognizer creates a new mock recognizer
func NewMockRecognizer(logger *zap.Logger) *MockRecognizer {
	return &MockRecognizer{logger: logger}
}

// Start opens a mock recognition stream
func (m *MockRecognizer) Start(ctx context.Context, config repositories.AudioConfig) (repositories.RecognitionStream, error) {
	m.logger.Info("Initializing mock streaming recognition",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding),
		zap.String("language", config.Language))

	s := &mockStream{
		ctx:     ctx,
		logger:  m.logger,
		results: make(chan repositories.RecognitionResult, resultBuffer),
	}
	go func() {
		<-ctx.Done()
		s.finish(ctx.Err())
	}()
	return s, nil
}

type mockStream struct {
	ctx     context.Context
	logger  *zap.Logger
	results chan repositories.RecognitionResult

	mu       sync.Mutex
	received int
	phrase   int
	words    int
	stopped  bool
	ended    bool
	err      error
}

func (m *mockStream) SendAudio(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.ended {
		return errors.New("recognition stream is closed")
	}

	m.received += len(data)
	heard := m.received / WordBytes
	for m.words < heard {
		m.words++
		words := strings.Fields(mockPhrases[m.phrase%len(mockPhrases)])
		if m.words < len(words) {
			m.emitLocked(repositories.RecognitionResult{Text: strings.Join(words[:m.words], " ")})
			continue
		}
		m.emitLocked(repositories.RecognitionResult{Text: strings.Join(words, " "), IsFinal: true})
		m.phrase++
		m.words = 0
		m.received = 0
		heard = 0
	}
	return nil
}

// emitLocked drops results the consumer is too slow for, as a real
// recognizer would skip interim hypotheses
func (m *mockStream) emitLocked(res repositories.RecognitionResult) {
	select {
	case m.results <- res:
	default:
		m.logger.Debug("Mock recognizer dropped a result", zap.Bool("final", res.IsFinal))
	}
}

func (m *mockStream) Results() <-chan repositories.RecognitionResult {
	return m.results
}

// Stop confirms whatever was heard of the current phrase and ends the stream
func (m *mockStream) Stop() error {
	m.mu.Lock()
	if m.stopped || m.ended {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	if m.words > 0 {
		words := strings.Fields(mockPhrases[m.phrase%len(mockPhrases)])
		m.emitLocked(repositories.RecognitionResult{Text: strings.Join(words[:m.words], " "), IsFinal: true})
		m.phrase++
		m.words = 0
	}
	m.mu.Unlock()

	m.finish(nil)
	return nil
}

func (m *mockStream) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *mockStream) finish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true
	if !m.stopped {
		m.err = err
	}
	close(m.results)
}
