package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/domain/repositories"
)

type fakeStream struct {
	results   chan repositories.RecognitionResult
	closeOnce sync.Once

	mu      sync.Mutex
	audio   [][]byte
	stopped bool
	ended   bool
	err     error
	onStop  func(*fakeStream)
}

func newFakeStream(onStop func(*fakeStream)) *fakeStream {
	return &fakeStream{
		results: make(chan repositories.RecognitionResult, 32),
		onStop:  onStop,
	}
}

func (s *fakeStream) SendAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("stream stopped")
	}
	s.audio = append(s.audio, data)
	return nil
}

func (s *fakeStream) Results() <-chan repositories.RecognitionResult {
	return s.results
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	onStop := s.onStop
	s.mu.Unlock()
	if onStop != nil {
		go onStop(s)
	}
	return nil
}

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *fakeStream) isEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *fakeStream) partial(text string) {
	s.results <- repositories.RecognitionResult{Text: text}
}

func (s *fakeStream) final(text string) {
	s.results <- repositories.RecognitionResult{Text: text, IsFinal: true}
}

func (s *fakeStream) end(err error) {
	s.mu.Lock()
	s.err = err
	s.ended = true
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.results) })
}

type fakeRecognizer struct {
	mu        sync.Mutex
	streams   []*fakeStream
	configs   []repositories.AudioConfig
	startErrs []error
	onStop    func(*fakeStream)

	// startDelay holds Start open so concurrent callers overlap
	startDelay time.Duration
}

func (r *fakeRecognizer) Start(ctx context.Context, cfg repositories.AudioConfig) (repositories.RecognitionStream, error) {
	r.mu.Lock()
	delay := r.startDelay
	r.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs = append(r.configs, cfg)
	if len(r.startErrs) > 0 {
		err := r.startErrs[0]
		r.startErrs = r.startErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := newFakeStream(r.onStop)
	r.streams = append(r.streams, s)
	go func() {
		<-ctx.Done()
		s.end(ctx.Err())
	}()
	return s, nil
}

func (r *fakeRecognizer) stream(i int) *fakeStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.streams) {
		return nil
	}
	return r.streams[i]
}

func (r *fakeRecognizer) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.configs)
}

type stateEvent struct {
	state TranscriptionState
	err   error
}

type fakeListener struct {
	mu       sync.Mutex
	partials []string
	finals   []string
	states   []stateEvent
}

func (l *fakeListener) OnPartial(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.partials = append(l.partials, text)
}

func (l *fakeListener) OnFinal(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finals = append(l.finals, text)
}

func (l *fakeListener) OnStateChange(state TranscriptionState, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, stateEvent{state, err})
}

func (l *fakeListener) finalTexts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.finals...)
}

func (l *fakeListener) lastState() stateEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.states) == 0 {
		return stateEvent{}
	}
	return l.states[len(l.states)-1]
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// scriptedChannel replies with fixed chunks, or fails after them
type scriptedChannel struct {
	mu       sync.Mutex
	replies  []string
	failWith error
	gate     chan struct{}
	requests []repositories.InferenceRequest
}

func (c *scriptedChannel) Stream(ctx context.Context, req repositories.InferenceRequest) (io.ReadCloser, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	reply := ""
	if len(c.replies) > 0 {
		reply = c.replies[0]
		c.replies = c.replies[1:]
	}
	failWith := c.failWith
	gate := c.gate
	c.mu.Unlock()

	pr, pw := io.Pipe()
	go func() {
		if gate != nil {
			<-gate
		}
		for _, chunk := range chunkString(reply, 8) {
			if _, err := pw.Write([]byte(chunk)); err != nil {
				return
			}
		}
		if failWith != nil {
			pw.CloseWithError(failWith)
			return
		}
		pw.Close()
	}()
	return pr, nil
}

func (c *scriptedChannel) lastRequest() repositories.InferenceRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func chunkString(s string, size int) []string {
	var out []string
	for len(s) > 0 {
		n := size
		if n > len(s) {
			n = len(s)
		}
		out = append(out, s[:n])
		s = s[n:]
	}
	return out
}

type memoryRecords struct {
	mu       sync.Mutex
	messages map[string][]repositories.MessageRecord
	segments map[string][]repositories.SegmentRecord
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{
		messages: make(map[string][]repositories.MessageRecord),
		segments: make(map[string][]repositories.SegmentRecord),
	}
}

type memoryMessages struct{ *memoryRecords }

func (m memoryMessages) Create(ctx context.Context, conversationID string, rec repositories.MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[conversationID] = append(m.messages[conversationID], rec)
	return nil
}

func (m memoryMessages) ListByConversation(ctx context.Context, conversationID string) ([]repositories.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]repositories.MessageRecord(nil), m.messages[conversationID]...), nil
}

type memorySegments struct{ *memoryRecords }

func (m memorySegments) Create(ctx context.Context, conversationID string, rec repositories.SegmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments[conversationID] = append(m.segments[conversationID], rec)
	return nil
}

func (m memorySegments) ListByConversation(ctx context.Context, conversationID string) ([]repositories.SegmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]repositories.SegmentRecord(nil), m.segments[conversationID]...), nil
}

type memoryStore struct {
	mu    sync.Mutex
	saved map[string]*entities.Consultation
	saves int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[string]*entities.Consultation)}
}

func (s *memoryStore) Load(ctx context.Context, id string) (*entities.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.saved[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memoryStore) Save(ctx context.Context, c *entities.Consultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.saved[c.ID] = &cp
	s.saves++
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, id)
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.Contains(h, needle) {
			return true
		}
	}
	return false
}
