package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/dentalink/consult/domain/repositories"
	"github.com/dentalink/consult/internal/metrics"
)

// TranscriptionState is the capture state of a TranscriptionSession
type TranscriptionState string

const (
	TranscriptionIdle      TranscriptionState = "idle"
	TranscriptionListening TranscriptionState = "listening"
	TranscriptionPaused    TranscriptionState = "paused"
	TranscriptionError     TranscriptionState = "error"
)

const (
	DefaultFlushGrace         = 300 * time.Millisecond
	DefaultMaxRestartAttempts = 3
	defaultRestartBackoff     = 200 * time.Millisecond
	stopDrainTimeout          = 5 * time.Second
)

var ErrNotListening = errors.New("transcription session is not listening")

// RecognitionError reports that the recognizer failed and could not be restarted
type RecognitionError struct {
	Attempts int
	Err      error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("speech recognition failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// TranscriptionListener receives recognition events.
// OnPartial replaces the previous partial; OnFinal appends confirmed text.
type TranscriptionListener interface {
	OnPartial(text string)
	OnFinal(text string)
	OnStateChange(state TranscriptionState, err error)
}

// Flush is the outcome of FlushAndStop. Text holds everything recognized
// since Start; Pending is the trailing part never delivered through OnFinal.
type Flush struct {
	Text    string
	Pending string
}

// TranscriptionConfig controls capture behavior
type TranscriptionConfig struct {
	Audio              repositories.AudioConfig
	FlushGrace         time.Duration
	MaxRestartAttempts int
	RestartBackoff     time.Duration
}

// TranscriptionSession drives a speech recognizer for continuous capture
type TranscriptionSession struct {
	recognizer repositories.SpeechRecognizer
	listener   TranscriptionListener
	cfg        TranscriptionConfig
	logger     *zap.Logger

	// lifecycleMu serializes Start, Stop, FlushAndStop and Close
	lifecycleMu sync.Mutex

	mu       sync.Mutex
	state    TranscriptionState
	language string
	active   *recognition
	// last is the recognition that ended most recently, kept until the next Start
	last     *recognition
}

// recognition is one Start..Stop span. It may span several recognizer
// streams when the recognizer ends unexpectedly and is restarted.
type recognition struct {
	cancel context.CancelFunc
	ctx    context.Context
	done   chan struct{}

	// guarded by TranscriptionSession.mu
	stream   repositories.RecognitionStream
	stopping bool

	// deliverMu serializes listener calls with FlushAndStop so that nothing
	// is delivered through OnFinal after a flush has been computed
	deliverMu sync.Mutex
	finals    []string
	partial   string
	flushed   bool
	result    *Flush
}

// NewTranscriptionSession creates an idle session. A nil recognizer makes
// Start report ErrCapabilityUnavailable.
func NewTranscriptionSession(
	recognizer repositories.SpeechRecognizer,
	listener TranscriptionListener,
	cfg TranscriptionConfig,
	logger *zap.Logger,
) *TranscriptionSession {
	if cfg.FlushGrace <= 0 {
		cfg.FlushGrace = DefaultFlushGrace
	}
	if cfg.MaxRestartAttempts <= 0 {
		cfg.MaxRestartAttempts = DefaultMaxRestartAttempts
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = defaultRestartBackoff
	}
	return &TranscriptionSession{
		recognizer: recognizer,
		listener:   listener,
		cfg:        cfg,
		logger:     logger,
		state:      TranscriptionIdle,
		language:   cfg.Audio.Language,
	}
}

// State returns the current capture state
func (s *TranscriptionSession) State() TranscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetLanguage selects the recognition language used from the next Start
func (s *TranscriptionSession) SetLanguage(language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = language
}

// Language returns the language the next Start will use
func (s *TranscriptionSession) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Start begins continuous capture. It is a no-op while already listening.
func (s *TranscriptionSession) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.state == TranscriptionListening {
		s.mu.Unlock()
		return nil
	}
	if s.recognizer == nil {
		s.state = TranscriptionError
		s.mu.Unlock()
		s.listener.OnStateChange(TranscriptionError, repositories.ErrCapabilityUnavailable)
		return repositories.ErrCapabilityUnavailable
	}
	previous := s.active
	s.active = nil
	s.last = nil
	audio := s.cfg.Audio
	audio.Language = s.language
	s.mu.Unlock()

	// A paused recognition still draining is superseded.
	if previous != nil {
		previous.deliverMu.Lock()
		previous.flushed = true
		previous.deliverMu.Unlock()
		previous.cancel()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := s.recognizer.Start(runCtx, audio)
	if err != nil {
		cancel()
		if !errors.Is(err, repositories.ErrCapabilityUnavailable) {
			err = &RecognitionError{Attempts: 1, Err: err}
		}
		s.logger.Error("Failed to start speech recognition",
			zap.String("language", audio.Language),
			zap.Error(err))
		metrics.RecognizerEventsTotal.WithLabelValues("failed").Inc()
		s.setState(TranscriptionError, err)
		return err
	}

	rec := &recognition{
		cancel: cancel,
		ctx:    runCtx,
		done:   make(chan struct{}),
		stream: stream,
	}

	s.mu.Lock()
	s.active = rec
	s.state = TranscriptionListening
	s.mu.Unlock()

	metrics.RecognizerEventsTotal.WithLabelValues("started").Inc()
	s.logger.Info("Speech recognition started",
		zap.String("language", audio.Language),
		zap.Int("sampleRate", audio.SampleRate))
	s.listener.OnStateChange(TranscriptionListening, nil)

	go s.consume(rec, audio)
	return nil
}

// SendAudio forwards captured audio to the recognizer
func (s *TranscriptionSession) SendAudio(data []byte) error {
	s.mu.Lock()
	rec := s.active
	if rec == nil || rec.stopping {
		s.mu.Unlock()
		return ErrNotListening
	}
	stream := rec.stream
	s.mu.Unlock()

	return stream.SendAudio(data)
}

// Stop requests the end of capture and returns immediately. Results the
// recognizer still emits are delivered, but nothing waits for them.
func (s *TranscriptionSession) Stop() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	rec := s.active
	if s.state != TranscriptionListening || rec == nil {
		s.mu.Unlock()
		return nil
	}
	rec.stopping = true
	stream := rec.stream
	s.state = TranscriptionPaused
	s.mu.Unlock()

	if err := stream.Stop(); err != nil {
		s.logger.Warn("Failed to stop recognizer stream", zap.Error(err))
	}
	time.AfterFunc(stopDrainTimeout, rec.cancel)

	s.listener.OnStateChange(TranscriptionPaused, nil)
	return nil
}

// FlushAndStop ends capture and returns all text recognized since Start. It
// waits at most the flush grace period for the recognizer's last result.
// Pending is handed out once: a later call for the same recognition gets the
// text without it.
func (s *TranscriptionSession) FlushAndStop(ctx context.Context) Flush {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	rec := s.active
	if rec == nil {
		last := s.last
		changed := s.state != TranscriptionIdle
		s.state = TranscriptionIdle
		s.mu.Unlock()
		if changed {
			s.listener.OnStateChange(TranscriptionIdle, nil)
		}
		if last == nil {
			return Flush{}
		}
		return last.collect()
	}
	wasStopping := rec.stopping
	rec.stopping = true
	stream := rec.stream
	s.mu.Unlock()

	if !wasStopping {
		if err := stream.Stop(); err != nil {
			s.logger.Warn("Failed to stop recognizer stream", zap.Error(err))
		}
	}

	timer := time.NewTimer(s.cfg.FlushGrace)
	select {
	case <-rec.done:
	case <-timer.C:
		s.logger.Debug("Flush grace period elapsed before recognizer finished")
	case <-ctx.Done():
	}
	timer.Stop()

	flush := rec.collect()
	rec.cancel()

	s.mu.Lock()
	if s.active == rec {
		s.active = nil
	}
	s.last = rec
	s.state = TranscriptionIdle
	s.mu.Unlock()

	s.listener.OnStateChange(TranscriptionIdle, nil)
	return flush
}

// Close releases the recognizer without flushing
func (s *TranscriptionSession) Close() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	rec := s.active
	s.active = nil
	s.last = nil
	s.state = TranscriptionIdle
	s.mu.Unlock()

	if rec != nil {
		rec.deliverMu.Lock()
		rec.flushed = true
		rec.deliverMu.Unlock()
		rec.cancel()
	}
}

// consume delivers results until the recognition is stopped, restarting the
// recognizer whenever it ends on its own.
func (s *TranscriptionSession) consume(rec *recognition, audio repositories.AudioConfig) {
	defer close(rec.done)

	failures := 0
	for {
		s.mu.Lock()
		stream := rec.stream
		s.mu.Unlock()

		delivered := false
		for res := range stream.Results() {
			if s.deliver(rec, res) {
				delivered = true
			}
		}
		streamErr := stream.Err()

		s.mu.Lock()
		stopping := rec.stopping || s.active != rec
		s.mu.Unlock()
		if stopping {
			return
		}

		// The recognizer ended on its own; keep what was heard so far.
		s.promotePartial(rec)

		if delivered {
			failures = 0
		}
		failures++
		if failures > s.cfg.MaxRestartAttempts {
			s.fail(rec, &RecognitionError{Attempts: failures, Err: errOrEnded(streamErr)})
			return
		}

		s.logger.Warn("Speech recognizer ended unexpectedly, restarting",
			zap.Int("attempt", failures),
			zap.Error(streamErr))

		next, err := s.restart(rec, audio)
		if err != nil {
			s.fail(rec, &RecognitionError{Attempts: failures, Err: err})
			return
		}
		metrics.RecognizerEventsTotal.WithLabelValues("restarted").Inc()

		s.mu.Lock()
		if rec.stopping || s.active != rec {
			s.mu.Unlock()
			_ = next.Stop()
			return
		}
		rec.stream = next
		s.mu.Unlock()
	}
}

func (s *TranscriptionSession) restart(rec *recognition, audio repositories.AudioConfig) (repositories.RecognitionStream, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RestartBackoff
	policy.MaxElapsedTime = 0

	var stream repositories.RecognitionStream
	op := func() error {
		s.mu.Lock()
		stopping := rec.stopping
		s.mu.Unlock()
		if stopping {
			return backoff.Permanent(ErrNotListening)
		}

		next, err := s.recognizer.Start(rec.ctx, audio)
		if err != nil {
			if errors.Is(err, repositories.ErrCapabilityUnavailable) {
				return backoff.Permanent(err)
			}
			return err
		}
		stream = next
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.cfg.MaxRestartAttempts-1)), rec.ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return stream, nil
}

// deliver records a result and forwards it to the listener. It reports
// whether anything was delivered.
func (s *TranscriptionSession) deliver(rec *recognition, res repositories.RecognitionResult) bool {
	rec.deliverMu.Lock()
	defer rec.deliverMu.Unlock()

	if rec.flushed {
		return false
	}

	text := strings.TrimSpace(res.Text)
	if res.IsFinal {
		rec.partial = ""
		if text == "" {
			s.listener.OnPartial("")
			return false
		}
		rec.finals = append(rec.finals, text)
		s.listener.OnFinal(text)
		s.listener.OnPartial("")
		return true
	}

	if text == rec.partial {
		return false
	}
	rec.partial = text
	s.listener.OnPartial(text)
	return true
}

// collect stops delivery and computes the flush of the recognition once
func (r *recognition) collect() Flush {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	if r.result != nil {
		return Flush{Text: r.result.Text}
	}
	r.flushed = true
	flush := Flush{
		Text:    joinText(append(append([]string(nil), r.finals...), r.partial)),
		Pending: r.partial,
	}
	r.result = &flush
	return flush
}

// promotePartial turns a dangling partial into a final before a restart
func (s *TranscriptionSession) promotePartial(rec *recognition) {
	rec.deliverMu.Lock()
	partial := rec.partial
	rec.deliverMu.Unlock()

	if partial != "" {
		s.deliver(rec, repositories.RecognitionResult{Text: partial, IsFinal: true})
	}
}

func (s *TranscriptionSession) fail(rec *recognition, err error) {
	s.logger.Error("Speech recognition failed", zap.Error(err))
	metrics.RecognizerEventsTotal.WithLabelValues("failed").Inc()

	s.mu.Lock()
	if s.active != rec {
		s.mu.Unlock()
		return
	}
	s.active = nil
	s.last = rec
	s.state = TranscriptionError
	s.mu.Unlock()

	rec.cancel()
	s.listener.OnStateChange(TranscriptionError, err)
}

func (s *TranscriptionSession) setState(state TranscriptionState, err error) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.listener.OnStateChange(state, err)
}

func errOrEnded(err error) error {
	if err != nil {
		return err
	}
	return errors.New("recognizer stream ended")
}

func joinText(parts []string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
