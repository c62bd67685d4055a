// Package streaming accumulates a chunked model reply and reports it to an
// observer at a bounded rate.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/internal/turn"
)

const (
	DefaultWindow    = 50 * time.Millisecond
	defaultChunkSize = 4 * 1024
)

// Config controls the throttling policy
type Config struct {
	// Window is the minimum spacing between interim observer updates
	Window    time.Duration
	ChunkSize int
}

// Result is a fully received reply with its classification
type Result struct {
	Text   string
	Output entities.AssistantOutput
}

// StreamError is returned when the source fails before end of stream.
// Partial holds what had been received.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream interrupted after %d bytes: %v", len(e.Partial), e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Accumulator turns a raw reply stream into throttled observer updates
type Accumulator struct {
	window    time.Duration
	chunkSize int
	logger    *zap.Logger
}

// NewAccumulator creates an accumulator, applying defaults to zero values
func NewAccumulator(cfg Config, logger *zap.Logger) *Accumulator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	return &Accumulator{
		window:    cfg.Window,
		chunkSize: cfg.ChunkSize,
		logger:    logger,
	}
}

// Accumulate reads src until end of stream. observe receives the text so far,
// at most once per window while chunks arrive and exactly once more with the
// complete text. No update is delivered after Accumulate returns. The finished
// text is classified once.
func (a *Accumulator) Accumulate(ctx context.Context, src io.Reader, observe func(string)) (Result, error) {
	if observe == nil {
		observe = func(string) {}
	}
	r := &run{
		observe: observe,
		limiter: rate.NewLimiter(rate.Every(a.window), 1),
	}

	buf := make([]byte, a.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			partial := r.abort()
			return Result{Text: partial}, &StreamError{Partial: partial, Err: err}
		}

		n, err := src.Read(buf)
		if n > 0 {
			r.append(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			partial := r.abort()
			a.logger.Warn("Reply stream interrupted",
				zap.Int("bytes", len(partial)),
				zap.Error(err))
			return Result{Text: partial}, &StreamError{Partial: partial, Err: err}
		}
	}

	text, updates := r.complete()
	output := turn.Classify(text)

	a.logger.Debug("Reply stream completed",
		zap.Int("bytes", len(text)),
		zap.Int("updates", updates),
		zap.String("kind", string(output.Kind)))

	return Result{Text: text, Output: output}, nil
}

// run is the state of one Accumulate call. The trailing timer and the read
// loop both deliver updates, so delivery happens under mu.
type run struct {
	mu       sync.Mutex
	buf      []byte
	done     bool
	pending  *time.Timer
	lastSent int
	updates  int
	limiter  *rate.Limiter
	observe  func(string)
}

func (r *run) append(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = append(r.buf, chunk...)
	if r.done || r.pending != nil {
		return
	}

	delay := r.limiter.Reserve().Delay()
	if delay == 0 {
		r.emitLocked()
		return
	}
	r.pending = time.AfterFunc(delay, r.flushTrailing)
}

func (r *run) flushTrailing() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = nil
	if r.done {
		return
	}
	r.emitLocked()
}

// emitLocked sends the received text, cut back to the last complete rune
func (r *run) emitLocked() {
	text := completeRunes(r.buf)
	if len(text) == r.lastSent {
		return
	}
	r.lastSent = len(text)
	r.updates++
	r.observe(string(text))
}

func (r *run) complete() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
	text := string(r.buf)
	r.updates++
	r.observe(text)
	return text, r.updates
}

func (r *run) abort() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
	return string(r.buf)
}

func (r *run) stopLocked() {
	r.done = true
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}

// completeRunes drops a trailing partial UTF-8 sequence
func completeRunes(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return b
			}
			return b[:i]
		}
	}
	return b
}
