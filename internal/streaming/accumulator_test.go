package streaming

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dentalink/consult/domain/entities"
)

// chunkReader returns one chunk per Read, sleeping before each
type chunkReader struct {
	chunks [][]byte
	delay  time.Duration
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func splitChunks(s string, size int) [][]byte {
	b := []byte(s)
	var out [][]byte
	for len(b) > 0 {
		n := size
		if n > len(b) {
			n = len(b)
		}
		out = append(out, b[:n])
		b = b[n:]
	}
	return out
}

type recorder struct {
	mu      sync.Mutex
	updates []string
}

func (r *recorder) observe(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, text)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.updates...)
}

func TestAccumulate_ConcatenatesAndClassifiesProse(t *testing.T) {
	acc := NewAccumulator(Config{Window: 20 * time.Millisecond}, zaptest.NewLogger(t))
	text := "Vă recomand o programare. Până atunci evitați alimentele foarte reci."
	rec := &recorder{}

	res, err := acc.Accumulate(context.Background(), &chunkReader{chunks: splitChunks(text, 7)}, rec.observe)

	require.NoError(t, err)
	assert.Equal(t, text, res.Text)
	assert.Equal(t, entities.OutputKindProse, res.Output.Kind)

	updates := rec.snapshot()
	require.NotEmpty(t, updates)
	assert.Equal(t, text, updates[len(updates)-1], "last update carries the full text")
}

func TestAccumulate_ClassifiesStructuredTurn(t *testing.T) {
	acc := NewAccumulator(Config{}, zaptest.NewLogger(t))
	text := "```json\n{\"mode\":\"question\",\"title\":\"Durere\",\"question\":\"Unde?\"}\n```"

	res, err := acc.Accumulate(context.Background(), &chunkReader{chunks: splitChunks(text, 5)}, nil)

	require.NoError(t, err)
	require.True(t, res.Output.IsStructured())
	assert.Equal(t, entities.TurnModeQuestion, res.Output.Turn.Mode)
}

func TestAccumulate_ThrottlesUpdates(t *testing.T) {
	window := 40 * time.Millisecond
	acc := NewAccumulator(Config{Window: window}, zaptest.NewLogger(t))
	text := strings.Repeat("abcdefghij", 40)
	chunks := splitChunks(text, 4) // 100 chunks
	rec := &recorder{}

	start := time.Now()
	res, err := acc.Accumulate(context.Background(), &chunkReader{chunks: chunks, delay: 2 * time.Millisecond}, rec.observe)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, text, res.Text)

	updates := rec.snapshot()
	// One update per window plus the leading and final updates.
	maxUpdates := int(elapsed/window) + 2
	assert.LessOrEqual(t, len(updates), maxUpdates)
	assert.Less(t, len(updates), len(chunks))
	assert.Equal(t, text, updates[len(updates)-1])

	for i := 1; i < len(updates); i++ {
		assert.True(t, strings.HasPrefix(updates[i], updates[i-1]), "updates only grow")
	}
}

func TestAccumulate_NoUpdatesAfterCompletion(t *testing.T) {
	acc := NewAccumulator(Config{Window: 30 * time.Millisecond}, zaptest.NewLogger(t))
	rec := &recorder{}

	_, err := acc.Accumulate(context.Background(), &chunkReader{chunks: splitChunks("hello world, streaming", 3)}, rec.observe)
	require.NoError(t, err)

	count := len(rec.snapshot())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, count, len(rec.snapshot()))
}

func TestAccumulate_InterimUpdatesNeverSplitRunes(t *testing.T) {
	acc := NewAccumulator(Config{Window: time.Millisecond}, zaptest.NewLogger(t))
	text := "ăîșțâ ĂÎȘȚÂ ăîșțâ"
	rec := &recorder{}

	res, err := acc.Accumulate(context.Background(), &chunkReader{chunks: splitChunks(text, 1), delay: 2 * time.Millisecond}, rec.observe)

	require.NoError(t, err)
	assert.Equal(t, text, res.Text)
	for _, u := range rec.snapshot() {
		assert.True(t, utf8.ValidString(u), "update %q is not valid UTF-8", u)
	}
}

func TestAccumulate_StreamErrorKeepsPartial(t *testing.T) {
	acc := NewAccumulator(Config{}, zaptest.NewLogger(t))
	boom := errors.New("connection reset")
	rec := &recorder{}

	res, err := acc.Accumulate(context.Background(), &chunkReader{chunks: splitChunks("partial reply", 4), err: boom}, rec.observe)

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial reply", streamErr.Partial)
	assert.Equal(t, "partial reply", res.Text)

	count := len(rec.snapshot())
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, count, len(rec.snapshot()), "no trailing update after failure")
}

func TestAccumulate_ContextCancelled(t *testing.T) {
	acc := NewAccumulator(Config{}, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := acc.Accumulate(ctx, &chunkReader{chunks: splitChunks("x", 1)}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestAccumulate_EmptyStream(t *testing.T) {
	acc := NewAccumulator(Config{}, zaptest.NewLogger(t))
	rec := &recorder{}

	res, err := acc.Accumulate(context.Background(), &chunkReader{}, rec.observe)

	require.NoError(t, err)
	assert.Equal(t, "", res.Text)
	assert.Equal(t, entities.OutputKindProse, res.Output.Kind)
	assert.Equal(t, []string{""}, rec.snapshot())
}

func TestCompleteRunes(t *testing.T) {
	full := []byte("aș")
	assert.Equal(t, full, completeRunes(full))
	assert.Equal(t, []byte("a"), completeRunes(full[:2]))
	assert.Equal(t, []byte(""), completeRunes([]byte{}))
}
