package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/domain/repositories"
	"github.com/dentalink/consult/internal/metrics"
	"github.com/dentalink/consult/internal/streaming"
	"github.com/dentalink/consult/internal/triage"
	"github.com/dentalink/consult/internal/turn"
)

var (
	ErrReplyInFlight = errors.New("an assistant reply is still in progress")
	ErrEmptyInput    = errors.New("nothing to submit")
	errEmptyReply    = errors.New("assistant reply was empty")
)

// Observer receives every change a controller makes. Calls may arrive from
// several goroutines; implementations must not call back into the controller
// synchronously.
type Observer interface {
	OnMessage(msg entities.Message)
	OnPartialTranscript(text string)
	OnSegment(seg entities.Segment)
	OnSegmentDeleted(id string)
	OnTriage(tc entities.TriageContext)
	OnTranscriptionState(state TranscriptionState, err error)
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) OnMessage(entities.Message)                     {}
func (NopObserver) OnPartialTranscript(string)                     {}
func (NopObserver) OnSegment(entities.Segment)                     {}
func (NopObserver) OnSegmentDeleted(string)                        {}
func (NopObserver) OnTriage(entities.TriageContext)                {}
func (NopObserver) OnTranscriptionState(TranscriptionState, error) {}

// Reply tracks one assistant reply from submission to its terminal state
type Reply struct {
	MessageID string

	done    chan struct{}
	message entities.Message
	err     error
}

// Done is closed once the reply reached its terminal state
func (r *Reply) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the reply is resolved. The returned message is either the
// ready reply or the error message that replaced it; err reports why.
func (r *Reply) Wait(ctx context.Context) (entities.Message, error) {
	select {
	case <-r.done:
		return r.message, r.err
	case <-ctx.Done():
		return entities.Message{}, ctx.Err()
	}
}

// ControllerConfig configures one conversation
type ControllerConfig struct {
	ConversationID string
	Language       string
	Transcription  TranscriptionConfig
	Streaming      streaming.Config
}

// ControllerDeps are the collaborators of a controller. Any repository may be
// nil; Recognizer nil makes recording report ErrCapabilityUnavailable.
type ControllerDeps struct {
	Inference  repositories.InferenceChannel
	Recognizer repositories.SpeechRecognizer
	Messages   repositories.MessageRepository
	Segments   repositories.SegmentRepository
	Store      repositories.ConversationStore
	Observer   Observer
}

// ConversationController owns the messages and triage progress of one
// conversation and drives capture, inference and persistence for it.
type ConversationController struct {
	inference   repositories.InferenceChannel
	messages    repositories.MessageRepository
	segmentRepo repositories.SegmentRepository
	store       repositories.ConversationStore
	observer    Observer
	accumulator *streaming.Accumulator
	segments    *SegmentStore
	session     *TranscriptionSession
	logger      *zap.Logger
	id          string

	// recordingMu serializes StartRecording and StopRecording across sockets
	recordingMu sync.Mutex

	// ctx outlives the requests that start replies and ends on Close
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conv     *entities.Consultation
	inflight *Reply

	now   func() time.Time
	newID func() string
}

// NewConversationController creates a controller for an empty conversation.
// Call Restore to load earlier state.
func NewConversationController(cfg ControllerConfig, deps ControllerDeps, logger *zap.Logger) *ConversationController {
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	logger = logger.With(zap.String("conversationID", cfg.ConversationID))
	if cfg.Language == "" {
		cfg.Language = cfg.Transcription.Audio.Language
	}
	cfg.Transcription.Audio.Language = cfg.Language

	ctx, cancel := context.WithCancel(context.Background())
	c := &ConversationController{
		inference:   deps.Inference,
		messages:    deps.Messages,
		segmentRepo: deps.Segments,
		store:       deps.Store,
		observer:    deps.Observer,
		accumulator: streaming.NewAccumulator(cfg.Streaming, logger),
		segments:    NewSegmentStore(),
		logger:      logger,
		id:          cfg.ConversationID,
		ctx:         ctx,
		cancel:      cancel,
		conv:        entities.NewConsultation(cfg.ConversationID, cfg.Language),
		now:         time.Now,
		newID:       newID,
	}
	c.session = NewTranscriptionSession(deps.Recognizer, transcriptionEvents{c}, cfg.Transcription, logger)
	return c
}

// ID returns the conversation id
func (c *ConversationController) ID() string {
	return c.id
}

// Submit appends a user message and starts the assistant reply. It fails with
// ErrReplyInFlight while the previous reply is still streaming.
func (c *ConversationController) Submit(ctx context.Context, role entities.MessageRole, text string) (*Reply, error) {
	if role != entities.MessageRoleUser && role != entities.MessageRoleDoctor {
		return nil, fmt.Errorf("cannot submit as %q", role)
	}
	return c.submit(ctx, role, text, entities.OutputTypeText, 0)
}

// SubmitTranscript sends the segments finalized since the last transcript
// submission as one doctor message.
func (c *ConversationController) SubmitTranscript(ctx context.Context) (*Reply, error) {
	c.mu.Lock()
	since := c.conv.LastSubmittedSeq
	c.mu.Unlock()

	segs := c.segments.FinalizedSince(since)
	text := transcriptOf(segs)
	if text == "" {
		return nil, ErrEmptyInput
	}
	return c.submit(ctx, entities.MessageRoleDoctor, text, entities.OutputTypeTranscript, segs[len(segs)-1].Seq)
}

func (c *ConversationController) submit(ctx context.Context, role entities.MessageRole, text string, outputType entities.OutputType, submittedSeq int) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	if c.inference == nil {
		return nil, fmt.Errorf("inference channel: %w", repositories.ErrCapabilityUnavailable)
	}

	c.mu.Lock()
	if c.inflight != nil {
		c.mu.Unlock()
		metrics.RepliesTotal.WithLabelValues("rejected").Inc()
		return nil, ErrReplyInFlight
	}

	now := c.now()
	prevAssistant := lastAssistantText(c.conv.Messages)
	userMsg := entities.Message{
		ID:        c.newID(),
		Role:      role,
		Content:   text,
		CreatedAt: now,
		Meta:      entities.MessageMeta{Status: entities.MessageStatusReady, OutputType: outputType},
	}
	c.conv.Messages = append(c.conv.Messages, userMsg)

	before := c.conv.Triage.State
	next := triage.NextState(c.conv.Triage, text, len(c.conv.Messages))
	c.conv.Triage = triage.UpdateContext(c.conv.Triage, next, text, prevAssistant)
	tc := c.conv.Triage.Clone()

	req := repositories.InferenceRequest{
		Messages:    chatHistory(c.conv.Messages),
		TriageState: tc.State,
	}

	placeholder := entities.Message{
		ID:        c.newID(),
		Role:      entities.MessageRoleAssistant,
		CreatedAt: now,
		Meta:      entities.MessageMeta{Status: entities.MessageStatusLoading},
	}
	c.conv.Messages = append(c.conv.Messages, placeholder)
	if submittedSeq > c.conv.LastSubmittedSeq {
		c.conv.LastSubmittedSeq = submittedSeq
	}
	c.conv.Touch(now)

	reply := &Reply{MessageID: placeholder.ID, done: make(chan struct{})}
	c.inflight = reply
	c.mu.Unlock()

	c.logger.Info("Message submitted",
		zap.String("role", string(role)),
		zap.String("outputType", string(outputType)),
		zap.String("triageState", string(tc.State)))

	c.observer.OnMessage(userMsg)
	if tc.State != before {
		metrics.TriageTransitionsTotal.WithLabelValues(string(tc.State)).Inc()
	}
	c.observer.OnTriage(tc)
	c.observer.OnMessage(placeholder)

	c.persistMessage(ctx, userMsg)
	c.save(ctx)

	go c.streamReply(reply, req, now)
	return reply, nil
}

// streamReply runs one inference call to its terminal state
func (c *ConversationController) streamReply(reply *Reply, req repositories.InferenceRequest, started time.Time) {
	ctx := c.ctx

	body, err := c.inference.Stream(ctx, req)
	var result streaming.Result
	if err == nil {
		result, err = c.accumulator.Accumulate(ctx, body, func(text string) {
			c.updateReply(reply.MessageID, text)
		})
		body.Close()
	}
	if err == nil && strings.TrimSpace(result.Text) == "" {
		err = errEmptyReply
	}

	if err != nil {
		c.failReply(ctx, reply, err)
		return
	}
	metrics.ReplyDuration.Observe(time.Since(started).Seconds())
	c.completeReply(ctx, reply, result)
}

func (c *ConversationController) updateReply(id, text string) {
	c.mu.Lock()
	i := c.messageIndexLocked(id)
	if i < 0 || !c.conv.Messages[i].IsLoading() {
		c.mu.Unlock()
		return
	}
	c.conv.Messages[i].Content = text
	msg := c.conv.Messages[i]
	c.mu.Unlock()

	c.observer.OnMessage(msg)
}

func (c *ConversationController) completeReply(ctx context.Context, reply *Reply, result streaming.Result) {
	output := result.Output
	outputType := entities.OutputTypeText
	if output.IsStructured() {
		outputType = entities.OutputTypeTurn
	}

	c.mu.Lock()
	before := c.conv.Triage.Clone()
	if output.IsStructured() && output.Turn.Escalates() {
		c.conv.Triage = triage.Escalate(c.conv.Triage)
	} else {
		c.conv.Triage = triage.RecordQuestions(c.conv.Triage, result.Text)
	}
	tc := c.conv.Triage.Clone()

	msg := c.resolveLocked(reply, entities.Message{
		Content: result.Text,
		Meta: entities.MessageMeta{
			Status:     entities.MessageStatusReady,
			Output:     &output,
			OutputType: outputType,
		},
	}, nil)
	c.mu.Unlock()

	metrics.RepliesTotal.WithLabelValues("completed").Inc()
	metrics.ReplyKindTotal.WithLabelValues(string(output.Kind)).Inc()
	c.logger.Info("Assistant reply completed",
		zap.String("messageID", msg.ID),
		zap.String("kind", string(output.Kind)),
		zap.String("triageState", string(tc.State)))

	c.observer.OnMessage(msg)
	if tc.State != before.State {
		metrics.TriageTransitionsTotal.WithLabelValues(string(tc.State)).Inc()
	}
	if !tc.Equal(before) {
		c.observer.OnTriage(tc)
	}

	c.persistMessage(ctx, msg)
	c.save(ctx)
	close(reply.done)
}

func (c *ConversationController) failReply(ctx context.Context, reply *Reply, err error) {
	c.mu.Lock()
	msg := c.resolveLocked(reply, entities.Message{
		Content: replyErrorText(c.conv.Language),
		Meta: entities.MessageMeta{
			Status:     entities.MessageStatusReady,
			IsError:    true,
			OutputType: entities.OutputTypeError,
		},
	}, err)
	c.mu.Unlock()

	metrics.RepliesTotal.WithLabelValues("failed").Inc()
	c.logger.Error("Assistant reply failed",
		zap.String("messageID", msg.ID),
		zap.Error(err))

	c.observer.OnMessage(msg)
	// Error messages stay local; a reload should not replay them as history.
	c.save(context.WithoutCancel(ctx))
	close(reply.done)
}

// resolveLocked moves the placeholder to its terminal state and releases the
// in-flight slot
func (c *ConversationController) resolveLocked(reply *Reply, terminal entities.Message, err error) entities.Message {
	terminal.ID = reply.MessageID
	terminal.Role = entities.MessageRoleAssistant
	terminal.CreatedAt = c.now()

	if i := c.messageIndexLocked(reply.MessageID); i >= 0 {
		terminal.CreatedAt = c.conv.Messages[i].CreatedAt
		c.conv.Messages[i] = terminal
	} else {
		c.conv.Messages = append(c.conv.Messages, terminal)
	}
	c.conv.Touch(c.now())
	if c.inflight == reply {
		c.inflight = nil
	}
	reply.message = terminal
	reply.err = err
	return terminal
}

func (c *ConversationController) messageIndexLocked(id string) int {
	for i := len(c.conv.Messages) - 1; i >= 0; i-- {
		if c.conv.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// InFlight reports whether an assistant reply is streaming
func (c *ConversationController) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

// StartRecording opens a draft segment and starts capture
func (c *ConversationController) StartRecording(ctx context.Context) error {
	c.recordingMu.Lock()
	defer c.recordingMu.Unlock()

	seg := c.segments.BeginSegment()
	c.observer.OnSegment(seg)

	if err := c.session.Start(ctx); err != nil {
		c.discardEmptyDraft(seg.ID)
		return err
	}
	c.touch()
	return nil
}

// StopRecording flushes the recognizer and finalizes the open segment. It
// reports false when there was nothing to finalize.
func (c *ConversationController) StopRecording(ctx context.Context) (entities.Segment, bool) {
	c.recordingMu.Lock()
	defer c.recordingMu.Unlock()

	flush := c.session.FlushAndStop(ctx)
	return c.finishSegment(ctx, flush.Pending)
}

// SendAudio forwards captured audio to the active recording
func (c *ConversationController) SendAudio(data []byte) error {
	return c.session.SendAudio(data)
}

// SetLanguage selects the recognition language for the next recording
func (c *ConversationController) SetLanguage(ctx context.Context, language string) {
	c.session.SetLanguage(language)
	c.mu.Lock()
	c.conv.Language = language
	c.mu.Unlock()
	c.save(ctx)
}

// EditSegment overrides the displayed text of a segment
func (c *ConversationController) EditSegment(ctx context.Context, id, text string) (entities.Segment, error) {
	seg, err := c.segments.EditSegment(id, text)
	if err != nil {
		return entities.Segment{}, err
	}
	c.observer.OnSegment(seg)
	c.touch()
	c.save(ctx)
	return seg, nil
}

// DeleteSegment removes a segment at the user's request
func (c *ConversationController) DeleteSegment(ctx context.Context, id string) error {
	if err := c.segments.DeleteSegment(id); err != nil {
		return err
	}
	c.observer.OnSegmentDeleted(id)
	c.touch()
	c.save(ctx)
	return nil
}

// finishSegment closes the open draft with any text the recognizer never
// confirmed. A draft that heard nothing is dropped.
func (c *ConversationController) finishSegment(ctx context.Context, pending string) (entities.Segment, bool) {
	seg, ok := c.segments.CloseSegment(pending)
	if !ok {
		return entities.Segment{}, false
	}
	if seg.DisplayText() == "" {
		c.discardEmptyDraft(seg.ID)
		return entities.Segment{}, false
	}

	metrics.SegmentsFinalizedTotal.Inc()
	c.observer.OnSegment(seg)
	c.touch()

	if c.segmentRepo != nil {
		end := seg.StartedAt
		if seg.EndedAt != nil {
			end = *seg.EndedAt
		}
		record := repositories.SegmentRecord{
			ID:      seg.ID,
			Text:    seg.DisplayText(),
			StartTs: seg.StartedAt,
			EndTs:   end,
		}
		if err := c.segmentRepo.Create(ctx, c.id, record); err != nil {
			c.logger.Error("Failed to persist segment",
				zap.String("segmentID", seg.ID),
				zap.Error(err))
		}
	}
	c.save(ctx)
	return seg, true
}

func (c *ConversationController) discardEmptyDraft(id string) {
	for _, seg := range c.segments.Segments() {
		if seg.ID != id {
			continue
		}
		if seg.DisplayText() == "" {
			if err := c.segments.DeleteSegment(id); err == nil {
				c.observer.OnSegmentDeleted(id)
			}
		}
		return
	}
}

// Messages returns the conversation in order
func (c *ConversationController) Messages() []entities.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]entities.Message(nil), c.conv.Messages...)
}

// Segments returns the transcript segments in order
func (c *ConversationController) Segments() []entities.Segment {
	return c.segments.Segments()
}

// Transcript returns the running transcript text
func (c *ConversationController) Transcript() string {
	return c.segments.Transcript()
}

// Triage returns the current triage context
func (c *ConversationController) Triage() entities.TriageContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Triage.Clone()
}

// TranscriptionState returns the capture state
func (c *ConversationController) TranscriptionState() TranscriptionState {
	return c.session.State()
}

// Snapshot returns a copy of the whole conversation
func (c *ConversationController) Snapshot() entities.Consultation {
	c.mu.Lock()
	snap := *c.conv
	snap.Messages = append([]entities.Message(nil), c.conv.Messages...)
	snap.Triage = c.conv.Triage.Clone()
	c.mu.Unlock()

	snap.Segments = c.segments.Segments()
	return snap
}

// IdleSince reports whether the conversation saw no activity for ttl and has
// no reply or recording running
func (c *ConversationController) IdleSince(now time.Time, ttl time.Duration) bool {
	if c.session.State() == TranscriptionListening {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight == nil && c.conv.IdleSince(now, ttl)
}

// Restore loads earlier state: the local snapshot when one exists, otherwise
// the persisted message and segment records with triage replayed over them.
func (c *ConversationController) Restore(ctx context.Context) error {
	if c.store != nil {
		conv, err := c.store.Load(ctx, c.id)
		if err != nil {
			return fmt.Errorf("failed to load conversation snapshot: %w", err)
		}
		if conv != nil {
			c.restoreSnapshot(conv)
			return nil
		}
	}

	var messages []repositories.MessageRecord
	var segments []repositories.SegmentRecord
	var err error
	if c.messages != nil {
		if messages, err = c.messages.ListByConversation(ctx, c.id); err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}
	}
	if c.segmentRepo != nil {
		if segments, err = c.segmentRepo.ListByConversation(ctx, c.id); err != nil {
			return fmt.Errorf("failed to list segments: %w", err)
		}
	}
	if len(messages) == 0 && len(segments) == 0 {
		return nil
	}

	c.restoreRecords(messages, segments)
	c.save(ctx)
	return nil
}

func (c *ConversationController) restoreSnapshot(conv *entities.Consultation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conv = conv
	if c.conv.Messages == nil {
		c.conv.Messages = make([]entities.Message, 0)
	}
	for i := range c.conv.Messages {
		msg := &c.conv.Messages[i]
		// A reply interrupted by the reload can never complete.
		if msg.IsLoading() {
			msg.Content = replyErrorText(c.conv.Language)
			msg.Meta = entities.MessageMeta{
				Status:     entities.MessageStatusReady,
				IsError:    true,
				OutputType: entities.OutputTypeError,
			}
		}
		if msg.Role == entities.MessageRoleAssistant && !msg.Meta.IsError && msg.Meta.Output == nil {
			output := turn.Classify(msg.Content)
			msg.Meta.Output = &output
		}
	}
	segments := conv.Segments
	c.segments.Restore(segments)
	c.conv.Segments = nil
	c.session.SetLanguage(conv.Language)

	c.logger.Info("Conversation restored from snapshot",
		zap.Int("messages", len(c.conv.Messages)),
		zap.Int("segments", len(segments)),
		zap.String("triageState", string(c.conv.Triage.State)))
}

func (c *ConversationController) restoreRecords(records []repositories.MessageRecord, segments []repositories.SegmentRecord) {
	messages := make([]entities.Message, 0, len(records))
	tc := entities.NewTriageContext()
	prevAssistant := ""
	transcriptSubmitted := false

	for _, rec := range records {
		msg := entities.Message{
			ID:        rec.ID,
			Role:      rec.Role,
			Content:   rec.Content,
			CreatedAt: rec.CreatedAt,
			Meta:      entities.MessageMeta{Status: entities.MessageStatusReady, OutputType: rec.OutputType},
		}
		messages = append(messages, msg)

		switch {
		case msg.FromPatient():
			next := triage.NextState(tc, msg.Content, len(messages))
			tc = triage.UpdateContext(tc, next, msg.Content, prevAssistant)
			if rec.OutputType == entities.OutputTypeTranscript {
				transcriptSubmitted = true
			}
		case msg.Role == entities.MessageRoleAssistant:
			output := turn.Classify(msg.Content)
			messages[len(messages)-1].Meta.Output = &output
			if output.IsStructured() {
				messages[len(messages)-1].Meta.OutputType = entities.OutputTypeTurn
			}
			if output.IsStructured() && output.Turn.Escalates() {
				tc = triage.Escalate(tc)
			} else {
				tc = triage.RecordQuestions(tc, msg.Content)
			}
			prevAssistant = msg.Content
		}
	}

	c.segments.RestoreRecords(segments)

	c.mu.Lock()
	c.conv.Messages = messages
	c.conv.Triage = tc
	if transcriptSubmitted {
		for _, seg := range c.segments.Segments() {
			if seg.Seq > c.conv.LastSubmittedSeq {
				c.conv.LastSubmittedSeq = seg.Seq
			}
		}
	}
	c.mu.Unlock()

	c.logger.Info("Conversation restored from records",
		zap.Int("messages", len(messages)),
		zap.Int("segments", len(segments)),
		zap.String("triageState", string(tc.State)))
}

// Close stops capture and cancels any reply in flight
func (c *ConversationController) Close() {
	c.session.Close()
	c.cancel()
}

func (c *ConversationController) touch() {
	c.mu.Lock()
	c.conv.Touch(c.now())
	c.mu.Unlock()
}

func (c *ConversationController) persistMessage(ctx context.Context, msg entities.Message) {
	if c.messages == nil {
		return
	}
	record := repositories.MessageRecord{
		ID:         msg.ID,
		Role:       msg.Role,
		Content:    msg.Content,
		OutputType: msg.Meta.OutputType,
		CreatedAt:  msg.CreatedAt,
	}
	if err := c.messages.Create(ctx, c.id, record); err != nil {
		c.logger.Error("Failed to persist message",
			zap.String("messageID", msg.ID),
			zap.Error(err))
	}
}

func (c *ConversationController) save(ctx context.Context) {
	if c.store == nil {
		return
	}
	snap := c.Snapshot()
	if err := c.store.Save(ctx, &snap); err != nil {
		c.logger.Error("Failed to save conversation snapshot", zap.Error(err))
	}
}

// transcriptionEvents routes recognizer events into the open segment
type transcriptionEvents struct {
	c *ConversationController
}

func (e transcriptionEvents) OnPartial(text string) {
	e.c.observer.OnPartialTranscript(text)
}

func (e transcriptionEvents) OnFinal(text string) {
	if !e.c.segments.AppendFinalText(text) {
		e.c.logger.Debug("Dropped recognized text with no open segment")
		return
	}
	if seg, ok := e.c.segments.OpenSegment(); ok {
		e.c.observer.OnSegment(seg)
	}
}

func (e transcriptionEvents) OnStateChange(state TranscriptionState, err error) {
	e.c.observer.OnTranscriptionState(state, err)
	if state == TranscriptionError {
		// Recording ends with the recognizer; keep whatever was heard.
		e.c.finishSegment(e.c.ctx, "")
	}
}

// chatHistory converts the conversation into the wire history. Loading
// placeholders and error messages are not part of it.
func chatHistory(messages []entities.Message) []repositories.ChatMessage {
	out := make([]repositories.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.IsLoading() || m.Meta.IsError || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, repositories.ChatMessage{Role: repositories.RoleOf(m.Role), Content: m.Content})
	}
	return out
}

func lastAssistantText(messages []entities.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == entities.MessageRoleAssistant && !m.IsLoading() && !m.Meta.IsError {
			return m.Content
		}
	}
	return ""
}

var replyErrorTexts = map[string]string{
	"ro": "Ne pare rău, nu am putut genera un răspuns. Vă rugăm să încercați din nou.",
	"en": "Sorry, we could not generate a reply. Please try again.",
}

func replyErrorText(language string) string {
	lang := strings.ToLower(language)
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if text, ok := replyErrorTexts[lang]; ok {
		return text
	}
	return replyErrorTexts["ro"]
}
