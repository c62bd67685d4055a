package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/usecase"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Commands sent by the client
const (
	MessageTypeRecordingStart   MessageType = "recording_start"
	MessageTypeRecordingStop    MessageType = "recording_stop"
	MessageTypeSubmitText       MessageType = "submit_text"
	MessageTypeSubmitTranscript MessageType = "submit_transcript"
	MessageTypeEditSegment      MessageType = "edit_segment"
	MessageTypeDeleteSegment    MessageType = "delete_segment"
	MessageTypeSetLanguage      MessageType = "set_language"
	MessageTypePing             MessageType = "ping"
)

// Events sent by the server
const (
	MessageTypeSnapshot           MessageType = "snapshot"
	MessageTypeMessage            MessageType = "message"
	MessageTypePartial            MessageType = "partial"
	MessageTypeSegment            MessageType = "segment"
	MessageTypeSegmentDeleted     MessageType = "segment_deleted"
	MessageTypeTriage             MessageType = "triage"
	MessageTypeTranscriptionState MessageType = "transcription_state"
	MessageTypeError              MessageType = "error"
	MessageTypePong               MessageType = "pong"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type" validate:"required"`
	Timestamp string      `json:"timestamp,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
}

// RecordingStartMessage opens a segment and starts capture
type RecordingStartMessage struct {
	BaseMessage
	Language string `json:"language,omitempty" validate:"omitempty,min=2,max=16"`
}

// RecordingStopMessage flushes capture and finalizes the open segment
type RecordingStopMessage struct {
	BaseMessage
}

// SubmitTextMessage submits typed text to the assistant
type SubmitTextMessage struct {
	BaseMessage
	Text string `json:"text" validate:"required,max=8000"`
	// Role defaults to user
	Role entities.MessageRole `json:"role,omitempty" validate:"omitempty,oneof=user doctor"`
}

// SubmitTranscriptMessage submits the segments finalized since the last submission
type SubmitTranscriptMessage struct {
	BaseMessage
}

// EditSegmentMessage overrides the text of a segment
type EditSegmentMessage struct {
	BaseMessage
	SegmentID string `json:"segment_id" validate:"required"`
	Text      string `json:"text" validate:"required,max=8000"`
}

// DeleteSegmentMessage removes a segment
type DeleteSegmentMessage struct {
	BaseMessage
	SegmentID string `json:"segment_id" validate:"required"`
}

// SetLanguageMessage selects the recognition language
type SetLanguageMessage struct {
	BaseMessage
	Language string `json:"language" validate:"required,min=2,max=16"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SnapshotMessage carries the full conversation state to a newly connected client
type SnapshotMessage struct {
	BaseMessage
	Conversation       entities.Consultation       `json:"conversation"`
	TranscriptionState usecase.TranscriptionState `json:"transcription_state"`
	InFlight           bool                        `json:"in_flight"`
}

// ConversationMessage carries a new or updated conversation message
type ConversationMessage struct {
	BaseMessage
	Message entities.Message `json:"message"`
}

// PartialMessage carries the unconfirmed recognizer hypothesis
type PartialMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// SegmentMessage carries a new or updated segment
type SegmentMessage struct {
	BaseMessage
	Segment entities.Segment `json:"segment"`
}

// SegmentDeletedMessage reports a removed segment
type SegmentDeletedMessage struct {
	BaseMessage
	SegmentID string `json:"segment_id"`
}

// TriageMessage carries the triage progress after a change
type TriageMessage struct {
	BaseMessage
	Triage entities.TriageContext `json:"triage"`
}

// TranscriptionStateMessage reports a capture state change
type TranscriptionStateMessage struct {
	BaseMessage
	State usecase.TranscriptionState `json:"state"`
	Error string                     `json:"error,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct {
	validate *validator.Validate
}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{validate: validator.New()}
}

// ValidateMessage parses and validates an incoming command
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	// First parse as base message to get type
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	var msg interface{}
	switch base.Type {
	case MessageTypeRecordingStart:
		msg = &RecordingStartMessage{}
	case MessageTypeRecordingStop:
		msg = &RecordingStopMessage{}
	case MessageTypeSubmitText:
		msg = &SubmitTextMessage{}
	case MessageTypeSubmitTranscript:
		msg = &SubmitTranscriptMessage{}
	case MessageTypeEditSegment:
		msg = &EditSegmentMessage{}
	case MessageTypeDeleteSegment:
		msg = &DeleteSegmentMessage{}
	case MessageTypeSetLanguage:
		msg = &SetLanguageMessage{}
	case MessageTypePing:
		msg = &PingMessage{}
	case "":
		return nil, fmt.Errorf("message type is required")
	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}

	if err := json.Unmarshal(messageBytes, msg); err != nil {
		return nil, fmt.Errorf("invalid %s message: %w", base.Type, err)
	}
	if err := v.validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("invalid %s message: %w", base.Type, err)
	}
	return msg, nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}
