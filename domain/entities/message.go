package entities

import (
	"errors"
	"time"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleDoctor    MessageRole = "doctor"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// MessageStatus tracks whether an assistant reply is still streaming
type MessageStatus string

const (
	MessageStatusLoading MessageStatus = "loading"
	MessageStatusReady   MessageStatus = "ready"
)

// OutputType tags how a persisted message should be interpreted on reload
type OutputType string

const (
	OutputTypeText       OutputType = "text"
	OutputTypeTurn       OutputType = "turn"
	OutputTypeTranscript OutputType = "transcript"
	OutputTypeError      OutputType = "error"
)

// MessageMeta contains presentation metadata for a message
type MessageMeta struct {
	Status     MessageStatus    `json:"status" bson:"status"`
	Output     *AssistantOutput `json:"output,omitempty" bson:"output,omitempty"`
	IsError    bool             `json:"is_error,omitempty" bson:"is_error,omitempty"`
	OutputType OutputType       `json:"output_type,omitempty" bson:"output_type,omitempty"`
}

// Message is one entry of the conversation, append-only in submission order
type Message struct {
	ID        string      `json:"id" bson:"_id"`
	Role      MessageRole `json:"role" bson:"role"`
	Content   string      `json:"content" bson:"content"`
	CreatedAt time.Time   `json:"created_at" bson:"created_at"`
	Meta      MessageMeta `json:"meta" bson:"meta"`
}

// IsLoading reports whether the message is a placeholder awaiting its reply
func (m *Message) IsLoading() bool {
	return m.Meta.Status == MessageStatusLoading
}

// FromPatient reports whether the message was typed or dictated by a human participant
func (m *Message) FromPatient() bool {
	return m.Role == MessageRoleUser || m.Role == MessageRoleDoctor
}

// Validate validates the message data
func (m *Message) Validate() error {
	if m.ID == "" {
		return errors.New("message id is required")
	}
	switch m.Role {
	case MessageRoleUser, MessageRoleDoctor, MessageRoleAssistant, MessageRoleSystem:
	default:
		return errors.New("invalid message role")
	}
	if m.Meta.Status != MessageStatusLoading && m.Meta.Status != MessageStatusReady {
		return errors.New("invalid message status")
	}
	return nil
}
