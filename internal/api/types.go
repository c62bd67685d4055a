package api

import (
	"time"

	"github.com/dentalink/consult/domain/entities"
)

// TokenRequest represents the request payload for clinician token issuance
type TokenRequest struct {
	ClinicianID string `json:"clinician_id" validate:"required"`
}

// TokenResponse represents the response payload for token issuance
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SubmitRequest represents a message submitted over REST
type SubmitRequest struct {
	Text string               `json:"text" validate:"required,max=8000"`
	Role entities.MessageRole `json:"role,omitempty" validate:"omitempty,oneof=user doctor"`
}

// SubmitResponse acknowledges a submission; the reply streams to sockets
type SubmitResponse struct {
	MessageID string `json:"message_id"`
}

// TranscriptResponse is the joined transcript of a conversation
type TranscriptResponse struct {
	ConversationID string             `json:"conversation_id"`
	Transcript     string             `json:"transcript"`
	Segments       []entities.Segment `json:"segments"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
