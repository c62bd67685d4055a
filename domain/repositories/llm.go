package repositories

import (
	"context"
	"io"

	"github.com/dentalink/consult/domain/entities"
)

// InferenceChannel abstracts the remote model that answers a conversation
type InferenceChannel interface {
	// Stream sends the request and returns the raw reply body. The body has no
	// inner framing; callers concatenate bytes as they arrive. Callers must Close it.
	Stream(ctx context.Context, req InferenceRequest) (io.ReadCloser, error)
}

// InferenceRequest carries the full ordered history plus a triage hint
type InferenceRequest struct {
	Messages    []ChatMessage        `json:"messages"`
	TriageState entities.TriageState `json:"triageState,omitempty"`
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender on the wire
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)

// RoleOf maps a conversation role to its wire role
func RoleOf(role entities.MessageRole) Role {
	switch role {
	case entities.MessageRoleAssistant:
		return AssistantRole
	case entities.MessageRoleSystem:
		return SystemRole
	default:
		return UserRole
	}
}
