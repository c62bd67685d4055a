package websocket

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/domain/repositories"
	"github.com/dentalink/consult/usecase"
)

// Time allowed for a recording to flush on stop
const stopTimeout = 5 * time.Second

// processMessage validates a command and applies it to the conversation
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendError("invalid_message", "Message could not be processed", err)
		return
	}

	controller := c.room.controller
	switch m := msg.(type) {
	case *RecordingStartMessage:
		if m.Language != "" {
			controller.SetLanguage(c.ctx, m.Language)
		}
		if err := controller.StartRecording(c.ctx); err != nil {
			c.sendCommandError(err)
		}

	case *RecordingStopMessage:
		ctx, cancel := context.WithTimeout(c.ctx, stopTimeout)
		defer cancel()
		controller.StopRecording(ctx)

	case *SubmitTextMessage:
		role := m.Role
		if role == "" {
			role = entities.MessageRoleUser
		}
		if _, err := controller.Submit(c.ctx, role, m.Text); err != nil {
			c.sendCommandError(err)
		}

	case *SubmitTranscriptMessage:
		if _, err := controller.SubmitTranscript(c.ctx); err != nil {
			c.sendCommandError(err)
		}

	case *EditSegmentMessage:
		if _, err := controller.EditSegment(c.ctx, m.SegmentID, m.Text); err != nil {
			c.sendCommandError(err)
		}

	case *DeleteSegmentMessage:
		if err := controller.DeleteSegment(c.ctx, m.SegmentID); err != nil {
			c.sendCommandError(err)
		}

	case *SetLanguageMessage:
		controller.SetLanguage(c.ctx, m.Language)

	case *PingMessage:
		c.sendJSON(CreatePongMessage(m.Data))
	}
}

// sendCommandError maps a controller error to an error event for this client
func (c *Client) sendCommandError(err error) {
	switch {
	case errors.Is(err, usecase.ErrReplyInFlight):
		c.sendError("reply_in_flight", "Wait for the current reply to finish", err)
	case errors.Is(err, usecase.ErrEmptyInput):
		c.sendError("empty_input", "Nothing to submit", err)
	case errors.Is(err, usecase.ErrSegmentNotFound):
		c.sendError("segment_not_found", "Segment does not exist", err)
	case errors.Is(err, repositories.ErrCapabilityUnavailable):
		c.sendError("capability_unavailable", "Speech recognition is not available", err)
	default:
		c.logger.Error("Command failed", zap.Error(err))
		c.sendError("internal_error", "Command failed", err)
	}
}
