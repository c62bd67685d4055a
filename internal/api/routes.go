package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/internal/auth"
	"github.com/dentalink/consult/internal/metrics"
	"github.com/dentalink/consult/internal/websocket"
	"github.com/dentalink/consult/usecase"
)

const claimsKey = "claims"

// Handler serves the REST and WebSocket surface of the server
type Handler struct {
	hub      *websocket.Hub
	issuer   *auth.Issuer // nil disables authentication
	validate *validator.Validate
	logger   *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, issuer *auth.Issuer, logger *zap.Logger) {
	h := &Handler{
		hub:      hub,
		issuer:   issuer,
		validate: validator.New(),
		logger:   logger,
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "consult-server",
		})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.POST("/auth/token", h.issueToken, h.requireRole(auth.RoleService))

	conversations := v1.Group("/conversations", h.requireRole(auth.RoleClinician, auth.RoleService))
	conversations.GET("/:id", h.getConversation)
	conversations.POST("/:id/messages", h.submitMessage)
	conversations.GET("/:id/transcript", h.getTranscript)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", h.websocketWithAuth)
}

// requireRole validates the bearer token and checks its role
func (h *Handler) requireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if h.issuer == nil {
				return next(c)
			}
			claims, err := h.authenticate(bearerToken(c.Request().Header.Get("Authorization")))
			if err != nil {
				return err
			}
			for _, role := range roles {
				if claims.Role == role {
					c.Set(claimsKey, claims)
					return next(c)
				}
			}
			h.logger.Warn("Request rejected: invalid role", zap.String("role", claims.Role))
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "invalid_role",
				Message: "Token role is not allowed for this endpoint",
			})
		}
	}
}

func (h *Handler) authenticate(token string) (*auth.JWTClaims, error) {
	if token == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		})
	}
	claims, err := h.issuer.ValidateToken(token)
	if err != nil {
		h.logger.Warn("Request rejected: invalid token", zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}
	return claims, nil
}

func bearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return ""
}

func (h *Handler) issueToken(c echo.Context) error {
	if h.issuer == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "auth_disabled",
			Message: "Authentication is disabled",
		})
	}

	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Clinician ID is required",
		})
	}

	token, expiresAt, err := h.issuer.GenerateClinicianToken(req.ClinicianID)
	if err != nil {
		h.logger.Error("Failed to generate clinician token",
			zap.String("clinician_id", req.ClinicianID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	return c.JSON(http.StatusOK, TokenResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *Handler) getConversation(c echo.Context) error {
	room, err := h.hub.Room(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.loadFailed(c, err)
	}
	return c.JSON(http.StatusOK, room.Controller().Snapshot())
}

func (h *Handler) submitMessage(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
	}
	if req.Role == "" {
		req.Role = entities.MessageRoleUser
	}

	room, err := h.hub.Room(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.loadFailed(c, err)
	}

	reply, err := room.Controller().Submit(c.Request().Context(), req.Role, req.Text)
	switch {
	case errors.Is(err, usecase.ErrReplyInFlight):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "reply_in_flight",
			Message: "Wait for the current reply to finish",
		})
	case errors.Is(err, usecase.ErrEmptyInput):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "empty_input",
			Message: "Nothing to submit",
		})
	case err != nil:
		h.logger.Error("Failed to submit message", zap.String("conversation_id", c.Param("id")), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "submit_failed",
			Message: "Failed to submit message",
		})
	}

	return c.JSON(http.StatusAccepted, SubmitResponse{MessageID: reply.MessageID})
}

func (h *Handler) getTranscript(c echo.Context) error {
	room, err := h.hub.Room(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.loadFailed(c, err)
	}
	controller := room.Controller()
	return c.JSON(http.StatusOK, TranscriptResponse{
		ConversationID: controller.ID(),
		Transcript:     controller.Transcript(),
		Segments:       controller.Segments(),
	})
}

func (h *Handler) loadFailed(c echo.Context, err error) error {
	h.logger.Error("Failed to load conversation", zap.String("conversation_id", c.Param("id")), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "load_failed",
		Message: "Failed to load conversation",
	})
}

// websocketWithAuth handles WebSocket connections with JWT authentication.
// Browsers cannot set headers on a socket, so the token may also come as
// the token query parameter.
func (h *Handler) websocketWithAuth(c echo.Context) error {
	conversationID := c.QueryParam("conversation_id")
	if conversationID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_conversation",
			Message: "conversation_id query parameter is required",
		})
	}

	clinicianID := "anonymous"
	if h.issuer != nil {
		token := bearerToken(c.Request().Header.Get("Authorization"))
		if token == "" {
			token = c.QueryParam("token")
		}
		claims, err := h.authenticate(token)
		if err != nil {
			h.logger.Warn("WebSocket connection rejected", zap.Error(err))
			return err
		}
		if claims.Role != auth.RoleClinician {
			h.logger.Warn("WebSocket connection rejected: invalid role",
				zap.String("role", claims.Role))
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "invalid_role",
				Message: "Only clinician tokens are allowed for WebSocket connections",
			})
		}
		clinicianID = claims.ClinicianID
	}

	h.logger.Info("WebSocket connection authenticated",
		zap.String("clinician_id", clinicianID),
		zap.String("conversation_id", conversationID))

	return websocket.HandleWebSocket(h.hub, c, conversationID, clinicianID)
}
