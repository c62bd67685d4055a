package websocket

import (
	"time"

	"go.uber.org/zap"
)

// ConversationCleanupService unloads conversations nobody is using
type ConversationCleanupService struct {
	hub      *Hub
	ttl      time.Duration
	period   time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	now      func() time.Time
}

// NewConversationCleanupService creates a cleanup service that unloads
// conversations idle for ttl, checking every period
func NewConversationCleanupService(hub *Hub, ttl, period time.Duration, logger *zap.Logger) *ConversationCleanupService {
	if period <= 0 {
		period = 5 * time.Minute
	}
	return &ConversationCleanupService{
		hub:      hub,
		ttl:      ttl,
		period:   period,
		logger:   logger,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins the background cleanup process
func (s *ConversationCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Conversation cleanup service started",
		zap.Duration("ttl", s.ttl),
		zap.Duration("period", s.period))
}

// Stop gracefully stops the cleanup service
func (s *ConversationCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Conversation cleanup service stopped")
}

// cleanupLoop runs the cleanup process periodically
func (s *ConversationCleanupService) cleanupLoop() {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup unloads idle conversations
func (s *ConversationCleanupService) runCleanup() int {
	evicted := s.hub.EvictIdle(s.now(), s.ttl)
	if evicted > 0 {
		s.logger.Info("Conversation cleanup completed", zap.Int("evicted", evicted))
	}
	return evicted
}
