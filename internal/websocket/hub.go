package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/internal/metrics"
	"github.com/dentalink/consult/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ControllerFactory builds the controller of a conversation. The observer
// receives every change the controller makes.
type ControllerFactory func(conversationID string, observer usecase.Observer) *usecase.ConversationController

// Hub keeps one room per loaded conversation. Every socket of a conversation
// shares the room's controller.
type Hub struct {
	rooms map[string]*Room

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe access to rooms map
	mu sync.RWMutex

	factory   ControllerFactory
	validator *MessageValidator
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(factory ControllerFactory, logger *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		factory:    factory,
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// Run starts the hub's main loop; it returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			if !client.room.add(client) {
				client.closeSend()
				continue
			}
			metrics.ConnectedClients.Inc()
			h.logger.Info("Client registered",
				zap.String("conversationID", client.room.id),
				zap.String("clinicianID", client.clinicianID))
			client.sendJSON(client.room.snapshot())

		case client := <-h.unregister:
			if client.room.remove(client) {
				metrics.ConnectedClients.Dec()
				h.logger.Info("Client unregistered",
					zap.String("conversationID", client.room.id),
					zap.String("clinicianID", client.clinicianID))
			}
		}
	}
}

// Room returns the room of a conversation, loading it on first use
func (h *Hub) Room(ctx context.Context, conversationID string) (*Room, error) {
	if conversationID == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}

	h.mu.RLock()
	room, ok := h.rooms[conversationID]
	h.mu.RUnlock()
	if ok {
		return room, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[conversationID]; ok {
		return room, nil
	}

	room = newRoom(conversationID, h.logger)
	room.controller = h.factory(conversationID, room)
	if err := room.controller.Restore(ctx); err != nil {
		room.controller.Close()
		return nil, fmt.Errorf("failed to restore conversation %s: %w", conversationID, err)
	}

	h.rooms[conversationID] = room
	metrics.ActiveConversations.Inc()
	h.logger.Info("Conversation loaded", zap.String("conversationID", conversationID))
	return room, nil
}

// Lookup returns a loaded room without loading it
func (h *Hub) Lookup(conversationID string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[conversationID]
	return room, ok
}

// EvictIdle unloads conversations that have no clients and no activity for
// ttl. It returns the number of conversations unloaded.
func (h *Hub) EvictIdle(now time.Time, ttl time.Duration) int {
	h.mu.Lock()
	var idle []*Room
	for id, room := range h.rooms {
		if room.clientCount() == 0 && room.controller.IdleSince(now, ttl) && room.markClosed() {
			idle = append(idle, room)
			delete(h.rooms, id)
		}
	}
	h.mu.Unlock()

	for _, room := range idle {
		room.controller.Close()
		metrics.ActiveConversations.Dec()
		h.logger.Info("Idle conversation unloaded", zap.String("conversationID", room.id))
	}
	return len(idle)
}

// Close unloads every conversation
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]*Room)
	h.mu.Unlock()

	for _, room := range rooms {
		room.closeClients()
		room.controller.Close()
		metrics.ActiveConversations.Dec()
	}
}

// Room fans controller events out to the sockets of one conversation
type Room struct {
	id         string
	controller *usecase.ConversationController
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool
}

func newRoom(id string, logger *zap.Logger) *Room {
	return &Room{
		id:      id,
		logger:  logger.With(zap.String("conversationID", id)),
		clients: make(map[*Client]struct{}),
	}
}

// Controller returns the conversation controller of the room
func (r *Room) Controller() *usecase.ConversationController {
	return r.controller
}

func (r *Room) add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// markClosed stops the room from accepting clients. It fails when a client
// joined since the caller last looked.
func (r *Room) markClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.clients) > 0 {
		return false
	}
	r.closed = true
	return true
}

// remove drops the client and closes its send channel. The last client to
// leave finalizes a recording left running.
func (r *Room) remove(c *Client) bool {
	r.mu.Lock()
	if _, ok := r.clients[c]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, c)
	empty := len(r.clients) == 0
	r.mu.Unlock()

	c.closeSend()

	if empty && r.controller.TranscriptionState() == usecase.TranscriptionListening {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			r.controller.StopRecording(ctx)
		}()
	}
	return true
}

func (r *Room) clientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Room) closeClients() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for c := range r.clients {
		delete(r.clients, c)
		c.closeSend()
	}
}

func (r *Room) snapshot() *SnapshotMessage {
	return &SnapshotMessage{
		BaseMessage:        newBase(MessageTypeSnapshot),
		Conversation:       r.controller.Snapshot(),
		TranscriptionState: r.controller.TranscriptionState(),
		InFlight:           r.controller.InFlight(),
	}
}

// broadcast sends v to every client. A client whose buffer is full is
// disconnected rather than allowed to stall the conversation.
func (r *Room) broadcast(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		if !c.trySend(WriteData{Type: websocket.TextMessage, Payload: payload}) {
			r.logger.Warn("Client too slow, disconnecting", zap.String("clinicianID", c.clinicianID))
			delete(r.clients, c)
			c.closeSend()
		}
	}
}

func (r *Room) OnMessage(msg entities.Message) {
	r.broadcast(&ConversationMessage{BaseMessage: newBase(MessageTypeMessage), Message: msg})
}

func (r *Room) OnPartialTranscript(text string) {
	r.broadcast(&PartialMessage{BaseMessage: newBase(MessageTypePartial), Text: text})
}

func (r *Room) OnSegment(seg entities.Segment) {
	r.broadcast(&SegmentMessage{BaseMessage: newBase(MessageTypeSegment), Segment: seg})
}

func (r *Room) OnSegmentDeleted(id string) {
	r.broadcast(&SegmentDeletedMessage{BaseMessage: newBase(MessageTypeSegmentDeleted), SegmentID: id})
}

func (r *Room) OnTriage(tc entities.TriageContext) {
	r.broadcast(&TriageMessage{BaseMessage: newBase(MessageTypeTriage), Triage: tc})
}

func (r *Room) OnTranscriptionState(state usecase.TranscriptionState, err error) {
	msg := &TranscriptionStateMessage{BaseMessage: newBase(MessageTypeTranscriptionState), State: state}
	if err != nil {
		msg.Error = err.Error()
	}
	r.broadcast(msg)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and its room.
type Client struct {
	hub  *Hub
	room *Room

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send      chan WriteData
	sendMu    sync.Mutex
	sendDone  bool
	ctx       context.Context
	cancel    context.CancelFunc

	clinicianID string
	logger      *zap.Logger
}

// HandleWebSocket upgrades the request and attaches the socket to the room
// of conversationID. clinicianID comes from the validated token.
func HandleWebSocket(hub *Hub, c echo.Context, conversationID, clinicianID string) error {
	room, err := hub.Room(c.Request().Context(), conversationID)
	if err != nil {
		hub.logger.Error("Failed to load conversation",
			zap.String("conversationID", conversationID),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load conversation")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:         hub,
		room:        room,
		conn:        conn,
		send:        make(chan WriteData, sendBuffer),
		ctx:         ctx,
		cancel:      cancel,
		clinicianID: clinicianID,
		logger:      room.logger.With(zap.String("clinicianID", clinicianID)),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		cancel()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

func (c *Client) trySend(data WriteData) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendDone {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendDone {
		c.sendDone = true
		close(c.send)
	}
}

func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	if !c.trySend(WriteData{Type: websocket.TextMessage, Payload: payload}) {
		c.logger.Warn("Dropping message for slow client")
	}
}

func (c *Client) sendError(code, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.sendJSON(CreateErrorMessage(code, message, details))
}

// readPump pumps messages from the websocket connection to the controller.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
			c.room.remove(c)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the room to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processBinaryAudioChunk forwards captured audio to the active recording
func (c *Client) processBinaryAudioChunk(data []byte) {
	if err := c.room.controller.SendAudio(data); err != nil {
		c.logger.Debug("Dropping audio chunk", zap.Int("size", len(data)), zap.Error(err))
	}
}
