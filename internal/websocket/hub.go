package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/buddy/usecase"
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

	// Time a client command may take, including a recognition handshake
	commandTimeout = 15 * time.Second

	// Time allowed to close a session when its connection ends
	closeTimeout = 5 * time.Second

	sendBufferSize    = 256
	commandBufferSize = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of connected clients
type Hub struct {
	// Registered clients by connection ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	// Tracks connections until their session is closed
	wg sync.WaitGroup

	sessions SessionFactory
	logger   *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(sessions SessionFactory, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		sessions:   sessions,
		logger:     logger,
	}
}

// Run starts the hub's main loop. When ctx is done every connection is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("clientID", client.clientID),
				zap.String("connectionID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
			}
			h.mu.Unlock()
			client.closeSend()
			h.logger.Info("Client unregistered",
				zap.String("clientID", client.clientID),
				zap.String("connectionID", client.id))

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for _, client := range h.clients {
				client.conn.Close()
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// Wait blocks until every connection has closed its session or ctx is done
func (h *Hub) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ConnectedClients returns the client IDs of the open connections
func (h *Hub) ConnectedClients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clientIDs := make([]string, 0, len(h.clients))
	for _, client := range h.clients {
		clientIDs = append(clientIDs, client.clientID)
	}
	return clientIDs
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.closeSend()
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and its search session.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send       chan WriteData
	sendMu     sync.RWMutex
	sendClosed bool

	// Connection ID and authenticated client ID
	id       string
	clientID string

	logger *zap.Logger

	session   *usecase.SearchSession
	release   func()
	relay     *speechRelay
	playback  *playbackTracker
	validator *MessageValidator

	// Session commands run in order on a single worker
	commands   chan func()
	workerDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(hub *Hub, conn *websocket.Conn, clientID string, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan WriteData, sendBufferSize),
		id:         id,
		clientID:   clientID,
		logger:     logger.With(zap.String("clientID", clientID), zap.String("connectionID", id)),
		release:    func() {},
		playback:   newPlaybackTracker(),
		validator:  NewMessageValidator(),
		commands:   make(chan func(), commandBufferSize),
		workerDone: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// HandleWebSocketWithAuth handles websocket requests of an authenticated client
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(hub, conn, clientID, logger)

	session, release, err := hub.sessions.NewSession(client)
	if err != nil {
		client.logger.Error("Failed to create search session", zap.Error(err))
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(CreateErrorMessage("session_unavailable", "Failed to start a search session", err.Error()))
		conn.Close()
		return nil
	}
	client.session = session
	client.release = release

	if !hub.registerClient(client) {
		client.logger.Warn("Hub stopped, rejecting connection")
		session.Close(context.Background())
		release()
		conn.Close()
		return nil
	}
	hub.wg.Add(1)

	client.sendJSON(CreateStateMessage(session.Snapshot()))

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.runCommands()
	go client.pumpEvents()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the session.
func (c *Client) readPump() {
	defer func() {
		c.shutdown()
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
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

// writePump pumps messages to the websocket connection.
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

// pumpEvents forwards session events until the session is closed
func (c *Client) pumpEvents() {
	for event := range c.session.Events() {
		if err := c.sendJSON(CreateEventMessage(event)); err != nil && !errors.Is(err, errClientClosed) {
			c.logger.Warn("Failed to send session event",
				zap.String("eventType", string(event.Type)),
				zap.Error(err))
		}
	}
}

func (c *Client) runCommands() {
	defer close(c.workerDone)
	for command := range c.commands {
		command()
	}
}

// shutdown releases the session once the connection is gone
func (c *Client) shutdown() {
	c.cancel()
	if c.relay != nil {
		c.relay.close()
	}
	c.playback.close()
	close(c.commands)
	<-c.workerDone

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	c.session.Close(ctx)
	c.release()

	c.hub.unregisterClient(c)
	c.hub.wg.Done()
}

// processMessage processes incoming messages from the client
func (c *Client) processMessage(message []byte) {
	msg, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendError("invalid_message", "Invalid message", err.Error())
		return
	}

	if c.relay != nil && c.relay.handle(msg) {
		return
	}

	switch m := msg.(type) {
	case *PingMessage:
		c.sendJSON(CreatePongMessage(m.Data))
		return
	case *NarrationEndedMessage:
		if !c.playback.finish(m.NarrationID, m.Interrupted) {
			c.logger.Debug("Playback report for unknown narration", zap.String("narrationID", m.NarrationID))
		}
		return
	case *RecognitionStatusMessage, *RecognitionResultMessage, *RecognitionErrorMessage:
		c.logger.Debug("Ignoring recognition report, speech is not relayed")
		return
	}

	select {
	case c.commands <- func() { c.handleCommand(msg) }:
	default:
		c.sendError("busy", "Too many pending commands", "")
	}
}

// handleCommand applies a session command. It runs on the command worker.
func (c *Client) handleCommand(msg interface{}) {
	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()

	switch m := msg.(type) {
	case *ControlMessage:
		switch m.Type {
		case MessageTypeToggleMic:
			c.session.ToggleMic(ctx)
		case MessageTypeStartRecording:
			if err := c.session.StartRecording(ctx); err != nil {
				c.sendError("microphone_unavailable", usecase.MessageMicUnavailable, err.Error())
			}
		case MessageTypeStopRecording:
			if _, err := c.session.StopRecording(ctx); err != nil && !errors.Is(err, usecase.ErrEmptyUtterance) {
				c.sendError("recording_failed", "Failed to stop recording", err.Error())
			}
		case MessageTypeToggleAudio:
			c.session.ToggleAudio()
		case MessageTypeDismissResult:
			c.session.DismissResult()
		case MessageTypeGetState:
			c.sendJSON(CreateStateMessage(c.session.Snapshot()))
		}

	case *SubmitQuestionMessage:
		accepted := false
		if m.Text == "" {
			accepted = c.session.SubmitDraft()
		} else {
			accepted = c.session.SubmitQuestion(m.Text)
		}
		if !accepted {
			c.logger.Debug("Blank question ignored")
		}

	case *UpdateDraftMessage:
		c.session.SetDraft(m.Text)

	case *SetAudioMessage:
		c.session.SetAudioEnabled(*m.Enabled)

	case *SelectResultMessage:
		if _, err := c.session.SelectResult(m.ResultID); err != nil {
			c.sendError("result_not_found", "Result is not part of the current results", m.ResultID)
		}

	case *VoicesChangedMessage:
		if c.relay == nil {
			c.logger.Debug("Ignoring client voices, narration is not relayed")
			return
		}
		c.session.UpdateVoices(m.Voices)
	}
}

// processBinaryAudioChunk feeds microphone audio to the active recording
func (c *Client) processBinaryAudioChunk(data []byte) {
	if err := c.session.FeedAudio(data); err != nil {
		if errors.Is(err, usecase.ErrNotListening) {
			c.logger.Debug("Dropping audio chunk, not listening", zap.Int("size", len(data)))
			return
		}
		c.logger.Warn("Failed to feed audio chunk", zap.Int("size", len(data)), zap.Error(err))
	}
}

func (c *Client) sendError(code, message, details string) {
	c.sendJSON(CreateErrorMessage(code, message, details))
}

func (c *Client) sendJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *Client) sendBinary(data []byte) error {
	return c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: data})
}

func (c *Client) enqueue(data WriteData) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.sendClosed {
		return errClientClosed
	}

	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case c.send <- data:
		return nil
	case <-timer.C:
		return errors.New("send buffer full")
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}
