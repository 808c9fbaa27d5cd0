package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
	"github.com/solana-sos/emergency/internal/auth"
	"github.com/solana-sos/emergency/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio frames

	sendBufferSize = 256
)

// ErrHubStopped is returned when a connection arrives after the hub stopped
var ErrHubStopped = errors.New("websocket hub stopped")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// connections are authenticated by token before the upgrade
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Coordinator is the part of the emergency coordinator driven by connected clients
type Coordinator interface {
	SignalUserReady()
	SignalActionCompleted()
	SignalDispatcherReady()
	Snapshot() usecase.IncidentSnapshot
}

// AudioProcessor runs captured responder audio through the audio pipeline
type AudioProcessor interface {
	ApplyNoiseFiltering(ctx context.Context, pcm []byte) []byte
	EnhanceAudio(ctx context.Context, pcm []byte) []byte
}

// Hub maintains the set of connected front ends and dispatch consoles.
// It broadcasts coordinator events, forwards readiness signals and relays
// the responder audio feed to dispatchers while monitoring is enabled.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	coordMu     sync.RWMutex
	coordinator Coordinator
	processor   AudioProcessor

	validator *MessageValidator
	logger    *zap.Logger
}

var _ repositories.EventPublisher = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// Attach wires the coordinator and audio processor once they exist.
// The audio service depends on the hub as its device, so this cannot
// happen in NewHub.
func (h *Hub) Attach(coordinator Coordinator, processor AudioProcessor) {
	h.coordMu.Lock()
	defer h.coordMu.Unlock()
	h.coordinator = coordinator
	h.processor = processor
}

func (h *Hub) attached() (Coordinator, AudioProcessor) {
	h.coordMu.RLock()
	defer h.coordMu.RUnlock()
	return h.coordinator, h.processor
}

// Run starts the hub's main loop. It returns when ctx is done, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.id]; ok {
				close(old.send)
			}
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("clientID", client.id),
				zap.String("role", client.role))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.id]; ok && current == client {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))
		}
	}
}

// Publish implements repositories.EventPublisher
func (h *Hub) Publish(event entities.EmergencyEvent) {
	payload := marshal(EventMessage{
		BaseMessage: newBase(MessageTypeEvent),
		Event:       event,
	})
	sent := h.broadcast(func(*Client) bool { return true }, WriteData{Type: websocket.TextMessage, Payload: payload})
	h.logger.Debug("Event published",
		zap.String("type", string(event.Type)),
		zap.Int("clients", sent))
}

// ClientCount returns the number of connected clients with the given role,
// or all clients when role is empty.
func (h *Hub) ClientCount(role string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, client := range h.clients {
		if role == "" || client.role == role {
			n++
		}
	}
	return n
}

// broadcast queues data on every matching client without blocking and
// returns how many clients accepted it.
func (h *Hub) broadcast(match func(*Client) bool, data WriteData) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.send <- data:
			sent++
		default:
			h.logger.Warn("Client send buffer full, dropping message",
				zap.String("clientID", client.id))
		}
	}
	return sent
}

// WriteData is one outbound websocket frame
type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Device or console id from the token
	id string

	// auth.RoleDevice or auth.RoleDispatcher
	role string

	logger *zap.Logger
}

// HandleWebSocketWithAuth upgrades an authenticated request and registers the client
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, clientID, role string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan WriteData, sendBufferSize),
		id:     clientID,
		role:   role,
		logger: logger.With(zap.String("clientID", clientID)),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return ErrHubStopped
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
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
			c.processAudioFrame(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
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

// processMessage handles a control message from the client
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected message", zap.Error(err))
		c.sendError("invalid_message", err.Error())
		return
	}

	switch m := msg.(type) {
	case *PingMessage:
		c.reply(PongMessage{BaseMessage: newBase(MessageTypePong), Data: m.Data})
	case *SignalMessage:
		c.handleSignal(m)
	case *CommandAckMessage:
		if m.Success {
			c.logger.Debug("Audio command acknowledged", zap.String("commandID", m.CommandID))
		} else {
			c.logger.Warn("Audio command failed on device",
				zap.String("commandID", m.CommandID),
				zap.String("error", m.Error))
		}
	}
}

func (c *Client) handleSignal(m *SignalMessage) {
	coordinator, _ := c.hub.attached()
	if coordinator == nil {
		c.sendError("not_ready", "coordinator unavailable")
		return
	}

	if m.IncidentID != "" && m.IncidentID != coordinator.Snapshot().IncidentID {
		c.sendError("stale_incident", "signal does not match the current incident")
		return
	}

	switch m.Type {
	case MessageTypeUserReady:
		coordinator.SignalUserReady()
	case MessageTypeActionCompleted:
		coordinator.SignalActionCompleted()
	case MessageTypeDispatcherReady:
		if c.role != auth.RoleDispatcher {
			c.sendError("forbidden", "only dispatchers may signal dispatcher readiness")
			return
		}
		coordinator.SignalDispatcherReady()
	}

	c.logger.Info("Readiness signal forwarded", zap.String("signal", string(m.Type)))
}

// processAudioFrame runs responder audio through the pipeline and relays
// it to dispatch consoles while the dispatcher audio feed is enabled.
func (c *Client) processAudioFrame(data []byte) {
	if c.role != auth.RoleDevice {
		c.logger.Warn("Ignoring audio frame from non-device client")
		return
	}

	coordinator, processor := c.hub.attached()
	if coordinator == nil || processor == nil {
		return
	}

	snapshot := coordinator.Snapshot()
	if snapshot.Context == nil || !snapshot.Context.AudioFeedEnabled {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	pcm := processor.EnhanceAudio(ctx, processor.ApplyNoiseFiltering(ctx, data))
	c.hub.broadcast(func(client *Client) bool {
		return client.role == auth.RoleDispatcher
	}, WriteData{Type: websocket.BinaryMessage, Payload: pcm})
}

func (c *Client) reply(msg interface{}) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	// send is closed once the client leaves the map
	if c.hub.clients[c.id] != c {
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: marshal(msg)}:
	default:
		c.logger.Warn("Client send buffer full, dropping reply")
	}
}

func (c *Client) sendError(code, message string) {
	c.reply(ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
	})
}
