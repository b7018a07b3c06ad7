package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"pickme-client/internal/models"
	"pickme-client/internal/render"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSMessage is a message exchanged with map viewers
type WSMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Message types
const (
	MessageMarkers  = "markers"
	MessageRegion   = "region"
	MessageTracking = "tracking"
	MessageError    = "error"
	MessageFocus    = "focus"
)

type hubConn struct {
	conn *websocket.Conn
	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex
}

func (c *hubConn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages map viewer connections. It is a render.Renderer: every state
// change is kept as the latest snapshot and pushed to all viewers.
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*hubConn

	stateMu  sync.RWMutex
	markers  []models.PickRequest
	region   *models.Region
	tracking *render.Tracking
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections: make(map[string]*hubConn),
	}
}

// Register adds a viewer connection, sends it the current snapshot and returns its id
func (h *WSHub) Register(conn *websocket.Conn) string {
	id := uuid.NewString()
	hc := &hubConn{conn: conn}

	h.mu.Lock()
	h.connections[id] = hc
	h.mu.Unlock()

	log.Info().Str("conn_id", id).Msg("Viewer connected")

	for _, msg := range h.snapshot() {
		if err := h.SendTo(id, msg); err != nil {
			log.Error().Err(err).Str("conn_id", id).Msg("Failed to send snapshot")
			break
		}
	}
	return id
}

// Unregister removes and closes a viewer connection
func (h *WSHub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if hc, exists := h.connections[id]; exists {
		hc.conn.Close()
		delete(h.connections, id)
		log.Info().Str("conn_id", id).Msg("Viewer disconnected")
	}
}

// SendTo sends a message to one viewer
func (h *WSHub) SendTo(id string, message WSMessage) error {
	h.mu.RLock()
	hc, exists := h.connections[id]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("viewer %s is not connected", id)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := hc.write(data); err != nil {
		h.Unregister(id)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Broadcast sends a message to every viewer; failed viewers are dropped
func (h *WSHub) Broadcast(message WSMessage) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		if err := h.SendTo(id, message); err != nil {
			log.Warn().Err(err).Str("conn_id", id).Str("type", message.Type).Msg("Failed to push to viewer")
		}
	}
}

// Connections returns the number of connected viewers
func (h *WSHub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Close disconnects all viewers
func (h *WSHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, hc := range h.connections {
		hc.conn.Close()
		delete(h.connections, id)
	}
}

// Markers returns the last rendered pick requests
func (h *WSHub) Markers() []models.PickRequest {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	out := make([]models.PickRequest, len(h.markers))
	copy(out, h.markers)
	return out
}

// Region returns the last rendered region
func (h *WSHub) Region() (models.Region, bool) {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	if h.region == nil {
		return models.Region{}, false
	}
	return *h.region, true
}

// Tracking returns the last tracking update
func (h *WSHub) Tracking() (render.Tracking, bool) {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	if h.tracking == nil {
		return render.Tracking{}, false
	}
	return *h.tracking, true
}

func (h *WSHub) snapshot() []WSMessage {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()

	msgs := []WSMessage{{Type: MessageMarkers, Data: render.Features(h.markers)}}
	if h.region != nil {
		msgs = append(msgs, WSMessage{Type: MessageRegion, Data: *h.region})
	}
	if h.tracking != nil {
		msgs = append(msgs, WSMessage{Type: MessageTracking, Data: *h.tracking})
	}
	return msgs
}

func (h *WSHub) ShowMarkers(requests []models.PickRequest) {
	h.stateMu.Lock()
	h.markers = append([]models.PickRequest(nil), requests...)
	h.stateMu.Unlock()

	h.Broadcast(WSMessage{Type: MessageMarkers, Data: render.Features(requests)})
}

func (h *WSHub) ShowRegion(region models.Region) {
	h.stateMu.Lock()
	h.region = &region
	h.stateMu.Unlock()

	h.Broadcast(WSMessage{Type: MessageRegion, Data: region})
}

func (h *WSHub) ShowTracking(update render.Tracking) {
	h.stateMu.Lock()
	h.tracking = &update
	h.stateMu.Unlock()

	h.Broadcast(WSMessage{Type: MessageTracking, Data: update})
}

func (h *WSHub) ShowError(err error) {
	h.Broadcast(WSMessage{Type: MessageError, Message: err.Error()})
}
