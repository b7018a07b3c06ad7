package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"pickme-client/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the viewer listens on a local address only
	},
}

// Focuser is notified when a viewer comes into focus
type Focuser interface {
	Focus(ctx context.Context)
}

// WebSocketHandler handles map viewer connections
type WebSocketHandler struct {
	hub   *services.WSHub
	focus Focuser
	// focus messages allowed per connection
	focusRate  rate.Limit
	focusBurst int
}

// NewWebSocketHandler creates a new WebSocket handler; focus may be nil
func NewWebSocketHandler(hub *services.WSHub, focus Focuser) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		focus:      focus,
		focusRate:  rate.Every(time.Second),
		focusBurst: 3,
	}
}

// HandleWebSocket upgrades the connection, registers it with the hub and
// treats the connect as a focus event
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	id := h.hub.Register(conn)
	defer h.hub.Unregister(id)

	// refreshes outlive this connection
	ctx := context.WithoutCancel(r.Context())
	h.triggerFocus(ctx)

	limiter := rate.NewLimiter(h.focusRate, h.focusBurst)

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("conn_id", id).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Warn().Err(err).Str("conn_id", id).Msg("Failed to parse WebSocket message")
			h.sendError(id, "Invalid message format")
			continue
		}

		switch msg.Type {
		case services.MessageFocus:
			if !limiter.Allow() {
				h.sendError(id, "Too many focus requests")
				continue
			}
			h.triggerFocus(ctx)
		default:
			h.sendError(id, "Unknown message type")
		}
	}
}

func (h *WebSocketHandler) triggerFocus(ctx context.Context) {
	if h.focus != nil {
		h.focus.Focus(ctx)
	}
}

// sendError sends an error message to a viewer
func (h *WebSocketHandler) sendError(id, message string) {
	if err := h.hub.SendTo(id, services.WSMessage{Type: services.MessageError, Message: message}); err != nil {
		log.Error().Err(err).Str("conn_id", id).Msg("Failed to send error message")
	}
}
