package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"foodbank-checkin-backend/internal/middleware"
	"foodbank-checkin-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// LiveHub fans snapshots out to staff screens
type LiveHub interface {
	Register(conn *websocket.Conn) string
	Unregister(clientID string)
	Subscribe(ctx context.Context, clientID, collection string) error
	Unsubscribe(clientID, collection string)
	SendToClient(clientID string, message services.WSMessage) error
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub      LiveHub
	auth     middleware.TokenValidator
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. An empty origin list
// accepts any origin.
func NewWebSocketHandler(hub LiveHub, auth middleware.TokenValidator, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.auth)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	clientID := h.hub.Register(conn)
	defer h.hub.Unregister(clientID)

	log.Info().
		Str("client_id", clientID).
		Str("user_id", principal.UserID).
		Msg("WebSocket connection established")

	ctx := r.Context()
	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("client_id", clientID).Msg("WebSocket error")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			h.sendError(clientID, "Invalid message format")
			continue
		}

		if err := h.handleMessage(ctx, clientID, msg); err != nil {
			log.Warn().Err(err).Str("client_id", clientID).Str("type", msg.Type).Msg("Failed to handle message")
		}
	}
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(ctx context.Context, clientID string, msg services.WSMessage) error {
	switch msg.Type {
	case "subscribe":
		return h.hub.Subscribe(ctx, clientID, msg.Collection)
	case "unsubscribe":
		h.hub.Unsubscribe(clientID, msg.Collection)
		return nil
	case "ping":
		return h.hub.SendToClient(clientID, services.WSMessage{Type: "pong"})
	default:
		return h.sendError(clientID, "Unknown message type")
	}
}

func (h *WebSocketHandler) sendError(clientID, message string) error {
	return h.hub.SendToClient(clientID, services.WSMessage{Type: "error", Message: message})
}
