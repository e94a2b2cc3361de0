package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"foodbank-checkin-backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Live collections a client can subscribe to
const (
	LiveRegistrations = models.CollectionRegistrations
	LiveCheckins      = models.CollectionCheckins
	LiveQueue         = "queue"
	LiveServed        = "served"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type       string `json:"type"`
	Collection string `json:"collection,omitempty"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// SnapshotSource loads the full current list of one live collection
type SnapshotSource func(ctx context.Context) (any, error)

// affectedCollections maps a changed table to the live lists derived from it
var affectedCollections = map[string][]string{
	models.CollectionRegistrations: {LiveRegistrations, LiveServed},
	models.CollectionCheckins:      {LiveCheckins, LiveQueue, LiveServed},
}

type wsClient struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	subs    map[string]bool
}

func (c *wsClient) send(message WSMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// WSHub pushes full-list snapshots to subscribed admin screens. Every push
// replaces the whole list on the client.
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	sources map[string]SnapshotSource
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(sources map[string]SnapshotSource) *WSHub {
	return &WSHub{
		clients: make(map[string]*wsClient),
		sources: sources,
	}
}

// Register adds a connection and returns its client id
func (h *WSHub) Register(conn *websocket.Conn) string {
	client := &wsClient{id: uuid.New().String(), conn: conn, subs: map[string]bool{}}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	log.Info().Str("client_id", client.id).Msg("WebSocket connection registered")
	return client.id
}

// Unregister closes and forgets a connection
func (h *WSHub) Unregister(clientID string) {
	h.mu.Lock()
	client, exists := h.clients[clientID]
	delete(h.clients, clientID)
	h.mu.Unlock()

	if exists {
		client.conn.Close()
		log.Info().Str("client_id", clientID).Msg("WebSocket connection unregistered")
	}
}

// Subscribe starts pushing a collection to the client and sends the current
// snapshot right away
func (h *WSHub) Subscribe(ctx context.Context, clientID, collection string) error {
	if _, ok := h.sources[collection]; !ok {
		return h.SendToClient(clientID, WSMessage{Type: "error", Message: "Unknown collection: " + collection})
	}

	h.mu.Lock()
	client, exists := h.clients[clientID]
	if exists {
		client.subs[collection] = true
	}
	h.mu.Unlock()
	if !exists {
		return fmt.Errorf("client %s is not connected", clientID)
	}

	msg, err := h.snapshot(ctx, collection)
	if err != nil {
		log.Error().Err(err).Str("collection", collection).Msg("Failed to load snapshot")
		return h.SendToClient(clientID, WSMessage{Type: "error", Collection: collection, Message: "Failed to load " + collection})
	}
	return h.SendToClient(clientID, msg)
}

// Unsubscribe stops pushing a collection to the client
func (h *WSHub) Unsubscribe(clientID, collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, exists := h.clients[clientID]; exists {
		delete(client.subs, collection)
	}
}

// SendToClient sends a message to one connection
func (h *WSHub) SendToClient(clientID string, message WSMessage) error {
	h.mu.RLock()
	client, exists := h.clients[clientID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("client %s is not connected", clientID)
	}

	if err := client.send(message); err != nil {
		h.Unregister(clientID)
		return err
	}
	return nil
}

// Notify reloads every live list derived from a changed table and pushes it
// to its subscribers. Lists nobody watches are not loaded.
func (h *WSHub) Notify(ctx context.Context, table string) {
	for _, collection := range affectedCollections[table] {
		subscribers := h.subscribers(collection)
		if len(subscribers) == 0 {
			continue
		}
		msg, err := h.snapshot(ctx, collection)
		if err != nil {
			log.Error().Err(err).Str("collection", collection).Msg("Failed to load snapshot")
			continue
		}
		for _, id := range subscribers {
			if err := h.SendToClient(id, msg); err != nil {
				log.Warn().Err(err).Str("client_id", id).Msg("Failed to push snapshot")
			}
		}
	}
}

// Connections returns the number of open connections
func (h *WSHub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WSHub) subscribers(collection string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []string
	for id, client := range h.clients {
		if client.subs[collection] {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (h *WSHub) snapshot(ctx context.Context, collection string) (WSMessage, error) {
	data, err := h.sources[collection](ctx)
	if err != nil {
		return WSMessage{}, err
	}
	return WSMessage{Type: "snapshot", Collection: collection, Data: data}, nil
}

// LiveSources builds the snapshot loaders of every live collection
func LiveSources(registrations *RegistrationService, checkins *CheckinService) map[string]SnapshotSource {
	return map[string]SnapshotSource{
		LiveRegistrations: func(ctx context.Context) (any, error) {
			return nonNil(registrations.List(ctx))
		},
		LiveCheckins: func(ctx context.Context) (any, error) {
			return nonNil(checkins.List(ctx, nil))
		},
		LiveQueue: func(ctx context.Context) (any, error) {
			return nonNil(checkins.Queue(ctx))
		},
		LiveServed: func(ctx context.Context) (any, error) {
			return nonNil(registrations.Served(ctx))
		},
	}
}

// nonNil keeps empty lists encoding as [] rather than null
func nonNil[T any](items []T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
