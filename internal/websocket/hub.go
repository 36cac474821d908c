package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/kidquest/internal/model"
)

const authorizeTimeout = 5 * time.Second

// Message represents a real-time notification pushed to subscribed clients.
type Message struct {
	Type    string         `json:"type"`
	Entity  string         `json:"entity"`
	Action  string         `json:"action"`
	ID      int64          `json:"id,omitempty"`
	EventID string         `json:"event_id"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:    fmt.Sprintf("%s_%s", entity, action),
		Entity:  entity,
		Action:  action,
		ID:      id,
		EventID: uuid.NewString(),
		Extra:   extra,
	}
}

// Authorizer decides whether a principal may see events about a child.
type Authorizer interface {
	Authorize(ctx context.Context, principalID, childID int64) (bool, error)
}

// Hub maintains the set of active WebSocket clients and fans out events to
// the clients allowed to see them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	authz   Authorizer
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(authz Authorizer, logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		authz:   authz,
		logger:  logger.With("component", "websocket"),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Publish delivers a quest instance transition to every client authorized
// for the instance's child.
func (h *Hub) Publish(event model.InstanceEvent) {
	extra := map[string]any{
		"child_id":  event.ChildID,
		"timestamp": event.Timestamp,
	}
	if event.ReviewerID != nil {
		extra["reviewer_id"] = *event.ReviewerID
	}
	h.BroadcastToChild(event.ChildID, NewMessage("quest_instance", string(event.NewState), event.InstanceID, extra))
}

// BroadcastToChild sends msg to the clients whose principal may access
// childID. Authorization runs outside the hub lock.
func (h *Hub) BroadcastToChild(childID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	principals := make(map[int64]bool, len(h.clients))
	for c := range h.clients {
		principals[c.principalID] = false
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
	defer cancel()
	for id := range principals {
		ok, err := h.authz.Authorize(ctx, id, childID)
		if err != nil {
			h.logger.Error("authorize subscriber", "principal_id", id, "child_id", childID, "error", err)
			continue
		}
		principals[id] = ok
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if principals[c.principalID] {
			c.enqueue(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
