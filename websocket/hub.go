package websocket

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotConnected is returned by SendToUser when the user has no open socket.
var ErrNotConnected = errors.New("user not connected")

// Notification represents a message sent over WebSocket
type Notification struct {
	Type         string      `json:"type"`
	Message      string      `json:"message"`
	Data         interface{} `json:"data,omitempty"`
	UserID       string      `json:"userID,omitempty"`
	RequiresAuth bool        `json:"requiresAuth,omitempty"`
}

// Hub maintains the set of authenticated clients. A user may have several
// connections open, one per device.
type Hub struct {
	clients map[primitive.ObjectID]map[*Client]bool
	mu      sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients: make(map[primitive.ObjectID]map[*Client]bool),
	}
}

// Run closes every connection when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.clients {
		for client := range set {
			client.close()
		}
		delete(h.clients, userID)
	}
}

// authenticate attaches an authenticated client to its user.
func (h *Hub) authenticate(client *Client, userID primitive.ObjectID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.UserID = userID
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*Client]bool)
		h.clients[userID] = set
	}
	set[client] = true
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[client.UserID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	client.close()
}

// SendToUser queues a message on every connection of the user. Slow
// connections whose buffer is full miss the message.
func (h *Hub) SendToUser(userID primitive.ObjectID, notification Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set, ok := h.clients[userID]
	if !ok || len(set) == 0 {
		return ErrNotConnected
	}
	for client := range set {
		client.enqueue(notification)
	}
	return nil
}

// IsConnected reports whether the user has at least one open socket.
func (h *Hub) IsConnected(userID primitive.ObjectID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ConnectedUsers is the number of users with an open socket.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
