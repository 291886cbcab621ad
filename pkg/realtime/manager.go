package realtime

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one websocket connection. A user may hold several (phone plus
// browser), so clients are keyed by user id and connection id.
type Client struct {
	UserID string
	ConnID string
	Conn   *websocket.Conn
	Send   chan Event    // buffered fan-out channel for this connection
	Done   chan struct{} // closed exactly once on teardown
}

// ConnectionManager tracks all active websocket connections on this instance.
type ConnectionManager struct {
	mu      sync.RWMutex
	clients map[string]map[string]*Client // user_id -> conn_id -> Client
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]map[string]*Client),
	}
}

// AddClient registers a connection. Unlike a single-connection registry it
// never evicts the user's other connections.
func (cm *ConnectionManager) AddClient(userID, connID string, conn *websocket.Conn) *Client {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	client := &Client{
		UserID: userID,
		ConnID: connID,
		Conn:   conn,
		Send:   make(chan Event, 32), // buffered to absorb bursts
		Done:   make(chan struct{}),
	}

	if cm.clients[userID] == nil {
		cm.clients[userID] = make(map[string]*Client)
	}
	cm.clients[userID][connID] = client
	return client
}

// RemoveClient unregisters a connection and reports whether that user still
// has other connections on this instance.
func (cm *ConnectionManager) RemoveClient(userID, connID string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conns, ok := cm.clients[userID]
	if !ok {
		return false
	}
	if client, ok := conns[connID]; ok {
		close(client.Done)
		delete(conns, connID)
	}
	if len(conns) == 0 {
		delete(cm.clients, userID)
		return false
	}
	return true
}

// IsOnline checks if a user has at least one active connection here.
func (cm *ConnectionManager) IsOnline(userID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return len(cm.clients[userID]) > 0
}

// OnlineUsers returns every user id with an active connection.
func (cm *ConnectionManager) OnlineUsers() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	users := make([]string, 0, len(cm.clients))
	for userID := range cm.clients {
		users = append(users, userID)
	}
	return users
}

// Deliver queues an event on one client without blocking the caller. A full
// queue drops the event; the client recovers state on its next fetch.
func (cm *ConnectionManager) Deliver(client *Client, event Event) error {
	select {
	case client.Send <- event:
		return nil
	case <-client.Done:
		return fmt.Errorf("connection %s/%s closed", client.UserID, client.ConnID)
	default:
		return fmt.Errorf("connection %s/%s queue full", client.UserID, client.ConnID)
	}
}
