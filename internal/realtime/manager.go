// Package realtime carries the chat operation over a WebSocket.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnManager tracks open chat connections per user.
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewConnManager creates an empty manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Register adds a connection for a user.
func (m *ConnManager) Register(userID, connID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}
	m.active[userID][connID] = conn
	slog.Info("Chat connection registered", "user_id", userID, "conn_id", connID)
}

// Unregister removes a connection if it is still the one registered.
func (m *ConnManager) Unregister(userID, connID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conns, ok := m.active[userID]; ok {
		if current, exists := conns[connID]; exists && current == conn {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Chat connection unregistered", "user_id", userID, "conn_id", connID)
		}
	}
}

// Count returns the number of open connections for userID.
func (m *ConnManager) Count(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active[userID])
}

// CloseAll closes every tracked connection. Used on shutdown.
func (m *ConnManager) CloseAll() {
	m.mu.Lock()
	active := m.active
	m.active = make(map[string]map[string]*websocket.Conn)
	m.mu.Unlock()

	// Closing waits for the peer's handshake, so it runs outside the lock.
	for userID, conns := range active {
		for connID, conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			slog.Info("Chat connection closed", "user_id", userID, "conn_id", connID)
		}
	}
}
