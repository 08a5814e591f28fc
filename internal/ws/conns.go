// Package ws provides the WebSocket streaming surface: one connection per
// device, binary frames in for audio, text and audio frames out for
// responses.
package ws

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnManager tracks the active connection per device. A device opening a
// second connection displaces the first.
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewConnManager creates an empty connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{active: make(map[string]*websocket.Conn)}
}

// Register adds the connection for a device, closing any previous one.
func (m *ConnManager) Register(deviceID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[deviceID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
		slog.Info("Displaced previous device connection", "device_id", deviceID)
	}
	m.active[deviceID] = conn
	slog.Info("Device connection registered", "device_id", deviceID)
}

// Unregister removes the connection for a device if it is still current.
func (m *ConnManager) Unregister(deviceID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[deviceID]; ok && current == conn {
		delete(m.active, deviceID)
		slog.Info("Device connection unregistered", "device_id", deviceID)
	}
}

// Count returns the number of active device connections.
func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}
