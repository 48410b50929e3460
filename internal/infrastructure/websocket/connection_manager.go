package websocket

import (
	"sync"

	"agri-auction/internal/domain"
	"agri-auction/pkg/logger"
)

// ConnectionManager tracks the live connections of each user. A user may
// hold several at once, one per open tab or device.
type ConnectionManager struct {
	userConns map[string]map[string]domain.WebSocketConnection // userID -> connID -> connection
	mutex     sync.RWMutex
	log       logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		userConns: make(map[string]map[string]domain.WebSocketConnection),
		log:       log,
	}
}

func (cm *ConnectionManager) RegisterConnection(conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	userID := conn.UserID()
	if cm.userConns[userID] == nil {
		cm.userConns[userID] = make(map[string]domain.WebSocketConnection)
	}
	cm.userConns[userID][conn.ID()] = conn

	cm.log.Info("Connection registered", "user_id", userID, "conn_id", conn.ID())
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	userID := conn.UserID()
	if conns, exists := cm.userConns[userID]; exists {
		delete(conns, conn.ID())
		if len(conns) == 0 {
			delete(cm.userConns, userID)
		}
	}

	cm.log.Info("Connection unregistered", "user_id", userID, "conn_id", conn.ID())
	return nil
}

func (cm *ConnectionManager) GetConnectionsForUser(userID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	conns := cm.userConns[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]domain.WebSocketConnection, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn)
	}
	return out
}

// NotifyUser sends message to every connection of the user. A failed send
// is logged and the remaining connections are still tried.
func (cm *ConnectionManager) NotifyUser(userID string, message interface{}) error {
	for _, conn := range cm.GetConnectionsForUser(userID) {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "user_id", userID, "conn_id", conn.ID(), "error", err)
		}
	}
	return nil
}

func (cm *ConnectionManager) CloseAll() error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for userID, conns := range cm.userConns {
		for _, conn := range conns {
			if err := conn.Close(); err != nil {
				cm.log.Error("Failed to close connection", "user_id", userID, "conn_id", conn.ID(), "error", err)
			}
		}
	}
	cm.userConns = make(map[string]map[string]domain.WebSocketConnection)
	cm.log.Info("All connections closed")
	return nil
}
