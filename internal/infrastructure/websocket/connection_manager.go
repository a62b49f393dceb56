package websocket

import (
	"encoding/json"
	"sync"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

type ConnectionManager struct {
	connections map[string]map[string]domain.WebSocketConnection // auctionID -> userID -> connection
	mutex       sync.RWMutex
	log         logger.Logger
}

var _ domain.ConnectionManager = (*ConnectionManager)(nil)

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]map[string]domain.WebSocketConnection),
		log:         log,
	}
}

// RegisterConnection keeps one connection per user and auction. A second
// connection for the same pair replaces and closes the first.
func (cm *ConnectionManager) RegisterConnection(userID, auctionID string, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	if cm.connections[auctionID] == nil {
		cm.connections[auctionID] = make(map[string]domain.WebSocketConnection)
	}
	previous := cm.connections[auctionID][userID]
	cm.connections[auctionID][userID] = conn
	cm.mutex.Unlock()

	if previous != nil && previous != conn {
		if err := previous.Close(); err != nil {
			cm.log.Warn("Failed to close replaced connection", "user_id", userID, "auction_id", auctionID, "error", err)
		}
	}

	cm.log.Info("Connection registered", "user_id", userID, "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(userID, auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.removeLocked(userID, auctionID)

	cm.log.Info("Connection unregistered", "user_id", userID, "auction_id", auctionID)
	return nil
}

// UnregisterIfCurrent removes the pair only while conn is still the
// registered connection, so a replaced socket shutting down leaves its
// successor in place.
func (cm *ConnectionManager) UnregisterIfCurrent(conn domain.WebSocketConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.connections[conn.AuctionID()][conn.UserID()] != conn {
		return
	}
	cm.removeLocked(conn.UserID(), conn.AuctionID())
	cm.log.Info("Connection unregistered", "user_id", conn.UserID(), "auction_id", conn.AuctionID())
}

func (cm *ConnectionManager) removeLocked(userID, auctionID string) {
	if auctionConns, exists := cm.connections[auctionID]; exists {
		delete(auctionConns, userID)
		if len(auctionConns) == 0 {
			delete(cm.connections, auctionID)
		}
	}
}

func (cm *ConnectionManager) CloseAndUnregisterConnections(auctionID string) error {
	cm.mutex.Lock()
	auctionConns := cm.connections[auctionID]
	delete(cm.connections, auctionID)
	cm.mutex.Unlock()

	for userID, conn := range auctionConns {
		if err := conn.Close(); err != nil {
			cm.log.Error("Failed to close connection", "user_id", userID,
				"auction_id", auctionID, "error", err)
		}
	}

	cm.log.Info("Connections closed for auction", "auction_id", auctionID, "count", len(auctionConns))
	return nil
}

func (cm *ConnectionManager) GetConnectionsForAuction(auctionID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	connections := make([]domain.WebSocketConnection, 0, len(cm.connections[auctionID]))
	for _, conn := range cm.connections[auctionID] {
		connections = append(connections, conn)
	}
	return connections
}

// BroadcastToAuction encodes message once and sends it to every connection of
// the auction. Send failures are logged and do not stop the broadcast.
func (cm *ConnectionManager) BroadcastToAuction(auctionID string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	connections := cm.GetConnectionsForAuction(auctionID)
	for _, conn := range connections {
		if err := conn.Send(json.RawMessage(payload)); err != nil {
			cm.log.Error("Failed to send message", "user_id", conn.UserID(),
				"auction_id", auctionID, "error", err)
		}
	}

	cm.log.Debug("Broadcast to auction", "auction_id", auctionID, "connections", len(connections))
	return nil
}

// NotifyUser sends message to the user's connection for one auction only.
// A user without a connection there is skipped.
func (cm *ConnectionManager) NotifyUser(auctionID, userID string, message interface{}) error {
	cm.mutex.RLock()
	conn, ok := cm.connections[auctionID][userID]
	cm.mutex.RUnlock()
	if !ok {
		return nil
	}

	if err := conn.Send(message); err != nil {
		cm.log.Error("Failed to send message", "user_id", userID, "auction_id", auctionID, "error", err)
	}
	return nil
}
