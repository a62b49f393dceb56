package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bidding-core/internal/domain"
)

// WebSocketConnection serializes writes to one gorilla connection, which
// supports a single concurrent writer.
type WebSocketConnection struct {
	conn         *websocket.Conn
	userID       string
	auctionID    string
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ domain.WebSocketConnection = (*WebSocketConnection)(nil)

func NewWebSocketConnection(conn *websocket.Conn, userID, auctionID string, writeTimeout time.Duration) *WebSocketConnection {
	return &WebSocketConnection{
		conn:         conn,
		userID:       userID,
		auctionID:    auctionID,
		writeTimeout: writeTimeout,
	}
}

func (wsc *WebSocketConnection) Send(message interface{}) error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()

	if wsc.writeTimeout > 0 {
		if err := wsc.conn.SetWriteDeadline(time.Now().Add(wsc.writeTimeout)); err != nil {
			return err
		}
	}
	return wsc.conn.WriteJSON(message)
}

func (wsc *WebSocketConnection) Close() error {
	wsc.closeOnce.Do(func() {
		wsc.writeMu.Lock()
		_ = wsc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		wsc.writeMu.Unlock()
		wsc.closeErr = wsc.conn.Close()
	})
	return wsc.closeErr
}

func (wsc *WebSocketConnection) UserID() string {
	return wsc.userID
}

func (wsc *WebSocketConnection) AuctionID() string {
	return wsc.auctionID
}
