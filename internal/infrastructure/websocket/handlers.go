package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/money"
)

const bidTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type BidPlacer interface {
	PlaceBid(ctx context.Context, req domain.PlaceBidRequest) (*domain.BidResult, error)
}

type SnapshotReader interface {
	GetAuctionSnapshot(ctx context.Context, auctionID string) (*domain.AuctionSnapshot, error)
}

type HandlerConfig struct {
	WriteTimeout   time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

type inboundMessage struct {
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	AutoBid        bool   `json:"auto_bid"`
	IdempotencyKey string `json:"idempotency_key"`
}

type outboundMessage struct {
	Type          string      `json:"type"`
	Data          interface{} `json:"data,omitempty"`
	Code          string      `json:"code,omitempty"`
	Message       string      `json:"message,omitempty"`
	MinimumAmount string      `json:"minimum_amount,omitempty"`
	Retryable     bool        `json:"retryable,omitempty"`
}

type WebSocketHandler struct {
	bids        BidPlacer
	auctions    SnapshotReader
	connManager *ConnectionManager
	currency    money.Currency
	cfg         HandlerConfig
	log         logger.Logger
}

func NewWebSocketHandler(bids BidPlacer, auctions SnapshotReader, connManager *ConnectionManager,
	currency money.Currency, cfg HandlerConfig, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		bids:        bids,
		auctions:    auctions,
		connManager: connManager,
		currency:    currency,
		cfg:         cfg,
		log:         log,
	}
}

// RegisterRoutes mounts the push channel on r.
func (h *WebSocketHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/auction/{auctionID}", h.HandleConnection)
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	snapshot, err := h.auctions.GetAuctionSnapshot(r.Context(), auctionID)
	if errors.Is(err, domain.ErrAuctionNotFound) {
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Failed to load auction", "auction_id", auctionID, "error", err)
		http.Error(w, "auction unavailable", http.StatusServiceUnavailable)
		return
	}
	if snapshot.Status.IsTerminal() {
		h.log.Info("Rejected connection, auction closed", "auction_id", auctionID, "status", snapshot.Status)
		http.Error(w, "auction has already ended", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewWebSocketConnection(conn, userID, auctionID, h.cfg.WriteTimeout)
	if err := h.connManager.RegisterConnection(userID, auctionID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		_ = wsConn.Close()
		return
	}

	if err := wsConn.Send(outboundMessage{Type: "snapshot", Data: snapshot}); err != nil {
		h.log.Warn("Failed to send initial snapshot", "user_id", userID, "auction_id", auctionID, "error", err)
	}

	go h.handleMessages(wsConn)
}

func (h *WebSocketHandler) handleMessages(conn *WebSocketConnection) {
	defer func() {
		h.connManager.UnregisterIfCurrent(conn)
		_ = conn.Close()
	}()

	if h.cfg.MaxMessageSize > 0 {
		conn.conn.SetReadLimit(h.cfg.MaxMessageSize)
	}

	for {
		if h.cfg.PongWait > 0 {
			_ = conn.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		}

		var msg inboundMessage
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("Connection closed unexpectedly", "user_id", conn.UserID(), "error", err)
			}
			return
		}

		var reply outboundMessage
		switch msg.Type {
		case "place_bid":
			reply = h.handleBidMessage(conn, msg)
		case "ping":
			reply = outboundMessage{Type: "pong"}
		default:
			reply = outboundMessage{Type: "error", Code: "InvalidRequest", Message: "unknown message type"}
		}

		if err := conn.Send(reply); err != nil {
			h.log.Error("Failed to reply", "user_id", conn.UserID(), "error", err)
			return
		}
	}
}

func (h *WebSocketHandler) handleBidMessage(conn *WebSocketConnection, msg inboundMessage) outboundMessage {
	amount, err := h.currency.Parse(msg.Amount)
	if err != nil {
		return outboundMessage{Type: "error", Code: string(domain.ReasonInvalidAmount), Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), bidTimeout)
	defer cancel()

	result, err := h.bids.PlaceBid(ctx, domain.PlaceBidRequest{
		AuctionID:      conn.AuctionID(),
		BidderID:       conn.UserID(),
		Amount:         amount,
		IsAutoBid:      msg.AutoBid,
		IdempotencyKey: msg.IdempotencyKey,
	})
	if err != nil {
		h.log.Debug("Bid rejected", "auction_id", conn.AuctionID(), "user_id", conn.UserID(), "error", err)
		return h.errorMessage(err)
	}
	return outboundMessage{Type: "bid_result", Data: result}
}

func (h *WebSocketHandler) errorMessage(err error) outboundMessage {
	reply := outboundMessage{
		Type:      "error",
		Code:      domain.ErrorCode(err),
		Message:   err.Error(),
		Retryable: domain.IsRetryable(err),
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) && verr.MinimumAmount > 0 {
		reply.MinimumAmount = h.currency.Format(verr.MinimumAmount)
	}
	return reply
}
