package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"bidding-core/internal/domain"
	"bidding-core/internal/services"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/money"
)

const (
	HeaderBidderID       = "X-Bidder-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

type AuctionHandler struct {
	auctionManager *services.AuctionManager
	arbiter        *services.Arbiter
	hub            *services.EventHub
	currency       money.Currency
	log            logger.Logger
}

// NewAuctionHandler builds the REST surface. hub may be nil, in which case the
// event stream route is not mounted.
func NewAuctionHandler(auctionManager *services.AuctionManager, arbiter *services.Arbiter,
	hub *services.EventHub, currency money.Currency, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctionManager: auctionManager,
		arbiter:        arbiter,
		hub:            hub,
		currency:       currency,
		log:            log,
	}
}

func (h *AuctionHandler) Register(g *echo.Group) {
	g.POST("/auctions", h.CreateAuction)
	g.GET("/auctions", h.ListAuctions)
	g.GET("/auctions/:id", h.GetAuction)
	g.GET("/auctions/:id/bids", h.GetBidHistory)
	g.POST("/auctions/:id/bids", h.PlaceBid)
	g.POST("/auctions/:id/cancel", h.CancelAuction)
	if h.hub != nil {
		g.GET("/auctions/:id/events", h.StreamEvents)
	}
}

type CreateAuctionRequest struct {
	Title        string    `json:"title"`
	SellerID     string    `json:"seller_id"`
	StartPrice   string    `json:"start_price"`
	BidIncrement string    `json:"bid_increment"`
	BuyNowPrice  string    `json:"buy_now_price"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
}

type AuctionResponse struct {
	AuctionID       string    `json:"auction_id"`
	Title           string    `json:"title"`
	SellerID        string    `json:"seller_id"`
	StartPrice      string    `json:"start_price"`
	CurrentPrice    string    `json:"current_price"`
	BuyNowPrice     string    `json:"buy_now_price,omitempty"`
	BidIncrement    string    `json:"bid_increment"`
	MinimumNextBid  string    `json:"minimum_next_bid"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Status          string    `json:"status"`
	BidCount        int64     `json:"bid_count"`
	LeadingBidderID string    `json:"leading_bidder_id,omitempty"`
	ExtensionCount  int       `json:"extension_count"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
}

type SnapshotResponse struct {
	AuctionID       string    `json:"auction_id"`
	Status          string    `json:"status"`
	CurrentPrice    string    `json:"current_price"`
	MinimumNextBid  string    `json:"minimum_next_bid"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	BidCount        int64     `json:"bid_count"`
	LeadingBidderID string    `json:"leading_bidder_id,omitempty"`
	Version         int64     `json:"version"`
}

type ListAuctionsResponse struct {
	Auctions   []AuctionResponse `json:"auctions"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	Total      int               `json:"total"`
	TotalPages int               `json:"total_pages"`
}

type BidResponse struct {
	BidID          string    `json:"bid_id"`
	BidderID       string    `json:"bidder_id"`
	Amount         string    `json:"amount"`
	EffectivePrice string    `json:"effective_price"`
	IsAutoBid      bool      `json:"is_auto_bid"`
	Sequence       int64     `json:"sequence"`
	PlacedAt       time.Time `json:"placed_at"`
}

type PlaceBidRequest struct {
	Amount  string `json:"amount"`
	AutoBid bool   `json:"auto_bid"`
}

type BidResultResponse struct {
	BidID       string    `json:"bid_id"`
	AuctionID   string    `json:"auction_id"`
	NewPrice    string    `json:"new_price"`
	NewLeaderID string    `json:"new_leader_id"`
	NewEndTime  time.Time `json:"new_end_time"`
	BidCount    int64     `json:"bid_count"`
	Extended    bool      `json:"extended"`
	Replayed    bool      `json:"replayed,omitempty"`
}

type CancelAuctionRequest struct {
	Reason string `json:"reason"`
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "InvalidRequest"})
	}

	params := domain.CreateAuctionParams{
		Title:     req.Title,
		SellerID:  req.SellerID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}

	var err error
	if params.StartPrice, err = h.currency.Parse(req.StartPrice); err != nil {
		return h.writeError(c, fmt.Errorf("start_price: %w", err))
	}
	if req.BidIncrement != "" {
		if params.BidIncrement, err = h.currency.Parse(req.BidIncrement); err != nil {
			return h.writeError(c, fmt.Errorf("bid_increment: %w", err))
		}
		if params.BidIncrement <= 0 {
			return h.writeError(c, domain.ErrInvalidIncrement)
		}
	}
	if req.BuyNowPrice != "" {
		buyNow, err := h.currency.Parse(req.BuyNowPrice)
		if err != nil {
			return h.writeError(c, fmt.Errorf("buy_now_price: %w", err))
		}
		params.BuyNowPrice = &buyNow
	}

	auction, err := h.auctionManager.CreateAuction(c.Request().Context(), params)
	if err != nil {
		return h.writeError(c, err)
	}

	h.log.Info("Auction created", "auction_id", auction.ID, "seller_id", auction.SellerID)
	return c.JSON(http.StatusCreated, h.toAuctionResponse(auction))
}

func (h *AuctionHandler) ListAuctions(c echo.Context) error {
	var filter domain.ListAuctionsFilter

	if raw := c.QueryParam("status"); raw != "" {
		status, ok := domain.ParseAuctionStatus(raw)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown status " + strconv.Quote(raw), Code: "InvalidRequest"})
		}
		filter.Status = &status
	}
	filter.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filter.Limit, _ = strconv.Atoi(c.QueryParam("limit"))

	page, err := h.auctionManager.ListAuctions(c.Request().Context(), filter)
	if err != nil {
		return h.writeError(c, err)
	}

	resp := ListAuctionsResponse{
		Auctions:   make([]AuctionResponse, 0, len(page.Auctions)),
		Page:       page.Page,
		Limit:      page.Limit,
		Total:      page.Total,
		TotalPages: page.TotalPages,
	}
	for _, auction := range page.Auctions {
		resp.Auctions = append(resp.Auctions, h.toAuctionResponse(auction))
	}
	return c.JSON(http.StatusOK, resp)
}

// GetAuction serves the lock-free snapshot. Pass ?full=true for the catalogue
// record read from the store.
func (h *AuctionHandler) GetAuction(c echo.Context) error {
	ctx := c.Request().Context()
	auctionID := c.Param("id")

	if full, _ := strconv.ParseBool(c.QueryParam("full")); full {
		auction, err := h.auctionManager.GetAuction(ctx, auctionID)
		if err != nil {
			return h.writeError(c, err)
		}
		return c.JSON(http.StatusOK, h.toAuctionResponse(auction))
	}

	snapshot, err := h.auctionManager.GetAuctionSnapshot(ctx, auctionID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, SnapshotResponse{
		AuctionID:       snapshot.AuctionID,
		Status:          snapshot.Status.String(),
		CurrentPrice:    h.currency.Format(snapshot.CurrentPrice),
		MinimumNextBid:  h.currency.Format(snapshot.CurrentPrice + snapshot.BidIncrement),
		StartTime:       snapshot.StartTime,
		EndTime:         snapshot.EndTime,
		BidCount:        snapshot.BidCount,
		LeadingBidderID: snapshot.LeadingBidderID,
		Version:         snapshot.Version,
	})
}

func (h *AuctionHandler) GetBidHistory(c echo.Context) error {
	bids, err := h.auctionManager.GetBidHistory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}

	resp := make([]BidResponse, 0, len(bids))
	for _, bid := range bids {
		resp = append(resp, BidResponse{
			BidID:          bid.ID,
			BidderID:       bid.BidderID,
			Amount:         h.currency.Format(bid.Amount),
			EffectivePrice: h.currency.Format(bid.EffectivePrice),
			IsAutoBid:      bid.IsAutoBid,
			Sequence:       bid.Sequence,
			PlacedAt:       bid.PlacedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	bidderID := strings.TrimSpace(c.Request().Header.Get(HeaderBidderID))
	if bidderID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: HeaderBidderID + " header required", Code: "InvalidRequest"})
	}

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "InvalidRequest"})
	}

	amount, err := h.currency.Parse(req.Amount)
	if err != nil {
		return h.writeError(c, &domain.ValidationError{Reason: domain.ReasonInvalidAmount})
	}

	result, err := h.arbiter.PlaceBid(c.Request().Context(), domain.PlaceBidRequest{
		AuctionID:      c.Param("id"),
		BidderID:       bidderID,
		Amount:         amount,
		IsAutoBid:      req.AutoBid,
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		return h.writeError(c, err)
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, BidResultResponse{
		BidID:       result.BidID,
		AuctionID:   result.AuctionID,
		NewPrice:    h.currency.Format(result.NewPrice),
		NewLeaderID: result.NewLeaderID,
		NewEndTime:  result.NewEndTime,
		BidCount:    result.BidCount,
		Extended:    result.Extended,
		Replayed:    result.Replayed,
	})
}

func (h *AuctionHandler) CancelAuction(c echo.Context) error {
	var req CancelAuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "InvalidRequest"})
	}

	auction, err := h.auctionManager.CancelAuction(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return h.writeError(c, err)
	}

	h.log.Info("Auction cancelled", "auction_id", auction.ID, "reason", req.Reason)
	return c.JSON(http.StatusOK, h.toAuctionResponse(auction))
}

// StreamEvents pushes committed events of one auction as server-sent events
// until the client goes away or the auction closes.
func (h *AuctionHandler) StreamEvents(c echo.Context) error {
	ctx := c.Request().Context()
	auctionID := c.Param("id")

	if _, err := h.auctionManager.GetAuctionSnapshot(ctx, auctionID); err != nil {
		return h.writeError(c, err)
	}

	sub := h.hub.Subscribe(auctionID)
	defer sub.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": subscribed\n\n"); err != nil {
		return nil
	}
	w.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				h.log.Debug("Event stream evicted", "auction_id", auctionID)
				return nil
			}
			data, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Version, event.Type, data); err != nil {
				return nil
			}
			w.Flush()

			if event.Type == domain.AuctionCompleted || event.Type == domain.AuctionCancelled {
				return nil
			}
		}
	}
}

func (h *AuctionHandler) toAuctionResponse(a *domain.Auction) AuctionResponse {
	resp := AuctionResponse{
		AuctionID:       a.ID,
		Title:           a.Title,
		SellerID:        a.SellerID,
		StartPrice:      h.currency.Format(a.StartPrice),
		CurrentPrice:    h.currency.Format(a.CurrentPrice),
		BidIncrement:    h.currency.Format(a.BidIncrement),
		MinimumNextBid:  h.currency.Format(a.MinimumNextBid()),
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		Status:          a.Status.String(),
		BidCount:        a.BidCount,
		LeadingBidderID: a.LeadingBidderID,
		ExtensionCount:  a.ExtensionCount,
		Version:         a.Version,
		CreatedAt:       a.CreatedAt,
	}
	if a.BuyNowPrice != nil {
		resp.BuyNowPrice = h.currency.Format(*a.BuyNowPrice)
	}
	return resp
}
