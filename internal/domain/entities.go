package domain

import (
	"fmt"
	"time"
)

type Auction struct {
	ID              string
	Title           string
	SellerID        string
	StartPrice      int64
	CurrentPrice    int64
	BuyNowPrice     *int64
	BidIncrement    int64
	StartTime       time.Time
	EndTime         time.Time
	Status          AuctionStatus
	BidCount        int64
	LeadingBidID    string
	LeadingBidderID string
	ExtensionCount  int
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasLeader reports whether at least one bid has been accepted.
func (a *Auction) HasLeader() bool {
	return a.LeadingBidID != ""
}

// MinimumNextBid is the lowest manual amount the auction currently accepts.
func (a *Auction) MinimumNextBid() int64 {
	return a.CurrentPrice + a.BidIncrement
}

func (a *Auction) Snapshot() *AuctionSnapshot {
	return &AuctionSnapshot{
		AuctionID:       a.ID,
		Status:          a.Status,
		CurrentPrice:    a.CurrentPrice,
		BidIncrement:    a.BidIncrement,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		BidCount:        a.BidCount,
		LeadingBidderID: a.LeadingBidderID,
		Version:         a.Version,
	}
}

type AuctionStatus int

const (
	AuctionPending AuctionStatus = iota
	AuctionActive
	AuctionCompleted
	AuctionCancelled
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionPending:
		return "pending"
	case AuctionActive:
		return "active"
	case AuctionCompleted:
		return "completed"
	case AuctionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s AuctionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AuctionStatus) UnmarshalText(text []byte) error {
	parsed, ok := ParseAuctionStatus(string(text))
	if !ok {
		return fmt.Errorf("unknown auction status %q", string(text))
	}
	*s = parsed
	return nil
}

// IsTerminal reports whether no further transition is possible.
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionCompleted || s == AuctionCancelled
}

func ParseAuctionStatus(s string) (AuctionStatus, bool) {
	switch s {
	case "pending":
		return AuctionPending, true
	case "active":
		return AuctionActive, true
	case "completed":
		return AuctionCompleted, true
	case "cancelled":
		return AuctionCancelled, true
	default:
		return AuctionPending, false
	}
}

// Bid is an immutable ledger row. Amount is the proxy ceiling when IsAutoBid is set.
type Bid struct {
	ID             string
	AuctionID      string
	BidderID       string
	Amount         int64
	IsAutoBid      bool
	EffectivePrice int64
	Sequence       int64
	IdempotencyKey string
	PlacedAt       time.Time

	// Auction state right after this bid committed.
	PriceAfter   int64
	LeaderAfter  string
	EndTimeAfter time.Time
	Extended     bool
}

// Result rebuilds the outcome returned when the bid was accepted.
func (b *Bid) Result() *BidResult {
	return &BidResult{
		BidID:       b.ID,
		AuctionID:   b.AuctionID,
		NewPrice:    b.PriceAfter,
		NewLeaderID: b.LeaderAfter,
		NewEndTime:  b.EndTimeAfter,
		BidCount:    b.Sequence,
		Extended:    b.Extended,
	}
}

// AuctionSnapshot is the read-only view served without taking the auction lock.
type AuctionSnapshot struct {
	AuctionID       string        `json:"auction_id"`
	Status          AuctionStatus `json:"status"`
	CurrentPrice    int64         `json:"current_price"`
	BidIncrement    int64         `json:"bid_increment"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	BidCount        int64         `json:"bid_count"`
	LeadingBidderID string        `json:"leading_bidder_id,omitempty"`
	Version         int64         `json:"version"`
}

type PlaceBidRequest struct {
	AuctionID      string
	BidderID       string
	Amount         int64
	IsAutoBid      bool
	Now            time.Time
	IdempotencyKey string
}

// BidResult is the outcome of an accepted bid.
type BidResult struct {
	BidID       string    `json:"bid_id"`
	AuctionID   string    `json:"auction_id"`
	NewPrice    int64     `json:"new_price"`
	NewLeaderID string    `json:"new_leader_id"`
	NewEndTime  time.Time `json:"new_end_time"`
	BidCount    int64     `json:"bid_count"`
	Extended    bool      `json:"extended"`
	Replayed    bool      `json:"replayed,omitempty"`
}

type CreateAuctionParams struct {
	Title        string
	SellerID     string
	StartPrice   int64
	BidIncrement int64
	BuyNowPrice  *int64
	StartTime    time.Time
	EndTime      time.Time
}

type ListAuctionsFilter struct {
	Status *AuctionStatus
	Page   int
	Limit  int
}

type AuctionPage struct {
	Auctions   []*Auction
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

type AuctionEvent struct {
	Type      AuctionEventType `json:"type"`
	AuctionID string           `json:"auction_id"`
	BidID     string           `json:"bid_id,omitempty"`
	BidderID  string           `json:"bidder_id,omitempty"`
	Price     int64            `json:"price"`
	LeaderID  string           `json:"leader_id,omitempty"`
	BidCount  int64            `json:"bid_count"`
	EndTime   time.Time        `json:"end_time"`
	Status    string           `json:"status"`
	Reason    string           `json:"reason,omitempty"`
	Version   int64            `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
}

type AuctionEventType string

const (
	BidAccepted      AuctionEventType = "bid_accepted"
	AuctionExtended  AuctionEventType = "auction_extended"
	AuctionStarted   AuctionEventType = "auction_started"
	AuctionCompleted AuctionEventType = "auction_completed"
	AuctionCancelled AuctionEventType = "auction_cancelled"
)

// IncrementTier maps prices at or above From to a default bid increment.
type IncrementTier struct {
	From      int64 `mapstructure:"from" json:"from"`
	Increment int64 `mapstructure:"increment" json:"increment"`
}
