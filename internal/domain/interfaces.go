package domain

import (
	"context"
	"time"
)

// MutateFunc runs inside the store's write transaction against a freshly loaded
// auction and its current leading bid (nil when there is none). It returns the
// bid to append (nil for lifecycle-only changes) and the events to publish after
// commit. Returning an error aborts the transaction.
type MutateFunc func(auction *Auction, leading *Bid) (*Bid, []*AuctionEvent, error)

// Store interfaces
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	ListAuctions(ctx context.Context, filter ListAuctionsFilter) ([]*Auction, int, error)
	ListNonTerminal(ctx context.Context) ([]*Auction, error)
	GetBidHistory(ctx context.Context, auctionID string) ([]*Bid, error)
	FindBidByIdempotencyKey(ctx context.Context, auctionID, bidderID, key string) (*Bid, error)
	Mutate(ctx context.Context, auctionID string, fn MutateFunc) (*Auction, []*AuctionEvent, error)
}

type EventArchive interface {
	SaveEvent(ctx context.Context, event *AuctionEvent) error
	GetEvents(ctx context.Context, auctionID string) ([]*AuctionEvent, error)
}

// Cache interfaces
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snapshot *AuctionSnapshot) error
	GetSnapshot(ctx context.Context, auctionID string) (*AuctionSnapshot, error)
}

// IdempotencyStore scopes keys to one bidder within one auction.
type IdempotencyStore interface {
	Get(ctx context.Context, auctionID, bidderID, key string) (*BidResult, bool, error)
	Put(ctx context.Context, auctionID, bidderID, key string, result *BidResult) error
}

// Event interfaces
type EventPublisher interface {
	PublishAuctionEvent(ctx context.Context, event *AuctionEvent) error
}

type EventSubscriber interface {
	SubscribeToAuctionEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *AuctionEvent) error

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(userID, auctionID string) error
	GetConnectionsForAuction(auctionID string) []WebSocketConnection
	BroadcastToAuction(auctionID string, message interface{}) error
	NotifyUser(auctionID, userID string, message interface{}) error
	CloseAndUnregisterConnections(auctionID string) error
}
