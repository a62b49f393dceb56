package services

import (
	"context"
	"fmt"
	"sync"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

// EventListener relays committed auction events from the shared bus to the
// websocket clients connected to this instance. Events can reach the bus from
// several instances, so anything below the last relayed version of an
// auction is dropped.
type EventListener struct {
	connectionManager domain.ConnectionManager
	log               logger.Logger

	mu       sync.Mutex
	versions map[string]int64
	leaders  map[string]string
}

// OutbidNotice goes to the bidder who just lost the lead.
type OutbidNotice struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	Price     int64  `json:"price"`
	Version   int64  `json:"version"`
}

func NewEventListener(connectionManager domain.ConnectionManager, log logger.Logger) *EventListener {
	return &EventListener{
		connectionManager: connectionManager,
		log:               log,
		versions:          make(map[string]int64),
		leaders:           make(map[string]string),
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToAuctionEvents(ctx, el.HandleEvent)
}

func (el *EventListener) HandleEvent(event *domain.AuctionEvent) error {
	if !el.advance(event) {
		el.log.Debug("Dropping stale event", "auction_id", event.AuctionID, "version", event.Version, "type", event.Type)
		return nil
	}

	switch event.Type {
	case domain.BidAccepted:
		if err := el.connectionManager.BroadcastToAuction(event.AuctionID, event); err != nil {
			return err
		}
		el.notifyOutbid(event)
		return nil
	case domain.AuctionExtended, domain.AuctionStarted:
		return el.connectionManager.BroadcastToAuction(event.AuctionID, event)
	case domain.AuctionCompleted, domain.AuctionCancelled:
		return el.handleAuctionClosed(event)
	}

	return fmt.Errorf("unknown event type %q for auction %s", event.Type, event.AuctionID)
}

// advance records the event version. Events of one commit share a version.
func (el *EventListener) advance(event *domain.AuctionEvent) bool {
	el.mu.Lock()
	defer el.mu.Unlock()

	last, seen := el.versions[event.AuctionID]
	if seen && event.Version < last {
		return false
	}
	el.versions[event.AuctionID] = event.Version
	return true
}

func (el *EventListener) notifyOutbid(event *domain.AuctionEvent) {
	el.mu.Lock()
	previous := el.leaders[event.AuctionID]
	el.leaders[event.AuctionID] = event.LeaderID
	el.mu.Unlock()

	if previous == "" || previous == event.LeaderID {
		return
	}

	notice := OutbidNotice{Type: "outbid", AuctionID: event.AuctionID, Price: event.Price, Version: event.Version}
	if err := el.connectionManager.NotifyUser(event.AuctionID, previous, notice); err != nil {
		el.log.Warn("Failed to notify outbid bidder", "auction_id", event.AuctionID, "user_id", previous, "error", err)
	}
}

func (el *EventListener) handleAuctionClosed(event *domain.AuctionEvent) error {
	if err := el.connectionManager.BroadcastToAuction(event.AuctionID, event); err != nil {
		el.log.Error("Failed to broadcast auction closed event", "auction_id", event.AuctionID, "error", err)
		return err
	}

	if err := el.connectionManager.CloseAndUnregisterConnections(event.AuctionID); err != nil {
		el.log.Error("Failed to finalize connections for auction", "auction_id",
			event.AuctionID, "error", err)
		return err
	}

	el.mu.Lock()
	delete(el.versions, event.AuctionID)
	delete(el.leaders, event.AuctionID)
	el.mu.Unlock()
	return nil
}
