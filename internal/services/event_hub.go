package services

import (
	"context"
	"sync"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

// EventHub fans committed events out to in-process subscribers of one auction.
// A subscriber that cannot keep up is evicted: its channel is closed so it
// knows it missed events, instead of silently skipping some.
type EventHub struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64
	closed bool
	buffer int
	log    logger.Logger
}

type Subscription struct {
	id        uint64
	auctionID string
	ch        chan *domain.AuctionEvent
	hub       *EventHub
	closed    bool
}

func NewEventHub(buffer int, log logger.Logger) *EventHub {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventHub{
		subs:   make(map[string]map[uint64]*Subscription),
		buffer: buffer,
		log:    log,
	}
}

func (h *EventHub) Subscribe(auctionID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:        h.nextID,
		auctionID: auctionID,
		ch:        make(chan *domain.AuctionEvent, h.buffer),
		hub:       h,
	}
	if h.subs[auctionID] == nil {
		h.subs[auctionID] = make(map[uint64]*Subscription)
	}
	h.subs[auctionID][sub.id] = sub
	if h.closed {
		h.removeLocked(sub)
	}
	return sub
}

// Close ends every subscription. Later subscriptions start closed.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, subs := range h.subs {
		for _, sub := range subs {
			h.removeLocked(sub)
		}
	}
}

// PublishAuctionEvent never blocks on a subscriber.
func (h *EventHub) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs[event.AuctionID] {
		select {
		case sub.ch <- event:
		default:
			h.log.Warn("Evicting slow subscriber", "auction_id", event.AuctionID, "subscription_id", id)
			h.removeLocked(sub)
		}
	}
	return nil
}

// Subscribers reports the number of live subscriptions for an auction.
func (h *EventHub) Subscribers(auctionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[auctionID])
}

func (h *EventHub) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	delete(h.subs[sub.auctionID], sub.id)
	if len(h.subs[sub.auctionID]) == 0 {
		delete(h.subs, sub.auctionID)
	}
}

// Events is closed on Close or when the subscriber is evicted.
func (s *Subscription) Events() <-chan *domain.AuctionEvent {
	return s.ch
}

func (s *Subscription) AuctionID() string {
	return s.auctionID
}

func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}
