package redis

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"bidding-core/internal/domain"
)

// EventsChannel is the pub/sub channel shared by every bidding-core process.
const EventsChannel = "auction_events"

type EventPublisherImpl struct {
	client  *redis.Client
	channel string
}

var _ domain.EventPublisher = (*EventPublisherImpl)(nil)

func NewEventPublisher(client *redis.Client) *EventPublisherImpl {
	return &EventPublisherImpl{client: client, channel: EventsChannel}
}

func (r *EventPublisherImpl) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}
