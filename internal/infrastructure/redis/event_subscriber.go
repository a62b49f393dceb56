package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

var errSubscriptionClosed = errors.New("redis: auction event subscription closed")

type RedisEventSubscriber struct {
	client  *redis.Client
	channel string
	log     logger.Logger
}

var _ domain.EventSubscriber = (*RedisEventSubscriber)(nil)

func NewRedisEventSubscriber(client *redis.Client, log logger.Logger) *RedisEventSubscriber {
	return &RedisEventSubscriber{
		client:  client,
		channel: EventsChannel,
		log:     log,
	}
}

// SubscribeToAuctionEvents blocks, feeding every decoded event to handler until
// ctx is done or the subscription drops. Handler errors are logged and skipped.
func (r *RedisEventSubscriber) SubscribeToAuctionEvents(ctx context.Context, handler domain.EventHandler) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so nothing published after this
	// point is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()

	r.log.Info("Subscribed to auction events", "channel", r.channel)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}

			event, err := decodeEvent(msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse event", "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(event); err != nil {
				r.log.Error("Failed to handle event", "auction_id", event.AuctionID,
					"type", event.Type, "version", event.Version, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}

func decodeEvent(payload string) (*domain.AuctionEvent, error) {
	var event domain.AuctionEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, err
	}
	if event.AuctionID == "" || event.Type == "" {
		return nil, errors.New("event without auction id or type")
	}
	return &event, nil
}
