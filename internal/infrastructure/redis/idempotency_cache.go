package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"bidding-core/internal/domain"
)

// RedisIdempotencyStore remembers bid outcomes per (auction, bidder, key) so
// every instance replays the same result for a retried submission.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.IdempotencyStore = (*RedisIdempotencyStore)(nil)

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func idempotencyKey(auctionID, bidderID, key string) string {
	return fmt.Sprintf("auction:%s:bidder:%s:idem:%s", auctionID, bidderID, key)
}

func (r *RedisIdempotencyStore) Get(ctx context.Context, auctionID, bidderID, key string) (*domain.BidResult, bool, error) {
	data, err := r.client.Get(ctx, idempotencyKey(auctionID, bidderID, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var result domain.BidResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

// Put keeps the first result recorded for a key.
func (r *RedisIdempotencyStore) Put(ctx context.Context, auctionID, bidderID, key string, result *domain.BidResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return r.client.SetNX(ctx, idempotencyKey(auctionID, bidderID, key), data, r.ttl).Err()
}
