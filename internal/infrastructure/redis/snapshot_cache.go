package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"bidding-core/internal/domain"
)

// The stored version only moves forward, so a stale warm-up from the store
// cannot overwrite a snapshot written after a newer commit.
var setSnapshotScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "version")
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[1], "data", ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1
`)

type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.SnapshotCache = (*RedisSnapshotCache)(nil)

func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(auctionID string) string {
	return fmt.Sprintf("auction:snapshot:%s", auctionID)
}

func (r *RedisSnapshotCache) SetSnapshot(ctx context.Context, snapshot *domain.AuctionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	return setSnapshotScript.Run(ctx, r.client, []string{snapshotKey(snapshot.AuctionID)},
		snapshot.Version, data, r.ttl.Milliseconds()).Err()
}

// GetSnapshot returns domain.ErrAuctionNotFound on a cache miss.
func (r *RedisSnapshotCache) GetSnapshot(ctx context.Context, auctionID string) (*domain.AuctionSnapshot, error) {
	data, err := r.client.HGet(ctx, snapshotKey(auctionID), "data").Bytes()
	if err == redis.Nil {
		return nil, domain.ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}

	var snapshot domain.AuctionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
