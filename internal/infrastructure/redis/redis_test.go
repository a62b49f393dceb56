package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func snapshotAt(version int64, price int64) *domain.AuctionSnapshot {
	return &domain.AuctionSnapshot{
		AuctionID:       "auction_1",
		Status:          domain.AuctionActive,
		CurrentPrice:    price,
		BidIncrement:    1000,
		StartTime:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
		BidCount:        version - 1,
		LeadingBidderID: "bidder_a",
		Version:         version,
	}
}

func TestSnapshotCache(t *testing.T) {
	client, mr := newClient(t)
	cache := NewRedisSnapshotCache(client, time.Minute)
	ctx := context.Background()

	_, err := cache.GetSnapshot(ctx, "auction_1")
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)

	require.NoError(t, cache.SetSnapshot(ctx, snapshotAt(3, 12000)))
	got, err := cache.GetSnapshot(ctx, "auction_1")
	require.NoError(t, err)
	assert.Equal(t, snapshotAt(3, 12000), got)
	assert.Equal(t, domain.AuctionActive, got.Status)
	assert.Equal(t, time.Minute, mr.TTL(snapshotKey("auction_1")))

	mr.FastForward(2 * time.Minute)
	_, err = cache.GetSnapshot(ctx, "auction_1")
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestSnapshotCacheIgnoresOlderVersions(t *testing.T) {
	client, _ := newClient(t)
	cache := NewRedisSnapshotCache(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.SetSnapshot(ctx, snapshotAt(5, 15000)))
	require.NoError(t, cache.SetSnapshot(ctx, snapshotAt(4, 14000)))

	got, err := cache.GetSnapshot(ctx, "auction_1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, int64(15000), got.CurrentPrice)

	require.NoError(t, cache.SetSnapshot(ctx, snapshotAt(6, 16000)))
	got, err = cache.GetSnapshot(ctx, "auction_1")
	require.NoError(t, err)
	assert.Equal(t, int64(16000), got.CurrentPrice)
}

func TestIdempotencyStore(t *testing.T) {
	client, mr := newClient(t)
	store := NewRedisIdempotencyStore(client, time.Hour)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "auction_1", "bidder_a", "key-1")
	require.NoError(t, err)
	assert.False(t, ok)

	first := &domain.BidResult{BidID: "bid_1", AuctionID: "auction_1", NewPrice: 11000, NewLeaderID: "bidder_a", BidCount: 1}
	require.NoError(t, store.Put(ctx, "auction_1", "bidder_a", "key-1", first))
	require.NoError(t, store.Put(ctx, "auction_1", "bidder_a", "key-1", &domain.BidResult{BidID: "bid_2"}))

	got, ok, err := store.Get(ctx, "auction_1", "bidder_a", "key-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bid_1", got.BidID)
	assert.Equal(t, int64(11000), got.NewPrice)
	assert.Equal(t, time.Hour, mr.TTL(idempotencyKey("auction_1", "bidder_a", "key-1")))

	_, ok, err = store.Get(ctx, "auction_2", "bidder_a", "key-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// The same key from another bidder is a different submission.
	_, ok, err = store.Get(ctx, "auction_1", "bidder_b", "key-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublishAndSubscribe(t *testing.T) {
	client, mr := newClient(t)
	publisher := NewEventPublisher(client)
	subscriber := NewRedisEventSubscriber(client, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *domain.AuctionEvent, 4)
	done := make(chan error, 1)
	go func() {
		done <- subscriber.SubscribeToAuctionEvents(ctx, func(event *domain.AuctionEvent) error {
			received <- event
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(EventsChannel)[EventsChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Publish(ctx, EventsChannel, "garbage").Err())
	event := &domain.AuctionEvent{
		Type:      domain.BidAccepted,
		AuctionID: "auction_1",
		BidID:     "bid_1",
		BidderID:  "bidder_a",
		Price:     11000,
		LeaderID:  "bidder_a",
		BidCount:  1,
		Status:    "active",
		Version:   2,
		Timestamp: time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishAuctionEvent(ctx, event))

	select {
	case got := <-received:
		assert.Equal(t, domain.BidAccepted, got.Type)
		assert.Equal(t, "bid_1", got.BidID)
		assert.Equal(t, int64(2), got.Version)
		assert.True(t, event.Timestamp.Equal(got.Timestamp))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
