package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

func TestEventHubDeliversPerAuction(t *testing.T) {
	hub := NewEventHub(4, logger.NewNop())
	a := hub.Subscribe("a1")
	b := hub.Subscribe("a2")
	defer a.Close()
	defer b.Close()

	require.NoError(t, hub.PublishAuctionEvent(context.Background(), &domain.AuctionEvent{AuctionID: "a1", Version: 1}))

	select {
	case e := <-a.Events():
		assert.Equal(t, int64(1), e.Version)
	default:
		t.Fatal("expected event for a1")
	}
	select {
	case <-b.Events():
		t.Fatal("a2 subscriber got a1 event")
	default:
	}
}

func TestEventHubEvictsSlowSubscriber(t *testing.T) {
	hub := NewEventHub(2, logger.NewNop())
	slow := hub.Subscribe("a1")

	for v := int64(1); v <= 3; v++ {
		require.NoError(t, hub.PublishAuctionEvent(context.Background(), &domain.AuctionEvent{AuctionID: "a1", Version: v}))
	}

	var got []int64
	for e := range slow.Events() {
		got = append(got, e.Version)
	}
	assert.Equal(t, []int64{1, 2}, got)
	assert.Equal(t, 0, hub.Subscribers("a1"))

	slow.Close()
}

func TestEventHubClose(t *testing.T) {
	hub := NewEventHub(2, logger.NewNop())
	sub := hub.Subscribe("a1")

	hub.Close()
	_, ok := <-sub.Events()
	assert.False(t, ok)

	late := hub.Subscribe("a1")
	_, ok = <-late.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers("a1"))
	sub.Close()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.AuctionEvent
	err    error
}

func (p *recordingPublisher) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) versions(auctionID string) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int64
	for _, e := range p.events {
		if e.AuctionID == auctionID {
			out = append(out, e.Version)
		}
	}
	return out
}

func TestDispatcherKeepsPerAuctionOrder(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("broker down")}
	rec := &recordingPublisher{}
	d := NewEventDispatcher(3, logger.NewNop(), failing, rec)
	d.Start()

	auctions := []string{"a1", "a2", "a3", "a4"}
	const perAuction = 200
	for v := int64(1); v <= perAuction; v++ {
		for _, id := range auctions {
			d.Enqueue(&domain.AuctionEvent{AuctionID: id, Version: v})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	for _, id := range auctions {
		got := rec.versions(id)
		require.Len(t, got, perAuction)
		for i, v := range got {
			assert.Equal(t, int64(i+1), v)
		}
	}

	d.Enqueue(&domain.AuctionEvent{AuctionID: "a1", Version: 999})
	assert.Len(t, rec.versions("a1"), perAuction)
}
