package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

type replaySubscriber struct {
	events []*domain.AuctionEvent
}

func (s replaySubscriber) SubscribeToAuctionEvents(ctx context.Context, handler domain.EventHandler) error {
	for _, e := range s.events {
		_ = handler(e)
	}
	<-ctx.Done()
	return ctx.Err()
}

type memoryArchive struct {
	mu     sync.Mutex
	events []*domain.AuctionEvent
	err    error
}

func (a *memoryArchive) SaveEvent(ctx context.Context, event *domain.AuctionEvent) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("save without deadline")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memoryArchive) GetEvents(ctx context.Context, auctionID string) ([]*domain.AuctionEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	events := []*domain.AuctionEvent{}
	for _, e := range a.events {
		if e.AuctionID == auctionID {
			events = append(events, e)
		}
	}
	return events, nil
}

func TestAnalyticsServiceArchivesEvents(t *testing.T) {
	archive := &memoryArchive{}
	sub := replaySubscriber{events: []*domain.AuctionEvent{
		{Type: domain.AuctionStarted, AuctionID: "a1", Version: 2},
		{Type: domain.BidAccepted, AuctionID: "a1", Version: 3},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewAnalyticsService(sub, archive, logger.NewNop()).Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	events, err := archive.GetEvents(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.BidAccepted, events[1].Type)
}

func TestEventHistoryEndpoint(t *testing.T) {
	archive := &memoryArchive{events: []*domain.AuctionEvent{
		{Type: domain.AuctionStarted, AuctionID: "a1", Version: 2},
		{Type: domain.BidAccepted, AuctionID: "a2", Version: 3},
		{Type: domain.BidAccepted, AuctionID: "a1", Version: 3},
	}}
	router := mux.NewRouter()
	NewAnalyticsService(replaySubscriber{}, archive, logger.NewNop()).RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auctions/a1/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		AuctionID string                 `json:"auction_id"`
		Events    []*domain.AuctionEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a1", body.AuctionID)
	require.Len(t, body.Events, 2)
	assert.Equal(t, domain.AuctionStarted, body.Events[0].Type)
	assert.Equal(t, int64(3), body.Events[1].Version)

	archive.err = errors.New("connection refused")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auctions/a1/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
