package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

type fakeConnections struct {
	broadcasts map[string][]interface{}
	notices    map[string][]interface{}
	closed     []string
}

func newFakeConnections() *fakeConnections {
	return &fakeConnections{broadcasts: map[string][]interface{}{}, notices: map[string][]interface{}{}}
}

func (f *fakeConnections) RegisterConnection(userID, auctionID string, conn domain.WebSocketConnection) error {
	return nil
}

func (f *fakeConnections) UnregisterConnection(userID, auctionID string) error { return nil }

func (f *fakeConnections) GetConnectionsForAuction(auctionID string) []domain.WebSocketConnection {
	return nil
}

func (f *fakeConnections) BroadcastToAuction(auctionID string, message interface{}) error {
	f.broadcasts[auctionID] = append(f.broadcasts[auctionID], message)
	return nil
}

func (f *fakeConnections) NotifyUser(auctionID, userID string, message interface{}) error {
	f.notices[userID] = append(f.notices[userID], message)
	return nil
}

func (f *fakeConnections) CloseAndUnregisterConnections(auctionID string) error {
	f.closed = append(f.closed, auctionID)
	return nil
}

func TestEventListenerRelaysAndDropsStale(t *testing.T) {
	conns := newFakeConnections()
	el := NewEventListener(conns, logger.NewNop())

	require.NoError(t, el.HandleEvent(&domain.AuctionEvent{Type: domain.BidAccepted, AuctionID: "a1", Version: 3}))
	require.NoError(t, el.HandleEvent(&domain.AuctionEvent{Type: domain.AuctionExtended, AuctionID: "a1", Version: 3}))
	require.NoError(t, el.HandleEvent(&domain.AuctionEvent{Type: domain.BidAccepted, AuctionID: "a1", Version: 2}))
	assert.Len(t, conns.broadcasts["a1"], 2)

	require.NoError(t, el.HandleEvent(&domain.AuctionEvent{Type: domain.AuctionCompleted, AuctionID: "a1", Version: 4}))
	assert.Len(t, conns.broadcasts["a1"], 3)
	assert.Equal(t, []string{"a1"}, conns.closed)

	assert.Error(t, el.HandleEvent(&domain.AuctionEvent{Type: "mystery", AuctionID: "a2", Version: 1}))
}

func TestEventListenerNotifiesOutbidBidder(t *testing.T) {
	conns := newFakeConnections()
	el := NewEventListener(conns, logger.NewNop())

	require.NoError(t, el.HandleEvent(&domain.AuctionEvent{Type: domain.BidAccepted, AuctionID: "a1", LeaderID: "x", Price: 11000, Version: 2}))
	require.NoError(t, el.HandleEvent(&domain.AuctionEvent{Type: domain.BidAccepted, AuctionID: "a1", LeaderID: "x", Price: 12000, Version: 3}))
	assert.Empty(t, conns.notices)

	require.NoError(t, el.HandleEvent(&domain.AuctionEvent{Type: domain.BidAccepted, AuctionID: "a1", LeaderID: "y", Price: 13000, Version: 4}))
	require.Len(t, conns.notices["x"], 1)
	assert.Equal(t, OutbidNotice{Type: "outbid", AuctionID: "a1", Price: 13000, Version: 4}, conns.notices["x"][0])
	assert.Empty(t, conns.notices["y"])
}
