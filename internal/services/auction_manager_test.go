package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

func newManager(t *testing.T, h *harness, cache domain.SnapshotCache) *AuctionManager {
	t.Helper()
	rules := NewIncrementRules(nil, []domain.IncrementTier{{From: 0, Increment: 100}, {From: 10000, Increment: 1000}}, 1000, logger.NewNop())
	m := NewAuctionManager(h.store, h.arbiter, cache, rules, false, logger.NewNop())
	m.clock = h.clock
	return m
}

func TestCreateAuction(t *testing.T) {
	h := newHarness(t, defaultArbiterConfig)
	m := newManager(t, h, nil)
	ctx := context.Background()

	buyNow := int64(90000)
	a, err := m.CreateAuction(ctx, domain.CreateAuctionParams{
		Title:       "  Vintage camera ",
		SellerID:    "seller-1",
		StartPrice:  50000,
		BuyNowPrice: &buyNow,
		StartTime:   baseTime.Add(time.Hour),
		EndTime:     baseTime.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "Vintage camera", a.Title)
	assert.Equal(t, domain.AuctionPending, a.Status)
	assert.Equal(t, int64(50000), a.CurrentPrice)
	assert.Equal(t, int64(1000), a.BidIncrement)

	stored, err := m.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, stored.ID)

	cheap, err := m.CreateAuction(ctx, domain.CreateAuctionParams{
		Title: "Postcard", StartPrice: 500, StartTime: baseTime, EndTime: baseTime.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), cheap.BidIncrement)
}

func TestCreateAuctionValidation(t *testing.T) {
	h := newHarness(t, defaultArbiterConfig)
	m := newManager(t, h, nil)
	low := int64(100)

	valid := domain.CreateAuctionParams{
		Title: "Lamp", StartPrice: 1000, StartTime: baseTime.Add(time.Hour), EndTime: baseTime.Add(2 * time.Hour),
	}
	tests := []struct {
		name string
		edit func(p *domain.CreateAuctionParams)
		want error
	}{
		{"missing title", func(p *domain.CreateAuctionParams) { p.Title = " " }, domain.ErrTitleRequired},
		{"zero start price", func(p *domain.CreateAuctionParams) { p.StartPrice = 0 }, domain.ErrInvalidStartPrice},
		{"start in the past", func(p *domain.CreateAuctionParams) { p.StartTime = baseTime.Add(-time.Hour) }, domain.ErrInvalidStartTime},
		{"end before start", func(p *domain.CreateAuctionParams) { p.EndTime = p.StartTime }, domain.ErrInvalidEndTime},
		{"buy now below start", func(p *domain.CreateAuctionParams) { p.BuyNowPrice = &low }, domain.ErrInvalidBuyNow},
		{"negative increment", func(p *domain.CreateAuctionParams) { p.BidIncrement = -1 }, domain.ErrInvalidIncrement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.edit(&p)
			_, err := m.CreateAuction(context.Background(), p)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateAuctionRejectsZeroDerivedIncrement(t *testing.T) {
	h := newHarness(t, defaultArbiterConfig)
	rules := NewIncrementRules(nil, []domain.IncrementTier{{From: 0, Increment: 0}}, 0, logger.NewNop())
	m := NewAuctionManager(h.store, h.arbiter, nil, rules, false, logger.NewNop())
	m.clock = h.clock

	_, err := m.CreateAuction(context.Background(), domain.CreateAuctionParams{
		Title: "Lamp", StartPrice: 1000, StartTime: baseTime.Add(time.Hour), EndTime: baseTime.Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidIncrement)

	page, err := m.ListAuctions(context.Background(), domain.ListAuctionsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestListAuctions(t *testing.T) {
	h := newHarness(t, defaultArbiterConfig)
	m := newManager(t, h, nil)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		h.seed(t, func(a *domain.Auction) {
			a.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
			if i%3 == 0 {
				a.Status = domain.AuctionPending
			}
		})
	}

	page, err := m.ListAuctions(ctx, domain.ListAuctionsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, 12, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Auctions, 10)
	assert.True(t, page.Auctions[0].CreatedAt.After(page.Auctions[1].CreatedAt))

	page, err = m.ListAuctions(ctx, domain.ListAuctionsFilter{Page: 2})
	require.NoError(t, err)
	assert.Len(t, page.Auctions, 2)

	pending := domain.AuctionPending
	page, err = m.ListAuctions(ctx, domain.ListAuctionsFilter{Status: &pending, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, maxLimit, page.Limit)
}

type mapCache struct {
	snapshots map[string]*domain.AuctionSnapshot
}

func (c *mapCache) SetSnapshot(ctx context.Context, s *domain.AuctionSnapshot) error {
	cp := *s
	c.snapshots[s.AuctionID] = &cp
	return nil
}

func (c *mapCache) GetSnapshot(ctx context.Context, auctionID string) (*domain.AuctionSnapshot, error) {
	s, ok := c.snapshots[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	cp := *s
	return &cp, nil
}

func TestGetAuctionSnapshot(t *testing.T) {
	cache := &mapCache{snapshots: map[string]*domain.AuctionSnapshot{}}
	h := newHarness(t, defaultArbiterConfig, WithSnapshotCache(cache))
	m := newManager(t, h, cache)
	ctx := context.Background()
	a := h.seed(t, nil)

	snap, err := m.GetAuctionSnapshot(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), snap.CurrentPrice)
	assert.Contains(t, cache.snapshots, a.ID)

	_, err = h.bid(a.ID, "x", 12000, false)
	require.NoError(t, err)

	snap, err = m.GetAuctionSnapshot(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), snap.CurrentPrice)
	assert.Equal(t, "x", snap.LeadingBidderID)
	assert.Equal(t, int64(1), snap.BidCount)
	assert.Equal(t, domain.AuctionActive, snap.Status)

	_, err = m.GetAuctionSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestBidHistoryAndCancel(t *testing.T) {
	h := newHarness(t, defaultArbiterConfig)
	m := newManager(t, h, nil)
	ctx := context.Background()
	a := h.seed(t, nil)

	_, err := h.bid(a.ID, "x", 11000, false)
	require.NoError(t, err)
	_, err = h.bid(a.ID, "y", 12000, false)
	require.NoError(t, err)

	history, err := m.GetBidHistory(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "x", history[0].BidderID)
	assert.Equal(t, "y", history[1].BidderID)

	cancelled, err := m.CancelAuction(ctx, a.ID, "seller request")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCancelled, cancelled.Status)
}
