package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/utils"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// AuctionManager serves the catalogue side of auctions: creation, listing and
// reads. All state changes after creation go through the Arbiter.
type AuctionManager struct {
	store          domain.AuctionStore
	arbiter        *Arbiter
	cache          domain.SnapshotCache
	rules          *IncrementRules
	clock          domain.Clock
	allowPastStart bool
	log            logger.Logger
}

func NewAuctionManager(store domain.AuctionStore, arbiter *Arbiter, cache domain.SnapshotCache,
	rules *IncrementRules, allowPastStart bool, log logger.Logger) *AuctionManager {
	return &AuctionManager{
		store:          store,
		arbiter:        arbiter,
		cache:          cache,
		rules:          rules,
		clock:          domain.SystemClock{},
		allowPastStart: allowPastStart,
		log:            log,
	}
}

func (am *AuctionManager) CreateAuction(ctx context.Context, params domain.CreateAuctionParams) (*domain.Auction, error) {
	now := am.clock.Now()

	if strings.TrimSpace(params.Title) == "" {
		return nil, domain.ErrTitleRequired
	}
	if params.StartPrice <= 0 {
		return nil, domain.ErrInvalidStartPrice
	}
	if !am.allowPastStart && params.StartTime.Before(now.Add(-time.Minute)) {
		return nil, domain.ErrInvalidStartTime
	}
	if !params.EndTime.After(params.StartTime) {
		return nil, domain.ErrInvalidEndTime
	}
	if params.BuyNowPrice != nil && *params.BuyNowPrice <= params.StartPrice {
		return nil, domain.ErrInvalidBuyNow
	}

	increment := params.BidIncrement
	if increment == 0 {
		increment = am.rules.IncrementFor(params.StartPrice)
	}
	if increment <= 0 {
		return nil, domain.ErrInvalidIncrement
	}

	auction := &domain.Auction{
		ID:           utils.GenerateID("auction"),
		Title:        strings.TrimSpace(params.Title),
		SellerID:     params.SellerID,
		StartPrice:   params.StartPrice,
		CurrentPrice: params.StartPrice,
		BuyNowPrice:  params.BuyNowPrice,
		BidIncrement: increment,
		StartTime:    params.StartTime,
		EndTime:      params.EndTime,
		Status:       domain.AuctionPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := am.store.CreateAuction(ctx, auction); err != nil {
		return nil, err
	}

	am.log.Info("Auction created", "auction_id", auction.ID, "start_price", auction.StartPrice,
		"bid_increment", auction.BidIncrement, "start_time", auction.StartTime, "end_time", auction.EndTime)
	return auction, nil
}

func (am *AuctionManager) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return am.store.GetAuction(ctx, auctionID)
}

func (am *AuctionManager) ListAuctions(ctx context.Context, filter domain.ListAuctionsFilter) (*domain.AuctionPage, error) {
	if filter.Page <= 0 {
		filter.Page = defaultPage
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}

	auctions, total, err := am.store.ListAuctions(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &domain.AuctionPage{
		Auctions:   auctions,
		Page:       filter.Page,
		Limit:      filter.Limit,
		Total:      total,
		TotalPages: (total + filter.Limit - 1) / filter.Limit,
	}, nil
}

// GetAuctionSnapshot never takes the auction lock. A cached snapshot may trail
// an in-flight commit.
func (am *AuctionManager) GetAuctionSnapshot(ctx context.Context, auctionID string) (*domain.AuctionSnapshot, error) {
	if am.cache != nil {
		snapshot, err := am.cache.GetSnapshot(ctx, auctionID)
		switch {
		case err == nil && snapshot != nil:
			return snapshot, nil
		case err != nil && !errors.Is(err, domain.ErrAuctionNotFound):
			am.log.Warn("Snapshot cache read failed", "auction_id", auctionID, "error", err)
		}
	}

	auction, err := am.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	snapshot := auction.Snapshot()

	if am.cache != nil {
		if err := am.cache.SetSnapshot(ctx, snapshot); err != nil {
			am.log.Warn("Failed to warm snapshot cache", "auction_id", auctionID, "error", err)
		}
	}
	return snapshot, nil
}

func (am *AuctionManager) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	return am.store.GetBidHistory(ctx, auctionID)
}

func (am *AuctionManager) CancelAuction(ctx context.Context, auctionID, reason string) (*domain.Auction, error) {
	return am.arbiter.Cancel(ctx, auctionID, reason)
}
