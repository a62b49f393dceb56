package services

import (
	"context"
	"errors"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/utils"
)

const cacheWriteTimeout = time.Second

// errNoTransition aborts a lifecycle mutation that has nothing to do.
var errNoTransition = errors.New("no lifecycle transition due")

type ArbiterConfig struct {
	LockTimeout     time.Duration
	AntiSnipeWindow time.Duration
	ExtensionPeriod time.Duration
	// MaxExtensions caps anti-snipe extensions per auction. Zero means no cap.
	MaxExtensions int
}

// Arbiter is the only writer of auction state. Every bid, lifecycle check and
// cancellation for an auction runs inside that auction's turn from the lock
// registry, and events are handed to the dispatcher before the turn ends.
type Arbiter struct {
	store       domain.AuctionStore
	locks       *LockRegistry
	dispatcher  *EventDispatcher
	idempotency domain.IdempotencyStore
	cache       domain.SnapshotCache
	clock       domain.Clock
	cfg         ArbiterConfig
	log         logger.Logger
}

type ArbiterOption func(*Arbiter)

func WithIdempotencyStore(store domain.IdempotencyStore) ArbiterOption {
	return func(a *Arbiter) { a.idempotency = store }
}

func WithSnapshotCache(cache domain.SnapshotCache) ArbiterOption {
	return func(a *Arbiter) { a.cache = cache }
}

func WithClock(clock domain.Clock) ArbiterOption {
	return func(a *Arbiter) { a.clock = clock }
}

func NewArbiter(store domain.AuctionStore, locks *LockRegistry, dispatcher *EventDispatcher,
	cfg ArbiterConfig, log logger.Logger, opts ...ArbiterOption) *Arbiter {
	a := &Arbiter{
		store:      store,
		locks:      locks,
		dispatcher: dispatcher,
		clock:      domain.SystemClock{},
		cfg:        cfg,
		log:        log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PlaceBid validates, resolves and commits one bid. Rejections come back as
// *domain.ValidationError with no state change.
func (a *Arbiter) PlaceBid(ctx context.Context, req domain.PlaceBidRequest) (*domain.BidResult, error) {
	now := req.Now
	if now.IsZero() {
		now = a.clock.Now()
	}

	release, err := a.locks.Acquire(ctx, req.AuctionID, a.cfg.LockTimeout)
	if err != nil {
		a.log.Warn("Bid timed out waiting for auction turn", "auction_id", req.AuctionID, "bidder_id", req.BidderID)
		return nil, err
	}
	defer release()

	if req.IdempotencyKey != "" {
		prior, err := a.priorResult(ctx, req)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			prior.Replayed = true
			return prior, nil
		}
	}

	var result *domain.BidResult
	committed, events, err := a.store.Mutate(ctx, req.AuctionID, func(auction *domain.Auction, leading *domain.Bid) (*domain.Bid, []*domain.AuctionEvent, error) {
		if err := ValidateBid(auction, leading, req, now); err != nil {
			return nil, nil, err
		}

		bid := &domain.Bid{
			ID:             utils.GenerateID("bid"),
			AuctionID:      auction.ID,
			BidderID:       req.BidderID,
			Amount:         req.Amount,
			IsAutoBid:      req.IsAutoBid,
			IdempotencyKey: req.IdempotencyKey,
			PlacedAt:       now,
		}

		res := ResolveBid(auction, leading, bid)
		bid.EffectivePrice = res.EffectivePrice

		auction.CurrentPrice = res.Price
		if res.NewBidLeads {
			auction.LeadingBidID = bid.ID
			auction.LeadingBidderID = bid.BidderID
		}
		auction.BidCount++
		bid.Sequence = auction.BidCount
		extended := a.extendIfSniped(auction, now)
		auction.Version++
		auction.UpdatedAt = now

		bid.PriceAfter = auction.CurrentPrice
		bid.LeaderAfter = auction.LeadingBidderID
		bid.EndTimeAfter = auction.EndTime
		bid.Extended = extended

		events := []*domain.AuctionEvent{newEvent(domain.BidAccepted, auction, now)}
		events[0].BidID = bid.ID
		events[0].BidderID = bid.BidderID
		if extended {
			events = append(events, newEvent(domain.AuctionExtended, auction, now))
		}

		result = bid.Result()
		return bid, events, nil
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			a.log.Debug("Bid rejected", "auction_id", req.AuctionID, "bidder_id", req.BidderID,
				"amount", req.Amount, "auto", req.IsAutoBid, "reason", verr.Reason)
		} else {
			a.log.Error("Bid commit failed", "auction_id", req.AuctionID, "bidder_id", req.BidderID, "error", err)
		}
		return nil, err
	}

	a.afterCommit(ctx, committed, events)
	a.rememberResult(ctx, req, result)

	a.log.Info("Bid accepted", "auction_id", req.AuctionID, "bid_id", result.BidID, "bidder_id", req.BidderID,
		"price", result.NewPrice, "leader_id", result.NewLeaderID, "extended", result.Extended)
	return result, nil
}

// priorResult finds the outcome of an earlier submission of the same key by the
// same bidder, from the idempotency cache or else from the bid ledger.
func (a *Arbiter) priorResult(ctx context.Context, req domain.PlaceBidRequest) (*domain.BidResult, error) {
	if a.idempotency != nil {
		prior, ok, err := a.idempotency.Get(ctx, req.AuctionID, req.BidderID, req.IdempotencyKey)
		if err != nil {
			a.log.Warn("Idempotency lookup failed", "auction_id", req.AuctionID, "error", err)
		} else if ok {
			return prior, nil
		}
	}

	bid, err := a.store.FindBidByIdempotencyKey(ctx, req.AuctionID, req.BidderID, req.IdempotencyKey)
	if err != nil || bid == nil {
		return nil, err
	}
	result := bid.Result()
	a.rememberResult(ctx, req, result)
	return result, nil
}

func (a *Arbiter) rememberResult(ctx context.Context, req domain.PlaceBidRequest, result *domain.BidResult) {
	if req.IdempotencyKey == "" || a.idempotency == nil {
		return
	}
	if err := a.idempotency.Put(ctx, req.AuctionID, req.BidderID, req.IdempotencyKey, result); err != nil {
		a.log.Warn("Failed to record idempotent result", "auction_id", req.AuctionID, "error", err)
	}
}

// CheckLifecycle applies whichever automatic transitions are due at now.
// It reports false, without error, when nothing was due.
func (a *Arbiter) CheckLifecycle(ctx context.Context, auctionID string, now time.Time) (bool, error) {
	release, err := a.locks.Acquire(ctx, auctionID, a.cfg.LockTimeout)
	if err != nil {
		return false, err
	}
	defer release()

	committed, events, err := a.store.Mutate(ctx, auctionID, func(auction *domain.Auction, _ *domain.Bid) (*domain.Bid, []*domain.AuctionEvent, error) {
		var events []*domain.AuctionEvent
		if auction.Status == domain.AuctionPending && !now.Before(auction.StartTime) {
			auction.Status = domain.AuctionActive
			events = append(events, newEvent(domain.AuctionStarted, auction, now))
		}
		if auction.Status == domain.AuctionActive && !now.Before(auction.EndTime) {
			auction.Status = domain.AuctionCompleted
			events = append(events, newEvent(domain.AuctionCompleted, auction, now))
		}
		if len(events) == 0 {
			return nil, nil, errNoTransition
		}
		auction.Version++
		auction.UpdatedAt = now
		return nil, events, nil
	})
	if errors.Is(err, errNoTransition) {
		a.log.Debug("No lifecycle transition due", "auction_id", auctionID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	a.afterCommit(ctx, committed, events)
	for _, e := range events {
		a.log.Info("Auction lifecycle transition", "auction_id", auctionID, "event", e.Type,
			"winner_id", committed.LeadingBidderID, "price", committed.CurrentPrice)
	}
	return true, nil
}

// Cancel moves a pending or active auction to Cancelled.
func (a *Arbiter) Cancel(ctx context.Context, auctionID, reason string) (*domain.Auction, error) {
	release, err := a.locks.Acquire(ctx, auctionID, a.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	now := a.clock.Now()
	committed, events, err := a.store.Mutate(ctx, auctionID, func(auction *domain.Auction, _ *domain.Bid) (*domain.Bid, []*domain.AuctionEvent, error) {
		if auction.Status.IsTerminal() {
			return nil, nil, domain.ErrAlreadyTerminal
		}
		auction.Status = domain.AuctionCancelled
		auction.Version++
		auction.UpdatedAt = now
		event := newEvent(domain.AuctionCancelled, auction, now)
		event.Reason = reason
		return nil, []*domain.AuctionEvent{event}, nil
	})
	if err != nil {
		return nil, err
	}

	a.afterCommit(ctx, committed, events)
	a.log.Info("Auction cancelled", "auction_id", auctionID, "reason", reason)
	return committed, nil
}

// extendIfSniped pushes EndTime out when a bid lands inside the trailing window.
func (a *Arbiter) extendIfSniped(auction *domain.Auction, now time.Time) bool {
	if a.cfg.ExtensionPeriod <= 0 {
		return false
	}
	if auction.EndTime.Sub(now) > a.cfg.AntiSnipeWindow {
		return false
	}
	if a.cfg.MaxExtensions > 0 && auction.ExtensionCount >= a.cfg.MaxExtensions {
		return false
	}
	auction.EndTime = auction.EndTime.Add(a.cfg.ExtensionPeriod)
	auction.ExtensionCount++
	return true
}

// afterCommit runs while the auction turn is still held.
func (a *Arbiter) afterCommit(ctx context.Context, committed *domain.Auction, events []*domain.AuctionEvent) {
	for _, e := range events {
		e.Version = committed.Version
	}
	a.dispatcher.Enqueue(events...)

	if a.cache == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()
	if err := a.cache.SetSnapshot(cctx, committed.Snapshot()); err != nil {
		a.log.Warn("Failed to refresh snapshot cache", "auction_id", committed.ID, "error", err)
	}
}

func newEvent(t domain.AuctionEventType, auction *domain.Auction, now time.Time) *domain.AuctionEvent {
	return &domain.AuctionEvent{
		Type:      t,
		AuctionID: auction.ID,
		Price:     auction.CurrentPrice,
		LeaderID:  auction.LeadingBidderID,
		BidCount:  auction.BidCount,
		EndTime:   auction.EndTime,
		Status:    auction.Status.String(),
		Version:   auction.Version,
		Timestamp: now,
	}
}
