// Package memory holds process-local implementations of the store and cache
// interfaces. They back tests and single-node deployments without MySQL.
package memory

import (
	"context"
	"sort"
	"sync"

	"bidding-core/internal/domain"
)

type AuctionStore struct {
	mu       sync.RWMutex
	auctions map[string]*auctionRecord
}

type auctionRecord struct {
	mu      sync.Mutex
	auction domain.Auction
	bids    []*domain.Bid
	byID    map[string]*domain.Bid
	// keyed by bidKey(bidder, idempotency key)
	byIdemKey map[string]*domain.Bid
}

func bidKey(bidderID, key string) string {
	return bidderID + "\x00" + key
}

func NewAuctionStore() *AuctionStore {
	return &AuctionStore{auctions: make(map[string]*auctionRecord)}
}

func (s *AuctionStore) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[auction.ID]; exists {
		return domain.ErrDuplicateSubmission
	}
	s.auctions[auction.ID] = &auctionRecord{
		auction:   copyAuction(auction),
		byID:      make(map[string]*domain.Bid),
		byIdemKey: make(map[string]*domain.Bid),
	}
	return nil
}

func (s *AuctionStore) record(auctionID string) (*auctionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return rec, nil
}

func (s *AuctionStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	rec, err := s.record(auctionID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	a := copyAuction(&rec.auction)
	return &a, nil
}

func (s *AuctionStore) all() []*domain.Auction {
	s.mu.RLock()
	records := make([]*auctionRecord, 0, len(s.auctions))
	for _, rec := range s.auctions {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	auctions := make([]*domain.Auction, 0, len(records))
	for _, rec := range records {
		rec.mu.Lock()
		a := copyAuction(&rec.auction)
		rec.mu.Unlock()
		auctions = append(auctions, &a)
	}
	sort.Slice(auctions, func(i, j int) bool {
		if auctions[i].CreatedAt.Equal(auctions[j].CreatedAt) {
			return auctions[i].ID < auctions[j].ID
		}
		return auctions[i].CreatedAt.After(auctions[j].CreatedAt)
	})
	return auctions
}

// ListAuctions returns one page, newest first, plus the total match count.
func (s *AuctionStore) ListAuctions(ctx context.Context, filter domain.ListAuctionsFilter) ([]*domain.Auction, int, error) {
	var matched []*domain.Auction
	for _, a := range s.all() {
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		matched = append(matched, a)
	}

	total := len(matched)
	offset := (filter.Page - 1) * filter.Limit
	if offset >= total || offset < 0 {
		return []*domain.Auction{}, total, nil
	}
	end := min(offset+filter.Limit, total)
	return matched[offset:end], total, nil
}

func (s *AuctionStore) ListNonTerminal(ctx context.Context) ([]*domain.Auction, error) {
	var out []*domain.Auction
	for _, a := range s.all() {
		if !a.Status.IsTerminal() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *AuctionStore) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	rec, err := s.record(auctionID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	history := make([]*domain.Bid, len(rec.bids))
	for i, b := range rec.bids {
		bid := *b
		history[i] = &bid
	}
	return history, nil
}

func (s *AuctionStore) FindBidByIdempotencyKey(ctx context.Context, auctionID, bidderID, key string) (*domain.Bid, error) {
	rec, err := s.record(auctionID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	b, ok := rec.byIdemKey[bidKey(bidderID, key)]
	if !ok {
		return nil, nil
	}
	bid := *b
	return &bid, nil
}

// Mutate runs fn on a private copy and swaps it in only when fn succeeds.
// Errors returned by fn are passed back unchanged.
func (s *AuctionStore) Mutate(ctx context.Context, auctionID string, fn domain.MutateFunc) (*domain.Auction, []*domain.AuctionEvent, error) {
	rec, err := s.record(auctionID)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	working := copyAuction(&rec.auction)
	var leading *domain.Bid
	if b, ok := rec.byID[working.LeadingBidID]; ok {
		cp := *b
		leading = &cp
	}

	bid, events, err := fn(&working, leading)
	if err != nil {
		return nil, nil, err
	}

	if bid != nil {
		if bid.IdempotencyKey != "" {
			if _, dup := rec.byIdemKey[bidKey(bid.BidderID, bid.IdempotencyKey)]; dup {
				return nil, nil, domain.ErrDuplicateSubmission
			}
		}
		stored := *bid
		rec.bids = append(rec.bids, &stored)
		rec.byID[stored.ID] = &stored
		if stored.IdempotencyKey != "" {
			rec.byIdemKey[bidKey(stored.BidderID, stored.IdempotencyKey)] = &stored
		}
	}
	rec.auction = working

	committed := copyAuction(&working)
	return &committed, events, nil
}

func copyAuction(a *domain.Auction) domain.Auction {
	cp := *a
	if a.BuyNowPrice != nil {
		v := *a.BuyNowPrice
		cp.BuyNowPrice = &v
	}
	return cp
}
