package memory

import (
	"context"
	"sync"
	"time"

	"bidding-core/internal/domain"
)

type IdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	results map[string]idempotencyEntry
}

type idempotencyEntry struct {
	result    domain.BidResult
	expiresAt time.Time
}

// NewIdempotencyStore keeps results for ttl; a non-positive ttl keeps them forever.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		ttl:     ttl,
		now:     time.Now,
		results: make(map[string]idempotencyEntry),
	}
}

func idempotencyKey(auctionID, bidderID, key string) string {
	return auctionID + "\x00" + bidderID + "\x00" + key
}

func (s *IdempotencyStore) Get(ctx context.Context, auctionID, bidderID, key string) (*domain.BidResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idempotencyKey(auctionID, bidderID, key)
	entry, ok := s.results[k]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.results, k)
		return nil, false, nil
	}
	result := entry.result
	return &result, true, nil
}

func (s *IdempotencyStore) Put(ctx context.Context, auctionID, bidderID, key string, result *domain.BidResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := idempotencyEntry{result: *result}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.results[idempotencyKey(auctionID, bidderID, key)] = entry
	return nil
}
