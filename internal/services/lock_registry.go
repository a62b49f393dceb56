package services

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"bidding-core/internal/domain"
)

// LockRegistry hands out one exclusive turn per auction id. Entries are
// reference counted and dropped as soon as nobody holds or waits on them.
type LockRegistry struct {
	shards []*lockShard
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]*auctionLock
}

type auctionLock struct {
	turn chan struct{}
	refs int
}

func NewLockRegistry(shards int) *LockRegistry {
	if shards <= 0 {
		shards = 64
	}
	r := &LockRegistry{shards: make([]*lockShard, shards)}
	for i := range r.shards {
		r.shards[i] = &lockShard{locks: make(map[string]*auctionLock)}
	}
	return r
}

func (r *LockRegistry) shardFor(auctionID string) *lockShard {
	return r.shards[xxhash.Sum64String(auctionID)%uint64(len(r.shards))]
}

// Acquire blocks until the caller holds the auction's turn, ctx is done, or
// timeout elapses. Failure to get the turn returns ErrConcurrencyTimeout.
// The returned func releases the turn and must be called exactly once.
func (r *LockRegistry) Acquire(ctx context.Context, auctionID string, timeout time.Duration) (func(), error) {
	if ctx.Err() != nil {
		return nil, domain.ErrConcurrencyTimeout
	}

	shard := r.shardFor(auctionID)
	lock := shard.ref(auctionID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case lock.turn <- struct{}{}:
	case <-ctx.Done():
		shard.unref(auctionID, lock)
		return nil, domain.ErrConcurrencyTimeout
	case <-timer.C:
		shard.unref(auctionID, lock)
		return nil, domain.ErrConcurrencyTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.turn
			shard.unref(auctionID, lock)
		})
	}, nil
}

// Len reports how many auction entries are currently live.
func (r *LockRegistry) Len() int {
	n := 0
	for _, shard := range r.shards {
		shard.mu.Lock()
		n += len(shard.locks)
		shard.mu.Unlock()
	}
	return n
}

func (s *lockShard) ref(auctionID string) *auctionLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[auctionID]
	if !ok {
		lock = &auctionLock{turn: make(chan struct{}, 1)}
		s.locks[auctionID] = lock
	}
	lock.refs++
	return lock
}

func (s *lockShard) unref(auctionID string, lock *auctionLock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, auctionID)
	}
}
