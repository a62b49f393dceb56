package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

// LifecycleScheduler periodically asks the Arbiter to check every auction that
// has not finished yet. It never writes auction state itself.
type LifecycleScheduler struct {
	cron        *cron.Cron
	store       domain.AuctionStore
	arbiter     *Arbiter
	leader      domain.LeaderElection
	instanceID  string
	interval    time.Duration
	concurrency int
	clock       domain.Clock
	log         logger.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
}

// NewLifecycleScheduler builds a scheduler. leader may be nil, in which case
// every instance sweeps.
func NewLifecycleScheduler(store domain.AuctionStore, arbiter *Arbiter, leader domain.LeaderElection,
	instanceID string, interval time.Duration, concurrency int, log logger.Logger) *LifecycleScheduler {
	if concurrency <= 0 {
		concurrency = 16
	}
	return &LifecycleScheduler{
		cron:        cron.New(cron.WithSeconds()),
		store:       store,
		arbiter:     arbiter,
		leader:      leader,
		instanceID:  instanceID,
		interval:    interval,
		concurrency: concurrency,
		clock:       domain.SystemClock{},
		log:         log,
	}
}

func (s *LifecycleScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting lifecycle scheduler", "interval", s.interval, "concurrency", s.concurrency)

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.sweep)
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *LifecycleScheduler) Stop() error {
	s.log.Info("Stopping lifecycle scheduler")
	<-s.cron.Stop().Done()

	if s.leader != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.leader.ReleaseLeadership(ctx, s.instanceID); err != nil {
			s.log.Warn("Failed to release leadership", "instance_id", s.instanceID, "error", err)
		}
	}
	return nil
}

func (s *LifecycleScheduler) sweep() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Debug("Previous lifecycle sweep still running, skipping")
		return
	}
	s.running = true
	ctx := s.ctx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if !s.isLeader(ctx) {
		return
	}
	if err := s.TickLifecycle(ctx, s.clock.Now()); err != nil {
		s.log.Error("Lifecycle sweep failed", "error", err)
	}
}

func (s *LifecycleScheduler) isLeader(ctx context.Context) bool {
	if s.leader == nil {
		return true
	}

	ok, err := s.leader.IsLeader(ctx, s.instanceID)
	if err != nil {
		s.log.Error("Failed to check leadership", "error", err)
		return false
	}
	if ok {
		return true
	}

	ok, err = s.leader.BecomeLeader(ctx, s.instanceID)
	if err != nil {
		s.log.Error("Failed to acquire leadership", "error", err)
		return false
	}
	if ok {
		s.log.Info("Acquired scheduler leadership", "instance_id", s.instanceID)
	}
	return ok
}

// TickLifecycle checks every non-terminal auction once at the given instant.
// Calling it again for the same instant changes nothing. A failed check for one
// auction does not stop the others; the first error is returned.
func (s *LifecycleScheduler) TickLifecycle(ctx context.Context, now time.Time) error {
	auctions, err := s.store.ListNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("list non-terminal auctions: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, auction := range auctions {
		if !lifecycleDue(auction, now) {
			continue
		}
		auctionID := auction.ID
		g.Go(func() error {
			changed, err := s.arbiter.CheckLifecycle(ctx, auctionID, now)
			if err != nil {
				s.log.Error("Lifecycle check failed", "auction_id", auctionID, "error", err)
				return fmt.Errorf("auction %s: %w", auctionID, err)
			}
			if !changed {
				s.log.Debug("Auction already transitioned", "auction_id", auctionID)
			}
			return nil
		})
	}

	return g.Wait()
}

// lifecycleDue filters on a possibly stale listing; the Arbiter re-checks under the lock.
func lifecycleDue(auction *domain.Auction, now time.Time) bool {
	switch auction.Status {
	case domain.AuctionPending:
		return !now.Before(auction.StartTime)
	case domain.AuctionActive:
		return !now.Before(auction.EndTime)
	default:
		return false
	}
}
