package services

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gammazero/deque"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

const publishTimeout = 5 * time.Second

// EventDispatcher delivers committed events to publishers off the commit path.
// Events of one auction always land in the same shard queue, so they are
// delivered in the order they were enqueued.
type EventDispatcher struct {
	shards     []*dispatchShard
	publishers []domain.EventPublisher
	log        logger.Logger
	wg         sync.WaitGroup
	startOnce  sync.Once
}

type dispatchShard struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  *deque.Deque[*domain.AuctionEvent]
	closed bool
}

func NewEventDispatcher(shards int, log logger.Logger, publishers ...domain.EventPublisher) *EventDispatcher {
	if shards <= 0 {
		shards = 16
	}
	d := &EventDispatcher{
		shards:     make([]*dispatchShard, shards),
		publishers: publishers,
		log:        log,
	}
	for i := range d.shards {
		s := &dispatchShard{queue: deque.New[*domain.AuctionEvent]()}
		s.cond = sync.NewCond(&s.mu)
		d.shards[i] = s
	}
	return d
}

func (d *EventDispatcher) Start() {
	d.startOnce.Do(func() {
		for _, s := range d.shards {
			d.wg.Add(1)
			go d.run(s)
		}
		d.log.Info("Event dispatcher started", "shards", len(d.shards), "publishers", len(d.publishers))
	})
}

// Enqueue appends events in order. It never blocks on delivery.
func (d *EventDispatcher) Enqueue(events ...*domain.AuctionEvent) {
	for _, event := range events {
		s := d.shards[xxhash.Sum64String(event.AuctionID)%uint64(len(d.shards))]
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			d.log.Warn("Dropping event after dispatcher stop", "auction_id", event.AuctionID, "type", event.Type)
			continue
		}
		s.queue.PushBack(event)
		s.cond.Signal()
		s.mu.Unlock()
	}
}

// Stop drains what is already queued, then returns. It gives up when ctx is done.
func (d *EventDispatcher) Stop(ctx context.Context) error {
	for _, s := range d.shards {
		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *EventDispatcher) run(s *dispatchShard) {
	defer d.wg.Done()
	for {
		s.mu.Lock()
		for s.queue.Len() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.queue.Len() == 0 {
			s.mu.Unlock()
			return
		}
		event := s.queue.PopFront()
		s.mu.Unlock()

		d.deliver(event)
	}
}

func (d *EventDispatcher) deliver(event *domain.AuctionEvent) {
	for _, p := range d.publishers {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.PublishAuctionEvent(ctx, event); err != nil {
			d.log.Error("Failed to publish auction event", "auction_id", event.AuctionID,
				"type", event.Type, "version", event.Version, "error", err)
		}
		cancel()
	}
}
