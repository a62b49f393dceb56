package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/go-redis/redis/v8"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

const incrementRulesKey = "bid_increment_tiers"

// IncrementRules picks a default bid increment for new auctions by start price.
// Tiers come from configuration and may be overridden by a shared copy in Redis.
type IncrementRules struct {
	client   *redis.Client
	fallback int64
	logger   logger.Logger

	mu    sync.RWMutex
	tiers []domain.IncrementTier
}

func NewIncrementRules(client *redis.Client, tiers []domain.IncrementTier, fallback int64, log logger.Logger) *IncrementRules {
	r := &IncrementRules{
		client:   client,
		fallback: fallback,
		logger:   log,
	}
	r.setTiers(tiers)
	return r
}

// LoadRules pulls the shared tiers from Redis, seeding Redis with the configured
// tiers when none are stored yet. Without a client this is a no-op.
func (r *IncrementRules) LoadRules(ctx context.Context) error {
	if r.client == nil {
		return nil
	}

	data, err := r.client.Get(ctx, incrementRulesKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return r.saveRules(ctx)
		}
		return err
	}

	var stored []domain.IncrementTier
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return err
	}

	tiers := stored[:0]
	for _, tier := range stored {
		if tier.From < 0 || tier.Increment <= 0 {
			r.logger.Warn("Skipping invalid increment tier", "from", tier.From, "increment", tier.Increment)
			continue
		}
		tiers = append(tiers, tier)
	}
	r.setTiers(tiers)
	r.logger.Info("Loaded increment tiers from redis", "tiers", len(tiers))
	return nil
}

func (r *IncrementRules) saveRules(ctx context.Context) error {
	r.mu.RLock()
	data, err := json.Marshal(r.tiers)
	r.mu.RUnlock()
	if err != nil {
		return err
	}

	return r.client.Set(ctx, incrementRulesKey, string(data), 0).Err()
}

func (r *IncrementRules) setTiers(tiers []domain.IncrementTier) {
	sorted := make([]domain.IncrementTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })

	r.mu.Lock()
	r.tiers = sorted
	r.mu.Unlock()
}

// IncrementFor returns the increment of the highest tier whose From is at or below price.
func (r *IncrementRules) IncrementFor(price int64) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inc := r.fallback
	for _, tier := range r.tiers {
		if price < tier.From {
			break
		}
		inc = tier.Increment
	}
	return inc
}
