// Package app wires the bidding core shared by the service binaries.
package app

import (
	"context"
	"database/sql"
	"errors"

	goredis "github.com/go-redis/redis/v8"

	"bidding-core/internal/config"
	"bidding-core/internal/domain"
	"bidding-core/internal/infrastructure/leader"
	"bidding-core/internal/infrastructure/memory"
	"bidding-core/internal/infrastructure/mysql"
	"bidding-core/internal/infrastructure/redis"
	"bidding-core/internal/services"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/money"
)

// Core holds the components every process that accepts bids needs. Committed
// events go to the Redis bus; local consumers read them back from there so
// they see commits from every instance.
type Core struct {
	Store      domain.AuctionStore
	Snapshots  domain.SnapshotCache
	Rules      *services.IncrementRules
	Dispatcher *services.EventDispatcher
	Arbiter    *services.Arbiter
	Manager    *services.AuctionManager
	Currency   money.Currency
}

// NewCore builds the core. db is only used by the mysql store driver.
func NewCore(ctx context.Context, cfg *config.Config, rdb *goredis.Client, db *sql.DB, log logger.Logger) (*Core, error) {
	store, err := newStore(ctx, cfg, db, log)
	if err != nil {
		return nil, err
	}

	rules := services.NewIncrementRules(rdb, cfg.Bidding.IncrementTiers, cfg.Bidding.DefaultIncrement, log)
	if err := rules.LoadRules(ctx); err != nil {
		log.Error("Failed to load increment rules", "error", err)
		return nil, err
	}

	snapshots := redis.NewRedisSnapshotCache(rdb, cfg.Redis.SnapshotTTL)
	dispatcher := services.NewEventDispatcher(cfg.Events.DispatcherShards, log, redis.NewEventPublisher(rdb))

	arbiter := services.NewArbiter(store, services.NewLockRegistry(cfg.Bidding.LockShards), dispatcher,
		services.ArbiterConfig{
			LockTimeout:     cfg.Bidding.LockTimeout,
			AntiSnipeWindow: cfg.Bidding.AntiSnipeWindow,
			ExtensionPeriod: cfg.Bidding.ExtensionPeriod,
			MaxExtensions:   cfg.Bidding.MaxExtensions,
		},
		log.With("component", "arbiter"),
		services.WithIdempotencyStore(redis.NewRedisIdempotencyStore(rdb, cfg.Idempotency.TTL)),
		services.WithSnapshotCache(snapshots),
	)

	return &Core{
		Store:      store,
		Snapshots:  snapshots,
		Rules:      rules,
		Dispatcher: dispatcher,
		Arbiter:    arbiter,
		Manager:    services.NewAuctionManager(store, arbiter, snapshots, rules, cfg.Bidding.AllowPastStart, log),
		Currency:   money.Currency{Code: cfg.Currency.Code, Exponent: cfg.Currency.Exponent},
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config, db *sql.DB, log logger.Logger) (domain.AuctionStore, error) {
	if cfg.Store.Driver == "memory" {
		log.Warn("Using in-memory auction store, state is lost on restart")
		return memory.NewAuctionStore(), nil
	}

	if db == nil {
		return nil, errors.New("mysql store driver needs a database handle")
	}
	if cfg.MySQL.AutoMigrate {
		if err := mysql.Migrate(ctx, db); err != nil {
			log.Error("Failed to migrate schema", "error", err)
			return nil, err
		}
	}
	return mysql.NewAuctionStore(db, log.With("component", "mysql_store")), nil
}

// NewScheduler builds the lifecycle sweeper. With leader election disabled
// every instance sweeps; transitions are idempotent, so that only costs work.
func (c *Core) NewScheduler(cfg *config.Config, rdb *goredis.Client, log logger.Logger) *services.LifecycleScheduler {
	var election domain.LeaderElection
	if cfg.Leader.Enabled {
		election = leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL, log)
	}
	return services.NewLifecycleScheduler(c.Store, c.Arbiter, election, cfg.Instance.ID,
		cfg.Scheduler.Interval, cfg.Scheduler.Concurrency, log.With("component", "scheduler"))
}

func (c *Core) Start() {
	c.Dispatcher.Start()
}

// Shutdown drains events that are already committed.
func (c *Core) Shutdown(ctx context.Context) error {
	return c.Dispatcher.Stop(ctx)
}
