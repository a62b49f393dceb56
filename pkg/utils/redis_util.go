package utils

import (
	"context"

	"github.com/go-redis/redis/v8"

	"bidding-core/internal/config"
	"bidding-core/pkg/logger"
)

// InitializeRedis connects and pings. Callers exit on error.
func InitializeRedis(ctx context.Context, cfg *config.Config, log logger.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "address", cfg.Redis.Address, "error", err)
		rdb.Close()
		return nil, err
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)
	return rdb, nil
}
