package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/screener-client/internal/config"
	"github.com/Sternrassler/screener-client/pkg/logging"
	"github.com/Sternrassler/screener-client/pkg/ratelimit"
	"github.com/Sternrassler/screener-client/pkg/screener"
)

// buildScreener wires the library from cfg. When a budget Redis URL is set
// the shared request budget gates every page request and the tracker is
// returned as well; otherwise the tracker is nil. The returned cleanup
// closes the Redis connection.
func buildScreener(ctx context.Context, cfg *config.Config) (*screener.Screener, *ratelimit.Tracker, func(), error) {
	sc := cfg.Screener()
	cleanup := func() {}
	var tracker *ratelimit.Tracker

	if cfg.Budget.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Budget.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("budget.redis_url: %w", err)
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
		}

		logger := logging.NewLogger("ratelimit")
		tracker = ratelimit.NewTracker(redisClient, cfg.RateLimit(), logger)
		sc.Client.Budget = tracker
		cleanup = func() { redisClient.Close() }

		logger.Info().
			Str("key", cfg.Budget.Key).
			Int("limit", cfg.Budget.Limit).
			Dur("window", cfg.Budget.Window).
			Msg("Request budget enabled")
	}

	s, err := screener.New(sc)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return s, tracker, cleanup, nil
}
