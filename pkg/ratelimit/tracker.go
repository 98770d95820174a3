package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the request budget.
var (
	budgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "screener_budget_remaining",
		Help: "Requests remaining in the current screener budget window",
	})

	budgetWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_budget_waits_total",
		Help: "Total number of requests that waited for the budget window to reset",
	})

	budgetWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "screener_budget_wait_seconds",
		Help:    "Time spent waiting for the budget window to reset",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60},
	})
)

// Config holds the budget configuration.
type Config struct {
	// Key is the Redis key holding the window counter.
	Key string

	// Limit is the number of requests allowed per window.
	Limit int

	// Window is the length of one budget window.
	Window time.Duration
}

// DefaultConfig returns a conservative budget of 60 requests per minute.
func DefaultConfig() Config {
	return Config{
		Key:    "screener:budget",
		Limit:  60,
		Window: time.Minute,
	}
}

// Tracker draws requests from the shared budget.
type Tracker struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger
}

// NewTracker creates a new budget tracker. Zero config fields fall back to
// DefaultConfig values.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	def := DefaultConfig()
	if cfg.Key == "" {
		cfg.Key = def.Key
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}

	return &Tracker{
		redis:  redisClient,
		config: cfg,
		logger: logger,
	}
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.config
}

// GetState reads the current window from Redis.
// A missing key means a fresh, unused window.
func (t *Tracker) GetState(ctx context.Context) (*BudgetState, error) {
	now := time.Now()

	used, err := t.redis.Get(ctx, t.config.Key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get budget counter: %w", err)
	}

	resetAt := now.Add(t.config.Window)
	if err == nil {
		ttl, err := t.redis.PTTL(ctx, t.config.Key).Result()
		if err != nil {
			return nil, fmt.Errorf("get budget ttl: %w", err)
		}
		if ttl > 0 {
			resetAt = now.Add(ttl)
		}
	}

	return &BudgetState{
		Used:       used,
		Limit:      t.config.Limit,
		ResetAt:    resetAt,
		LastUpdate: now,
	}, nil
}

// Acquire takes one request from the budget, waiting for the window to reset
// when it is exhausted. It returns early with the context error on cancellation.
func (t *Tracker) Acquire(ctx context.Context) error {
	for {
		used, ttl, err := t.increment(ctx)
		if err != nil {
			return err
		}

		remaining := t.config.Limit - used
		if remaining < 0 {
			remaining = 0
		}
		budgetRemaining.Set(float64(remaining))

		if used <= t.config.Limit {
			state := BudgetState{Used: used, Limit: t.config.Limit}
			if state.NearLimit() {
				t.logger.Warn().
					Int("used", used).
					Int("limit", t.config.Limit).
					Msg("Screener request budget nearly exhausted")
			} else {
				t.logger.Debug().
					Int("used", used).
					Int("limit", t.config.Limit).
					Msg("Request budget acquired")
			}
			return nil
		}

		budgetWaitsTotal.Inc()
		budgetWaitSeconds.Observe(ttl.Seconds())
		t.logger.Warn().
			Int("used", used).
			Int("limit", t.config.Limit).
			Dur("wait_duration", ttl).
			Msg("Screener request budget exhausted - waiting for window reset")

		timer := time.NewTimer(ttl)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for request budget: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// increment counts one request and returns the window usage and the time left
// in the window.
func (t *Tracker) increment(ctx context.Context) (int, time.Duration, error) {
	used, err := t.redis.Incr(ctx, t.config.Key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("increment budget counter: %w", err)
	}

	if used == 1 {
		if err := t.redis.PExpire(ctx, t.config.Key, t.config.Window).Err(); err != nil {
			return 0, 0, fmt.Errorf("set budget window: %w", err)
		}
		return 1, t.config.Window, nil
	}

	ttl, err := t.redis.PTTL(ctx, t.config.Key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("get budget ttl: %w", err)
	}
	if ttl <= 0 {
		// Counter without expiry (a previous process died between INCR and PEXPIRE).
		if err := t.redis.PExpire(ctx, t.config.Key, t.config.Window).Err(); err != nil {
			return 0, 0, fmt.Errorf("repair budget window: %w", err)
		}
		ttl = t.config.Window
	}

	return int(used), ttl, nil
}
