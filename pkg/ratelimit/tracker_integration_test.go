//go:build integration

package ratelimit

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_GetState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, Config{Key: "test:state", Limit: 10, Window: time.Minute}, logger)
	ctx := context.Background()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Used != 0 {
		t.Errorf("Used = %d, want 0 for an unused window", state.Used)
	}
	if state.Remaining() != 10 {
		t.Errorf("Remaining() = %d, want 10", state.Remaining())
	}

	for i := 0; i < 3; i++ {
		if err := tracker.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i+1, err)
		}
	}

	state, err = tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() after acquire error = %v", err)
	}
	if state.Used != 3 {
		t.Errorf("Used = %d, want 3", state.Used)
	}

	reset := state.TimeUntilReset()
	if reset <= 0 || reset > time.Minute {
		t.Errorf("TimeUntilReset() = %v, want within (0, 1m]", reset)
	}
}

func TestTracker_Integration_AcquireWaitsForReset(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, Config{Key: "test:wait", Limit: 2, Window: 500 * time.Millisecond}, logger)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := tracker.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i+1, err)
		}
	}
	elapsed := time.Since(start)

	if elapsed < 300*time.Millisecond {
		t.Errorf("third Acquire() returned after %v, expected it to wait for the window reset", elapsed)
	}
}

func TestTracker_Integration_AcquireHonorsCancellation(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, Config{Key: "test:cancel", Limit: 1, Window: time.Minute}, logger)

	if err := tracker.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := tracker.Acquire(ctx)
	if err == nil {
		t.Fatal("Expected error for exhausted budget with short deadline")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}
