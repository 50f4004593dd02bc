//go:build integration

package cooldown

import (
	"context"
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

func TestRedisStore_Integration_EmptyState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(redisClient)

	until, err := store.BlockedUntil(context.Background())
	if err != nil {
		t.Fatalf("BlockedUntil() error = %v", err)
	}
	if !until.IsZero() {
		t.Errorf("BlockedUntil() = %v, want zero", until)
	}
}

func TestRedisStore_Integration_ExtendKeepsLater(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRedisStore(redisClient)

	later := time.Now().Add(30 * time.Second)
	if err := store.Extend(ctx, later); err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	if err := store.Extend(ctx, time.Now().Add(5*time.Second)); err != nil {
		t.Fatalf("Extend() error = %v", err)
	}

	got, err := store.BlockedUntil(ctx)
	if err != nil {
		t.Fatalf("BlockedUntil() error = %v", err)
	}
	if got.UnixMilli() != later.UnixMilli() {
		t.Errorf("BlockedUntil() = %v, want %v", got, later)
	}

	ttl, err := redisClient.PTTL(ctx, RedisKeyBlockedUntil).Result()
	if err != nil {
		t.Fatalf("PTTL error = %v", err)
	}
	if ttl <= 0 || ttl > 30*time.Second {
		t.Errorf("TTL = %v, want (0, 30s]", ttl)
	}
}

func TestRedisStore_Integration_SharedBetweenTrackers(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	logger := zerolog.Nop()

	a := NewTracker(NewRedisStore(redisClient), logger)
	b := NewTracker(NewRedisStore(redisClient), logger)

	a.Block(ctx, 2*time.Second)

	if d := b.Remaining(ctx); d <= 0 {
		t.Errorf("Second tracker Remaining() = %v, want > 0", d)
	}
}
