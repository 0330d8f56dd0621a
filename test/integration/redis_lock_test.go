//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/redis"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	client, err := redis.NewClient(ctx, redis.Config{Host: host, Port: port.Int()}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPartitionLocks(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	locks := redis.NewPartitionLocks(redis.NewLocker(client, "locks:"))
	partition := batch.Partition{Source: "ergast", Year: 1988}

	release, err := locks.Acquire(ctx, partition.Key(), time.Minute)
	require.NoError(t, err)

	_, err = locks.Acquire(ctx, partition.Key(), time.Minute)
	assert.ErrorIs(t, err, batch.ErrPartitionLocked)

	other, err := locks.Acquire(ctx, batch.Partition{Source: "ergast", Year: 1989}.Key(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	assert.ErrorIs(t, release(ctx), redis.ErrLockNotHeld)

	again, err := locks.Acquire(ctx, partition.Key(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLockExpires(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	locker := redis.NewLocker(client, "locks:")

	lock, err := locker.Acquire(ctx, "short", 100*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := locker.Acquire(ctx, "short", time.Minute)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	assert.ErrorIs(t, lock.Release(ctx), redis.ErrLockNotHeld)
}
