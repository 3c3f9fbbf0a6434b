package redis_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
)

// getTestClient connects to REDIS_ADDR (default localhost:6379) on a scratch DB or skips
func getTestClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("Skipping integration test, redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	return redis.NewClientFromRedis(rdb, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("test:%s:%s", prefix, uuid.NewString())
}

func cleanup(t *testing.T, client *redis.Client, keys ...string) {
	t.Cleanup(func() { client.Redis().Del(context.Background(), keys...) })
}

func TestStreams_PublishConsumeAck(t *testing.T) {
	client := getTestClient(t)
	streams := redis.NewStreams(client)
	ctx := context.Background()
	stream := uniqueName("jobs")
	cleanup(t, client, stream)

	require.NoError(t, streams.CreateConsumerGroup(ctx, stream, "workers"))
	require.NoError(t, streams.CreateConsumerGroup(ctx, stream, "workers"), "existing group is not an error")

	job := &models.SyncJob{TenantID: uuid.New(), Platform: models.PlatformMeta, AccountID: "act_1", Trigger: models.SyncTriggerSchedule}
	id, err := streams.Publish(ctx, stream, job)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, job.ID)

	messages, err := streams.Consume(ctx, stream, "workers", "c1", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, id, messages[0].ID)
	require.NotNil(t, messages[0].Job)
	assert.Equal(t, job.ID, messages[0].Job.ID)
	assert.Equal(t, "act_1", messages[0].Job.AccountID)

	pending, err := streams.Pending(ctx, stream, "workers", 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, streams.Ack(ctx, stream, "workers", id))
	pending, err = streams.Pending(ctx, stream, "workers", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	msg, err := streams.Get(ctx, stream, id)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, job.ID, msg.Job.ID)
}

func TestDeadLetterQueue_TenantScoping(t *testing.T) {
	client := getTestClient(t)
	ctx := context.Background()
	dlqStream := uniqueName("dlq")
	jobStream := uniqueName("jobs")
	cleanup(t, client, dlqStream, jobStream)
	dlq := redis.NewDeadLetterQueue(client, dlqStream, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

	tenantA, tenantB := uuid.New(), uuid.New()
	original := models.SyncJob{ID: uuid.New(), TenantID: tenantA, Platform: models.PlatformGA4, AccountID: "properties/1", Attempt: 4}
	idA, err := dlq.Add(ctx, &models.DeadLetterJob{
		TenantID: tenantA, Platform: models.PlatformGA4, AccountID: "properties/1",
		OriginalJob: original, Reason: models.DLQReasonMaxRetries, ErrorMessage: "boom", RetryCount: 4,
	})
	require.NoError(t, err)
	_, err = dlq.Add(ctx, &models.DeadLetterJob{TenantID: tenantB, Platform: models.PlatformMeta, Reason: models.DLQReasonAuthError})
	require.NoError(t, err)

	entries, err := dlq.ListByTenant(ctx, tenantA, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, idA, entries[0].MessageID)
	assert.Equal(t, models.DLQReasonMaxRetries, entries[0].Reason)

	_, err = dlq.Get(ctx, tenantB, idA)
	assert.ErrorIs(t, err, redis.ErrDLQEntryNotFound)
	assert.ErrorIs(t, dlq.Delete(ctx, tenantB, idA), redis.ErrDLQEntryNotFound)

	streams := redis.NewStreams(client)
	require.NoError(t, dlq.Retry(ctx, tenantA, idA, streams, jobStream))

	count, err := dlq.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	length, err := streams.Len(ctx, jobStream)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestLocker(t *testing.T) {
	client := getTestClient(t)
	ctx := context.Background()
	prefix := uniqueName("lock") + ":"
	locker := redis.NewLocker(client, prefix)
	cleanup(t, client, prefix+"integration")

	lock, err := locker.Acquire(ctx, "integration", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "integration", time.Minute)
	assert.ErrorIs(t, err, redis.ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), redis.ErrLockNotHeld)

	again, err := locker.Acquire(ctx, "integration", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRateLimiter(t *testing.T) {
	client := getTestClient(t)
	ctx := context.Background()
	prefix := uniqueName("rl") + ":"
	limiter := redis.NewRateLimiter(client, prefix)
	t.Cleanup(func() {
		keys, _ := client.Redis().Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			client.Redis().Del(context.Background(), keys...)
		}
	})

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "platform:meta", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "call %d", i)
	}
	result, err := limiter.Allow(ctx, "platform:meta", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Positive(t, result.RetryIn)

	blocked, _, err := limiter.IsBlocked(ctx, "platform:ga4")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, limiter.BlockFor(ctx, "platform:ga4", time.Minute))
	blocked, remaining, err := limiter.IsBlocked(ctx, "platform:ga4")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Greater(t, remaining, 50*time.Second)

	result, err = limiter.Allow(ctx, "platform:ga4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "blocked key must not admit requests")
	assert.Greater(t, result.RetryIn, 50*time.Second)
}
