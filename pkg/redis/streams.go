package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/models"
)

// StreamMessage is a sync job read from a stream. Job is nil when the entry could not be
// decoded; the caller acks and dead-letters such entries.
type StreamMessage struct {
	ID     string
	Stream string
	Raw    string
	Job    *models.SyncJob
}

// Streams provides Redis Streams operations for the sync job queue
type Streams struct {
	client *Client
}

// NewStreams creates a new Streams instance
func NewStreams(client *Client) *Streams {
	return &Streams{client: client}
}

// Publish adds a sync job to a stream
func (s *Streams) Publish(ctx context.Context, stream string, job *models.SyncJob) (string, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	id, err := s.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"data":     string(payload),
			"platform": string(job.Platform),
		},
	}).Result()
	if err != nil {
		s.client.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to stream %s", stream)
		return "", err
	}

	s.client.logger.WithContext(ctx).Debugf("Published sync job %s to stream %s (message ID: %s)", job.ID, stream, id)
	return id, nil
}

// CreateConsumerGroup creates a consumer group, creating the stream when missing
func (s *Streams) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	err := s.client.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Consume reads new messages for a consumer of the group
func (s *Streams) Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	results, err := s.client.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var messages []StreamMessage
	for _, result := range results {
		messages = append(messages, decodeMessages(result.Stream, result.Messages)...)
	}
	return messages, nil
}

// Ack acknowledges messages
func (s *Streams) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return s.client.rdb.XAck(ctx, stream, group, ids...).Err()
}

// Pending returns pending entries of the group
func (s *Streams) Pending(ctx context.Context, stream, group string, count int64) ([]redis.XPendingExt, error) {
	return s.client.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
}

// Claim takes over pending messages idle for at least minIdle
func (s *Streams) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error) {
	results, err := s.client.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}
	return decodeMessages(stream, results), nil
}

// Get returns a single message by ID, or nil when it no longer exists
func (s *Streams) Get(ctx context.Context, stream, id string) (*StreamMessage, error) {
	results, err := s.client.rdb.XRange(ctx, stream, id, id).Result()
	if err != nil {
		return nil, err
	}
	messages := decodeMessages(stream, results)
	if len(messages) == 0 {
		return nil, nil
	}
	return &messages[0], nil
}

// Len returns the length of a stream
func (s *Streams) Len(ctx context.Context, stream string) (int64, error) {
	return s.client.rdb.XLen(ctx, stream).Result()
}

func decodeMessages(stream string, raw []redis.XMessage) []StreamMessage {
	messages := make([]StreamMessage, 0, len(raw))
	for _, msg := range raw {
		data, _ := msg.Values["data"].(string)
		m := StreamMessage{ID: msg.ID, Stream: stream, Raw: data}

		var job models.SyncJob
		if data != "" && json.Unmarshal([]byte(data), &job) == nil {
			m.Job = &job
		}
		messages = append(messages, m)
	}
	return messages
}
