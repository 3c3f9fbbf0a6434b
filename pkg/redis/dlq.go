package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	// DefaultDLQStream is the default dead letter stream name
	DefaultDLQStream = "clover:sync:dlq"

	// DLQMaxLen caps the DLQ stream; the oldest entries are trimmed
	DLQMaxLen = 10000
)

// ErrDLQEntryNotFound is returned for an unknown DLQ message ID
var ErrDLQEntryNotFound = errors.New("dlq entry not found")

// DLQEntry is a dead-lettered sync job with its stream message ID
type DLQEntry struct {
	MessageID string `json:"message_id"`
	models.DeadLetterJob
}

// DeadLetterQueue stores sync jobs that failed permanently
type DeadLetterQueue struct {
	client     *Client
	streamName string
	logger     ectologger.Logger
}

// NewDeadLetterQueue creates a new dead letter queue
func NewDeadLetterQueue(client *Client, streamName string, logger ectologger.Logger) *DeadLetterQueue {
	if streamName == "" {
		streamName = DefaultDLQStream
	}
	return &DeadLetterQueue{client: client, streamName: streamName, logger: logger}
}

// Add appends a job to the DLQ
func (d *DeadLetterQueue) Add(ctx context.Context, job *models.DeadLetterJob) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "DLQ.Add")
	defer span.End()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.TraceID = tracing.GetTraceID(ctx)

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal DLQ entry: %w", err)
	}

	messageID, err := d.client.Redis().XAdd(ctx, &redis.XAddArgs{
		Stream: d.streamName,
		MaxLen: DLQMaxLen,
		Approx: true,
		Values: map[string]any{
			"data":      string(data),
			"tenant_id": job.TenantID.String(),
			"platform":  string(job.Platform),
			"reason":    string(job.Reason),
		},
	}).Result()
	if err != nil {
		tracing.Fail(span, err, "failed to add to DLQ")
		d.logger.WithContext(ctx).WithError(err).Error("Failed to add job to DLQ")
		return "", fmt.Errorf("failed to add to DLQ: %w", err)
	}

	d.logger.WithContext(ctx).Infof("Added sync job to DLQ: id=%s platform=%s account=%s reason=%s",
		job.ID, job.Platform, job.AccountID, job.Reason)
	return messageID, nil
}

// ListByTenant returns up to count of the tenant's newest entries
func (d *DeadLetterQueue) ListByTenant(ctx context.Context, tenantID uuid.UUID, count int64) ([]DLQEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "DLQ.ListByTenant")
	defer span.End()

	if count <= 0 {
		count = 100
	}

	// over-fetch since the stream is shared by all tenants
	messages, err := d.client.Redis().XRevRangeN(ctx, d.streamName, "+", "-", count*5).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ: %w", err)
	}

	entries := make([]DLQEntry, 0)
	for _, msg := range messages {
		entry, err := decodeEntry(msg)
		if err != nil {
			d.logger.WithContext(ctx).WithError(err).Warnf("Failed to decode DLQ entry %s", msg.ID)
			continue
		}
		if entry.TenantID != tenantID {
			continue
		}
		entries = append(entries, *entry)
		if int64(len(entries)) >= count {
			break
		}
	}
	return entries, nil
}

// Get returns one entry. Entries of other tenants are reported as not found.
func (d *DeadLetterQueue) Get(ctx context.Context, tenantID uuid.UUID, messageID string) (*DLQEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "DLQ.Get")
	defer span.End()

	messages, err := d.client.Redis().XRange(ctx, d.streamName, messageID, messageID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get DLQ entry: %w", err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDLQEntryNotFound, messageID)
	}

	entry, err := decodeEntry(messages[0])
	if err != nil {
		return nil, err
	}
	if entry.TenantID != tenantID {
		return nil, fmt.Errorf("%w: %s", ErrDLQEntryNotFound, messageID)
	}
	return entry, nil
}

// Delete removes an entry of the tenant
func (d *DeadLetterQueue) Delete(ctx context.Context, tenantID uuid.UUID, messageID string) error {
	ctx, span := tracing.StartSpan(ctx, "DLQ.Delete")
	defer span.End()

	if _, err := d.Get(ctx, tenantID, messageID); err != nil {
		return err
	}
	if err := d.client.Redis().XDel(ctx, d.streamName, messageID).Err(); err != nil {
		return fmt.Errorf("failed to delete DLQ entry: %w", err)
	}

	d.logger.WithContext(ctx).Infof("Deleted DLQ entry: %s", messageID)
	return nil
}

// Count returns the number of entries across all tenants
func (d *DeadLetterQueue) Count(ctx context.Context) (int64, error) {
	return d.client.Redis().XLen(ctx, d.streamName).Result()
}

// Retry re-enqueues the original job with a reset attempt count and removes the entry
func (d *DeadLetterQueue) Retry(ctx context.Context, tenantID uuid.UUID, messageID string, jobs *Streams, stream string) error {
	ctx, span := tracing.StartSpan(ctx, "DLQ.Retry")
	defer span.End()

	entry, err := d.Get(ctx, tenantID, messageID)
	if err != nil {
		return err
	}

	job := entry.OriginalJob
	job.ID = uuid.Nil
	job.Attempt = 0
	job.ScheduledAt = time.Time{}
	if _, err := jobs.Publish(ctx, stream, &job); err != nil {
		return fmt.Errorf("failed to re-enqueue job: %w", err)
	}

	if err := d.client.Redis().XDel(ctx, d.streamName, messageID).Err(); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("Failed to delete DLQ entry after retry")
	}

	d.logger.WithContext(ctx).Infof("Retried DLQ entry %s for %s/%s", messageID, job.Platform, job.AccountID)
	return nil
}

func decodeEntry(msg redis.XMessage) (*DLQEntry, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid DLQ entry format")
	}
	entry := DLQEntry{MessageID: msg.ID}
	if err := json.Unmarshal([]byte(data), &entry.DeadLetterJob); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DLQ entry: %w", err)
	}
	return &entry, nil
}
