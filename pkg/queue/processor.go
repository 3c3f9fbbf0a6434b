// Package queue consumes sync jobs from a Redis stream and runs them through the syncer.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/syncer"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var (
	// ErrProcessorRunning is returned when Start is called twice
	ErrProcessorRunning = errors.New("processor already running")

	// ErrInvalidJobMessage is returned when a stream entry does not decode into a sync job
	ErrInvalidJobMessage = errors.New("invalid job message")
)

const (
	// DefaultStream is the sync job stream
	DefaultStream = "clover:sync:jobs"

	// DefaultConsumerGroup is the consumer group shared by all workers
	DefaultConsumerGroup = "clover-workers"

	// DefaultBatchSize is the default number of messages to consume at once
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for messages
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the number of deliveries before a job is dead-lettered
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to claim stale pending messages
	DefaultClaimInterval = 30 * time.Second

	// DefaultClaimMinIdle is the minimum idle time before claiming a message
	DefaultClaimMinIdle = 60 * time.Second
)

// JobStream is the subset of redis.Streams the processor needs
type JobStream interface {
	CreateConsumerGroup(ctx context.Context, stream, group string) error
	Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]redis.StreamMessage, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	Pending(ctx context.Context, stream, group string, count int64) ([]goredis.XPendingExt, error)
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]redis.StreamMessage, error)
	Get(ctx context.Context, stream, id string) (*redis.StreamMessage, error)
}

// DeadLetters stores jobs that will not be retried
type DeadLetters interface {
	Add(ctx context.Context, job *models.DeadLetterJob) (string, error)
}

var (
	_ JobStream   = (*redis.Streams)(nil)
	_ DeadLetters = (*redis.DeadLetterQueue)(nil)
)

// ProcessorConfig holds configuration for the job processor
type ProcessorConfig struct {
	// Stream name for the job queue
	Stream string

	// Consumer group name
	ConsumerGroup string

	// Consumer name (unique per instance)
	ConsumerName string

	// Number of messages to fetch per batch
	BatchSize int64

	// How long to block waiting for new messages
	BlockTimeout time.Duration

	// Deliveries allowed before a job is dead-lettered
	MaxRetries int

	// How often to check for and claim stale pending messages
	ClaimInterval time.Duration

	// Minimum idle time before claiming a pending message
	ClaimMinIdle time.Duration

	// Number of worker goroutines
	WorkerCount int
}

// DefaultProcessorConfig returns the default processor configuration
func DefaultProcessorConfig() ProcessorConfig {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = uuid.New().String()[:8]
	}

	return ProcessorConfig{
		Stream:        DefaultStream,
		ConsumerGroup: DefaultConsumerGroup,
		ConsumerName:  hostname,
		BatchSize:     DefaultBatchSize,
		BlockTimeout:  DefaultBlockTimeout,
		MaxRetries:    DefaultMaxRetries,
		ClaimInterval: DefaultClaimInterval,
		ClaimMinIdle:  DefaultClaimMinIdle,
		WorkerCount:   1,
	}
}

// JobResult holds the result of processing a job
type JobResult struct {
	MessageID string
	Success   bool
	Error     error
	Duration  time.Duration
	Result    *models.SyncResult
}

// Processor runs sync jobs from a Redis Streams queue
type Processor struct {
	streams JobStream
	dlq     DeadLetters
	syncer  syncer.Syncer
	config  ProcessorConfig
	logger  ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	jobsCh   chan redis.StreamMessage

	running bool
	mu      sync.RWMutex
}

// NewProcessor creates a new job processor
func NewProcessor(
	streams JobStream,
	dlq DeadLetters,
	s syncer.Syncer,
	config ProcessorConfig,
	logger ectologger.Logger,
) *Processor {
	defaults := DefaultProcessorConfig()
	if config.Stream == "" {
		config.Stream = defaults.Stream
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = defaults.ConsumerGroup
	}
	if config.ConsumerName == "" {
		config.ConsumerName = defaults.ConsumerName
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = DefaultBlockTimeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.ClaimInterval <= 0 {
		config.ClaimInterval = DefaultClaimInterval
	}
	if config.ClaimMinIdle <= 0 {
		config.ClaimMinIdle = DefaultClaimMinIdle
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}

	return &Processor{
		streams:  streams,
		dlq:      dlq,
		syncer:   s,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
		jobsCh:   make(chan redis.StreamMessage, config.BatchSize*2),
	}
}

// GetName implements startup.StartupDependency
func (p *Processor) GetName() string {
	return "sync-processor"
}

// DependsOn implements startup.StartupDependency
func (p *Processor) DependsOn() []string {
	return []string{"redis"}
}

// Start creates the consumer group and starts the consume, claim and worker loops
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrProcessorRunning
	}
	p.running = true
	p.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "Processor.Start")
	defer span.End()

	p.logger.WithContext(ctx).Infof("Starting sync processor: stream=%s group=%s consumer=%s workers=%d",
		p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.WorkerCount)

	if err := p.streams.CreateConsumerGroup(ctx, p.config.Stream, p.config.ConsumerGroup); err != nil {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		p.logger.WithContext(ctx).WithError(err).Error("Failed to create consumer group")
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	// loops outlive the startup context
	loopCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < p.config.WorkerCount; i++ {
		wg.Add(1)
		go p.worker(loopCtx, &wg, i)
	}

	var producers sync.WaitGroup
	producers.Add(2)
	go p.consumeLoop(loopCtx, &producers)
	go p.claimLoop(loopCtx, &producers)

	go func() {
		<-p.stopCh
		producers.Wait()
		close(p.jobsCh)
		wg.Wait()
		close(p.stoppedC)
	}()

	return nil
}

// Stop stops the processor gracefully
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.WithContext(ctx).Info("Stopping sync processor...")
	close(p.stopCh)

	select {
	case <-p.stoppedC:
		p.logger.WithContext(ctx).Info("Sync processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WithContext(ctx).Warn("Sync processor shutdown timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the processor is running
func (p *Processor) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Processor) consumeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		messages, err := p.streams.Consume(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName,
			p.config.BatchSize, p.config.BlockTimeout)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to consume messages")
			select {
			case <-p.stopCh:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range messages {
			select {
			case p.jobsCh <- msg:
			case <-p.stopCh:
				return
			}
		}
	}
}

func (p *Processor) claimLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(p.config.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			for _, msg := range p.claimPending(ctx) {
				select {
				case p.jobsCh <- msg:
				case <-p.stopCh:
					return
				default:
					// channel full, the message stays pending for the next pass
				}
			}
		}
	}
}

// claimPending dead-letters messages delivered too many times and claims the rest of the
// stale pending messages for this consumer.
func (p *Processor) claimPending(ctx context.Context) []redis.StreamMessage {
	ctx, span := tracing.StartSpan(ctx, "Processor.claimPending")
	defer span.End()

	pending, err := p.streams.Pending(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.BatchSize)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to get pending messages")
		return nil
	}

	var staleIDs []string
	for _, entry := range pending {
		if entry.Idle < p.config.ClaimMinIdle {
			continue
		}
		if entry.RetryCount <= int64(p.config.MaxRetries) {
			staleIDs = append(staleIDs, entry.ID)
			continue
		}

		p.logger.WithContext(ctx).Warnf("Message %s exceeded max retries (%d), moving to DLQ", entry.ID, entry.RetryCount)
		msg, err := p.streams.Get(ctx, p.config.Stream, entry.ID)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).Warnf("Failed to read message %s for DLQ", entry.ID)
			continue
		}
		if msg == nil {
			msg = &redis.StreamMessage{ID: entry.ID, Stream: p.config.Stream}
		}
		p.moveToDLQ(ctx, *msg, int(entry.RetryCount), models.DLQReasonMaxRetries, "exceeded maximum retry count")
	}

	if len(staleIDs) == 0 {
		return nil
	}

	claimed, err := p.streams.Claim(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.ClaimMinIdle, staleIDs...)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to claim pending messages")
		return nil
	}
	p.logger.WithContext(ctx).Infof("Claimed %d stale pending messages", len(claimed))
	return claimed
}

func (p *Processor) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()

	p.logger.WithContext(ctx).Debugf("Worker %d started", id)
	for msg := range p.jobsCh {
		p.handle(ctx, msg)
	}
	p.logger.WithContext(ctx).Debugf("Worker %d stopped", id)
}

// handle runs one message and settles it: success and permanent failures are acked,
// permanent failures are dead-lettered, transient failures stay pending for a later claim.
func (p *Processor) handle(ctx context.Context, msg redis.StreamMessage) *JobResult {
	metrics.QueueJobsInFlight.Inc()
	defer metrics.QueueJobsInFlight.Dec()

	result := p.process(ctx, msg)
	switch {
	case result.Success:
		metrics.RecordQueueJob("success")
		p.ack(ctx, msg.ID)
	case errors.Is(result.Error, ErrInvalidJobMessage):
		metrics.RecordQueueJob("invalid")
		p.moveToDLQ(ctx, msg, 0, models.DLQReasonInvalidJob, result.Error.Error())
	default:
		if reason, permanent := deadLetterReason(result.Error); permanent {
			metrics.RecordQueueJob("dead_lettered")
			attempt := 0
			if msg.Job != nil {
				attempt = msg.Job.Attempt
			}
			p.moveToDLQ(ctx, msg, attempt, reason, result.Error.Error())
			return result
		}
		metrics.RecordQueueJob("retry")
		p.logger.WithContext(ctx).WithError(result.Error).Warnf("Sync job %s failed, will be retried", msg.ID)
	}
	return result
}

func (p *Processor) process(ctx context.Context, msg redis.StreamMessage) *JobResult {
	start := time.Now()
	result := &JobResult{MessageID: msg.ID}

	if msg.Job == nil {
		result.Error = fmt.Errorf("%w: %s", ErrInvalidJobMessage, msg.Raw)
		return result
	}
	job := msg.Job

	ctx = appctx.SetTenantID(ctx, job.TenantID.String())
	ctx = appctx.SetRequestID(ctx, job.ID.String())

	ctx, span := tracing.StartSpan(ctx, "Processor.process",
		attribute.String("platform", string(job.Platform)),
		attribute.String("trigger", string(job.Trigger)),
	)
	defer span.End()

	p.logger.WithContext(ctx).Infof("Processing %s sync job %s for account %s", job.Platform, job.ID, job.AccountID)

	syncResult, err := p.syncer.Sync(ctx, job.Request())
	result.Duration = time.Since(start)
	if err != nil {
		tracing.Fail(span, err, "sync job failed")
		result.Error = err
		return result
	}

	result.Success = true
	result.Result = syncResult
	p.logger.WithContext(ctx).Infof("Sync job %s completed in %s (%d rows)", job.ID, result.Duration, syncResult.RowsSynced)
	return result
}

// deadLetterReason maps errors that retrying cannot fix to a DLQ reason
func deadLetterReason(err error) (models.DeadLetterReason, bool) {
	switch {
	case errors.Is(err, models.ErrIntegrationNotFound):
		return models.DLQReasonIntegrationNotFound, true
	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrTokenExpired):
		return models.DLQReasonAuthError, true
	case errors.Is(err, models.ErrUnsupportedPlatform), errors.Is(err, models.ErrInvalidDateRange):
		return models.DLQReasonInvalidJob, true
	default:
		return "", false
	}
}

func (p *Processor) ack(ctx context.Context, id string) {
	if err := p.streams.Ack(ctx, p.config.Stream, p.config.ConsumerGroup, id); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("Failed to ack message %s", id)
	}
}

// moveToDLQ stores the job in the dead letter queue and acks the original message. The
// message is acked even when the DLQ write fails so it does not cycle forever.
func (p *Processor) moveToDLQ(ctx context.Context, msg redis.StreamMessage, retryCount int, reason models.DeadLetterReason, errorMsg string) {
	ctx, span := tracing.StartSpan(ctx, "Processor.moveToDLQ")
	defer span.End()

	entry := &models.DeadLetterJob{
		Reason:       reason,
		ErrorMessage: errorMsg,
		RetryCount:   retryCount,
	}
	if msg.Job != nil {
		entry.TenantID = msg.Job.TenantID
		entry.Platform = msg.Job.Platform
		entry.AccountID = msg.Job.AccountID
		entry.OriginalJob = *msg.Job
	}

	if p.dlq != nil {
		if _, err := p.dlq.Add(ctx, entry); err != nil {
			p.logger.WithContext(ctx).WithError(err).Errorf("Failed to add message %s to DLQ", msg.ID)
		} else {
			metrics.RecordDLQJob(string(entry.Platform), string(reason))
		}
	}

	p.ack(ctx, msg.ID)
}
