// Package scheduler enqueues sync jobs for integrations whose data has gone stale.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultPollInterval is the default interval between scheduling runs
	DefaultPollInterval = time.Minute

	// DefaultSyncInterval is how old last_sync may get before a new sync is scheduled
	DefaultSyncInterval = 6 * time.Hour

	// DefaultLockTTL is how long an integration stays claimed after a job is published
	DefaultLockTTL = 10 * time.Minute

	// DefaultBatchSize is the number of integrations to schedule per poll
	DefaultBatchSize = 100

	// LockKeyPrefix is the prefix for scheduler locks
	LockKeyPrefix = "scheduler:integration:"
)

// DueLister lists integrations due for a sync across all tenants
type DueLister interface {
	ListDue(ctx context.Context, staleBefore time.Time, limit int) ([]models.Integration, error)
}

// JobPublisher enqueues sync jobs
type JobPublisher interface {
	Publish(ctx context.Context, stream string, job *models.SyncJob) (string, error)
}

// Lock is a held distributed lock
type Lock interface {
	Release(ctx context.Context) error
}

// Locker takes a named lock for ttl, failing with redis.ErrLockNotAcquired when it is held
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type redisLocker struct {
	locker *redis.Locker
}

// RedisLocker adapts a redis.Locker to the scheduler's Locker
func RedisLocker(locker *redis.Locker) Locker {
	return redisLocker{locker: locker}
}

func (l redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := l.locker.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Config holds configuration for the scheduler
type Config struct {
	// PollInterval is how often to look for due integrations
	PollInterval time.Duration

	// SyncInterval is the maximum age of last_sync before a sync is due
	SyncInterval time.Duration

	// LockTTL is how long an integration stays claimed after its job is published
	LockTTL time.Duration

	// BatchSize is the maximum number of integrations to schedule per poll
	BatchSize int

	// JobQueue is the Redis Streams queue name
	JobQueue string
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		SyncInterval: DefaultSyncInterval,
		LockTTL:      DefaultLockTTL,
		BatchSize:    DefaultBatchSize,
		JobQueue:     "clover:sync:jobs",
	}
}

// Scheduler polls for due integrations and publishes sync jobs
type Scheduler struct {
	repo    DueLister
	streams JobPublisher
	locker  Locker
	config  Config
	logger  ectologger.Logger
	now     func() time.Time

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(
	repo DueLister,
	streams JobPublisher,
	locker Locker,
	config Config,
	logger ectologger.Logger,
) *Scheduler {
	defaults := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = defaults.SyncInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.JobQueue == "" {
		config.JobQueue = defaults.JobQueue
	}

	return &Scheduler{
		repo:     repo,
		streams:  streams,
		locker:   locker,
		config:   config,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// WithClock replaces the time source
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// GetName implements startup.StartupDependency
func (s *Scheduler) GetName() string {
	return "sync-scheduler"
}

// DependsOn implements startup.StartupDependency
func (s *Scheduler) DependsOn() []string {
	return []string{"database", "redis"}
}

// Start starts the polling loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting scheduler: poll_interval=%s sync_interval=%s batch_size=%d",
		s.config.PollInterval, s.config.SyncInterval, s.config.BatchSize)

	go s.pollLoop(context.WithoutCancel(ctx))
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")
	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle schedules one batch of due integrations and returns how many jobs were published
func (s *Scheduler) RunCycle(ctx context.Context) int {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.RunCycle")
	defer span.End()

	start := s.now()
	due, err := s.repo.ListDue(ctx, start.Add(-s.config.SyncInterval), s.config.BatchSize)
	if err != nil {
		tracing.Fail(span, err, "list due integrations")
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list due integrations")
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	scheduled, skipped := 0, 0
	for _, integration := range due {
		if err := s.schedule(ctx, integration); err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				skipped++
				continue
			}
			s.logger.WithContext(ctx).WithError(err).Warnf("Failed to schedule %s account %s",
				integration.Platform, integration.AccountID)
			continue
		}
		scheduled++
	}

	s.logger.WithContext(ctx).Infof("Scheduling cycle completed: due=%d scheduled=%d skipped=%d duration=%s",
		len(due), scheduled, skipped, s.now().Sub(start))
	return scheduled
}

// schedule publishes a job for one integration. The lock is kept until it expires so the
// integration is not queued again while its job waits or runs.
func (s *Scheduler) schedule(ctx context.Context, integration models.Integration) error {
	ctx = appctx.SetTenantID(ctx, integration.TenantID.String())
	ctx = appctx.SetPlatform(ctx, string(integration.Platform))
	ctx = appctx.SetAccountID(ctx, integration.AccountID)

	ctx, span := tracing.StartSpan(ctx, "Scheduler.schedule")
	defer span.End()

	lock, err := s.locker.Acquire(ctx, LockKeyPrefix+integration.ID.String(), s.config.LockTTL)
	if err != nil {
		return err
	}

	job := &models.SyncJob{
		TenantID:    integration.TenantID,
		Platform:    integration.Platform,
		AccountID:   integration.AccountID,
		Trigger:     models.SyncTriggerSchedule,
		ScheduledAt: s.now().UTC(),
	}
	if integration.SyncStatus == models.SyncStatusPending {
		job.Trigger = models.SyncTriggerWebhook
	}

	messageID, err := s.streams.Publish(ctx, s.config.JobQueue, job)
	if err != nil {
		tracing.Fail(span, err, "publish sync job")
		if releaseErr := lock.Release(ctx); releaseErr != nil {
			s.logger.WithContext(ctx).WithError(releaseErr).Warn("Failed to release scheduler lock")
		}
		return err
	}

	metrics.SchedulerJobsScheduled.Inc()
	s.logger.WithContext(ctx).Debugf("Scheduled %s sync for account %s (message_id=%s)",
		integration.Platform, integration.AccountID, messageID)
	return nil
}
