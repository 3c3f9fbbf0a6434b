package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/mocks"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/scheduler"
)

var now = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

type memoryLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

type memoryLock struct {
	locker *memoryLocker
	key    string
}

func (l *memoryLock) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	delete(l.locker.held, l.key)
	l.locker.released = append(l.locker.released, l.key)
	return nil
}

func (l *memoryLocker) Acquire(_ context.Context, key string, _ time.Duration) (scheduler.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, redis.ErrLockNotAcquired
	}
	l.held[key] = true
	return &memoryLock{locker: l, key: key}, nil
}

type recordingPublisher struct {
	jobs []models.SyncJob
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, stream string, job *models.SyncJob) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.jobs = append(p.jobs, *job)
	return "1-0", nil
}

func setup(t *testing.T) (*mocks.IntegrationRepo, *recordingPublisher, *memoryLocker, *scheduler.Scheduler) {
	t.Helper()
	repo := mocks.NewIntegrationRepo()
	publisher := &recordingPublisher{}
	locker := &memoryLocker{held: map[string]bool{}}
	cfg := scheduler.DefaultConfig()
	cfg.SyncInterval = 6 * time.Hour
	s := scheduler.NewScheduler(repo, publisher, locker, cfg, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})).
		WithClock(func() time.Time { return now })
	return repo, publisher, locker, s
}

func at(t time.Time) *time.Time { return &t }

func TestRunCycle_SchedulesDueIntegrations(t *testing.T) {
	repo, publisher, _, s := setup(t)
	tenant := uuid.New()
	repo.Put(models.Integration{TenantID: tenant, Platform: models.PlatformGA4, AccountID: "a-never", IsActive: true})
	repo.Put(models.Integration{TenantID: tenant, Platform: models.PlatformMeta, AccountID: "b-stale", IsActive: true, LastSync: at(now.Add(-7 * time.Hour))})
	repo.Put(models.Integration{TenantID: tenant, Platform: models.PlatformMeta, AccountID: "c-fresh", IsActive: true, LastSync: at(now.Add(-time.Hour))})
	repo.Put(models.Integration{TenantID: tenant, Platform: models.PlatformMeta, AccountID: "d-pending", IsActive: true, LastSync: at(now.Add(-time.Hour)), SyncStatus: models.SyncStatusPending})
	repo.Put(models.Integration{TenantID: tenant, Platform: models.PlatformGA4, AccountID: "e-inactive", IsActive: false})

	scheduled := s.RunCycle(context.Background())

	assert.Equal(t, 3, scheduled)
	require.Len(t, publisher.jobs, 3)
	assert.Equal(t, "a-never", publisher.jobs[0].AccountID)
	assert.Equal(t, models.SyncTriggerSchedule, publisher.jobs[0].Trigger)
	assert.Equal(t, tenant, publisher.jobs[0].TenantID)
	assert.Equal(t, "b-stale", publisher.jobs[1].AccountID)
	assert.Equal(t, "d-pending", publisher.jobs[2].AccountID)
	assert.Equal(t, models.SyncTriggerWebhook, publisher.jobs[2].Trigger)
	assert.True(t, now.Equal(publisher.jobs[0].ScheduledAt))
}

func TestRunCycle_HeldLockSkipsIntegration(t *testing.T) {
	repo, publisher, _, s := setup(t)
	repo.Put(models.Integration{TenantID: uuid.New(), Platform: models.PlatformGA4, AccountID: "a", IsActive: true})

	assert.Equal(t, 1, s.RunCycle(context.Background()))
	assert.Equal(t, 0, s.RunCycle(context.Background()))
	assert.Len(t, publisher.jobs, 1)
}

func TestRunCycle_PublishFailureReleasesLock(t *testing.T) {
	repo, publisher, locker, s := setup(t)
	repo.Put(models.Integration{TenantID: uuid.New(), Platform: models.PlatformGA4, AccountID: "a", IsActive: true})
	publisher.err = errors.New("redis down")

	assert.Equal(t, 0, s.RunCycle(context.Background()))
	assert.Len(t, locker.released, 1)

	publisher.err = nil
	assert.Equal(t, 1, s.RunCycle(context.Background()))
}

func TestScheduler_StartStop(t *testing.T) {
	_, _, _, s := setup(t)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), scheduler.ErrSchedulerAlreadyRunning)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
}
