// Package syncer runs one platform sync: load credentials, fetch a date window from the
// provider with retries, upsert the rows and record the outcome.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/besteffort"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/platforms"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/retry"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// RateLimiter is the distributed limiter guarding provider reporting quotas
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*redis.RateLimitResult, error)
	BlockFor(ctx context.Context, key string, d time.Duration) error
}

// Config tunes the sync service
type Config struct {
	Retry retry.Policy
	// RateLimit is the number of reporting calls allowed per platform per RateWindow.
	// Zero disables the limiter.
	RateLimit  int64
	RateWindow time.Duration
	// BlockOn429 is how long a platform is paused after the provider answers 429
	BlockOn429 time.Duration
}

// DefaultConfig returns three attempts with 2s/4s backoff and no rate limit
func DefaultConfig() Config {
	return Config{
		Retry:      retry.DefaultPolicy(),
		RateWindow: time.Minute,
		BlockOn429: time.Minute,
	}
}

// Syncer is the sync operation consumed by handlers and the queue processor
type Syncer interface {
	Sync(ctx context.Context, req models.SyncRequest) (*models.SyncResult, error)
}

// Service implements Syncer over the platform registry
type Service struct {
	registry     *platforms.Registry
	integrations repositories.IntegrationRepo
	logs         repositories.LogRepo
	events       kafka.Publisher
	limiter      RateLimiter
	config       Config
	logger       ectologger.Logger
	now          func() time.Time
}

var _ Syncer = (*Service)(nil)

// NewService creates the sync service. limiter may be nil.
func NewService(
	registry *platforms.Registry,
	integrations repositories.IntegrationRepo,
	logs repositories.LogRepo,
	events kafka.Publisher,
	limiter RateLimiter,
	config Config,
	logger ectologger.Logger,
) *Service {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	if config.RateWindow <= 0 {
		config.RateWindow = time.Minute
	}
	if config.Retry.Logger == nil {
		config.Retry.Logger = logger
	}
	return &Service{
		registry:     registry,
		integrations: integrations,
		logs:         logs,
		events:       events,
		limiter:      limiter,
		config:       config,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock replaces the clock used for the default window and bookkeeping
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Sync syncs one account for the requested window
func (s *Service) Sync(ctx context.Context, req models.SyncRequest) (*models.SyncResult, error) {
	ctx = appctx.SetTenantID(ctx, req.TenantID.String())
	ctx = appctx.SetPlatform(ctx, string(req.Platform))
	ctx = appctx.SetAccountID(ctx, req.AccountID)

	ctx, span := tracing.StartSpan(ctx, "Syncer.Sync",
		attribute.String("platform", string(req.Platform)),
		attribute.String("account_id", req.AccountID),
	)
	defer span.End()

	started := s.now()
	window, err := models.ResolveDateRange(req.StartDate, req.EndDate, started)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.Get(req.Platform)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Infof("Syncing %s account %s from %s to %s",
		req.Platform, req.AccountID, window.StartString(), window.EndString())

	rows, err := s.run(ctx, adapter, req, window)
	finished := s.now()
	if err != nil {
		tracing.Fail(span, err, "sync failed")
		s.recordFailure(ctx, req, window, err, finished.Sub(started))
		return nil, err
	}

	span.SetAttributes(attribute.Int("rows_synced", rows))
	s.recordSuccess(ctx, req, window, rows, finished, finished.Sub(started))

	return &models.SyncResult{
		Platform:   req.Platform,
		AccountID:  req.AccountID,
		StartDate:  window.StartString(),
		EndDate:    window.EndString(),
		RowsSynced: rows,
		SyncedAt:   finished,
	}, nil
}

func (s *Service) run(ctx context.Context, adapter platforms.Adapter, req models.SyncRequest, window models.DateRange) (int, error) {
	integration, err := s.integrations.GetByAccount(ctx, req.Platform, req.AccountID)
	if err != nil {
		return 0, err
	}

	creds, err := adapter.FetchCredential(ctx, integration)
	if err != nil {
		return 0, err
	}

	batch, err := retry.Do(ctx, s.config.Retry, func(ctx context.Context, attempt int) (platforms.Batch, error) {
		if err := s.throttle(ctx, req.Platform); err != nil {
			return nil, err
		}
		batch, err := adapter.FetchRemoteMetrics(ctx, creds, window)
		if err != nil {
			s.pauseOnRateLimit(ctx, req.Platform, err)
			if platforms.IsPermanent(err) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		return batch, nil
	})
	if err != nil {
		if errors.Is(err, models.ErrTokenExpired) || errors.Is(err, models.ErrInvalidCredentials) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", models.ErrRemoteAPIFailure, err)
	}

	rows, err := adapter.UpsertMetrics(ctx, batch)
	if err != nil {
		if errors.Is(err, models.ErrStorageWriteFailure) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", models.ErrStorageWriteFailure, err)
	}
	return rows, nil
}

func rateLimitKey(platform models.Platform) string {
	return "platform:" + string(platform)
}

// throttle fails open when Redis is unavailable
func (s *Service) throttle(ctx context.Context, platform models.Platform) error {
	if s.limiter == nil || s.config.RateLimit <= 0 {
		return nil
	}

	result, err := s.limiter.Allow(ctx, rateLimitKey(platform), s.config.RateLimit, s.config.RateWindow)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Rate limiter unavailable, continuing without it")
		return nil
	}
	if !result.Allowed {
		metrics.RateLimitHits.WithLabelValues(string(platform)).Inc()
		return fmt.Errorf("%w: %s, retry in %s", redis.ErrRateLimitExceeded, platform, result.RetryIn)
	}
	return nil
}

func (s *Service) pauseOnRateLimit(ctx context.Context, platform models.Platform, err error) {
	var statusErr *httpclient.StatusError
	if s.limiter == nil || !errors.As(err, &statusErr) || !httpclient.IsRateLimitStatus(statusErr.StatusCode) {
		return
	}
	besteffort.Run(ctx, s.logger, "block_rate_limited_platform", func(ctx context.Context) error {
		return s.limiter.BlockFor(ctx, rateLimitKey(platform), s.config.BlockOn429)
	})
}

func (s *Service) recordSuccess(ctx context.Context, req models.SyncRequest, window models.DateRange, rows int, syncedAt time.Time, took time.Duration) {
	metrics.RecordSync(string(req.Platform), "success", rows, took.Seconds())
	s.logger.WithContext(ctx).Infof("Synced %d rows for %s account %s in %s", rows, req.Platform, req.AccountID, took)

	besteffort.Run(ctx, s.logger, "update_last_sync", func(ctx context.Context) error {
		return s.integrations.UpdateLastSync(ctx, req.Platform, req.AccountID, syncedAt)
	})
	besteffort.Run(ctx, s.logger, "append_sync_log", func(ctx context.Context) error {
		return s.logs.AppendSyncLog(ctx, &models.SyncLog{
			Platform:   req.Platform,
			AccountID:  req.AccountID,
			Status:     models.SyncLogSuccess,
			StartDate:  window.Start,
			EndDate:    window.End,
			RowsSynced: rows,
			DurationMs: took.Milliseconds(),
		})
	})
	besteffort.Run(ctx, s.logger, "publish_sync_event", func(ctx context.Context) error {
		return s.events.Publish(ctx, &kafka.Event{
			Type:      kafka.EventSyncCompleted,
			TenantID:  req.TenantID.String(),
			Platform:  string(req.Platform),
			AccountID: req.AccountID,
			Status:    string(models.SyncLogSuccess),
			Data: map[string]any{
				"rows_synced": rows,
				"start_date":  window.StartString(),
				"end_date":    window.EndString(),
			},
		})
	})
}

func (s *Service) recordFailure(ctx context.Context, req models.SyncRequest, window models.DateRange, syncErr error, took time.Duration) {
	metrics.RecordSync(string(req.Platform), "failed", 0, took.Seconds())
	s.logger.WithContext(ctx).WithError(syncErr).Errorf("Sync failed for %s account %s", req.Platform, req.AccountID)

	message := syncErr.Error()
	besteffort.Run(ctx, s.logger, "append_sync_log", func(ctx context.Context) error {
		return s.logs.AppendSyncLog(ctx, &models.SyncLog{
			Platform:     req.Platform,
			AccountID:    req.AccountID,
			Status:       models.SyncLogFailed,
			StartDate:    window.Start,
			EndDate:      window.End,
			ErrorMessage: &message,
			DurationMs:   took.Milliseconds(),
		})
	})
	if !errors.Is(syncErr, models.ErrIntegrationNotFound) {
		besteffort.Run(ctx, s.logger, "set_sync_status_failed", func(ctx context.Context) error {
			return s.integrations.SetSyncStatus(ctx, req.Platform, req.AccountID, models.SyncStatusFailed, s.now())
		})
	}
	besteffort.Run(ctx, s.logger, "publish_sync_event", func(ctx context.Context) error {
		return s.events.Publish(ctx, &kafka.Event{
			Type:      kafka.EventSyncFailed,
			TenantID:  req.TenantID.String(),
			Platform:  string(req.Platform),
			AccountID: req.AccountID,
			Status:    string(models.SyncLogFailed),
			Error:     message,
		})
	})
}
