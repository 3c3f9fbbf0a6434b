package platforms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
)

// ErrCircuitOpen is returned while a platform's breaker rejects calls
var ErrCircuitOpen = errors.New("circuit open")

// BreakerSettings tunes the per-platform circuit breaker
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings opens after 60% failures over at least 10 calls and probes again
// after two minutes
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// breakerAdapter guards the remote calls of an adapter with a circuit breaker. Storage calls
// pass straight through.
type breakerAdapter struct {
	Adapter
	cb     *gobreaker.CircuitBreaker[Batch]
	logger ectologger.Logger
}

// WithBreaker wraps adapter so repeated provider failures stop hammering the provider
func WithBreaker(adapter Adapter, settings BreakerSettings, logger ectologger.Logger) Adapter {
	name := string(adapter.Platform())
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[Batch](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		// bad credentials say nothing about the provider's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, models.ErrInvalidCredentials) || errors.Is(err, models.ErrTokenExpired)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]any{
				"platform": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &breakerAdapter{Adapter: adapter, cb: cb, logger: logger}
}

func (b *breakerAdapter) FetchRemoteMetrics(ctx context.Context, creds models.Credentials, window models.DateRange) (Batch, error) {
	batch, err := b.cb.Execute(func() (Batch, error) {
		return b.Adapter.FetchRemoteMetrics(ctx, creds, window)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %v", ErrCircuitOpen, b.Platform(), err)
	}
	return batch, err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
