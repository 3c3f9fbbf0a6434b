// Package besteffort runs secondary side effects whose failure must never change the outcome
// of the primary operation: bookkeeping writes, audit rows, outbound notifications.
package besteffort

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
)

// Run calls fn and reports whether it succeeded. A failure or panic is logged and counted
// under operation, never returned.
func Run(ctx context.Context, logger ectologger.Logger, operation string, fn func(ctx context.Context) error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BestEffortFailures.WithLabelValues(operation).Inc()
			logger.WithContext(ctx).WithFields(map[string]any{
				"operation": operation,
				"panic":     r,
			}).Error("best-effort operation panicked")
			ok = false
		}
	}()

	if err := fn(ctx); err != nil {
		metrics.BestEffortFailures.WithLabelValues(operation).Inc()
		logger.WithContext(ctx).WithError(err).WithField("operation", operation).Warnf("%s failed, continuing", operation)
		return false
	}
	return true
}
