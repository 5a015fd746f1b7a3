package daemon

import (
	"context"
	"log/slog"
	"time"

	"printdesk/internal/monitoring"
)

type CleanupStore interface {
	DeleteExpiredVerificationTokens(ctx context.Context) (int64, error)
	DeleteExpiredVerifiedEmails(ctx context.Context) (int64, error)
}

// CleanupTask periodically removes expired verification codes and verified
// email markers that were never consumed by a submission.
func CleanupTask(store CleanupStore, logger *slog.Logger, telemetry monitoring.Telemetry, interval time.Duration) Task {
	return func(ctx context.Context, name string) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n, err := store.DeleteExpiredVerificationTokens(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to delete expired verification tokens", "error", err)
					telemetry.RecordBestEffortFailure(ctx, "token_cleanup")
				} else if n > 0 {
					logger.InfoContext(ctx, "Deleted expired verification tokens", "count", n)
				}

				if n, err := store.DeleteExpiredVerifiedEmails(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to delete expired verified emails", "error", err)
					telemetry.RecordBestEffortFailure(ctx, "marker_cleanup")
				} else if n > 0 {
					logger.InfoContext(ctx, "Deleted expired verified emails", "count", n)
				}
			}
		}
	}
}
