package tasks

import (
	"context"
	"fmt"
	"time"
)

// newHistorySyncTask polls every source for messages posted since the last
// pass and keeps extending the backfill of groups not yet complete.
func newHistorySyncTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "history_sync")

	return func(ctx context.Context) error {
		startTime := time.Now()
		err := deps.Syncer.RunOnce(ctx)
		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "History sync task failed", "error", err, "duration", duration)
			return fmt.Errorf("history sync failed: %w", err)
		}

		log.InfoContext(ctx, "History sync task completed", "duration", duration)
		return nil
	}
}
