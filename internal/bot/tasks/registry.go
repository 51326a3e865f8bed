package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/chatmirror/internal/config"
)

// ScheduledTaskFunc defines the standard signature for all scheduled tasks.
// The context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks initializes and returns a map of all registered scheduled
// tasks, keyed by the name used in the scheduler.tasks config section.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	tasks := make(map[string]ScheduledTaskFunc)

	if deps.Syncer != nil {
		tasks[config.TaskHistorySync] = newHistorySyncTask(deps)
	}
	if deps.Store != nil {
		tasks[config.TaskDBMaintenance] = newDBMaintenanceTask(deps)
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
