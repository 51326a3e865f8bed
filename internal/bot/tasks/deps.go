// Package tasks implements the scheduled background jobs: catch-up history
// sync and database maintenance.
package tasks

import (
	"context"
	"log/slog"
)

// Syncer runs one catch-up pass over every configured source.
type Syncer interface {
	RunOnce(ctx context.Context) error
}

// Maintainer runs backend specific housekeeping.
type Maintainer interface {
	RunMaintenance(ctx context.Context) error
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Syncer Syncer
	Store  Maintainer
}
