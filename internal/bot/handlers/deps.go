package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/chatmirror/internal/database"
	"github.com/edgard/chatmirror/internal/search"
)

// Searcher is the part of search.Engine the commands use.
type Searcher interface {
	Search(ctx context.Context, c search.Criteria) (*search.Result, error)
	Groups(ctx context.Context) ([]database.Group, error)
	FindNames(ctx context.Context, groupID int64, text string) ([]database.NamePair, error)
}

// Syncer runs one catch-up pass over every configured source.
type Syncer interface {
	RunOnce(ctx context.Context) error
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger      *slog.Logger
	AdminUserID int64
	Searcher    Searcher
	Syncer      Syncer
	// Location is used to print message timestamps.
	Location *time.Location
}
