// Package indexer crawls message history from a source into the store,
// forward from the newest synced message and then backward to the oldest.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/edgard/chatmirror/internal/database"
	"github.com/edgard/chatmirror/internal/logger"
	"github.com/edgard/chatmirror/internal/source"
)

const (
	// BatchSize is the number of messages requested per fetch.
	BatchSize = 50
	probeSize = 2
)

// MessageStore is the part of database.Store the crawler writes to.
type MessageStore interface {
	InsertMessages(ctx context.Context, batch []source.Message, direction database.UpdateDirection) (int, error)
}

// Synchronizer brings one group's stored range in line with its source.
type Synchronizer struct {
	store  MessageStore
	src    source.Source
	logger *slog.Logger
}

// NewSynchronizer creates a Synchronizer reading from src into store.
func NewSynchronizer(store MessageStore, src source.Source, log *slog.Logger) *Synchronizer {
	if log == nil {
		log = logger.Discard()
	}
	return &Synchronizer{store: store, src: src, logger: log.With("component", "synchronizer")}
}

// Run crawls entity starting from group's stored cursors. onCaughtUp, if not
// nil, is called once when the forward phase reaches the live tail. Store and
// source errors abort the run; calling Run again resumes from the cursors.
func (s *Synchronizer) Run(ctx context.Context, entity source.Entity, group *database.Group, onCaughtUp func()) error {
	log := s.logger.With("group_id", group.GroupID, "title", group.Title)

	var firstID, lastID int64
	if !group.LoadedLastID.Valid {
		msgs, err := s.src.GetMessages(source.WithPhase(ctx, source.PhaseProbe), entity, source.GetMessagesParams{Limit: probeSize})
		if err != nil {
			return fmt.Errorf("failed to probe group %d: %w", group.GroupID, err)
		}
		log.InfoContext(ctx, "Probed latest messages", "received", len(msgs))
		if len(msgs) > 0 {
			lastID = msgs[len(msgs)-1].ID
		}
	} else {
		firstID = group.LoadedFirstID.Int64
		lastID = group.LoadedLastID.Int64
	}

	fwdCtx := source.WithPhase(ctx, source.PhaseForward)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.InfoContext(ctx, "Fetching newer messages", "limit", BatchSize, "after_id", lastID)
		msgs, err := s.src.GetMessages(fwdCtx, entity, source.GetMessagesParams{Limit: BatchSize, Reverse: true, MinID: lastID})
		if err != nil {
			return fmt.Errorf("failed to fetch messages after %d in group %d: %w", lastID, group.GroupID, err)
		}
		if len(msgs) == 0 {
			break
		}

		direction := database.UpdateForward
		if firstID == 0 {
			direction = database.UpdateBidirectional
			firstID = msgs[0].ID
		}
		lastID = msgs[len(msgs)-1].ID

		log.InfoContext(ctx, "Received messages", "count", len(msgs), "from_id", msgs[0].ID, "to_id", lastID, "direction", direction.String())
		loaded, err := s.store.InsertMessages(fwdCtx, msgs, direction)
		if err != nil {
			return err
		}
		log.DebugContext(ctx, "Processed messages", "loaded", loaded)
	}
	log.InfoContext(ctx, "Forward history sync done", "last_id", lastID)
	if onCaughtUp != nil {
		onCaughtUp()
	}

	if firstID == 1 {
		log.InfoContext(ctx, "Earliest message already synced, skipping backward phase")
		return nil
	}

	backCtx := source.WithPhase(ctx, source.PhaseBackward)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.InfoContext(ctx, "Fetching older messages", "limit", BatchSize, "before_id", firstID)
		msgs, err := s.src.GetMessages(backCtx, entity, source.GetMessagesParams{Limit: BatchSize, MaxID: firstID})
		if err != nil {
			return fmt.Errorf("failed to fetch messages before %d in group %d: %w", firstID, group.GroupID, err)
		}
		if len(msgs) == 0 {
			break
		}

		// Sources return newest first here.
		slices.Reverse(msgs)
		firstID = msgs[0].ID

		log.InfoContext(ctx, "Received messages", "count", len(msgs), "from_id", firstID, "to_id", msgs[len(msgs)-1].ID, "direction", database.UpdateBackward.String())
		loaded, err := s.store.InsertMessages(backCtx, msgs, database.UpdateBackward)
		if err != nil {
			return err
		}
		log.DebugContext(ctx, "Processed messages", "loaded", loaded)
	}
	log.InfoContext(ctx, "Backward history sync done", "first_id", firstID)
	return nil
}
