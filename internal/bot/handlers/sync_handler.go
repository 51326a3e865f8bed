package handlers

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewSyncHandler returns a handler for the admin-only /sync command.
func NewSyncHandler(deps HandlerDeps) bot.HandlerFunc {
	return syncHandler{deps}.Handle
}

type syncHandler struct {
	deps HandlerDeps
}

func (h syncHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "sync")
	msg := update.Message
	if msg == nil {
		return
	}

	reply(ctx, b, log, msg, msgSyncStarted, false)

	start := time.Now()
	if err := h.deps.Syncer.RunOnce(ctx); err != nil {
		log.ErrorContext(ctx, "Manual sync failed", "error", err, "duration", time.Since(start))
		reply(ctx, b, log, msg, msgSyncFailed, false)
		return
	}
	log.InfoContext(ctx, "Manual sync finished", "duration", time.Since(start))
	reply(ctx, b, log, msg, msgSyncFinished, false)
}
