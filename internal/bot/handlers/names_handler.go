package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewNamesHandler returns a handler for the /names command.
func NewNamesHandler(deps HandlerDeps) bot.HandlerFunc {
	return namesHandler{deps}.Handle
}

type namesHandler struct {
	deps HandlerDeps
}

func (h namesHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "names")
	msg := update.Message
	if msg == nil {
		return
	}

	prefix := commandArgs(msg.Text)
	if prefix == "" {
		reply(ctx, b, log, msg, msgNamesUsage, false)
		return
	}

	gid, _ := scopedGroupID(msg.Chat)
	names, err := h.deps.Searcher.FindNames(ctx, gid, prefix)
	if err != nil {
		log.ErrorContext(ctx, "Name lookup failed", "error", err)
		reply(ctx, b, log, msg, msgGeneralError, false)
		return
	}
	if len(names) == 0 {
		reply(ctx, b, log, msg, msgNoNames, false)
		return
	}
	reply(ctx, b, log, msg, formatNames(names), true)
}
