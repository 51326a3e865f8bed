package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewGroupsHandler returns a handler for the /groups command.
func NewGroupsHandler(deps HandlerDeps) bot.HandlerFunc {
	return groupsHandler{deps}.Handle
}

type groupsHandler struct {
	deps HandlerDeps
}

func (h groupsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "groups")
	msg := update.Message
	if msg == nil {
		return
	}

	groups, err := h.deps.Searcher.Groups(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list groups", "error", err)
		reply(ctx, b, log, msg, msgGeneralError, false)
		return
	}
	if len(groups) == 0 {
		reply(ctx, b, log, msg, msgNoGroups, false)
		return
	}
	reply(ctx, b, log, msg, formatGroups(groups), true)
}
