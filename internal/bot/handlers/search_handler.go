package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatmirror/internal/search"
)

// NewSearchHandler returns a handler for the /search command.
func NewSearchHandler(deps HandlerDeps) bot.HandlerFunc {
	return searchHandler{deps}.Handle
}

type searchHandler struct {
	deps HandlerDeps
}

func (h searchHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "search")
	msg := update.Message
	if msg == nil {
		return
	}

	terms := commandArgs(msg.Text)
	if terms == "" {
		reply(ctx, b, log, msg, msgSearchUsage, false)
		return
	}

	c := search.Criteria{Terms: terms}
	if gid, ok := scopedGroupID(msg.Chat); ok {
		c.GroupID = gid
	}

	res, err := h.deps.Searcher.Search(ctx, c)
	var notFound *search.GroupNotFoundError
	if errors.As(err, &notFound) {
		// The chat the command came from is not mirrored; search everything.
		c.GroupID = 0
		res, err = h.deps.Searcher.Search(ctx, c)
	}
	switch {
	case errors.Is(err, search.ErrInvalidQuery):
		reply(ctx, b, log, msg, msgInvalidQuery, false)
		return
	case err != nil:
		log.ErrorContext(ctx, "Search failed", "error", err, "terms", terms)
		reply(ctx, b, log, msg, msgGeneralError, false)
		return
	}

	log.InfoContext(ctx, "Search answered", "group_id", c.GroupID, "results", len(res.Messages))
	if len(res.Messages) == 0 {
		reply(ctx, b, log, msg, msgNoResults, false)
		return
	}
	reply(ctx, b, log, msg, formatResults(res.Groups, res.Messages, h.deps.Location), true)
}
