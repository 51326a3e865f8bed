package handlers

import (
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// RegisteredHandler represents a command handler with its description and middleware.
// It encapsulates all information needed to register and document a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Description string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns a map of all available bot commands.
// It configures each command with appropriate handlers and middleware.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	handlers := make(map[string]RegisteredHandler)

	command := func(pattern, description string, h tgbot.HandlerFunc, mw ...tgbot.Middleware) {
		handlers["/"+pattern] = RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     pattern,
			Description: description,
			Handler:     h,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Middleware:  mw,
		}
	}

	help := NewHelpHandler(deps)
	command("start", "", help)
	command("help", "Show available commands", help)
	command("search", "Search messages", NewSearchHandler(deps))
	command("names", "Find senders by name", NewNamesHandler(deps))
	command("groups", "List mirrored groups", NewGroupsHandler(deps))

	if deps.Syncer != nil {
		command("sync", "Run a sync pass (admin only)", NewSyncHandler(deps), AdminOnly(deps))
	}

	return handlers
}

// BotCommands lists the described commands for the Telegram command menu.
func BotCommands(registered map[string]RegisteredHandler) []models.BotCommand {
	order := []string{"search", "names", "groups", "sync", "help"}
	var cmds []models.BotCommand
	for _, name := range order {
		h, ok := registered["/"+name]
		if !ok || h.Description == "" {
			continue
		}
		cmds = append(cmds, models.BotCommand{Command: name, Description: h.Description})
	}
	return cmds
}
