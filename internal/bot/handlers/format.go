package handlers

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatmirror/internal/database"
)

const (
	// maxReplyLength stays under Telegram's 4096 character message limit.
	maxReplyLength = 4000
	maxExcerpt     = 300
	timeLayout     = "2006-01-02 15:04"

	// Bot API ids of supergroups and channels are -100 followed by the
	// peer id.
	channelIDOffset = 1_000_000_000_000
)

// commandArgs strips the leading "/command" or "/command@bot" from text.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return ""
}

// scopedGroupID maps the Bot API chat a command was sent in to the group id
// its history is mirrored under. Private chats are not scoped.
func scopedGroupID(chat models.Chat) (int64, bool) {
	switch chat.Type {
	case models.ChatTypeGroup, models.ChatTypeSupergroup, models.ChatTypeChannel:
	default:
		return 0, false
	}
	id := chat.ID
	switch {
	case id < -channelIDOffset:
		return -id - channelIDOffset, true
	case id < 0:
		return -id, true
	default:
		return id, true
	}
}

// formatResults renders hits as Telegram HTML, newest first, stopping
// before the reply would grow past maxReplyLength.
func formatResults(groups map[int64]string, rows []database.SearchRow, loc *time.Location) string {
	var b strings.Builder
	for i, row := range rows {
		entry := formatRow(groups, row, loc)
		if b.Len()+len(entry) > maxReplyLength {
			fmt.Fprintf(&b, "… and %d more", len(rows)-i)
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRow(groups map[int64]string, row database.SearchRow, loc *time.Location) string {
	sender := row.FromUserName.String
	if sender == "" {
		sender = "unknown"
	}

	var excerpt string
	if row.HTML.Valid && utf8.RuneCountInString(row.Text) <= maxExcerpt {
		excerpt = telegramHTML(row.HTML.String)
	} else {
		excerpt = html.EscapeString(truncateRunes(row.Text, maxExcerpt))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<i>%s</i>", row.CreatedAt.In(loc).Format(timeLayout))
	if len(groups) > 1 {
		if title, ok := groups[row.GroupID]; ok {
			fmt.Fprintf(&b, " [%s]", html.EscapeString(title))
		}
	}
	fmt.Fprintf(&b, " <b>%s</b>: %s\n\n", html.EscapeString(sender), excerpt)
	return b.String()
}

// telegramHTML converts keyword spans, which Telegram does not render, to
// bold text.
func telegramHTML(s string) string {
	return strings.NewReplacer(`<span class="keyword">`, "<b>", "</span>", "</b>").Replace(s)
}

func formatNames(names []database.NamePair) string {
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "%s <code>%d</code>\n", html.EscapeString(n.Name), n.UserID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatGroups(groups []database.Group) string {
	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "<b>%s</b> <code>%d</code>", html.EscapeString(g.Title), g.GroupID)
		if g.LoadedFirstID.Valid && g.LoadedLastID.Valid {
			fmt.Fprintf(&b, " messages %d to %d", g.LoadedFirstID.Int64, g.LoadedLastID.Int64)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// reply answers msg in its chat, in HTML mode when asHTML is set.
func reply(ctx context.Context, b *bot.Bot, log *slog.Logger, msg *models.Message, text string, asHTML bool) {
	params := &bot.SendMessageParams{
		ChatID:          msg.Chat.ID,
		Text:            text,
		ReplyParameters: &models.ReplyParameters{MessageID: msg.ID},
	}
	if asHTML {
		params.ParseMode = models.ParseModeHTML
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", msg.Chat.ID)
	}
}
