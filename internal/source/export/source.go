// Package export reads chat history from a Telegram Desktop JSON export
// (result.json) and serves it through the source.Source contract.
package export

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/edgard/chatmirror/internal/logger"
	"github.com/edgard/chatmirror/internal/source"
)

// exportDateLayout is the local-time layout of the date/edited fields.
const exportDateLayout = "2006-01-02T15:04:05"

var _ source.Dialog = (*Source)(nil)

// Source serves one exported chat. The file is re-read whenever its
// modification time changes, so a scheduled sync picks up a newer export.
type Source struct {
	path   string
	loc    *time.Location
	logger *slog.Logger

	mu       sync.Mutex
	modTime  time.Time
	entity   source.Entity
	messages []source.Message // ascending by ID
}

// New returns a Source for the export at path. Dates without a unix
// timestamp are read in loc; nil means time.Local.
func New(path string, loc *time.Location, log *slog.Logger) *Source {
	if log == nil {
		log = logger.Discard()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Source{path: path, loc: loc, logger: log.With("component", "export_source", "path", path)}
}

// Entity describes the exported chat.
func (s *Source) Entity(_ context.Context) (source.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return source.Entity{}, err
	}
	return s.entity, nil
}

// GetMessages implements source.Source. With Reverse set it returns the
// oldest messages with id > MinID, otherwise the newest with id < MaxID.
func (s *Source) GetMessages(ctx context.Context, _ source.Entity, p source.GetMessagesParams) ([]source.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}

	inRange := func(id int64) bool {
		return id > p.MinID && (p.MaxID == 0 || id < p.MaxID)
	}
	full := func(out []source.Message) bool {
		return p.Limit > 0 && len(out) >= p.Limit
	}

	var out []source.Message
	if p.Reverse {
		for _, m := range s.messages {
			if full(out) {
				break
			}
			if inRange(m.ID) {
				out = append(out, m)
			}
		}
		return out, nil
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if full(out) {
			break
		}
		if m := s.messages[i]; inRange(m.ID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Source) loadLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to stat export: %w", err)
	}
	if !s.modTime.IsZero() && info.ModTime().Equal(s.modTime) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read export: %w", err)
	}
	var chat exportedChat
	if err := json.Unmarshal(data, &chat); err != nil {
		return fmt.Errorf("failed to parse export %s: %w", s.path, err)
	}

	entity := s.toEntity(chat)
	msgs := make([]source.Message, 0, len(chat.Messages))
	for _, raw := range chat.Messages {
		m, err := s.toMessage(entity.Peer, raw)
		if err != nil {
			return fmt.Errorf("message %d: %w", raw.ID, err)
		}
		msgs = append(msgs, m)
	}
	slices.SortFunc(msgs, func(a, b source.Message) int { return cmp.Compare(a.ID, b.ID) })

	s.entity = entity
	s.messages = msgs
	s.modTime = info.ModTime()
	s.logger.Info("Loaded export", "chat", chat.Name, "type", chat.Type, "messages", len(msgs))
	return nil
}

func (s *Source) toEntity(chat exportedChat) source.Entity {
	switch chat.Type {
	case "personal_chat", "bot_chat", "saved_messages":
		return source.Entity{
			Peer:   source.User(chat.ID),
			Title:  chat.Name,
			Person: &source.Person{ID: chat.ID, FirstName: chat.Name},
		}
	case "private_group":
		return source.Entity{Peer: source.Chat(chat.ID), Title: chat.Name}
	default:
		return source.Entity{Peer: source.Channel(chat.ID), Title: chat.Name}
	}
}

func (s *Source) toMessage(peer source.Peer, raw message) (source.Message, error) {
	date, err := s.parseDate(raw.DateUnixtime, raw.Date)
	if err != nil {
		return source.Message{}, fmt.Errorf("invalid date: %w", err)
	}
	m := source.Message{
		ID:           raw.ID,
		Peer:         peer,
		Date:         date,
		ReplyToMsgID: raw.ReplyToMessageID,
	}
	// Service entries (joins, pins, ...) keep their id so cursors move past
	// them, but carry no content.
	if raw.Type != "message" {
		return m, nil
	}

	if raw.Edited != "" || raw.EditedUnixtime != "" {
		if m.EditDate, err = s.parseDate(raw.EditedUnixtime, raw.Edited); err != nil {
			return source.Message{}, fmt.Errorf("invalid edit date: %w", err)
		}
	}
	if id, ok := parsePeerRef(raw.FromID); ok {
		m.Sender = &source.Person{ID: id, FirstName: raw.From}
	}
	m.Text = string(raw.Text)
	m.Media = mediaLabel(raw)
	if raw.ForwardedFrom != "" {
		m.Forward = &source.Forward{FromName: raw.ForwardedFrom}
	}
	return m, nil
}

func (s *Source) parseDate(unix, local string) (time.Time, error) {
	if unix != "" {
		sec, err := strconv.ParseInt(unix, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(sec, 0), nil
	}
	return time.ParseInLocation(exportDateLayout, local, s.loc)
}

// parsePeerRef parses "user123" / "channel123" / "chat123" references.
func parsePeerRef(ref string) (int64, bool) {
	for _, prefix := range []string{"user", "channel", "chat"} {
		if rest, ok := strings.CutPrefix(ref, prefix); ok {
			id, err := strconv.ParseInt(rest, 10, 64)
			return id, err == nil
		}
	}
	return 0, false
}

func mediaLabel(raw message) string {
	switch {
	case raw.MediaType != "":
		return strings.ReplaceAll(raw.MediaType, "_", " ")
	case raw.Photo != "":
		return "photo"
	case raw.File != "":
		return "file"
	}
	return ""
}
