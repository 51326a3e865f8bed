package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/chatmirror/internal/logger"
	"github.com/edgard/chatmirror/internal/source"
)

// NamesLimit caps the number of pairs FindNames returns.
const NamesLimit = 15

// Store defines the interface for database operations.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// InsertMessages persists a batch and advances the batch group's cursors
	// according to direction, all in one transaction. It returns the number of
	// messages that carried indexable content.
	InsertMessages(ctx context.Context, batch []source.Message, direction UpdateDirection) (int, error)

	// UpsertGroup returns the registered group for entity, registering it first
	// if needed.
	UpsertGroup(ctx context.Context, entity source.Entity) (*Group, error)

	// UpdateGroupCursor applies a single cursor move outside of a batch insert.
	UpdateGroupCursor(ctx context.Context, groupID int64, direction UpdateDirection, msgID int64) error

	// GetGroup returns the group or nil, nil if it is not registered.
	GetGroup(ctx context.Context, groupID int64) (*Group, error)

	// ListGroups returns every registered group ordered by id.
	ListGroups(ctx context.Context) ([]Group, error)

	// SearchSlice runs one bounded, time-descending query strictly between
	// Start and End.
	SearchSlice(ctx context.Context, q SliceQuery) ([]SearchRow, error)

	// FindNames returns up to NamesLimit sender names matching text, most
	// recently seen first. A zero groupID searches every group.
	FindNames(ctx context.Context, groupID int64, text string) ([]NamePair, error)

	// RunMaintenance performs backend housekeeping (VACUUM or ANALYZE).
	RunMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db         *sqlx.DB
	dialect    dialect
	normalizer source.Normalizer
	opts       Options
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewStore creates a Store backed by db. The dialect is picked from the
// driver db was opened with; a nil normalizer falls back to
// source.TextNormalizer.
func NewStore(db *sqlx.DB, normalizer source.Normalizer, opts Options, log *slog.Logger) (Store, error) {
	d, err := dialectFor(db.DriverName())
	if err != nil {
		return nil, err
	}
	return newStore(db, d, normalizer, opts, log), nil
}

func newStore(db *sqlx.DB, d dialect, normalizer source.Normalizer, opts Options, log *slog.Logger) *sqlxStore {
	if log == nil {
		log = logger.Discard()
	}
	if normalizer == nil {
		normalizer = source.TextNormalizer{}
	}
	return &sqlxStore{
		db:         db,
		dialect:    d,
		normalizer: normalizer,
		opts:       opts.withDefaults(),
		logger:     log.With("component", "store", "dialect", d.name()),
		sleep:      sleepContext,
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const upsertMessageSQL = `
	INSERT INTO messages (group_id, msg_id, from_user_id, from_user_name, msg_text, created_at, updated_at,
		reply_to_msg_id, is_fwd, fwd_from_chat_id, fwd_from_chat_post_id, fwd_from_chat_name,
		fwd_from_user_id, fwd_from_user_name)
	VALUES (:group_id, :msg_id, :from_user_id, :from_user_name, :msg_text, :created_at, :updated_at,
		:reply_to_msg_id, :is_fwd, :fwd_from_chat_id, :fwd_from_chat_post_id, :fwd_from_chat_name,
		:fwd_from_user_id, :fwd_from_user_name)
	ON CONFLICT (group_id, msg_id, created_at) DO UPDATE SET
		msg_text = excluded.msg_text,
		updated_at = excluded.updated_at,
		reply_to_msg_id = excluded.reply_to_msg_id,
		is_fwd = excluded.is_fwd,
		fwd_from_chat_id = excluded.fwd_from_chat_id,
		fwd_from_chat_post_id = excluded.fwd_from_chat_post_id,
		fwd_from_chat_name = excluded.fwd_from_chat_name,
		fwd_from_user_id = excluded.fwd_from_user_id,
		fwd_from_user_name = excluded.fwd_from_user_name`

const upsertUsernameSQL = `
	INSERT INTO usernames (user_id, name, last_seen) VALUES (?, ?, ?)
	ON CONFLICT (user_id, name) DO UPDATE SET
		last_seen = CASE WHEN excluded.last_seen > usernames.last_seen
			THEN excluded.last_seen ELSE usernames.last_seen END`

const insertUsernameGroupSQL = `
	INSERT INTO username_groups (user_id, name, group_id) VALUES (?, ?, ?)
	ON CONFLICT (user_id, name, group_id) DO NOTHING`

// InsertMessages persists batch and moves the cursors of the group of
// batch[0]. Messages without indexable content are dropped, but still count
// towards the cursor bounds so the crawl never re-requests them.
func (s *sqlxStore) InsertMessages(ctx context.Context, batch []source.Message, direction UpdateDirection) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	records := make([]Message, 0, len(batch))
	for _, msg := range batch {
		text, ok := s.normalizer.Normalize(ctx, msg)
		if !ok {
			continue
		}
		records = append(records, s.toRecord(msg, text))
	}

	groupID := batch[0].Peer.GroupID()
	minID, maxID := batch[0].ID, batch[0].ID
	for _, msg := range batch[1:] {
		minID = min(minID, msg.ID)
		maxID = max(maxID, msg.ID)
	}
	phase := source.PhaseFromContext(ctx)

	err := s.withRetryTx(ctx, "insert_messages", func(tx *sqlx.Tx) error {
		for i := range records {
			rec := &records[i]
			s.logger.DebugContext(ctx, "Storing message",
				"phase", phase, "group_id", rec.GroupID, "msg_id", rec.MsgID,
				"from_user_id", rec.FromUserID.Int64, "from_user_name", rec.FromUserName.String)

			if _, err := tx.NamedExecContext(ctx, upsertMessageSQL, rec); err != nil {
				return fmt.Errorf("failed to upsert message (group %d, msg %d): %w", rec.GroupID, rec.MsgID, err)
			}
			if err := s.touchUsername(ctx, tx, rec); err != nil {
				return err
			}
		}
		if direction.advancesLast() {
			if err := s.updateCursor(ctx, tx, groupID, UpdateForward, maxID); err != nil {
				return err
			}
		}
		if direction.advancesFirst() {
			if err := s.updateCursor(ctx, tx, groupID, UpdateBackward, minID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *sqlxStore) toRecord(msg source.Message, text string) Message {
	rec := Message{
		GroupID:      msg.Peer.GroupID(),
		MsgID:        msg.ID,
		FromUserName: nullString(msg.Sender.DisplayName()),
		Text:         text,
		CreatedAt:    s.dialect.bindTime(msg.Date),
		ReplyToMsgID: nullInt64(msg.ReplyToMsgID),
	}
	if msg.Sender != nil {
		rec.FromUserID = sql.NullInt64{Int64: msg.Sender.ID, Valid: true}
	}
	if !msg.EditDate.IsZero() {
		rec.UpdatedAt = sql.NullTime{Time: s.dialect.bindTime(msg.EditDate), Valid: true}
	}
	if fwd := msg.Forward; fwd != nil {
		rec.IsForward = true
		if fwd.Chat != nil {
			rec.FwdFromChatID = sql.NullInt64{Int64: fwd.Chat.ID, Valid: true}
			rec.FwdFromChatName = nullString(fwd.Chat.Title)
			rec.FwdFromChatPostID = nullInt64(fwd.ChannelPost)
		}
		switch {
		case fwd.Sender != nil:
			rec.FwdFromUserID = sql.NullInt64{Int64: fwd.Sender.ID, Valid: true}
			rec.FwdFromUserName = nullString(fwd.Sender.DisplayName())
		case fwd.FromName != "":
			rec.FwdFromUserName = nullString(fwd.FromName)
		}
	}
	return rec
}

func (s *sqlxStore) touchUsername(ctx context.Context, tx *sqlx.Tx, rec *Message) error {
	if !rec.FromUserID.Valid || !rec.FromUserName.Valid {
		return nil
	}
	uid, name := rec.FromUserID.Int64, rec.FromUserName.String
	if _, err := tx.ExecContext(ctx, tx.Rebind(upsertUsernameSQL), uid, name, rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to record username for user %d: %w", uid, err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(insertUsernameGroupSQL), uid, name, rec.GroupID); err != nil {
		return fmt.Errorf("failed to record username group for user %d: %w", uid, err)
	}
	return nil
}

// updateCursor moves one cursor. The forward cursor never moves back; the
// backward cursor is overwritten.
func (s *sqlxStore) updateCursor(ctx context.Context, tx *sqlx.Tx, groupID int64, direction UpdateDirection, msgID int64) error {
	var (
		query string
		args  []any
	)
	switch direction {
	case UpdateForward:
		s.logger.InfoContext(ctx, "Updating last synced message id", "group_id", groupID, "msg_id", msgID)
		query = `UPDATE tg_groups SET loaded_last_id = ? WHERE group_id = ? AND COALESCE(loaded_last_id, 0) < ?`
		args = []any{msgID, groupID, msgID}
	case UpdateBackward:
		s.logger.InfoContext(ctx, "Updating first synced message id", "group_id", groupID, "msg_id", msgID)
		query = `UPDATE tg_groups SET loaded_first_id = ? WHERE group_id = ?`
		args = []any{msgID, groupID}
	default:
		return fmt.Errorf("invalid cursor direction %s", direction)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to update %s cursor of group %d: %w", direction, groupID, err)
	}
	return nil
}

// UpdateGroupCursor applies direction's cursor rule to a single message id.
func (s *sqlxStore) UpdateGroupCursor(ctx context.Context, groupID int64, direction UpdateDirection, msgID int64) error {
	return s.withRetryTx(ctx, "update_group_cursor", func(tx *sqlx.Tx) error {
		if direction.advancesLast() {
			if err := s.updateCursor(ctx, tx, groupID, UpdateForward, msgID); err != nil {
				return err
			}
		}
		if direction.advancesFirst() {
			if err := s.updateCursor(ctx, tx, groupID, UpdateBackward, msgID); err != nil {
				return err
			}
		}
		if !direction.advancesLast() && !direction.advancesFirst() {
			return fmt.Errorf("invalid cursor direction %s", direction)
		}
		return nil
	})
}

const groupColumns = `group_id, title, loaded_first_id, loaded_last_id`

func getGroup(ctx context.Context, q sqlx.ExtContext, groupID int64) (*Group, error) {
	var g Group
	err := sqlx.GetContext(ctx, q, &g, q.Rebind(`SELECT `+groupColumns+` FROM tg_groups WHERE group_id = ?`), groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group %d: %w", groupID, err)
	}
	return &g, nil
}

// UpsertGroup registers entity unless it already is. The lookup and the
// insert are not atomic; concurrent first sight of one group is kept out by
// the sync runner's per-group lock.
func (s *sqlxStore) UpsertGroup(ctx context.Context, entity source.Entity) (*Group, error) {
	groupID := entity.Peer.GroupID()
	var out *Group
	err := s.withRetryTx(ctx, "upsert_group", func(tx *sqlx.Tx) error {
		g, err := getGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if g != nil {
			out = g
			return nil
		}

		title := entity.DisplayTitle()
		var created Group
		query := tx.Rebind(`INSERT INTO tg_groups (group_id, title) VALUES (?, ?) RETURNING ` + groupColumns)
		if err := tx.GetContext(ctx, &created, query, groupID, title); err != nil {
			return fmt.Errorf("failed to insert group %d: %w", groupID, err)
		}
		s.logger.InfoContext(ctx, "Registered new group", "group_id", groupID, "title", title, "peer_kind", entity.Peer.Kind.String())
		out = &created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetGroup returns nil, nil if groupID is not registered.
func (s *sqlxStore) GetGroup(ctx context.Context, groupID int64) (*Group, error) {
	var out *Group
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		g, err := getGroup(ctx, tx, groupID)
		out = g
		return err
	})
	return out, err
}

// ListGroups returns every registered group.
func (s *sqlxStore) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &groups, `SELECT `+groupColumns+` FROM tg_groups ORDER BY group_id`); err != nil {
			return fmt.Errorf("failed to list groups: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

const searchColumns = `group_id, msg_id, from_user_id, from_user_name, created_at, updated_at, msg_text`

// SearchSlice queries one time slice. Excerpts are only computed for the rows
// that survived the limit.
func (s *sqlxStore) SearchSlice(ctx context.Context, sq SliceQuery) ([]SearchRow, error) {
	if sq.Limit <= 0 {
		return nil, nil
	}

	q := newSelect(searchColumns, "messages")
	if sq.GroupID != 0 {
		q.where("group_id = ?", sq.GroupID)
	}
	query := strings.TrimSpace(sq.Query)
	if query != "" {
		s.dialect.textMatch(q, query)
	}
	if sq.Sender != 0 {
		q.where("from_user_id = ?", sq.Sender)
	}
	if !sq.Start.IsZero() {
		op := ">"
		if sq.StartInclusive {
			op = ">="
		}
		q.where("created_at "+op+" ?", s.dialect.bindTime(sq.Start))
	}
	if !sq.End.IsZero() {
		q.where("created_at < ?", s.dialect.bindTime(sq.End))
	}
	q.order("created_at DESC").limitTo(sq.Limit)

	text, args := q.build()
	highlighted := false
	if query != "" {
		text, args, highlighted = s.dialect.highlight(text, args, query)
	}

	var rows []SearchRow
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		s.logger.DebugContext(ctx, "Searching slice", "sql", text, "start", sq.Start, "end", sq.End, "limit", sq.Limit)
		if err := tx.SelectContext(ctx, &rows, tx.Rebind(text), args...); err != nil {
			return fmt.Errorf("failed to search messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if query != "" && !highlighted {
		for i := range rows {
			rows[i].HTML = sql.NullString{String: highlightHTML(rows[i].Text, query), Valid: true}
		}
	}
	return rows, nil
}

// FindNames matches sender names against text, optionally only those seen in
// groupID.
func (s *sqlxStore) FindNames(ctx context.Context, groupID int64, text string) ([]NamePair, error) {
	q := newSelect("u.user_id, u.name", "usernames u")
	s.dialect.nameMatch(q, text)
	if groupID != 0 {
		q.where(`EXISTS (SELECT 1 FROM username_groups ug
			WHERE ug.user_id = u.user_id AND ug.name = u.name AND ug.group_id = ?)`, groupID)
	}
	q.order("u.last_seen DESC").limitTo(NamesLimit)
	query, args := q.build()

	var names []NamePair
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &names, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to find names: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// RunMaintenance performs backend housekeeping outside of any transaction.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Running database maintenance")
	start := time.Now()
	if err := s.dialect.maintenance(ctx, s.db); err != nil {
		s.logger.ErrorContext(ctx, "Database maintenance failed", "error", err)
		return fmt.Errorf("failed to run %s maintenance: %w", s.dialect.name(), err)
	}
	s.logger.InfoContext(ctx, "Database maintenance completed", "duration", time.Since(start))
	return nil
}
