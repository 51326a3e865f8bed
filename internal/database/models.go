package database

import (
	"database/sql"
	"encoding/json"
	"time"
)

// UpdateDirection tells InsertMessages which sync cursor(s) a batch advances.
type UpdateDirection int

const (
	// UpdateForward moves loaded_last_id up to the batch's newest id.
	UpdateForward UpdateDirection = iota + 1
	// UpdateBackward sets loaded_first_id to the batch's oldest id.
	UpdateBackward
	// UpdateBidirectional does both; used for the first batch of a cold start.
	UpdateBidirectional
)

// String returns the direction name used in log attributes.
func (d UpdateDirection) String() string {
	switch d {
	case UpdateForward:
		return "forward"
	case UpdateBackward:
		return "backward"
	case UpdateBidirectional:
		return "bidirectional"
	default:
		return "unknown"
	}
}

func (d UpdateDirection) advancesLast() bool {
	return d == UpdateForward || d == UpdateBidirectional
}

func (d UpdateDirection) advancesFirst() bool {
	return d == UpdateBackward || d == UpdateBidirectional
}

// Group is a mirrored chat, channel or direct conversation together with
// its sync cursors. A NULL cursor means the bound is not known yet.
type Group struct {
	GroupID       int64         `db:"group_id"`
	Title         string        `db:"title"`
	LoadedFirstID sql.NullInt64 `db:"loaded_first_id"`
	LoadedLastID  sql.NullInt64 `db:"loaded_last_id"`
}

// Message is a stored message record. (GroupID, MsgID, CreatedAt) is unique.
type Message struct {
	GroupID           int64          `db:"group_id"`
	MsgID             int64          `db:"msg_id"`
	FromUserID        sql.NullInt64  `db:"from_user_id"`
	FromUserName      sql.NullString `db:"from_user_name"`
	Text              string         `db:"msg_text"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         sql.NullTime   `db:"updated_at"`
	ReplyToMsgID      sql.NullInt64  `db:"reply_to_msg_id"`
	IsForward         bool           `db:"is_fwd"`
	FwdFromChatID     sql.NullInt64  `db:"fwd_from_chat_id"`
	FwdFromChatPostID sql.NullInt64  `db:"fwd_from_chat_post_id"`
	FwdFromChatName   sql.NullString `db:"fwd_from_chat_name"`
	FwdFromUserID     sql.NullInt64  `db:"fwd_from_user_id"`
	FwdFromUserName   sql.NullString `db:"fwd_from_user_name"`
}

// SliceQuery selects one time slice of the corpus. End is exclusive; Start is
// exclusive unless StartInclusive is set. Zero GroupID or Sender means no
// filter; an empty Query means no text predicate.
type SliceQuery struct {
	GroupID        int64
	Sender         int64
	Query          string
	Start          time.Time
	StartInclusive bool
	End            time.Time
	Limit          int
}

// SearchRow is one search hit. HTML holds the highlighted excerpt and is only
// set when the slice had a text predicate.
type SearchRow struct {
	GroupID      int64          `db:"group_id"`
	MsgID        int64          `db:"msg_id"`
	FromUserID   sql.NullInt64  `db:"from_user_id"`
	FromUserName sql.NullString `db:"from_user_name"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    sql.NullTime   `db:"updated_at"`
	Text         string         `db:"msg_text"`
	HTML         sql.NullString `db:"html"`
}

type searchRowJSON struct {
	GroupID      int64      `json:"group_id"`
	MsgID        int64      `json:"msg_id"`
	FromUserID   *int64     `json:"from_user_id,omitempty"`
	FromUserName string     `json:"from_user_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	Text         string     `json:"text"`
	HTML         string     `json:"html,omitempty"`
}

// MarshalJSON renders NULL columns as absent fields.
func (r SearchRow) MarshalJSON() ([]byte, error) {
	out := searchRowJSON{
		GroupID:      r.GroupID,
		MsgID:        r.MsgID,
		FromUserName: r.FromUserName.String,
		CreatedAt:    r.CreatedAt,
		Text:         r.Text,
		HTML:         r.HTML.String,
	}
	if r.FromUserID.Valid {
		out.FromUserID = &r.FromUserID.Int64
	}
	if r.UpdatedAt.Valid {
		out.UpdatedAt = &r.UpdatedAt.Time
	}
	return json.Marshal(out)
}

// NamePair is a sender name together with the account it belongs to.
type NamePair struct {
	UserID int64  `db:"user_id" json:"user_id"`
	Name   string `db:"name"    json:"name"`
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
