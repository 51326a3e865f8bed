// Package source defines the boundary between the history crawler and the
// systems messages are mirrored from: peers, entities, messages and the
// Source interface that yields them in bounded batches.
package source

import (
	"context"
	"strings"
	"time"
)

// PeerKind tags which kind of chat a Peer refers to.
type PeerKind int

const (
	PeerUser PeerKind = iota + 1
	PeerChat
	PeerChannel
)

// String returns the lower-case name of the peer kind.
func (k PeerKind) String() string {
	switch k {
	case PeerUser:
		return "user"
	case PeerChat:
		return "chat"
	case PeerChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// Peer identifies the chat a message belongs to. It is resolved once at the
// source boundary so the rest of the system only ever sees a numeric group id.
type Peer struct {
	Kind PeerKind
	ID   int64
}

// Channel returns a channel (or supergroup) peer.
func Channel(id int64) Peer { return Peer{Kind: PeerChannel, ID: id} }

// Chat returns a basic group peer.
func Chat(id int64) Peer { return Peer{Kind: PeerChat, ID: id} }

// User returns a direct-conversation peer.
func User(id int64) Peer { return Peer{Kind: PeerUser, ID: id} }

// GroupID is the identity the store files messages under.
func (p Peer) GroupID() int64 { return p.ID }

// Person is a user account as seen by the source.
type Person struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// DisplayName formats a person the way names are shown in search results:
// "First Last", falling back to the username when both are empty.
func (p *Person) DisplayName() string {
	if p == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name == "" {
		name = p.Username
	}
	return name
}

// Entity describes a mirrored chat. Person is set for direct conversations.
type Entity struct {
	Peer   Peer
	Title  string
	Person *Person
}

// DisplayTitle resolves the title a group is registered under: the
// counterpart's display name for direct peers, the chat title otherwise.
func (e Entity) DisplayTitle() string {
	if e.Peer.Kind == PeerUser && e.Person != nil {
		return e.Person.DisplayName()
	}
	return e.Title
}

// ForwardChat is the group or channel a forwarded message originates from.
type ForwardChat struct {
	ID    int64
	Title string
}

// Forward carries the provenance of a forwarded message. Any combination of
// fields may be empty; FromName is the only thing available when the original
// sender hides their account.
type Forward struct {
	Chat        *ForwardChat
	ChannelPost int64
	Sender      *Person
	FromName    string
}

// Message is a single message as yielded by a Source.
type Message struct {
	ID           int64
	Peer         Peer
	Date         time.Time
	EditDate     time.Time
	Sender       *Person
	Text         string
	Media        string
	ReplyToMsgID int64
	Forward      *Forward
}

// GetMessagesParams bounds one fetch. With Reverse set the source returns the
// oldest messages with id > MinID first; otherwise the newest messages with
// id < MaxID (MaxID 0 means no upper bound).
type GetMessagesParams struct {
	Limit   int
	Reverse bool
	MinID   int64
	MaxID   int64
}

// Source yields message batches for an entity.
type Source interface {
	GetMessages(ctx context.Context, entity Entity, params GetMessagesParams) ([]Message, error)
}

// Dialog is a Source bound to a single chat it can describe.
type Dialog interface {
	Source
	Entity(ctx context.Context) (Entity, error)
}
