package export

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/edgard/chatmirror/internal/source"
)

const sampleExport = `{
  "name": "Gophers",
  "type": "private_supergroup",
  "id": 1234,
  "messages": [
    {"id": 3, "type": "message", "date": "2023-01-01T10:02:00", "date_unixtime": "1672567320",
     "from": "Bob", "from_id": "user2", "reply_to_message_id": 1,
     "text": ["see ", {"type": "link", "text": "https://go.dev"}, " please"]},
    {"id": 1, "type": "message", "date": "2023-01-01T10:00:00", "date_unixtime": "1672567200",
     "from": "Alice", "from_id": "user1", "text": "hello"},
    {"id": 2, "type": "service", "date": "2023-01-01T10:01:00", "date_unixtime": "1672567260",
     "actor": "Carol", "actor_id": "user3", "action": "invite_members", "text": ""},
    {"id": 4, "type": "message", "date": "2023-01-01T10:03:00", "date_unixtime": "1672567380",
     "edited": "2023-01-01T11:00:00", "edited_unixtime": "1672570800",
     "from": "News", "from_id": "channel99", "forwarded_from": "Daily Digest",
     "photo": "photos/1.jpg", "text": "caption"},
    {"id": 5, "type": "message", "date": "2023-01-01T10:04:00",
     "from": "Alice", "from_id": "user1", "media_type": "voice_message", "file": "voice/1.ogg", "text": ""}
  ]
}`

func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "result.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write export: %v", err)
	}
	return path
}

func ids(msgs []source.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestSourceEntity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		chatType string
		want     source.Peer
		person   bool
	}{
		{chatType: "private_supergroup", want: source.Channel(1234)},
		{chatType: "public_channel", want: source.Channel(1234)},
		{chatType: "private_group", want: source.Chat(1234)},
		{chatType: "personal_chat", want: source.User(1234), person: true},
	}
	for _, tt := range tests {
		t.Run(tt.chatType, func(t *testing.T) {
			t.Parallel()
			path := writeExport(t, `{"name": "Gophers", "type": "`+tt.chatType+`", "id": 1234, "messages": []}`)
			e, err := New(path, time.UTC, nil).Entity(context.Background())
			if err != nil {
				t.Fatalf("Entity() error = %v", err)
			}
			if e.Peer != tt.want {
				t.Errorf("Entity().Peer = %+v, want %+v", e.Peer, tt.want)
			}
			if (e.Person != nil) != tt.person {
				t.Errorf("Entity().Person = %+v, want set=%v", e.Person, tt.person)
			}
			if e.DisplayTitle() != "Gophers" {
				t.Errorf("DisplayTitle() = %q, want %q", e.DisplayTitle(), "Gophers")
			}
		})
	}
}

func TestSourceGetMessagesPaging(t *testing.T) {
	t.Parallel()
	src := New(writeExport(t, sampleExport), time.UTC, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		params source.GetMessagesParams
		want   []int64
	}{
		{name: "probe newest", params: source.GetMessagesParams{Limit: 2}, want: []int64{5, 4}},
		{name: "forward from start", params: source.GetMessagesParams{Limit: 2, Reverse: true}, want: []int64{1, 2}},
		{name: "forward after cursor", params: source.GetMessagesParams{Limit: 50, Reverse: true, MinID: 3}, want: []int64{4, 5}},
		{name: "backward before cursor", params: source.GetMessagesParams{Limit: 50, MaxID: 3}, want: []int64{2, 1}},
		{name: "exhausted", params: source.GetMessagesParams{Limit: 50, Reverse: true, MinID: 5}, want: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.GetMessages(ctx, source.Entity{}, tt.params)
			if err != nil {
				t.Fatalf("GetMessages() error = %v", err)
			}
			if g := ids(got); !reflect.DeepEqual(g, tt.want) {
				t.Errorf("GetMessages(%+v) ids = %v, want %v", tt.params, g, tt.want)
			}
		})
	}
}

func TestSourceMessageFields(t *testing.T) {
	t.Parallel()
	src := New(writeExport(t, sampleExport), time.UTC, nil)
	all, err := src.GetMessages(context.Background(), source.Entity{}, source.GetMessagesParams{Reverse: true})
	if err != nil {
		t.Fatalf("GetMessages() error = %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("GetMessages() returned %d messages, want 5", len(all))
	}
	byID := map[int64]source.Message{}
	for _, m := range all {
		byID[m.ID] = m
		if m.Peer != source.Channel(1234) {
			t.Errorf("message %d peer = %+v", m.ID, m.Peer)
		}
	}

	if m := byID[1]; m.Text != "hello" || m.Sender == nil || m.Sender.ID != 1 || m.Sender.DisplayName() != "Alice" {
		t.Errorf("message 1 = %+v", m)
	}
	if m := byID[2]; m.Text != "" || m.Sender != nil {
		t.Errorf("service message 2 = %+v, want no content", m)
	}
	if m := byID[3]; m.Text != "see https://go.dev please" || m.ReplyToMsgID != 1 {
		t.Errorf("message 3 = %+v", m)
	}
	m4 := byID[4]
	if m4.Forward == nil || m4.Forward.FromName != "Daily Digest" {
		t.Errorf("message 4 forward = %+v", m4.Forward)
	}
	if m4.Media != "photo" || m4.Sender.ID != 99 {
		t.Errorf("message 4 = %+v", m4)
	}
	if !m4.EditDate.Equal(time.Unix(1672570800, 0)) {
		t.Errorf("message 4 edit date = %v", m4.EditDate)
	}
	m5 := byID[5]
	if m5.Media != "voice message" {
		t.Errorf("message 5 media = %q, want %q", m5.Media, "voice message")
	}
	if want := time.Date(2023, 1, 1, 10, 4, 0, 0, time.UTC); !m5.Date.Equal(want) {
		t.Errorf("message 5 date = %v, want %v", m5.Date, want)
	}
}

func TestSourceReloadsChangedExport(t *testing.T) {
	t.Parallel()
	path := writeExport(t, `{"name": "A", "type": "private_group", "id": 1, "messages": [
		{"id": 1, "type": "message", "date": "2023-01-01T10:00:00", "text": "one"}]}`)
	src := New(path, time.UTC, nil)
	ctx := context.Background()

	got, err := src.GetMessages(ctx, source.Entity{}, source.GetMessagesParams{Reverse: true})
	if err != nil || len(got) != 1 {
		t.Fatalf("GetMessages() = %v, %v", ids(got), err)
	}

	if err := os.WriteFile(path, []byte(`{"name": "A", "type": "private_group", "id": 1, "messages": [
		{"id": 1, "type": "message", "date": "2023-01-01T10:00:00", "text": "one"},
		{"id": 2, "type": "message", "date": "2023-01-01T10:05:00", "text": "two"}]}`), 0o600); err != nil {
		t.Fatalf("rewrite export: %v", err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	got, err = src.GetMessages(ctx, source.Entity{}, source.GetMessagesParams{Reverse: true, MinID: 1})
	if err != nil {
		t.Fatalf("GetMessages() after rewrite error = %v", err)
	}
	if !reflect.DeepEqual(ids(got), []int64{2}) {
		t.Errorf("GetMessages() after rewrite ids = %v, want [2]", ids(got))
	}
}

func TestSourceMissingFile(t *testing.T) {
	t.Parallel()
	src := New(filepath.Join(t.TempDir(), "missing.json"), nil, nil)
	if _, err := src.Entity(context.Background()); err == nil {
		t.Error("Entity() on a missing export returned nil error")
	}
}
