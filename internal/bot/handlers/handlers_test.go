package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatmirror/internal/database"
	"github.com/edgard/chatmirror/internal/logger"
	"github.com/edgard/chatmirror/internal/search"
)

type sentMessage struct {
	ChatID    string
	Text      string
	ParseMode string
}

// fakeTelegram stands in for the Bot API and records sendMessage calls.
type fakeTelegram struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"mirror","username":"mirror_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		var m sentMessage
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			m.Text, _ = body["text"].(string)
			m.ParseMode, _ = body["parse_mode"].(string)
		} else {
			_ = r.ParseMultipartForm(1 << 20)
			m.ChatID = r.FormValue("chat_id")
			m.Text = r.FormValue("text")
			m.ParseMode = r.FormValue("parse_mode")
		}
		f.mu.Lock()
		f.sent = append(f.sent, m)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":99,"date":0,"chat":{"id":1,"type":"private"}}}`)
	default:
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeTelegram) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Text
	}
	return out
}

func newTestBot(t *testing.T) (*tgbot.Bot, *fakeTelegram) {
	t.Helper()
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	b, err := tgbot.New("123456:TEST", tgbot.WithServerURL(srv.URL))
	if err != nil {
		t.Fatalf("tgbot.New() error = %v", err)
	}
	return b, fake
}

type fakeSearcher struct {
	mu       sync.Mutex
	criteria []search.Criteria
	known    map[int64]bool
	rows     []database.SearchRow
	err      error
}

func (f *fakeSearcher) Search(_ context.Context, c search.Criteria) (*search.Result, error) {
	f.mu.Lock()
	f.criteria = append(f.criteria, c)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if c.GroupID != 0 && !f.known[c.GroupID] {
		return nil, &search.GroupNotFoundError{GroupID: c.GroupID}
	}
	return &search.Result{Groups: map[int64]string{7: "Gophers"}, Messages: f.rows}, nil
}

func (f *fakeSearcher) Groups(context.Context) ([]database.Group, error) {
	return []database.Group{{GroupID: 7, Title: "Go <3", LoadedFirstID: sql.NullInt64{Int64: 1, Valid: true}, LoadedLastID: sql.NullInt64{Int64: 9, Valid: true}}}, f.err
}

func (f *fakeSearcher) FindNames(_ context.Context, _ int64, text string) ([]database.NamePair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []database.NamePair{{UserID: 5, Name: text + "na"}}, nil
}

type fakeSyncer struct {
	calls int
	err   error
}

func (f *fakeSyncer) RunOnce(context.Context) error {
	f.calls++
	return f.err
}

func testDeps(s *fakeSearcher, syncer Syncer) HandlerDeps {
	return HandlerDeps{
		Logger:      logger.Discard(),
		AdminUserID: 42,
		Searcher:    s,
		Syncer:      syncer,
		Location:    time.UTC,
	}
}

func commandUpdate(text string, chat models.Chat, from int64) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   10,
			Text: text,
			Chat: chat,
			From: &models.User{ID: from},
		},
	}
}

var privateChat = models.Chat{ID: 42, Type: models.ChatTypePrivate}

func TestCommandArgs(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"/search hello world":     "hello world",
		"/search@mirror_bot  go ": "go",
		"/search":                 "",
		"/names\nAnn":             "Ann",
		"plain":                   "plain",
	}
	for in, want := range tests {
		if got := commandArgs(in); got != want {
			t.Errorf("commandArgs(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScopedGroupID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		chat   models.Chat
		want   int64
		scoped bool
	}{
		{models.Chat{ID: -1001234567890, Type: models.ChatTypeSupergroup}, 1234567890, true},
		{models.Chat{ID: -4567, Type: models.ChatTypeGroup}, 4567, true},
		{models.Chat{ID: 42, Type: models.ChatTypePrivate}, 0, false},
	}
	for _, tt := range tests {
		got, ok := scopedGroupID(tt.chat)
		if got != tt.want || ok != tt.scoped {
			t.Errorf("scopedGroupID(%d) = %d, %v, want %d, %v", tt.chat.ID, got, ok, tt.want, tt.scoped)
		}
	}
}

func TestFormatResults(t *testing.T) {
	t.Parallel()
	at := time.Date(2023, 5, 1, 10, 30, 0, 0, time.UTC)
	rows := []database.SearchRow{
		{GroupID: 7, FromUserName: sql.NullString{String: "Ann", Valid: true}, CreatedAt: at, Text: "hello <world>",
			HTML: sql.NullString{String: `<span class="keyword">hello</span> &lt;world&gt;`, Valid: true}},
		{GroupID: 8, CreatedAt: at, Text: strings.Repeat("x", maxExcerpt+10)},
	}
	out := formatResults(map[int64]string{7: "Gophers", 8: "Other"}, rows, time.UTC)

	for _, want := range []string{
		"<i>2023-05-01 10:30</i> [Gophers] <b>Ann</b>: <b>hello</b> &lt;world&gt;",
		"[Other] <b>unknown</b>: ",
		"…",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "span") {
		t.Errorf("keyword spans should be converted:\n%s", out)
	}
}

func TestFormatResultsCapsLength(t *testing.T) {
	t.Parallel()
	rows := make([]database.SearchRow, 50)
	for i := range rows {
		rows[i] = database.SearchRow{GroupID: 7, CreatedAt: time.Unix(0, 0), Text: strings.Repeat("y", 200)}
	}
	out := formatResults(map[int64]string{7: "Gophers"}, rows, time.UTC)
	if len(out) > maxReplyLength+32 {
		t.Errorf("reply length = %d", len(out))
	}
	if !strings.Contains(out, "more") {
		t.Errorf("expected an overflow marker:\n%s", out[len(out)-40:])
	}
}

func TestSearchHandler(t *testing.T) {
	t.Parallel()
	rows := []database.SearchRow{{GroupID: 7, MsgID: 3, CreatedAt: time.Unix(0, 0), Text: "gopher"}}

	t.Run("private chat searches everything", func(t *testing.T) {
		t.Parallel()
		b, fake := newTestBot(t)
		s := &fakeSearcher{rows: rows}
		NewSearchHandler(testDeps(s, nil))(context.Background(), b, commandUpdate("/search gopher", privateChat, 1))

		if len(s.criteria) != 1 || s.criteria[0].GroupID != 0 || s.criteria[0].Terms != "gopher" {
			t.Fatalf("criteria = %+v", s.criteria)
		}
		if got := fake.texts(); len(got) != 1 || !strings.Contains(got[0], "gopher") {
			t.Errorf("replies = %q", got)
		}
	})

	t.Run("mirrored group is scoped", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBot(t)
		s := &fakeSearcher{rows: rows, known: map[int64]bool{7: true}}
		chat := models.Chat{ID: -1000000000007, Type: models.ChatTypeSupergroup}
		NewSearchHandler(testDeps(s, nil))(context.Background(), b, commandUpdate("/search gopher", chat, 1))

		if len(s.criteria) != 1 || s.criteria[0].GroupID != 7 {
			t.Fatalf("criteria = %+v", s.criteria)
		}
	})

	t.Run("unmirrored group falls back to all groups", func(t *testing.T) {
		t.Parallel()
		b, _ := newTestBot(t)
		s := &fakeSearcher{rows: rows}
		chat := models.Chat{ID: -1000000000008, Type: models.ChatTypeSupergroup}
		NewSearchHandler(testDeps(s, nil))(context.Background(), b, commandUpdate("/search gopher", chat, 1))

		if len(s.criteria) != 2 || s.criteria[0].GroupID != 8 || s.criteria[1].GroupID != 0 {
			t.Fatalf("criteria = %+v", s.criteria)
		}
	})

	t.Run("missing terms", func(t *testing.T) {
		t.Parallel()
		b, fake := newTestBot(t)
		s := &fakeSearcher{}
		NewSearchHandler(testDeps(s, nil))(context.Background(), b, commandUpdate("/search", privateChat, 1))

		if len(s.criteria) != 0 {
			t.Errorf("search should not run: %+v", s.criteria)
		}
		if got := fake.texts(); len(got) != 1 || got[0] != msgSearchUsage {
			t.Errorf("replies = %q", got)
		}
	})

	t.Run("no results", func(t *testing.T) {
		t.Parallel()
		b, fake := newTestBot(t)
		NewSearchHandler(testDeps(&fakeSearcher{}, nil))(context.Background(), b, commandUpdate("/search x", privateChat, 1))
		if got := fake.texts(); len(got) != 1 || got[0] != msgNoResults {
			t.Errorf("replies = %q", got)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		b, fake := newTestBot(t)
		s := &fakeSearcher{err: errors.New("boom")}
		NewSearchHandler(testDeps(s, nil))(context.Background(), b, commandUpdate("/search x", privateChat, 1))
		if got := fake.texts(); len(got) != 1 || got[0] != msgGeneralError {
			t.Errorf("replies = %q", got)
		}
	})
}

func TestNamesAndGroupsHandlers(t *testing.T) {
	t.Parallel()
	b, fake := newTestBot(t)
	deps := testDeps(&fakeSearcher{}, nil)

	NewNamesHandler(deps)(context.Background(), b, commandUpdate("/names An", privateChat, 1))
	NewGroupsHandler(deps)(context.Background(), b, commandUpdate("/groups", privateChat, 1))

	got := fake.texts()
	if len(got) != 2 {
		t.Fatalf("replies = %q", got)
	}
	if !strings.Contains(got[0], "Anna <code>5</code>") {
		t.Errorf("names reply = %q", got[0])
	}
	if !strings.Contains(got[1], "<b>Go &lt;3</b> <code>7</code> messages 1 to 9") {
		t.Errorf("groups reply = %q", got[1])
	}
}

func TestSyncCommandIsAdminOnly(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		from      int64
		syncErr   error
		wantCalls int
		wantLast  string
	}{
		{"admin", 42, nil, 1, msgSyncFinished},
		{"admin with failure", 42, errors.New("boom"), 1, msgSyncFailed},
		{"stranger", 7, nil, 0, msgUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, fake := newTestBot(t)
			syncer := &fakeSyncer{err: tt.syncErr}
			registered := RegisterAllCommands(testDeps(&fakeSearcher{}, syncer))

			h := registered["/sync"]
			handler := h.Handler
			for i := len(h.Middleware) - 1; i >= 0; i-- {
				handler = h.Middleware[i](handler)
			}
			handler(context.Background(), b, commandUpdate("/sync", privateChat, tt.from))

			if syncer.calls != tt.wantCalls {
				t.Errorf("RunOnce calls = %d, want %d", syncer.calls, tt.wantCalls)
			}
			got := fake.texts()
			if len(got) == 0 || got[len(got)-1] != tt.wantLast {
				t.Errorf("replies = %q, want last %q", got, tt.wantLast)
			}
		})
	}
}

func TestRegistryWithoutSyncer(t *testing.T) {
	t.Parallel()
	registered := RegisterAllCommands(testDeps(&fakeSearcher{}, nil))
	if _, ok := registered["/sync"]; ok {
		t.Error("/sync registered without a syncer")
	}

	var names []string
	for _, c := range BotCommands(registered) {
		names = append(names, c.Command)
	}
	if got := strings.Join(names, ","); got != "search,names,groups,help" {
		t.Errorf("BotCommands = %s", got)
	}
}
