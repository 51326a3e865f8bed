package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/edgard/chatmirror/internal/source"
)

// Set CHATMIRROR_TEST_POSTGRES_DSN to a database with the pgroonga extension
// available to run the store against PostgreSQL.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CHATMIRROR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHATMIRROR_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := NewDB(DriverPostgres, dsn, PoolConfig{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { CloseDB(db) })

	store, err := NewStore(db, nil, testOptions(), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	groupID := time.Now().UnixNano() % 1_000_000_000
	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM username_groups WHERE group_id = $1`, groupID)
		_, _ = db.Exec(`DELETE FROM messages WHERE group_id = $1`, groupID)
		_, _ = db.Exec(`DELETE FROM tg_groups WHERE group_id = $1`, groupID)
	})

	peer := source.Channel(groupID)
	if _, err := store.UpsertGroup(ctx, source.Entity{Peer: peer, Title: "pg test"}); err != nil {
		t.Fatalf("UpsertGroup() error = %v", err)
	}

	alice := &source.Person{ID: 1, FirstName: "Alice"}
	batch := []source.Message{
		{ID: 1, Peer: peer, Date: testBase, Sender: alice, Text: "postgres rocks"},
		{ID: 2, Peer: peer, Date: testBase.Add(time.Minute), Sender: alice, Text: "sqlite too"},
	}
	for range 2 {
		if _, err := store.InsertMessages(ctx, batch, UpdateBidirectional); err != nil {
			t.Fatalf("InsertMessages() error = %v", err)
		}
	}

	g, err := store.GetGroup(ctx, groupID)
	if err != nil || g == nil {
		t.Fatalf("GetGroup() = %v, %v", g, err)
	}
	if g.LoadedFirstID.Int64 != 1 || g.LoadedLastID.Int64 != 2 {
		t.Errorf("cursors = %v..%v, want 1..2", g.LoadedFirstID, g.LoadedLastID)
	}

	rows, err := store.SearchSlice(ctx, SliceQuery{
		GroupID: groupID,
		Query:   "postgres",
		Start:   testBase.Add(-time.Hour),
		End:     testBase.Add(time.Hour),
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("SearchSlice() error = %v", err)
	}
	if len(rows) != 1 || rows[0].MsgID != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	if !strings.Contains(rows[0].HTML.String, `class="keyword"`) {
		t.Errorf("HTML = %q, want highlighted keyword", rows[0].HTML.String)
	}

	names, err := store.FindNames(ctx, groupID, "Alice")
	if err != nil || len(names) != 1 {
		t.Errorf("FindNames() = %+v, %v", names, err)
	}
}
