package indexer

import (
	"context"
	"database/sql"
	"slices"
	"sync"
	"time"

	"github.com/edgard/chatmirror/internal/database"
	"github.com/edgard/chatmirror/internal/source"
)

var epoch = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

func msgs(peer source.Peer, ids ...int64) []source.Message {
	out := make([]source.Message, len(ids))
	for i, id := range ids {
		out[i] = source.Message{ID: id, Peer: peer, Date: epoch.Add(time.Duration(id) * time.Second), Text: "m"}
	}
	return out
}

func idRange(from, to int64) []int64 {
	var ids []int64
	for id := from; id <= to; id++ {
		ids = append(ids, id)
	}
	return ids
}

// historySource serves a fixed, gap-free history of message ids.
type historySource struct {
	peer  source.Peer
	title string
	ids   []int64

	mu    sync.Mutex
	calls []source.GetMessagesParams
}

func (h *historySource) Entity(context.Context) (source.Entity, error) {
	return source.Entity{Peer: h.peer, Title: h.title}, nil
}

func (h *historySource) GetMessages(_ context.Context, _ source.Entity, p source.GetMessagesParams) ([]source.Message, error) {
	h.mu.Lock()
	h.calls = append(h.calls, p)
	h.mu.Unlock()

	var picked []int64
	if p.Reverse {
		for _, id := range h.ids {
			if id > p.MinID && len(picked) < p.Limit {
				picked = append(picked, id)
			}
		}
	} else {
		for i := len(h.ids) - 1; i >= 0; i-- {
			id := h.ids[i]
			if (p.MaxID == 0 || id < p.MaxID) && len(picked) < p.Limit {
				picked = append(picked, id)
			}
		}
	}
	return msgs(h.peer, picked...), nil
}

// scriptedSource replays canned responses in order.
type scriptedSource struct {
	responses [][]source.Message
	calls     []source.GetMessagesParams
	phases    []source.Phase
}

func (s *scriptedSource) GetMessages(ctx context.Context, _ source.Entity, p source.GetMessagesParams) ([]source.Message, error) {
	s.calls = append(s.calls, p)
	s.phases = append(s.phases, source.PhaseFromContext(ctx))
	if len(s.responses) == 0 {
		return nil, nil
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

type insertCall struct {
	ids       []int64
	direction database.UpdateDirection
	phase     source.Phase
}

// memStore applies the store's cursor rules in memory.
type memStore struct {
	mu      sync.Mutex
	groups  map[int64]*database.Group
	stored  map[int64]map[int64]bool
	inserts []insertCall
	failOn  int
	err     error
}

func newMemStore() *memStore {
	return &memStore{groups: make(map[int64]*database.Group), stored: make(map[int64]map[int64]bool)}
}

func (m *memStore) UpsertGroup(_ context.Context, e source.Entity) (*database.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := e.Peer.GroupID()
	if g, ok := m.groups[id]; ok {
		cp := *g
		return &cp, nil
	}
	g := &database.Group{GroupID: id, Title: e.DisplayTitle()}
	m.groups[id] = g
	cp := *g
	return &cp, nil
}

func (m *memStore) InsertMessages(ctx context.Context, batch []source.Message, d database.UpdateDirection) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, len(batch))
	for i, msg := range batch {
		ids[i] = msg.ID
	}
	m.inserts = append(m.inserts, insertCall{ids: ids, direction: d, phase: source.PhaseFromContext(ctx)})
	if m.err != nil && len(m.inserts) == m.failOn {
		return 0, m.err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	gid := batch[0].Peer.GroupID()
	g, ok := m.groups[gid]
	if !ok {
		g = &database.Group{GroupID: gid}
		m.groups[gid] = g
	}
	if m.stored[gid] == nil {
		m.stored[gid] = make(map[int64]bool)
	}
	for _, id := range ids {
		m.stored[gid][id] = true
	}
	lo, hi := slices.Min(ids), slices.Max(ids)
	if d == database.UpdateForward || d == database.UpdateBidirectional {
		if g.LoadedLastID.Int64 < hi {
			g.LoadedLastID = sql.NullInt64{Int64: hi, Valid: true}
		}
	}
	if d == database.UpdateBackward || d == database.UpdateBidirectional {
		g.LoadedFirstID = sql.NullInt64{Int64: lo, Valid: true}
	}
	return len(batch), nil
}

func (m *memStore) group(id int64) database.Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.groups[id]
}
