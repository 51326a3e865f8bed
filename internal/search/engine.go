// Package search answers time-ordered message searches by scanning the
// corpus backward one calendar year at a time.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/chatmirror/internal/database"
	"github.com/edgard/chatmirror/internal/logger"
)

const (
	// PageSize is the maximum number of results per search.
	PageSize = 50
	// DefaultFirstYear is the earliest year searched when no start is given.
	DefaultFirstYear = 2016
)

// ErrInvalidQuery is returned for blank or unusable query text.
var ErrInvalidQuery = errors.New("invalid query")

// GroupNotFoundError is returned when a search is scoped to an unknown group.
type GroupNotFoundError struct {
	GroupID int64
}

func (e *GroupNotFoundError) Error() string {
	return fmt.Sprintf("no such group indexed: %d", e.GroupID)
}

// Criteria describes one search. Zero values mean "no filter"; a non-empty
// Terms that trims to nothing is invalid.
type Criteria struct {
	GroupID int64
	Terms   string
	Sender  *int64
	Start   time.Time
	End     time.Time
}

// Result is one page of hits together with the titles of the groups they
// may belong to.
type Result struct {
	Groups   map[int64]string     `json:"groups"`
	Messages []database.SearchRow `json:"messages"`
}

// Store is the read side of database.Store used by the engine.
type Store interface {
	GetGroup(ctx context.Context, groupID int64) (*database.Group, error)
	ListGroups(ctx context.Context) ([]database.Group, error)
	SearchSlice(ctx context.Context, q database.SliceQuery) ([]database.SearchRow, error)
	FindNames(ctx context.Context, groupID int64, text string) ([]database.NamePair, error)
}

// Config tunes the engine.
type Config struct {
	// FirstYear is the floor below which an open-ended search stops.
	FirstYear int
	// Location defines where calendar years start; nil means time.Local.
	Location *time.Location
}

// Engine runs year-sliced searches.
type Engine struct {
	store     Store
	firstYear int
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(store Store, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.FirstYear == 0 {
		cfg.FirstYear = DefaultFirstYear
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Engine{
		store:     store,
		firstYear: cfg.FirstYear,
		loc:       cfg.Location,
		now:       time.Now,
		logger:    log.With("component", "search"),
	}
}

// TextToQuery normalizes user input into the query syntax the store
// understands: whitespace-separated terms, "-term" to exclude, OR between
// alternatives. It returns "" when nothing usable is left.
func TextToQuery(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Search returns up to PageSize messages matching c, newest first.
func (e *Engine) Search(ctx context.Context, c Criteria) (*Result, error) {
	var query string
	if c.Terms != "" {
		query = TextToQuery(c.Terms)
		if query == "" {
			return nil, ErrInvalidQuery
		}
	}

	groups, err := e.groupInfo(ctx, c.GroupID)
	if err != nil {
		return nil, err
	}

	var sender int64
	if c.Sender != nil {
		sender = *c.Sender
	}

	now := e.now().In(e.loc)
	year := now.Year()
	if !c.End.IsZero() {
		end := c.End
		if end.After(now) {
			end = now
		}
		year = end.In(e.loc).Year()
	}
	earliest := time.Date(e.firstYear, time.January, 1, 0, 0, 0, 0, e.loc)

	rows := make([]database.SearchRow, 0, PageSize)
	for {
		yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, e.loc)
		nextYearStart := time.Date(year+1, time.January, 1, 0, 0, 0, 0, e.loc)

		sliceEnd := nextYearStart
		if !c.End.IsZero() && c.End.Before(sliceEnd) {
			sliceEnd = c.End
		}
		// A calendar year owns its first instant; the caller's start does not.
		sliceStart, inclusive := yearStart, true
		if !c.Start.IsZero() && !c.Start.Before(sliceStart) {
			sliceStart, inclusive = c.Start, false
		}
		if sliceStart.After(sliceEnd) {
			break
		}

		e.logger.DebugContext(ctx, "Searching year slice", "year", year, "start", sliceStart, "end", sliceEnd)
		hits, err := e.store.SearchSlice(ctx, database.SliceQuery{
			GroupID:        c.GroupID,
			Sender:         sender,
			Query:          query,
			Start:          sliceStart,
			StartInclusive: inclusive,
			End:            sliceEnd,
			Limit:          PageSize - len(rows),
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, hits...)

		if len(rows) >= PageSize || sliceStart.Before(earliest) {
			break
		}
		year--
	}

	return &Result{Groups: groups, Messages: rows}, nil
}

func (e *Engine) groupInfo(ctx context.Context, groupID int64) (map[int64]string, error) {
	if groupID != 0 {
		g, err := e.store.GetGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if g == nil {
			return nil, &GroupNotFoundError{GroupID: groupID}
		}
		return map[int64]string{g.GroupID: g.Title}, nil
	}

	all, err := e.store.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	groups := make(map[int64]string, len(all))
	for _, g := range all {
		groups[g.GroupID] = g.Title
	}
	return groups, nil
}

// Groups returns every registered group.
func (e *Engine) Groups(ctx context.Context) ([]database.Group, error) {
	return e.store.ListGroups(ctx)
}

// FindNames returns up to database.NamesLimit senders whose name matches
// text, most recently seen first. A zero groupID searches all groups.
func (e *Engine) FindNames(ctx context.Context, groupID int64, text string) ([]database.NamePair, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidQuery
	}
	return e.store.FindNames(ctx, groupID, text)
}
