package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/edgard/chatmirror/internal/database"
	"github.com/edgard/chatmirror/internal/search"
)

type groupJSON struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	LoadedFirstID *int64 `json:"loaded_first_id"`
	LoadedLastID  *int64 `json:"loaded_last_id"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.searcher.Groups(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]groupJSON, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupJSON{
			ID:            g.GroupID,
			Title:         g.Title,
			LoadedFirstID: ptrInt64(g.LoadedFirstID.Int64, g.LoadedFirstID.Valid),
			LoadedLastID:  ptrInt64(g.LoadedLastID.Int64, g.LoadedLastID.Valid),
		})
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	c, err := s.parseCriteria(r)
	if err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorJSON{Error: err.Error()})
		return
	}

	res, err := s.searcher.Search(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleNames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groupID, err := parseInt64(q.Get("g"))
	if err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorJSON{Error: "invalid group id"})
		return
	}

	names, err := s.searcher.FindNames(r.Context(), groupID, q.Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []database.NamePair{}
	}
	s.writeJSON(w, r, http.StatusOK, names)
}

func (s *Server) parseCriteria(r *http.Request) (search.Criteria, error) {
	q := r.URL.Query()
	var c search.Criteria

	groupID, err := parseInt64(q.Get("g"))
	if err != nil {
		return c, errors.New("invalid group id")
	}
	c.GroupID = groupID

	if q.Has("q") {
		c.Terms = q.Get("q")
		if strings.TrimSpace(c.Terms) == "" {
			return c, search.ErrInvalidQuery
		}
	}

	if raw := q.Get("sender"); raw != "" {
		sender, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c, errors.New("invalid sender id")
		}
		c.Sender = &sender
	}

	if c.Start, err = search.ParseBound(q.Get("start"), false, s.cfg.Location); err != nil {
		return c, fmt.Errorf("invalid start: %w", err)
	}
	if c.End, err = search.ParseBound(q.Get("end"), true, s.cfg.Location); err != nil {
		return c, fmt.Errorf("invalid end: %w", err)
	}
	return c, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *search.GroupNotFoundError
	switch {
	case errors.Is(err, search.ErrInvalidQuery):
		s.writeJSON(w, r, http.StatusBadRequest, errorJSON{Error: err.Error()})
	case errors.As(err, &notFound):
		s.writeJSON(w, r, http.StatusNotFound, errorJSON{Error: err.Error()})
	default:
		s.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		s.writeJSON(w, r, http.StatusInternalServerError, errorJSON{Error: "internal error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WarnContext(r.Context(), "Failed to write response", "error", err)
	}
}

func parseInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func ptrInt64(v int64, ok bool) *int64 {
	if !ok {
		return nil
	}
	return &v
}
