// Package web is the presentation surface: a JSON HTTP API over the
// store, cache and scheduler. It holds no state of its own; every
// handler goes through the self-healing resolve path so externally
// moved or deleted files are handled the same way everywhere.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/cardbox/internal/cache"
	"github.com/example/cardbox/internal/category"
	"github.com/example/cardbox/internal/domain"
	"github.com/example/cardbox/internal/media"
	"github.com/example/cardbox/internal/scheduler"
	"github.com/example/cardbox/internal/store"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	st     *store.Store
	db     *cache.DB
	audio  *media.Resolver
	router *http.ServeMux
	now    func() time.Time
}

// NewServer creates and configures a new server.
func NewServer(st *store.Store, db *cache.DB, audio *media.Resolver) *Server {
	s := &Server{
		st:     st,
		db:     db,
		audio:  audio,
		router: http.NewServeMux(),
		now:    time.Now,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /cards", s.handleListCards)
	s.router.HandleFunc("POST /cards", s.handleCreateCard)
	s.router.HandleFunc("GET /cards/{id}", s.handleGetCard)
	s.router.HandleFunc("DELETE /cards/{id}", s.handleDeleteCard)
	s.router.HandleFunc("POST /cards/{id}/review", s.handlePostReview)
	s.router.HandleFunc("GET /cards/{id}/audio/{side}", s.handleGetAudio)
	s.router.HandleFunc("GET /review/next", s.handleNextReview)
	s.router.HandleFunc("POST /reindex", s.handleReindex)
}

// cardView is the JSON shape of a resolved card.
type cardView struct {
	ID            string   `json:"id"`
	Front         string   `json:"front"`
	Back          string   `json:"back"`
	Category      string   `json:"category"`
	State         string   `json:"state"`
	Strength      *float64 `json:"strength,omitempty"`
	StabilityDays *float64 `json:"stability_days,omitempty"`
	Suspended     bool     `json:"suspended"`
	Finished      bool     `json:"finished"`
	Tags          []string `json:"tags,omitempty"`
	Reviews       int      `json:"reviews"`
}

func (s *Server) view(card *domain.Card, cat category.Category) cardView {
	now := s.now()
	v := cardView{
		ID:            card.Meta.ID,
		Front:         card.Front.Text,
		Back:          card.Back.Text,
		Category:      cat.String(),
		State:         string(scheduler.Classify(card, now)),
		StabilityDays: card.Meta.StabilityDays,
		Suspended:     card.Meta.Suspended,
		Finished:      card.Meta.Finished,
		Tags:          card.Meta.Tags,
		Reviews:       len(card.History),
	}
	if strength, ok := scheduler.Strength(card, now); ok {
		v.Strength = &strength
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps store errors onto HTTP statuses: a card missing
// after the fallback scan is 404, everything else is on the server.
func writeError(w http.ResponseWriter, err error) {
	var parseErr *store.ParseError
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "no such card", http.StatusNotFound)
	case errors.Is(err, store.ErrDuplicateFront):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &parseErr):
		slog.Error("malformed card file", "path", parseErr.Path, "error", parseErr.Err)
		http.Error(w, "malformed card file", http.StatusInternalServerError)
	default:
		slog.Error("request failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// resolveCard runs the cache resolve and loads the record it points
// at.
func (s *Server) resolveCard(id string) (*domain.Card, category.Category, error) {
	cat, err := s.db.Resolve(id)
	if err != nil {
		return nil, nil, err
	}
	card, err := s.st.Load(cat, id)
	if err != nil {
		return nil, nil, err
	}
	return card, cat, nil
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.AllCards()
	if err != nil {
		writeError(w, err)
		return
	}
	type row struct {
		ID       string `json:"id"`
		Front    string `json:"front"`
		Category string `json:"category"`
	}
	out := make([]row, 0, len(rows))
	for _, c := range rows {
		out = append(out, row{ID: c.ID, Front: c.FrontText, Category: c.Category})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Front    string   `json:"front"`
		Back     string   `json:"back"`
		Category string   `json:"category"`
		Tags     []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	card := domain.NewCard(req.Front, req.Back)
	card.Meta.Tags = req.Tags
	cat := category.Parse(req.Category)

	// Creation is persistence: the card exists once Save returns.
	if _, err := s.st.Save(&card, cat); err != nil {
		if errors.Is(err, store.ErrDuplicateFront) {
			writeError(w, err)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.db.IndexCard(&card, cat); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.view(&card, cat))
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, cat, err := s.resolveCard(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(card, cat))
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.st.Delete(id); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, err)
		return
	}
	if err := s.db.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePostReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Grade     domain.Grade `json:"grade"`
		TimeSpent int64        `json:"time_spent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Grade.IsValid() {
		http.Error(w, "invalid grade", http.StatusBadRequest)
		return
	}

	card, cat, err := s.resolveCard(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	updated, err := scheduler.RecordReview(*card, req.Grade, time.Duration(req.TimeSpent)*time.Second, s.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The review is accepted only once the record is back on disk;
	// the cache rows are refreshed after, and are repairable anyway.
	if _, err := s.st.Save(&updated, cat); err != nil {
		writeError(w, err)
		return
	}
	if err := s.db.IndexCard(&updated, cat); err != nil {
		writeError(w, err)
		return
	}
	if err := s.db.IndexStrength(&updated); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(&updated, cat))
}

func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	card, _, err := s.resolveCard(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var ref *domain.AudioRef
	switch r.PathValue("side") {
	case "front":
		ref = card.Front.Audio
	case "back":
		ref = card.Back.Audio
	default:
		http.Error(w, "side must be front or back", http.StatusBadRequest)
		return
	}
	if ref == nil {
		http.Error(w, "no audio on this side", http.StatusNotFound)
		return
	}
	path, err := s.audio.Resolve(ref)
	if err != nil {
		slog.Warn("audio resolution failed", "id", card.Meta.ID, "error", err)
		http.Error(w, "audio unavailable", http.StatusBadGateway)
		return
	}
	http.ServeFile(w, r, path)
}

// handleNextReview scans the store for due cards and returns the
// first. The walk is authoritative: a card moved by external sync
// still counts.
func (s *Server) handleNextReview(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	var next *cardView
	due := 0
	err := s.st.EnumerateAll(func(e store.Entry) error {
		if scheduler.Due(e.Card, now) {
			due++
			if next == nil {
				v := s.view(e.Card, e.Category)
				next = &v
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"due":  due,
		"next": next,
	})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	count, err := s.db.IndexAll()
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("reindexed store", "cards", count)
	writeJSON(w, http.StatusOK, map[string]int{"indexed": count})
}
