package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/cardbox/internal/cache"
	"github.com/example/cardbox/internal/category"
	"github.com/example/cardbox/internal/domain"
	"github.com/example/cardbox/internal/media"
	"github.com/example/cardbox/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	tree, err := category.NewTree(filepath.Join(dir, "cards"))
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	st := store.New(tree)
	db, err := cache.Open(filepath.Join(dir, "cache.db"), st)
	if err != nil {
		t.Fatalf("cache.Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewServer(st, db, media.NewResolver(filepath.Join(dir, "media"))), st
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("invalid JSON response for %s %s: %v", method, path, err)
		}
	}
	return rec, out
}

func TestCreateAndGetCard(t *testing.T) {
	s, _ := newTestServer(t)

	rec, created := doJSON(t, s, http.MethodPost, "/cards", `{"front":"2+2","back":"4","category":"math"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("Expected a card id in the response")
	}
	if created["state"] != "pending" {
		t.Errorf("Expected a fresh card to be pending, got %v", created["state"])
	}

	rec, got := doJSON(t, s, http.MethodGet, "/cards/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got["front"] != "2+2" || got["category"] != "math" {
		t.Errorf("Unexpected card body: %v", got)
	}
}

func TestDuplicateFrontRejected(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := doJSON(t, s, http.MethodPost, "/cards", `{"front":"same","back":"a"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	rec, _ = doJSON(t, s, http.MethodPost, "/cards", `{"front":"same","back":"b"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a duplicate front, got %d", rec.Code)
	}
}

func TestReviewPersistsBeforeAccepting(t *testing.T) {
	s, st := newTestServer(t)

	_, created := doJSON(t, s, http.MethodPost, "/cards", `{"front":"Haus","back":"house","category":"lang"}`)
	id := created["id"].(string)

	rec, reviewed := doJSON(t, s, http.MethodPost, "/cards/"+id+"/review", `{"grade":"easy","time_spent":6}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if reviewed["reviews"].(float64) != 1 {
		t.Errorf("Expected 1 review, got %v", reviewed["reviews"])
	}
	if reviewed["stability_days"] == nil {
		t.Error("Expected a stability after the first review")
	}

	// The accepted review must be on disk, not just in the cache.
	card, err := st.Load(category.Category{"lang"}, id)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(card.History) != 1 || card.History[0].Grade != domain.GradeEasy {
		t.Errorf("Expected the review persisted to disk, got %+v", card.History)
	}
	if card.Meta.StabilityDays == nil {
		t.Error("Expected stability persisted to disk")
	}
}

func TestReviewInvalidGrade(t *testing.T) {
	s, _ := newTestServer(t)
	_, created := doJSON(t, s, http.MethodPost, "/cards", `{"front":"a","back":"b"}`)
	id := created["id"].(string)

	rec, _ := doJSON(t, s, http.MethodPost, "/cards/"+id+"/review", `{"grade":"perfect"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an invalid grade, got %d", rec.Code)
	}
}

func TestDeleteCard(t *testing.T) {
	s, _ := newTestServer(t)
	_, created := doJSON(t, s, http.MethodPost, "/cards", `{"front":"bye","back":"tschüss"}`)
	id := created["id"].(string)

	rec, _ := doJSON(t, s, http.MethodDelete, "/cards/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	rec, _ = doJSON(t, s, http.MethodGet, "/cards/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}

func TestGetUnknownCard(t *testing.T) {
	s, _ := newTestServer(t)
	rec, _ := doJSON(t, s, http.MethodGet, "/cards/no-such-id", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestNextReview(t *testing.T) {
	s, _ := newTestServer(t)

	_, created := doJSON(t, s, http.MethodPost, "/cards", `{"front":"due card","back":"x"}`)
	id := created["id"].(string)

	// Review it, then jump the server clock past the stability window.
	rec, _ := doJSON(t, s, http.MethodPost, "/cards/"+id+"/review", `{"grade":"good"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	t.Run("nothing due right after review", func(t *testing.T) {
		rec, body := doJSON(t, s, http.MethodGet, "/review/next", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if body["due"].(float64) != 0 {
			t.Errorf("Expected 0 due cards, got %v", body["due"])
		}
	})

	t.Run("due after the stability elapses", func(t *testing.T) {
		s.now = func() time.Time { return time.Now().Add(10 * 24 * time.Hour) }
		defer func() { s.now = time.Now }()

		rec, body := doJSON(t, s, http.MethodGet, "/review/next", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if body["due"].(float64) != 1 {
			t.Fatalf("Expected 1 due card, got %v", body["due"])
		}
		next := body["next"].(map[string]any)
		if next["id"] != id || next["state"] != "due" {
			t.Errorf("Unexpected next card: %v", next)
		}
	})
}

func TestReindex(t *testing.T) {
	s, st := newTestServer(t)

	// A card written behind the server's back, as external sync would.
	card := domain.NewCard("external", "card")
	if _, err := st.Save(&card, category.Category{"synced"}); err != nil {
		t.Fatal(err)
	}

	rec, body := doJSON(t, s, http.MethodPost, "/reindex", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["indexed"].(float64) != 1 {
		t.Errorf("Expected 1 indexed card, got %v", body["indexed"])
	}
}
