// Package store persists card records as one file per card inside the
// category hierarchy. The filesystem is the source of truth; anything
// else (notably the cache index) is derived from it.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/cardbox/internal/cardfile"
	"github.com/example/cardbox/internal/category"
	"github.com/example/cardbox/internal/domain"
)

// ErrNotFound means the card does not exist anywhere in the store,
// even after a full-tree scan.
var ErrNotFound = errors.New("card not found")

// ErrDuplicateFront means another card in the same category already
// carries the same front text.
var ErrDuplicateFront = errors.New("duplicate front text in category")

// ParseError wraps a malformed card file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed card file %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Store performs all card file operations under a category tree.
type Store struct {
	tree     *category.Tree
	validate *validator.Validate
}

// New creates a store over the given tree.
func New(tree *category.Tree) *Store {
	return &Store{
		tree:     tree,
		validate: validator.New(),
	}
}

// Tree returns the underlying category tree.
func (s *Store) Tree() *category.Tree {
	return s.tree
}

// Path returns the file path a card with this id would occupy in the
// given category. Pure construction, no I/O.
func (s *Store) Path(cat category.Category, id string) string {
	return filepath.Join(s.tree.Path(cat), cardfile.Filename(id))
}

// Locate scans every category's listing for the card's file and
// returns the category holding it. Cost is proportional to the total
// number of files in the store, which is why callers go through the
// cache index and only land here on a miss.
func (s *Store) Locate(id string) (category.Category, error) {
	cats, err := s.tree.EnumerateAll()
	if err != nil {
		return nil, err
	}
	want := cardfile.Filename(id)
	for _, cat := range cats {
		entries, err := os.ReadDir(s.tree.Path(cat))
		if err != nil {
			if os.IsNotExist(err) {
				// Category vanished mid-scan; external mutation.
				continue
			}
			return nil, fmt.Errorf("failed to list category %q: %w", cat.String(), err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && entry.Name() == want {
				return cat, nil
			}
		}
	}
	return nil, ErrNotFound
}

// Load reads and decodes the card file for id in the given category.
// Returns ErrNotFound when the file is missing (a benign race with
// external mutation) and a *ParseError when it is malformed. Other
// read failures propagate as plain I/O errors.
func (s *Store) Load(cat category.Category, id string) (*domain.Card, error) {
	path := s.Path(cat, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read card %s: %w", id, err)
	}
	card, err := cardfile.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return card, nil
}

// Save validates and writes the full record, creating the category if
// needed and overwriting any previous version of the same card. The
// file is keyed by the card's id, never by its content. A card whose
// front text duplicates a different card in the same category is
// rejected rather than silently shadowing it.
func (s *Store) Save(card *domain.Card, cat category.Category) (string, error) {
	if err := s.validate.Struct(card); err != nil {
		return "", fmt.Errorf("invalid card: %w", err)
	}
	if err := s.checkDuplicateFront(card, cat); err != nil {
		return "", err
	}
	if err := s.tree.Create(cat); err != nil {
		return "", err
	}

	data, err := cardfile.Marshal(card)
	if err != nil {
		return "", err
	}
	path := s.Path(cat, card.Meta.ID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write card %s: %w", card.Meta.ID, err)
	}
	return path, nil
}

// checkDuplicateFront compares the normalized front text against every
// other card in the category.
func (s *Store) checkDuplicateFront(card *domain.Card, cat category.Category) error {
	entries, err := os.ReadDir(s.tree.Path(cat))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list category %q: %w", cat.String(), err)
	}
	want := normalizeFront(card.Front.Text)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), cardfile.Ext) {
			continue
		}
		if entry.Name() == cardfile.Filename(card.Meta.ID) {
			continue
		}
		other, err := cardfile.ParseFile(filepath.Join(s.tree.Path(cat), entry.Name()))
		if err != nil {
			// A corrupt neighbour must not block this save.
			continue
		}
		if normalizeFront(other.Front.Text) == want {
			return fmt.Errorf("%w: %q collides with card %s", ErrDuplicateFront, card.Front.Text, other.Meta.ID)
		}
	}
	return nil
}

// normalizeFront cleans a front text for collision comparison: trim,
// lowercase, normalize line endings.
func normalizeFront(text string) string {
	t := strings.ToLower(text)
	t = strings.TrimSpace(t)
	t = strings.ReplaceAll(t, "\r\n", "\n")
	return t
}

// Entry is one record yielded by EnumerateAll.
type Entry struct {
	Card     *domain.Card
	Category category.Category
	ModTime  time.Time
}

// EnumerateAll walks the whole tree and calls fn for every card, in
// category order. Each call performs a fresh walk; no iterator state
// is cached. Files that vanish between listing and read are skipped,
// and a malformed file is logged and skipped so one corrupt card
// cannot block indexing the rest. A non-nil error from fn aborts the
// walk.
func (s *Store) EnumerateAll(fn func(Entry) error) error {
	cats, err := s.tree.EnumerateAll()
	if err != nil {
		return err
	}
	for _, cat := range cats {
		entries, err := os.ReadDir(s.tree.Path(cat))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to list category %q: %w", cat.String(), err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), cardfile.Ext) {
				continue
			}
			id := strings.TrimSuffix(entry.Name(), cardfile.Ext)
			card, err := s.Load(cat, id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				slog.Warn("skipping unreadable card file", "category", cat.String(), "file", entry.Name(), "error", err)
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if err := fn(Entry{Card: card, Category: cat, ModTime: info.ModTime()}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete removes the card's file wherever it lives. Dangling
// dependency references held by other cards are tolerated, not
// cleaned up.
func (s *Store) Delete(id string) error {
	cat, err := s.Locate(id)
	if err != nil {
		return err
	}
	if err := os.Remove(s.Path(cat, id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return nil
}
