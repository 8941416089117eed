// Package cache is a derived, fully rebuildable index over the card
// store. Its single job is avoiding repeated full-tree scans when
// resolving a card id to its category. Rows are never trusted: every
// hit is re-validated against the filesystem, and a miss triggers a
// full scan before absence is ever reported. External mutation of the
// store (sync tools, a second instance) therefore costs at most one
// scan per stale id, after which the index has healed itself.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/example/cardbox/internal/category"
	"github.com/example/cardbox/internal/domain"
	"github.com/example/cardbox/internal/scheduler"
	"github.com/example/cardbox/internal/store"
)

// Resolver is the derived-index contract: resolve an id against a
// possibly stale index, invalidate one entry, rebuild from the
// authoritative source. Any persisted key-value store can satisfy it;
// DB is the sqlite implementation.
type Resolver interface {
	Resolve(id string) (category.Category, error)
	Delete(id string) error
	IndexAll() (int, error)
}

var _ Resolver = (*DB)(nil)

// DB wraps the sqlite index and the store it is derived from.
type DB struct {
	conn *sql.DB
	st   *store.Store
	now  func() time.Time
}

// Open creates the index connection and applies the schema if absent.
// Writes are serialized through a single connection; there is no
// cross-process locking, a lost update is repaired on the next
// Resolve.
func Open(dsn string, st *store.Store) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply cache schema: %w", err)
	}

	return &DB{conn: conn, st: st, now: time.Now}, nil
}

// Close closes the index connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Resolve maps a card id to its current category.
//
// Fast path: the cached category, if its computed file path still
// exists on disk. Otherwise the store's full-tree scan decides: when
// the card is found elsewhere the corrected row is upserted (the
// self-heal), and when it is found nowhere the stale rows are purged
// and store.ErrNotFound returned. Resolve never reports absence
// without the fallback scan having run.
func (db *DB) Resolve(id string) (category.Category, error) {
	var cached string
	err := db.conn.QueryRow(`SELECT category FROM cards WHERE id = ?`, id).Scan(&cached)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up card %s: %w", id, err)
	}
	if err == nil {
		cat := category.Parse(cached)
		if _, statErr := os.Stat(db.st.Path(cat, id)); statErr == nil {
			return cat, nil
		}
	}

	cat, locErr := db.st.Locate(id)
	if errors.Is(locErr, store.ErrNotFound) {
		if err := db.Delete(id); err != nil {
			return nil, err
		}
		return nil, store.ErrNotFound
	}
	if locErr != nil {
		return nil, locErr
	}

	card, err := db.st.Load(cat, id)
	if err != nil {
		return nil, err
	}
	if err := db.IndexCard(card, cat); err != nil {
		return nil, err
	}
	slog.Info("repaired stale cache row", "id", id, "category", cat.String())
	return cat, nil
}

// IndexCard upserts the card's row.
func (db *DB) IndexCard(card *domain.Card, cat category.Category) error {
	_, err := db.conn.Exec(`
		INSERT INTO cards (id, front_text, back_text, category)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			front_text = excluded.front_text,
			back_text = excluded.back_text,
			category = excluded.category
	`,
		card.Meta.ID,
		card.Front.Text,
		card.Back.Text,
		cat.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to index card %s: %w", card.Meta.ID, err)
	}
	return nil
}

// IndexStrength computes the card's strength at the current instant
// and memoizes it. A card with no review history has no strength and
// is left alone.
func (db *DB) IndexStrength(card *domain.Card) error {
	now := db.now()
	strength, ok := scheduler.Strength(card, now)
	if !ok {
		return nil
	}
	_, err := db.conn.Exec(`
		INSERT INTO strength (id, strength, computed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			strength = excluded.strength,
			computed_at = excluded.computed_at
	`,
		card.Meta.ID,
		strength,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to index strength for card %s: %w", card.Meta.ID, err)
	}
	return nil
}

// IndexAll rebuilds the whole index from a fresh store walk, purging
// rows for cards that no longer exist on disk. Used for cold start
// and explicit rebuild.
func (db *DB) IndexAll() (int, error) {
	if _, err := db.conn.Exec(`DELETE FROM strength`); err != nil {
		return 0, fmt.Errorf("failed to clear strength table: %w", err)
	}
	if _, err := db.conn.Exec(`DELETE FROM cards`); err != nil {
		return 0, fmt.Errorf("failed to clear cards table: %w", err)
	}

	count := 0
	err := db.st.EnumerateAll(func(e store.Entry) error {
		if err := db.IndexCard(e.Card, e.Category); err != nil {
			return err
		}
		if err := db.IndexStrength(e.Card); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

// Delete removes the card's rows from both tables. Callers should
// invoke it alongside store deletion, but a missed call is
// self-correcting: the next Resolve scans, finds nothing, and purges.
func (db *DB) Delete(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM strength WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete strength row for card %s: %w", id, err)
	}
	if _, err := db.conn.Exec(`DELETE FROM cards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete card row for %s: %w", id, err)
	}
	return nil
}

// CardRow is a listing row from the cards table.
type CardRow struct {
	ID        string
	FrontText string
	BackText  string
	Category  string
}

// AllCards lists every indexed card ordered by category then id.
// Advisory data for listings; anything that matters re-resolves.
func (db *DB) AllCards() ([]CardRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, front_text, back_text, category
		FROM cards ORDER BY category, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var out []CardRow
	for rows.Next() {
		var r CardRow
		if err := rows.Scan(&r.ID, &r.FrontText, &r.BackText, &r.Category); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StrengthRow returns the memoized strength for a card, or ok=false
// when none is recorded.
func (db *DB) StrengthRow(id string) (float64, time.Time, bool, error) {
	var strength float64
	var computedAt time.Time
	err := db.conn.QueryRow(`
		SELECT strength, computed_at FROM strength WHERE id = ?
	`, id).Scan(&strength, &computedAt)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("failed to read strength for card %s: %w", id, err)
	}
	return strength, computedAt, true, nil
}

// Count returns the number of indexed cards.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}
