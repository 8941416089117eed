package category

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Category addresses a directory in the card store as an ordered list
// of path segments. The empty category is the store root.
type Category []string

// Parse splits a slash-joined category string. The empty string is
// the root category.
func Parse(s string) Category {
	if s == "" {
		return Category{}
	}
	return Category(strings.Split(s, "/"))
}

// String joins the segments with slashes. The root category is "".
func (c Category) String() string {
	return strings.Join(c, "/")
}

// Tree addresses the category hierarchy under a store root.
type Tree struct {
	Root string
}

// NewTree creates a tree rooted at root, creating the root directory
// if it does not exist.
func NewTree(root string) (*Tree, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root %s: %w", root, err)
	}
	return &Tree{Root: root}, nil
}

// Path returns the directory for a category. Pure construction, no
// I/O validation.
func (t *Tree) Path(c Category) string {
	return filepath.Join(append([]string{t.Root}, c...)...)
}

// Create creates the category directory if absent. Idempotent.
func (t *Tree) Create(c Category) error {
	if err := os.MkdirAll(t.Path(c), 0755); err != nil {
		return fmt.Errorf("failed to create category %q: %w", c.String(), err)
	}
	return nil
}

// EnumerateAll walks the store root and returns every category,
// including the root itself and categories holding no cards, sorted
// lexicographically by joined path. Dot-directories (e.g. the sync
// mechanism's .git) are skipped.
func (t *Tree) EnumerateAll() ([]Category, error) {
	var cats []Category
	err := filepath.WalkDir(t.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != t.Root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		rel, err := filepath.Rel(t.Root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			cats = append(cats, Category{})
			return nil
		}
		cats = append(cats, Parse(filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk store root %s: %w", t.Root, err)
	}
	sort.Slice(cats, func(i, j int) bool {
		return cats[i].String() < cats[j].String()
	})
	return cats, nil
}
