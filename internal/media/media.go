// Package media resolves a card's audio reference to a local file.
// Resolution prefers the local media directory and falls back to one
// best-effort download of the backup URL. No retries, no caching
// policy beyond keeping the downloaded file.
package media

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/example/cardbox/internal/domain"
)

// Resolver maps audio references to files under a media directory.
type Resolver struct {
	dir    string
	client *http.Client
}

// NewResolver creates a resolver over dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir, client: http.DefaultClient}
}

// Resolve returns the local path for ref, downloading the backup URL
// when no local copy exists. Fails on any download error.
func (r *Resolver) Resolve(ref *domain.AudioRef) (string, error) {
	if ref == nil || ref.Name == "" {
		return "", fmt.Errorf("no audio reference")
	}
	local := filepath.Join(r.dir, filepath.Base(ref.Name))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	if ref.URL == "" {
		return "", fmt.Errorf("audio %s not cached and no backup url", ref.Name)
	}

	resp, err := r.client.Get(ref.URL)
	if err != nil {
		return "", fmt.Errorf("failed to download audio %s: %w", ref.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download audio %s: status %s", ref.Name, resp.Status)
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create media dir: %w", err)
	}
	file, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("failed to create audio file %s: %w", local, err)
	}
	defer file.Close()
	if _, err := io.Copy(file, resp.Body); err != nil {
		os.Remove(local)
		return "", fmt.Errorf("failed to write audio file %s: %w", local, err)
	}
	return local, nil
}
