package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	flags := Flags()
	if err := flags.Parse(nil); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StorePath != "cards" {
		t.Errorf("Expected default store path 'cards', got %q", cfg.StorePath)
	}
	if cfg.Listen != ":8088" {
		t.Errorf("Expected default listen :8088, got %q", cfg.Listen)
	}
}

func TestFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cardbox.yaml")
	data := "store_path: /srv/cards\nlisten: \":9000\"\ngit_sync: true\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CARDBOX_LISTEN", ":9100")

	flags := Flags()
	if err := flags.Parse([]string{"--config", path, "--cache_path", "/tmp/cache.db"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.StorePath != "/srv/cards" {
		t.Errorf("Expected store path from file, got %q", cfg.StorePath)
	}
	if !cfg.GitSync {
		t.Error("Expected git_sync from file")
	}
	if cfg.Listen != ":9100" {
		t.Errorf("Expected env to override file, got %q", cfg.Listen)
	}
	if cfg.CachePath != "/tmp/cache.db" {
		t.Errorf("Expected flag override for cache path, got %q", cfg.CachePath)
	}
	// Untouched fields keep their defaults.
	if cfg.MediaDir != "media" {
		t.Errorf("Expected default media dir, got %q", cfg.MediaDir)
	}
}
