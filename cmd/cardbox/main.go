package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/cardbox/internal/cache"
	"github.com/example/cardbox/internal/category"
	"github.com/example/cardbox/internal/config"
	"github.com/example/cardbox/internal/gitsync"
	"github.com/example/cardbox/internal/media"
	"github.com/example/cardbox/internal/store"
	"github.com/example/cardbox/internal/web"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}
	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	tree, err := category.NewTree(cfg.StorePath)
	if err != nil {
		log.Fatalf("Failed to open card store: %v", err)
	}
	st := store.New(tree)

	db, err := cache.Open(cfg.CachePath, st)
	if err != nil {
		log.Fatalf("Failed to open cache index: %v", err)
	}
	defer db.Close()

	// Session start: pull the store before touching it, so the cache
	// heals against the freshest tree.
	var repo *gitsync.Repo
	if cfg.GitSync {
		repo, err = gitsync.Open(cfg.StorePath, cfg.GitRemote)
		if err != nil {
			log.Fatalf("Failed to open store repository: %v", err)
		}
		if err := repo.Pull(); err != nil {
			slog.Warn("store pull failed, continuing with local state", "error", err)
		}
	}

	if n, err := db.Count(); err != nil {
		log.Fatalf("Failed to read cache index: %v", err)
	} else if n == 0 {
		count, err := db.IndexAll()
		if err != nil {
			log.Fatalf("Failed to build cache index: %v", err)
		}
		slog.Info("cold start reindex complete", "cards", count)
	}

	server := web.NewServer(st, db, media.NewResolver(cfg.MediaDir))
	httpServer := &http.Server{Addr: cfg.Listen, Handler: server}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("listening", "addr", cfg.Listen, "store", cfg.StorePath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}

	// Session end: commit and push whatever the session changed.
	if repo != nil {
		if err := repo.Commit("cardbox session " + time.Now().Format(time.RFC3339)); err != nil {
			slog.Error("store commit failed", "error", err)
		} else if err := repo.Push(); err != nil {
			slog.Warn("store push failed", "error", err)
		}
	}
}
