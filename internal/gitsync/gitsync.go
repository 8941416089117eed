// Package gitsync backs the card store with a git repository. It is a
// session-boundary collaborator only: pull before the session, commit
// and push after it, never inside a core store or cache operation.
package gitsync

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo wraps the git repository at the store root.
type Repo struct {
	repo *git.Repository
}

// Open opens the repository at path, initializing one if absent.
// When remote is non-empty and no origin exists yet, it is created.
func Open(path, remote string) (*Repo, error) {
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(path, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store repository at %s: %w", path, err)
	}

	if remote != "" {
		if _, err := repo.Remote("origin"); errors.Is(err, git.ErrRemoteNotFound) {
			_, err = repo.CreateRemote(&config.RemoteConfig{
				Name: "origin",
				URLs: []string{remote},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create origin remote: %w", err)
			}
		}
	}

	return &Repo{repo: repo}, nil
}

// Pull fetches and merges the latest store state from origin. A
// missing remote or an already up-to-date tree is not an error.
func (r *Repo) Pull() error {
	if !r.hasOrigin() {
		return nil
	}
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	err = worktree.Pull(&git.PullOptions{RemoteName: "origin"})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull store: %w", err)
	}
	return nil
}

// Commit stages every change in the store and commits it. A clean
// tree commits nothing.
func (r *Repo) Commit(message string) error {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage store changes: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("failed to read worktree status: %w", err)
	}
	if status.IsClean() {
		slog.Debug("store unchanged, nothing to commit")
		return nil
	}
	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name: "cardbox",
			When: time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit store: %w", err)
	}
	return nil
}

// Push sends committed store changes to origin. Best effort at the
// session boundary; a missing remote is not an error.
func (r *Repo) Push() error {
	if !r.hasOrigin() {
		return nil
	}
	err := r.repo.Push(&git.PushOptions{})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push store: %w", err)
	}
	return nil
}

func (r *Repo) hasOrigin() bool {
	_, err := r.repo.Remote("origin")
	return err == nil
}
