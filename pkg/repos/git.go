// Package repos materializes the repositories referenced by the dataset at
// their pinned revisions.
package repos

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

//go:generate mockgen -source=git.go -destination=mock_git_test.go -package=repos

// ErrRemoteExists is returned by AddRemote when the remote is already configured.
var ErrRemoteExists = errors.New("remote already exists")

// Git is the subset of git operations needed to pin a checkout.
type Git interface {
	// Head returns the commit hash checked out in dir, or "" if dir holds no
	// repository or no commit yet. It only reads local metadata.
	Head(dir string) (string, error)
	// Init creates an empty repository in dir.
	Init(dir string) error
	// AddRemote registers a remote. An existing remote yields ErrRemoteExists.
	AddRemote(dir, name, url string) error
	// Fetch shallowly fetches a single revision from remote.
	Fetch(ctx context.Context, dir, remote, rev string) error
	// Checkout detaches the worktree at rev.
	Checkout(ctx context.Context, dir, rev string) error
}

// CLIGit reads and initializes repositories with go-git and shells out to
// the git binary for fetch and checkout. go-git cannot do a depth-1 fetch
// of an arbitrary commit.
type CLIGit struct {
	// Binary is the git executable, "git" when empty.
	Binary string
}

func (g CLIGit) Head(dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return "", nil
		}
		return "", fmt.Errorf("open repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

func (g CLIGit) Init(dir string) error {
	if _, err := git.PlainInit(dir, false); err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	return nil
}

func (g CLIGit) AddRemote(dir, name, url string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	_, err = repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}})
	if errors.Is(err, git.ErrRemoteExists) {
		return ErrRemoteExists
	}
	if err != nil {
		return fmt.Errorf("create remote %s: %w", name, err)
	}
	return nil
}

func (g CLIGit) Fetch(ctx context.Context, dir, remote, rev string) error {
	return g.run(ctx, dir, "fetch", "--depth", "1", remote, rev)
}

func (g CLIGit) Checkout(ctx context.Context, dir, rev string) error {
	return g.run(ctx, dir, "checkout", rev)
}

func (g CLIGit) run(ctx context.Context, dir string, args ...string) error {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
