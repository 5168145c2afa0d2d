package eval

import (
	"context"

	"github.com/XiaoConstantine/sgrep-evals/pkg/dataset"
)

// IndexStatus is the state reported by a project index.
type IndexStatus int

const (
	StatusScanning IndexStatus = iota // worktree not yet fully scanned
	StatusIndexing                    // file updates pending
	StatusIdle                        // all pending updates processed
)

func (s IndexStatus) String() string {
	switch s {
	case StatusScanning:
		return "scanning"
	case StatusIndexing:
		return "indexing"
	case StatusIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Engine is the search engine under evaluation.
type Engine interface {
	// OpenWorktree registers a checkout directory. Scanning starts immediately.
	OpenWorktree(ctx context.Context, dir string) (Worktree, error)
	// ProjectIndex starts (or resumes) indexing a worktree and returns at once.
	ProjectIndex(ctx context.Context, wt Worktree) (ProjectIndex, error)
}

// Worktree is a file-system backed project known to the engine.
type Worktree interface {
	Root() string
	// ScanComplete is closed once the initial scan has finished.
	ScanComplete() <-chan struct{}
	Close() error
}

// Subscription is released to stop receiving notifications.
type Subscription interface {
	Release()
}

// ProjectIndex is the engine's handle on an indexed worktree.
type ProjectIndex interface {
	// Subscribe calls fn on every status change, starting with the current status.
	Subscribe(fn func(IndexStatus)) Subscription
	// Search returns up to limit ranked locations for the query.
	Search(ctx context.Context, query string, limit int) ([]dataset.EvaluationSearchResult, error)
	Close() error
}
