// Package engine is a semantic code search engine over local checkouts:
// files are chunked, embedded and stored in a per-project sqlite-vec index
// that is kept current while the checkout is watched.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/XiaoConstantine/sgrep-evals/pkg/chunk"
	"github.com/XiaoConstantine/sgrep-evals/pkg/eval"
	"github.com/XiaoConstantine/sgrep-evals/pkg/store"
)

// Embedder produces vectors for chunks and queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

var _ eval.Engine = (*Engine)(nil)

// Engine opens worktrees and builds their indexes under indexDir.
type Engine struct {
	embedder Embedder
	chunker  *chunk.Chunker
	indexDir string
	logger   *zap.Logger
	workers  int
	debounce time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithWorkers sets how many files are chunked and embedded concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithDebounce sets how long file events settle before reindexing.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// WithChunkConfig overrides the chunker settings.
func WithChunkConfig(cfg chunk.Config) Option {
	return func(e *Engine) { e.chunker = chunk.New(cfg) }
}

// DefaultWorkers is 2*NumCPU clamped to [4, 16].
func DefaultWorkers() int {
	return min(max(runtime.NumCPU()*2, 4), 16)
}

// New creates an engine storing indexes under indexDir.
func New(embedder Embedder, indexDir string, opts ...Option) *Engine {
	e := &Engine{
		embedder: embedder,
		chunker:  chunk.New(chunk.DefaultConfig()),
		indexDir: indexDir,
		logger:   zap.NewNop(),
		workers:  DefaultWorkers(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpenWorktree starts scanning dir in the background.
func (e *Engine) OpenWorktree(_ context.Context, dir string) (eval.Worktree, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	return openWorktree(root, e.logger, e.debounce), nil
}

// ProjectIndex opens the persistent index of wt and starts bringing it up
// to date. It returns without waiting for indexing.
func (e *Engine) ProjectIndex(_ context.Context, wt eval.Worktree) (eval.ProjectIndex, error) {
	w, ok := wt.(*Worktree)
	if !ok {
		return nil, fmt.Errorf("worktree %s was not opened by this engine", wt.Root())
	}

	path := e.IndexPath(w.Root())
	st, err := store.Open(path, e.embedder.Dimension())
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return newProjectIndex(w, st, e.embedder, e.chunker, e.workers, e.logger), nil
}

// IndexPath is where the index of a checkout at <repos>/<owner>/<name> lives.
func (e *Engine) IndexPath(root string) string {
	return filepath.Join(e.indexDir, filepath.Base(filepath.Dir(root)), filepath.Base(root), "index.db")
}
