// Package eval runs evaluation queries against a search engine and scores the results.
package eval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/XiaoConstantine/sgrep-evals/pkg/dataset"
	"github.com/XiaoConstantine/sgrep-evals/pkg/util"
)

// DefaultSearchLimit is the number of results requested per query.
const DefaultSearchLimit = 8

// Totals is the outcome of a whole run.
type Totals struct {
	Covered int64
	Total   int64
	Summary Summary
}

// Runner evaluates projects one at a time against an Engine.
type Runner struct {
	engine   Engine
	reposDir string
	limit    int
	logger   *zap.Logger
	out      io.Writer
	interval time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSearchLimit sets how many results each query asks for.
func WithSearchLimit(n int) RunnerOption {
	return func(r *Runner) { r.limit = n }
}

// WithProgress sets where progress lines go and how often.
func WithProgress(w io.Writer, interval time.Duration) RunnerOption {
	return func(r *Runner) {
		r.out = w
		r.interval = interval
	}
}

// NewRunner creates a runner over checkouts stored under reposDir.
func NewRunner(engine Engine, reposDir string, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:   engine,
		reposDir: reposDir,
		limit:    DefaultSearchLimit,
		logger:   logger,
		out:      os.Stderr,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Run evaluates every project in order and passes each outcome to emit.
// Any engine, search or emit error stops the run.
func (r *Runner) Run(ctx context.Context, projects []dataset.EvaluationProject, emit func(EvaluationQueryOutcome) error) (Totals, error) {
	progress := &Progress{}
	agg := NewAggregator(r.limit)

	stop := progress.Report(r.out, r.interval)
	defer stop()

	for i := range projects {
		project := &projects[i]
		progress.SetProject(project.Repo)

		err := r.runProject(ctx, project, func(o EvaluationQueryOutcome) error {
			if err := emit(o); err != nil {
				return fmt.Errorf("emit outcome: %w", err)
			}
			progress.Add(o)
			agg.Add(project.Repo, o)
			return nil
		})
		if err != nil {
			return r.totals(progress, agg), fmt.Errorf("%s@%s: %w", project.Repo, project.SHA, err)
		}
	}

	stop()
	totals := r.totals(progress, agg)
	_, _ = fmt.Fprintf(r.out, "\rRan evals. %d/%d covered.\n", totals.Covered, totals.Total)
	_, _ = fmt.Fprintf(r.out, "Queries: %d  Projects: %d  Recall: %.3f  MRR: %.3f  P@%d: %.3f\n",
		totals.Summary.NumQueries, totals.Summary.NumProjects,
		totals.Summary.MeanRecall, totals.Summary.MeanMRR, r.limit, totals.Summary.MeanPrecisionK)
	return totals, nil
}

func (r *Runner) totals(p *Progress, agg *Aggregator) Totals {
	covered, total := p.Totals()
	return Totals{Covered: covered, Total: total, Summary: agg.Summary()}
}

func (r *Runner) runProject(ctx context.Context, project *dataset.EvaluationProject, emit func(EvaluationQueryOutcome) error) error {
	logger := r.logger.With(zap.String("repo", project.Repo), zap.String("sha", project.SHA))

	dir, ok := project.Dir(r.reposDir)
	if !ok {
		logger.Warn("skipping project with malformed repo")
		return nil
	}
	if !exists(dir) {
		logger.Info("skipping project, checkout missing", zap.String("dir", dir))
		return nil
	}
	if exists(filepath.Join(dir, dataset.SkipMarker)) {
		logger.Info("skipping project, marked unavailable")
		return nil
	}

	wt, err := r.engine.OpenWorktree(ctx, dir)
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	defer func() {
		if err := wt.Close(); err != nil {
			logger.Warn("close worktree", zap.Error(err))
		}
	}()

	select {
	case <-wt.ScanComplete():
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.Debug("worktree scanned")

	index, err := r.engine.ProjectIndex(ctx, wt)
	if err != nil {
		return fmt.Errorf("project index: %w", err)
	}
	defer func() {
		if err := index.Close(); err != nil {
			logger.Warn("close project index", zap.Error(err))
		}
	}()

	if err := waitIdle(ctx, index); err != nil {
		return fmt.Errorf("wait for indexing: %w", err)
	}
	logger.Debug("indexing complete")

	for _, query := range project.Queries {
		actual, err := index.Search(ctx, query.Query, r.limit)
		if err != nil {
			return fmt.Errorf("search %q: %w", query.Query, err)
		}
		if err := emit(Score(query, actual)); err != nil {
			return err
		}
	}
	return nil
}

// waitIdle blocks until the index first reports StatusIdle.
func waitIdle(ctx context.Context, index ProjectIndex) error {
	idle := util.NewFuture[IndexStatus]()
	sub := index.Subscribe(func(s IndexStatus) {
		if s == StatusIdle {
			idle.Resolve(s)
		}
	})
	defer sub.Release()

	_, err := idle.Await(ctx)
	return err
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
