package repos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/XiaoConstantine/sgrep-evals/pkg/dataset"
)

// DefaultWorkers is the number of chunks the project list is split into.
const DefaultWorkers = 8

// Status is the result of synchronizing one repository.
type Status int

const (
	StatusSynced      Status = iota // fetched and checked out
	StatusUpToDate                  // HEAD already at the pinned sha
	StatusSkipped                   // skip marker present or repo unusable
	StatusUnavailable               // probe failed, skip marker written
	StatusFailed                    // left for a later run
)

func (s Status) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusUpToDate:
		return "up-to-date"
	case StatusSkipped:
		return "skipped"
	case StatusUnavailable:
		return "unavailable"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SyncReport counts repositories per outcome.
type SyncReport struct {
	Synced      int
	UpToDate    int
	Skipped     int
	Unavailable int
	Failed      int
}

func (r *SyncReport) add(s Status) {
	switch s {
	case StatusSynced:
		r.Synced++
	case StatusUpToDate:
		r.UpToDate++
	case StatusSkipped:
		r.Skipped++
	case StatusUnavailable:
		r.Unavailable++
	case StatusFailed:
		r.Failed++
	}
}

func (r *SyncReport) merge(o SyncReport) {
	r.Synced += o.Synced
	r.UpToDate += o.UpToDate
	r.Skipped += o.Skipped
	r.Unavailable += o.Unavailable
	r.Failed += o.Failed
}

// Total is the number of repositories processed.
func (r SyncReport) Total() int {
	return r.Synced + r.UpToDate + r.Skipped + r.Unavailable + r.Failed
}

// Synchronizer brings checkouts under a root directory to their pinned revisions.
type Synchronizer struct {
	root     string
	git      Git
	prober   Prober
	workers  int
	logger   *zap.Logger
	progress io.Writer
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithWorkers sets the number of concurrent chunks.
func WithWorkers(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithProgress sets where the progress bar is drawn. Nil disables it.
func WithProgress(w io.Writer) Option {
	return func(s *Synchronizer) { s.progress = w }
}

// NewSynchronizer creates a synchronizer storing checkouts under root.
func NewSynchronizer(root string, g Git, prober Prober, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		root:     root,
		git:      g,
		prober:   prober,
		workers:  DefaultWorkers,
		logger:   zap.NewNop(),
		progress: os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chunks splits n items into at most workers contiguous [start, end) ranges
// of size ceil(n/workers).
func Chunks(n, workers int) [][2]int {
	if n == 0 || workers <= 0 {
		return nil
	}
	size := (n + workers - 1) / workers

	var chunks [][2]int
	for start := 0; start < n; start += size {
		chunks = append(chunks, [2]int{start, min(start+size, n)})
	}
	return chunks
}

// Sync synchronizes every project. Per-repository failures are logged and
// counted, they never stop the batch. Only context cancellation is returned.
func (s *Synchronizer) Sync(ctx context.Context, projects []dataset.EvaluationProject) (SyncReport, error) {
	chunks := Chunks(len(projects), s.workers)
	reports := make([]SyncReport, len(chunks))
	total := len(projects)

	var bar *progressbar.ProgressBar
	if s.progress != nil {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(s.progress),
			progressbar.OptionSetDescription("Fetching repos"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	var done atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range chunks {
		g.Go(func() error {
			for j := c[0]; j < c[1]; j++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				p := &projects[j]
				status, err := s.SyncRepo(ctx, p)
				reports[i].add(status)
				if err != nil {
					s.logger.Warn("sync failed",
						zap.String("repo", p.Repo),
						zap.String("sha", p.SHA),
						zap.Stringer("status", status),
						zap.Error(err))
				}

				n := done.Add(1)
				if bar != nil {
					_ = bar.Add(1)
				}
				s.logger.Debug("repo processed",
					zap.String("repo", p.Repo),
					zap.Stringer("status", status),
					zap.Int64("done", n),
					zap.Int("total", total))
			}
			return nil
		})
	}

	err := g.Wait()

	var report SyncReport
	for _, r := range reports {
		report.merge(r)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return report, err
}

// SyncRepo brings one checkout to its pinned revision. It is safe to run
// repeatedly: marked repositories and checkouts already at the sha are left
// alone without touching the network. The returned error explains a
// StatusFailed or StatusUnavailable result.
func (s *Synchronizer) SyncRepo(ctx context.Context, p *dataset.EvaluationProject) (Status, error) {
	dir, ok := p.Dir(s.root)
	if !ok {
		return StatusSkipped, fmt.Errorf("malformed repo %q", p.Repo)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return StatusFailed, fmt.Errorf("create checkout dir: %w", err)
	}

	marker := filepath.Join(dir, dataset.SkipMarker)
	if _, err := os.Stat(marker); err == nil {
		return StatusSkipped, nil
	}

	// A checkout already at the sha is not re-probed, so a repository that
	// disappears later is only noticed once the pinned sha changes.
	head, err := s.git.Head(dir)
	if err != nil {
		return StatusFailed, err
	}
	if head == p.SHA {
		return StatusUpToDate, nil
	}

	url := "https://github.com/" + p.Repo
	code, err := s.prober.Probe(ctx, url)
	if err != nil {
		return StatusFailed, err
	}
	if !Available(code) {
		if err := os.WriteFile(marker, nil, 0644); err != nil {
			return StatusFailed, fmt.Errorf("write skip marker: %w", err)
		}
		s.logger.Info("repository unavailable, marked skip",
			zap.String("repo", p.Repo),
			zap.Int("status", code))
		return StatusUnavailable, nil
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); errors.Is(err, os.ErrNotExist) {
		if err := s.git.Init(dir); err != nil {
			return StatusFailed, err
		}
	}

	if err := s.git.AddRemote(dir, "origin", url+".git"); err != nil && !errors.Is(err, ErrRemoteExists) {
		return StatusFailed, err
	}
	if err := s.git.Fetch(ctx, dir, "origin", p.SHA); err != nil {
		return StatusFailed, err
	}
	if err := s.git.Checkout(ctx, dir, p.SHA); err != nil {
		return StatusFailed, err
	}
	return StatusSynced, nil
}
