package engine

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before handing them to the index.
const DefaultDebounce = 500 * time.Millisecond

// Worktree is a scanned and watched checkout.
type Worktree struct {
	root     string
	ignore   *IgnoreRules
	logger   *zap.Logger
	debounce time.Duration

	scanned chan struct{}
	files   []string // repo-relative, slash separated, sorted

	mu      sync.Mutex
	pending map[string]struct{}
	changed chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

func openWorktree(root string, logger *zap.Logger, debounce time.Duration) *Worktree {
	ctx, cancel := context.WithCancel(context.Background())
	wt := &Worktree{
		root:     root,
		ignore:   NewIgnoreRules(root),
		logger:   logger.With(zap.String("worktree", root)),
		debounce: debounce,
		scanned:  make(chan struct{}),
		pending:  make(map[string]struct{}),
		changed:  make(chan struct{}, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go wt.run(ctx)
	return wt
}

// Root is the absolute checkout directory.
func (wt *Worktree) Root() string { return wt.root }

// ScanComplete is closed once the initial walk has finished.
func (wt *Worktree) ScanComplete() <-chan struct{} { return wt.scanned }

// Files returns the code files found by the initial scan. Valid after
// ScanComplete is closed.
func (wt *Worktree) Files() []string { return wt.files }

// Changed fires when paths have been modified since the last TakeChanges.
func (wt *Worktree) Changed() <-chan struct{} { return wt.changed }

// TakeChanges returns and clears the repo-relative paths reported by the
// watcher, sorted.
func (wt *Worktree) TakeChanges() []string {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	paths := make([]string, 0, len(wt.pending))
	for p := range wt.pending {
		paths = append(paths, p)
	}
	clear(wt.pending)
	sort.Strings(paths)
	return paths
}

// Indexable reports whether a repo-relative path should be in the index.
func (wt *Worktree) Indexable(rel string) bool {
	abs := filepath.Join(wt.root, filepath.FromSlash(rel))
	return isCodeFile(abs) && !wt.ignore.ShouldIgnore(abs)
}

// Close stops the watcher and waits for it to exit.
func (wt *Worktree) Close() error {
	wt.cancel()
	<-wt.done
	return nil
}

func (wt *Worktree) run(ctx context.Context) {
	defer close(wt.done)

	wt.files = wt.scan()
	close(wt.scanned)
	wt.logger.Debug("scan complete", zap.Int("files", len(wt.files)))

	if err := wt.watch(ctx); err != nil {
		wt.logger.Warn("watcher stopped", zap.Error(err))
	}
}

func (wt *Worktree) scan() []string {
	var files []string
	var skippedDirs, skippedFiles int
	_ = filepath.WalkDir(wt.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if wt.ignore.ShouldIgnore(path) {
				skippedDirs++
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !isCodeFile(path) || wt.ignore.ShouldIgnore(path) {
			skippedFiles++
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxFileSize {
			skippedFiles++
			return nil
		}
		if rel, err := filepath.Rel(wt.root, path); err == nil {
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	wt.logger.Debug("scan skipped paths", zap.Int("dirs", skippedDirs), zap.Int("files", skippedFiles))
	sort.Strings(files)
	return files
}

func (wt *Worktree) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := wt.addDirs(watcher, wt.root); err != nil {
		return err
	}

	var debounce *time.Timer
	batch := make(map[string]struct{})
	var batchMu sync.Mutex

	flush := func() {
		batchMu.Lock()
		defer batchMu.Unlock()

		wt.mu.Lock()
		for p := range batch {
			wt.pending[p] = struct{}{}
		}
		wt.mu.Unlock()
		clear(batch)

		select {
		case wt.changed <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			batchMu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			batchMu.Unlock()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if wt.ignore.ShouldIgnore(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				// New directories need their own watch.
				if err := wt.addDirs(watcher, event.Name); err != nil {
					wt.logger.Debug("watch new path", zap.String("path", event.Name), zap.Error(err))
				}
			}
			rel, err := filepath.Rel(wt.root, event.Name)
			if err != nil {
				continue
			}

			batchMu.Lock()
			batch[filepath.ToSlash(rel)] = struct{}{}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(wt.debounce, flush)
			batchMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			wt.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// addDirs watches dir and every non-ignored directory below it. Paths that
// are not directories are ignored.
func (wt *Worktree) addDirs(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if wt.ignore.ShouldIgnore(path) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
