package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/XiaoConstantine/sgrep-evals/pkg/chunk"
	"github.com/XiaoConstantine/sgrep-evals/pkg/dataset"
	"github.com/XiaoConstantine/sgrep-evals/pkg/eval"
	"github.com/XiaoConstantine/sgrep-evals/pkg/store"
	"github.com/XiaoConstantine/sgrep-evals/pkg/util"
)

var _ eval.ProjectIndex = (*ProjectIndex)(nil)

// IndexProgress is published on util.EvtIndexProgress while indexing.
type IndexProgress struct {
	Done  int64
	Total int64
}

// ProjectIndex keeps the index of one worktree current and answers queries.
type ProjectIndex struct {
	wt       *Worktree
	store    *store.Store
	embedder Embedder
	chunker  *chunk.Chunker
	workers  int
	logger   *zap.Logger
	box      *util.EventBox

	cancel context.CancelFunc
	done   chan struct{}
}

type preparedFile struct {
	path string
	hash string
	docs []*store.Document
}

type subscription func()

func (s subscription) Release() { s() }

func newProjectIndex(wt *Worktree, st *store.Store, embedder Embedder, chunker *chunk.Chunker, workers int, logger *zap.Logger) *ProjectIndex {
	ctx, cancel := context.WithCancel(context.Background())
	p := &ProjectIndex{
		wt:       wt,
		store:    st,
		embedder: embedder,
		chunker:  chunker,
		workers:  max(workers, 1),
		logger:   logger.With(zap.String("project", wt.Root())),
		box:      util.NewEventBox(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	p.box.Set(util.EvtIndexStatus, eval.StatusScanning)
	go p.run(ctx)
	return p
}

// Subscribe calls fn with the current status and then on every change.
func (p *ProjectIndex) Subscribe(fn func(eval.IndexStatus)) eval.Subscription {
	release := p.box.Subscribe(util.EvtIndexStatus, func(v interface{}) {
		fn(v.(eval.IndexStatus))
	})
	return subscription(release)
}

// Status returns the current status.
func (p *ProjectIndex) Status() eval.IndexStatus {
	v, _ := p.box.Peek(util.EvtIndexStatus)
	return v.(eval.IndexStatus)
}

// Progress returns the file counts of the current or last indexing pass.
func (p *ProjectIndex) Progress() IndexProgress {
	if v, ok := p.box.Peek(util.EvtIndexProgress); ok {
		return v.(IndexProgress)
	}
	return IndexProgress{}
}

// Err returns the error that stopped indexing, if any.
func (p *ProjectIndex) Err() error {
	if v, ok := p.box.Peek(util.EvtIndexError); ok {
		return v.(error)
	}
	return nil
}

// Search embeds query and returns the limit nearest chunks as file and
// line locations.
func (p *ProjectIndex) Search(ctx context.Context, query string, limit int) ([]dataset.EvaluationSearchResult, error) {
	if err := p.Err(); err != nil {
		return nil, fmt.Errorf("index incomplete: %w", err)
	}

	emb, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	docs, _, err := p.store.Search(ctx, emb, limit)
	if err != nil {
		return nil, err
	}

	results := make([]dataset.EvaluationSearchResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, dataset.EvaluationSearchResult{
			File:  doc.FilePath,
			Lines: dataset.LineRange{Start: uint32(doc.StartLine), End: uint32(doc.EndLine)},
		})
	}
	return results, nil
}

// Stats returns statistics of the underlying store.
func (p *ProjectIndex) Stats(ctx context.Context) (*store.Stats, error) {
	return p.store.Stats(ctx)
}

// Close stops indexing and closes the store.
func (p *ProjectIndex) Close() error {
	p.cancel()
	<-p.done
	return p.store.Close()
}

func (p *ProjectIndex) run(ctx context.Context) {
	defer close(p.done)

	select {
	case <-p.wt.ScanComplete():
	case <-ctx.Done():
		return
	}

	p.pass(ctx, func() error { return p.sync(ctx) })

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wt.Changed():
			paths := p.wt.TakeChanges()
			if len(paths) == 0 {
				continue
			}
			p.pass(ctx, func() error { return p.update(ctx, paths) })
		}
	}
}

// pass runs one indexing pass between Indexing and Idle. A failed pass
// stops further indexing; Search reports the failure.
func (p *ProjectIndex) pass(ctx context.Context, fn func() error) {
	if p.Err() != nil {
		return
	}
	p.box.Set(util.EvtIndexStatus, eval.StatusIndexing)
	start := time.Now()

	err := fn()
	if err != nil && ctx.Err() == nil {
		p.logger.Error("indexing failed", zap.Error(err))
		p.box.Set(util.EvtIndexError, err)
	}

	prog := p.Progress()
	p.logger.Debug("indexing pass done",
		zap.Int64("files", prog.Done),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	p.box.Set(util.EvtIndexStatus, eval.StatusIdle)
}

// sync reconciles the store with the scanned files: unchanged files are
// skipped by content hash, vanished files are removed.
func (p *ProjectIndex) sync(ctx context.Context) error {
	known, err := p.store.FileHashes(ctx)
	if err != nil {
		return err
	}

	files := p.wt.Files()
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f] = true
	}
	for path := range known {
		if !present[path] {
			if err := p.store.DeleteByPath(ctx, path); err != nil {
				return err
			}
		}
	}
	return p.index(ctx, files, known)
}

// update applies watcher-reported paths. A path may name a file or a
// directory, existing or not.
func (p *ProjectIndex) update(ctx context.Context, paths []string) error {
	known, err := p.store.FileHashes(ctx)
	if err != nil {
		return err
	}

	var files []string
	for _, rel := range paths {
		abs := filepath.Join(p.wt.Root(), filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			for path := range known {
				if path == rel || strings.HasPrefix(path, rel+"/") {
					if err := p.store.DeleteByPath(ctx, path); err != nil {
						return err
					}
				}
			}
		case err != nil:
			p.logger.Debug("stat changed path", zap.String("path", rel), zap.Error(err))
		case info.IsDir():
			files = append(files, p.walk(abs)...)
		case info.Mode().IsRegular() && p.wt.Indexable(rel) && info.Size() <= maxFileSize:
			files = append(files, rel)
		}
	}
	slices.Sort(files)
	return p.index(ctx, slices.Compact(files), known)
}

func (p *ProjectIndex) walk(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p.wt.ignore.ShouldIgnore(path) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(p.wt.Root(), path)
		if err == nil && d.Type().IsRegular() && p.wt.Indexable(filepath.ToSlash(rel)) {
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	return files
}

// index chunks and embeds files on a worker pool and hands the results to
// a single writer goroutine, so sqlite only ever sees one writer.
func (p *ProjectIndex) index(ctx context.Context, files []string, known map[string]string) error {
	total := int64(len(files))
	p.box.Set(util.EvtIndexProgress, IndexProgress{Total: total})

	var mu sync.Mutex
	var done int64
	advance := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		p.box.Set(util.EvtIndexProgress, IndexProgress{Done: done, Total: total})
	}
	stats := util.NewTimingStats()

	g, gctx := errgroup.WithContext(ctx)
	pathCh := make(chan string)
	docCh := make(chan preparedFile, p.workers*2)

	g.Go(func() error {
		defer close(pathCh)
		for _, f := range files {
			select {
			case pathCh <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for range p.workers {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for path := range pathCh {
				pf, ok, err := p.prepare(gctx, stats, path, known[path])
				if err != nil {
					return fmt.Errorf("index %s: %w", path, err)
				}
				if !ok {
					advance()
					continue
				}
				select {
				case docCh <- pf:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(docCh)
	}()

	g.Go(func() error {
		for pf := range docCh {
			timer := stats.Start("store").WithCount(int64(len(pf.docs)))
			err := p.store.ReplaceFile(gctx, pf.path, pf.hash, pf.docs)
			timer.Stop()
			if err != nil {
				return fmt.Errorf("store %s: %w", pf.path, err)
			}
			advance()
		}
		return nil
	})

	err := g.Wait()
	if total > 0 {
		bottleneck, share := stats.Bottleneck()
		p.logger.Debug("index stages",
			zap.Object("stages", stats),
			zap.String("bottleneck", bottleneck),
			zap.Float64("share", share))
	}
	return err
}

// prepare reads, chunks and embeds a file. ok is false when the file is
// unreadable or its content hash matches knownHash.
func (p *ProjectIndex) prepare(ctx context.Context, stats *util.TimingStats, rel, knownHash string) (preparedFile, bool, error) {
	content, err := os.ReadFile(filepath.Join(p.wt.Root(), filepath.FromSlash(rel)))
	if err != nil {
		p.logger.Debug("skipping unreadable file", zap.String("path", rel), zap.Error(err))
		return preparedFile{}, false, nil
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	if hash == knownHash {
		return preparedFile{}, false, nil
	}

	timer := stats.Start("chunk")
	chunks := p.chunker.Chunk(rel, string(content))
	timer.Stop()

	pf := preparedFile{path: rel, hash: hash}
	if len(chunks) == 0 {
		return pf, true, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text()
	}
	timer = stats.Start("embed").WithCount(int64(len(texts)))
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	timer.Stop()
	if err != nil {
		return preparedFile{}, false, err
	}

	pf.docs = make([]*store.Document, len(chunks))
	for i, c := range chunks {
		pf.docs[i] = &store.Document{
			FilePath:  rel,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Content:   c.Content,
			Embedding: embeddings[i],
		}
	}
	return pf, true, nil
}
