package repos

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"

	"github.com/XiaoConstantine/sgrep-evals/pkg/dataset"
)

type fakeProber struct {
	mu    sync.Mutex
	calls []string
	code  int
	err   error
}

func (p *fakeProber) Probe(_ context.Context, url string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, url)
	return p.code, p.err
}

func (p *fakeProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func newTestSynchronizer(t *testing.T, root string, g Git, p Prober) *Synchronizer {
	return NewSynchronizer(root, g, p, WithLogger(zaptest.NewLogger(t)), WithProgress(nil))
}

func TestSyncRepoIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	g := NewMockGit(ctrl)
	prober := &fakeProber{code: 200}

	root := t.TempDir()
	dir := filepath.Join(root, "a", "b")
	p := &dataset.EvaluationProject{Repo: "a/b", SHA: "deadbeef"}
	s := newTestSynchronizer(t, root, g, prober)

	gomock.InOrder(
		g.EXPECT().Head(dir).Return("", nil),
		g.EXPECT().Init(dir).Return(nil),
		g.EXPECT().AddRemote(dir, "origin", "https://github.com/a/b.git").Return(nil),
		g.EXPECT().Fetch(gomock.Any(), dir, "origin", "deadbeef").Return(nil),
		g.EXPECT().Checkout(gomock.Any(), dir, "deadbeef").Return(nil),
	)

	status, err := s.SyncRepo(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, status)
	assert.Equal(t, []string{"https://github.com/a/b"}, prober.calls)

	// Second run: HEAD already matches, so no probe and no fetch.
	g.EXPECT().Head(dir).Return("deadbeef", nil)

	status, err = s.SyncRepo(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusUpToDate, status)
	assert.Equal(t, 1, prober.count())
}

func TestSyncRepoMarksMissingRepository(t *testing.T) {
	ctrl := gomock.NewController(t)
	g := NewMockGit(ctrl)
	prober := &fakeProber{code: 404}

	root := t.TempDir()
	dir := filepath.Join(root, "gone", "repo")
	p := &dataset.EvaluationProject{Repo: "gone/repo", SHA: "abc"}
	s := newTestSynchronizer(t, root, g, prober)

	g.EXPECT().Head(dir).Return("", nil)

	status, err := s.SyncRepo(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, status)
	assert.FileExists(t, filepath.Join(dir, dataset.SkipMarker))

	// Marked repositories are never looked at again.
	for i := 0; i < 2; i++ {
		status, err = s.SyncRepo(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, status)
	}
	assert.Equal(t, 1, prober.count())
}

func TestSyncRepoRedirectIsAvailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	g := NewMockGit(ctrl)
	prober := &fakeProber{code: 301}

	root := t.TempDir()
	dir := filepath.Join(root, "old", "name")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	s := newTestSynchronizer(t, root, g, prober)

	// Existing repository: no Init, and an existing remote is fine.
	g.EXPECT().Head(dir).Return("0000", nil)
	g.EXPECT().AddRemote(dir, "origin", gomock.Any()).Return(ErrRemoteExists)
	g.EXPECT().Fetch(gomock.Any(), dir, "origin", "1111").Return(nil)
	g.EXPECT().Checkout(gomock.Any(), dir, "1111").Return(nil)

	status, err := s.SyncRepo(context.Background(), &dataset.EvaluationProject{Repo: "old/name", SHA: "1111"})
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, status)
	assert.NoFileExists(t, filepath.Join(dir, dataset.SkipMarker))
}

func TestSyncRepoFailuresAreRetried(t *testing.T) {
	tests := []struct {
		name   string
		prober *fakeProber
		setup  func(g *MockGit, dir string)
	}{
		{
			name:   "fetch fails",
			prober: &fakeProber{code: 200},
			setup: func(g *MockGit, dir string) {
				g.EXPECT().Head(dir).Return("", nil)
				g.EXPECT().Init(dir).Return(nil)
				g.EXPECT().AddRemote(dir, "origin", gomock.Any()).Return(nil)
				g.EXPECT().Fetch(gomock.Any(), dir, "origin", "sha").Return(errors.New("git fetch: exit status 128"))
			},
		},
		{
			name:   "checkout fails",
			prober: &fakeProber{code: 200},
			setup: func(g *MockGit, dir string) {
				g.EXPECT().Head(dir).Return("", nil)
				g.EXPECT().Init(dir).Return(nil)
				g.EXPECT().AddRemote(dir, "origin", gomock.Any()).Return(nil)
				g.EXPECT().Fetch(gomock.Any(), dir, "origin", "sha").Return(nil)
				g.EXPECT().Checkout(gomock.Any(), dir, "sha").Return(errors.New("git checkout: exit status 1"))
			},
		},
		{
			name:   "probe transport error",
			prober: &fakeProber{err: errors.New("connection reset")},
			setup: func(g *MockGit, dir string) {
				g.EXPECT().Head(dir).Return("", nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			g := NewMockGit(ctrl)
			root := t.TempDir()
			dir := filepath.Join(root, "o", "r")
			tt.setup(g, dir)

			s := newTestSynchronizer(t, root, g, tt.prober)
			status, err := s.SyncRepo(context.Background(), &dataset.EvaluationProject{Repo: "o/r", SHA: "sha"})
			assert.Error(t, err)
			assert.Equal(t, StatusFailed, status)
			assert.NoFileExists(t, filepath.Join(dir, dataset.SkipMarker))
		})
	}
}

func TestSyncRepoMalformedRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newTestSynchronizer(t, t.TempDir(), NewMockGit(ctrl), &fakeProber{})

	status, err := s.SyncRepo(context.Background(), &dataset.EvaluationProject{Repo: "noslash", SHA: "x"})
	assert.Error(t, err)
	assert.Equal(t, StatusSkipped, status)
}

func TestChunks(t *testing.T) {
	tests := []struct {
		n, workers int
		want       [][2]int
	}{
		{0, 8, nil},
		{3, 8, [][2]int{{0, 1}, {1, 2}, {2, 3}}},
		{8, 8, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 6}, {6, 7}, {7, 8}}},
		{10, 4, [][2]int{{0, 3}, {3, 6}, {6, 9}, {9, 10}}},
		{17, 8, [][2]int{{0, 3}, {3, 6}, {6, 9}, {9, 12}, {12, 15}, {15, 17}}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.n, tt.workers), func(t *testing.T) {
			assert.Equal(t, tt.want, Chunks(tt.n, tt.workers))
		})
	}
}

func TestChunksCoverEveryIndexOnce(t *testing.T) {
	for n := 1; n < 100; n++ {
		seen := make([]int, n)
		chunks := Chunks(n, DefaultWorkers)
		assert.LessOrEqual(t, len(chunks), DefaultWorkers)
		for _, c := range chunks {
			for i := c[0]; i < c[1]; i++ {
				seen[i]++
			}
		}
		for i, count := range seen {
			require.Equal(t, 1, count, "n=%d index %d", n, i)
		}
	}
}

func TestSyncReport(t *testing.T) {
	ctrl := gomock.NewController(t)
	g := NewMockGit(ctrl)
	prober := &fakeProber{code: 404}
	root := t.TempDir()

	var projects []dataset.EvaluationProject
	for i := 0; i < 20; i++ {
		projects = append(projects, dataset.EvaluationProject{Repo: fmt.Sprintf("owner/repo%d", i), SHA: fmt.Sprintf("sha%d", i)})
	}
	projects = append(projects, dataset.EvaluationProject{Repo: "broken", SHA: "x"})

	// Every checkout but repo7 is already pinned; repo7 is gone.
	g.EXPECT().Head(gomock.Any()).DoAndReturn(func(dir string) (string, error) {
		name := filepath.Base(dir)
		if name == "repo7" {
			return "", nil
		}
		return "sha" + strings.TrimPrefix(name, "repo"), nil
	}).Times(20)

	s := newTestSynchronizer(t, root, g, prober)
	report, err := s.Sync(context.Background(), projects)
	require.NoError(t, err)

	assert.Equal(t, 19, report.UpToDate)
	assert.Equal(t, 1, report.Unavailable)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 21, report.Total())
	assert.Equal(t, []string{"https://github.com/owner/repo7"}, prober.calls)
}

func TestSyncCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newTestSynchronizer(t, t.TempDir(), NewMockGit(ctrl), &fakeProber{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := s.Sync(ctx, []dataset.EvaluationProject{{Repo: "a/b", SHA: "1"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Total())
}
