package embed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider embeds a text as [len(text), batch number].
type countingProvider struct {
	mu      sync.Mutex
	batches [][]string
	err     error
	short   bool
}

func (p *countingProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.batches = append(p.batches, append([]string(nil), texts...))
	n := len(texts)
	if p.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(len(texts[i])), float32(len(p.batches))}
	}
	return out, nil
}

func (p *countingProvider) Dimension() int { return 2 }

func TestEmbedderBatchesAndCaches(t *testing.T) {
	p := &countingProvider{}
	e := New(p, Config{BatchSize: 2})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 1}, vecs[0])
	assert.Equal(t, []float32{2, 1}, vecs[1])
	assert.Equal(t, []float32{3, 2}, vecs[2])
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, p.batches)

	// Cached texts never reach the provider again.
	vecs, err = e.EmbedBatch(context.Background(), []string{"bb", "dddd"})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 1}, vecs[0])
	assert.Equal(t, []float32{4, 3}, vecs[1])
	assert.Equal(t, []string{"dddd"}, p.batches[2])

	v, err := e.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, v)
	assert.Len(t, p.batches, 3)

	total, hits, errs := e.Stats()
	assert.EqualValues(t, 6, total)
	assert.EqualValues(t, 2, hits)
	assert.EqualValues(t, 0, errs)
	assert.Equal(t, 2, e.Dimension())
}

func TestEmbedderDoesNotModifyInput(t *testing.T) {
	p := &countingProvider{}
	e := New(p, Config{})

	long := strings.Repeat("word ", maxInputTokens)
	texts := []string{long}
	_, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)

	assert.Equal(t, long, texts[0])
	assert.Less(t, len(p.batches[0][0]), len(long))
}

func TestEmbedderErrors(t *testing.T) {
	boom := errors.New("rate limited")
	e := New(&countingProvider{err: boom}, Config{})
	_, err := e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, boom)

	e = New(&countingProvider{short: true}, Config{})
	_, err = e.EmbedBatch(context.Background(), []string{"x", "y"})
	assert.ErrorContains(t, err, "1 embeddings for 2 inputs")

	_, _, errs := e.Stats()
	assert.EqualValues(t, 1, errs)
}

func TestEmbedderEmpty(t *testing.T) {
	vecs, err := New(&countingProvider{}, Config{}).EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestTruncateToTokenLimit(t *testing.T) {
	assert.Equal(t, "short", truncateToTokenLimit("short", 10))

	text := strings.Repeat("line of code\n", 100)
	got := truncateToTokenLimit(text, 50)
	assert.LessOrEqual(t, len(got), 150)
	assert.True(t, strings.HasSuffix(got, "line of code"), "cut at a line boundary: %q", got[len(got)-20:])
}
