// Package embed turns text into vectors through a pluggable provider.
package embed

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/XiaoConstantine/sgrep-evals/pkg/util"
)

const (
	defaultBatchSize = 256
	defaultCacheSize = 10000
	// Leaves headroom under the 8191-token input limit of OpenAI embedding models.
	maxInputTokens = 6000
)

// Provider is an embedding backend.
type Provider interface {
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the length of every returned vector.
	Dimension() int
}

// Config holds embedder configuration.
type Config struct {
	BatchSize int
	CacheSize int
}

// Embedder batches and caches calls to a Provider.
type Embedder struct {
	provider  Provider
	cache     *util.LRU[string, []float32]
	batchSize int

	totalRequests atomic.Int64
	cacheHits     atomic.Int64
	errors        atomic.Int64
}

// New creates an embedder over provider.
func New(provider Provider, cfg Config) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	return &Embedder{
		provider:  provider,
		cache:     util.NewLRU[string, []float32](cfg.CacheSize),
		batchSize: cfg.BatchSize,
	}
}

// Dimension is the vector length of the underlying provider.
func (e *Embedder) Dimension() int {
	return e.provider.Dimension()
}

// Embed generates an embedding for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, serving repeats from the cache and sending the
// rest to the provider in batches.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.totalRequests.Add(int64(len(texts)))

	inputs := make([]string, len(texts))
	results := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		text = truncateToTokenLimit(text, maxInputTokens)
		inputs[i] = text
		if v, ok := e.cache.Get(text); ok {
			results[i] = v
			e.cacheHits.Add(1)
			continue
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += e.batchSize {
		idx := missing[start:min(start+e.batchSize, len(missing))]
		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = inputs[i]
		}

		vecs, err := e.provider.EmbedBatch(ctx, batch)
		if err != nil {
			e.errors.Add(1)
			return nil, err
		}
		if len(vecs) != len(batch) {
			e.errors.Add(1)
			return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(vecs), len(batch))
		}

		for j, i := range idx {
			results[i] = vecs[j]
			e.cache.Set(batch[j], vecs[j])
		}
	}
	return results, nil
}

// Stats returns embedder statistics.
func (e *Embedder) Stats() (total, hits, errors int64) {
	return e.totalRequests.Load(), e.cacheHits.Load(), e.errors.Load()
}

// truncateToTokenLimit cuts text to roughly maxTokens, at ~3 chars per
// token, preferring a line or word boundary.
func truncateToTokenLimit(text string, maxTokens int) string {
	maxChars := maxTokens * 3
	if len(text) <= maxChars {
		return text
	}
	truncated := text[:maxChars]
	if idx := strings.LastIndex(truncated, "\n"); idx > maxChars*3/4 {
		truncated = truncated[:idx]
	} else if idx := strings.LastIndex(truncated, " "); idx > maxChars/2 {
		truncated = truncated[:idx]
	}
	return truncated
}
