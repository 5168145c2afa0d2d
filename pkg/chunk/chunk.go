// Package chunk splits source files into embeddable units.
package chunk

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Chunk is a contiguous span of a file. Lines are 1-based and half-open:
// a chunk covering lines 3 through 7 has StartLine 3 and EndLine 8.
type Chunk struct {
	Path        string
	StartLine   int
	EndLine     int
	Content     string
	Description string // prepended to the content when embedding
}

// Text is what gets embedded for the chunk.
func (c Chunk) Text() string {
	if c.Description == "" {
		return c.Content
	}
	return c.Description + "\n\n" + c.Content
}

// Config bounds chunk sizes.
type Config struct {
	MaxTokens int // per chunk, including the description
	MinTokens int // smaller semantic units are dropped
	Overlap   int // lines repeated between size-based windows
}

// DefaultConfig keeps chunks well under the embedding model's input limit.
func DefaultConfig() Config {
	return Config{MaxTokens: 1200, MinTokens: 10, Overlap: 3}
}

// Chunker picks a strategy per file: go/ast for Go, tree-sitter for
// registered languages, fixed-size windows for everything else.
type Chunker struct {
	cfg Config
}

// New creates a chunker. Zero fields in cfg take their defaults.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = def.MinTokens
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	return &Chunker{cfg: cfg}
}

// Chunk splits content. path is repo-relative and only used for language
// detection and descriptions.
func (c *Chunker) Chunk(path, content string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var chunks []Chunk
	switch {
	case strings.EqualFold(filepath.Ext(path), ".go"):
		chunks = c.chunkGo(path, content)
	case Lookup(path) != nil:
		chunks = c.chunkTreeSitter(path, content, Lookup(path))
	}
	if len(chunks) == 0 {
		return c.chunkBySize(path, content)
	}

	var out []Chunk
	for _, ch := range chunks {
		out = append(out, c.split(ch)...)
	}
	return out
}

// chunkBySize cuts windows of whole lines up to the token budget, repeating
// the last Overlap lines of each window at the start of the next.
func (c *Chunker) chunkBySize(path, content string) []Chunk {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	budget := max(c.cfg.MaxTokens-50, 100)

	var chunks []Chunk
	start := 0
	for start < len(lines) {
		end, tokens := start, 0
		for end < len(lines) {
			t := EstimateTokens(lines[end]) + 1
			if tokens+t > budget && end > start {
				break
			}
			tokens += t
			end++
		}

		chunks = append(chunks, Chunk{
			Path:        path,
			StartLine:   start + 1,
			EndLine:     end + 1,
			Content:     strings.Join(lines[start:end], "\n"),
			Description: fmt.Sprintf("Code from %s (lines %d-%d)", filepath.Base(path), start+1, end),
		})

		if end == len(lines) {
			break
		}
		start = max(end-c.cfg.Overlap, start+1)
	}
	return chunks
}

// split breaks a semantic chunk that is over budget into consecutive parts.
func (c *Chunker) split(ch Chunk) []Chunk {
	budget := max(c.cfg.MaxTokens-EstimateTokens(ch.Description)-10, 100)
	if EstimateTokens(ch.Content) <= budget {
		return []Chunk{ch}
	}

	lines := strings.Split(ch.Content, "\n")
	var parts []Chunk
	start := 0
	for start < len(lines) {
		end, tokens := start, 0
		for end < len(lines) {
			t := EstimateTokens(lines[end]) + 1
			if tokens+t > budget && end > start {
				break
			}
			tokens += t
			end++
		}
		parts = append(parts, Chunk{
			Path:      ch.Path,
			StartLine: ch.StartLine + start,
			EndLine:   ch.StartLine + end,
			Content:   strings.Join(lines[start:end], "\n"),
		})
		start = end
	}

	for i := range parts {
		parts[i].Description = fmt.Sprintf("%s (part %d/%d)", ch.Description, i+1, len(parts))
	}
	return parts
}

// EstimateTokens is a conservative token count for code: the larger of
// chars/4 and words*1.3.
func EstimateTokens(text string) int {
	charBased := len(text) / 4
	wordBased := int(float64(len(strings.Fields(text))) * 1.3)
	return max(charBased, wordBased)
}
