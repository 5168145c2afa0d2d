// Package dataset builds and persists the CodeSearchNet evaluation dataset.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LineRange is a half-open range of 1-based line numbers: [Start, End).
// It is encoded in JSON as a two-element array.
type LineRange struct {
	Start uint32
	End   uint32
}

// Contains reports whether line n falls inside the range.
func (r LineRange) Contains(n uint32) bool {
	return r.Start <= n && n < r.End
}

func (r LineRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint32{r.Start, r.End})
}

func (r *LineRange) UnmarshalJSON(data []byte) error {
	var pair [2]uint32
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("line range: %w", err)
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}

func (r LineRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// EvaluationSearchResult is a repo-relative file location.
// Two results are equal when both path and range match.
type EvaluationSearchResult struct {
	File  string    `json:"file"`
	Lines LineRange `json:"lines"`
}

// EvaluationQuery is a natural-language query with the locations judged relevant to it.
type EvaluationQuery struct {
	Query           string                   `json:"query"`
	ExpectedResults []EvaluationSearchResult `json:"expected_results"`
}

// EvaluationProject is a repository pinned at a revision, with its queries.
type EvaluationProject struct {
	Repo    string            `json:"repo"` // owner/name
	SHA     string            `json:"sha"`
	Queries []EvaluationQuery `json:"queries"`
}

// SplitRepo returns the owner and name parts of the repo identifier.
func (p *EvaluationProject) SplitRepo() (owner, name string, ok bool) {
	owner, name, ok = strings.Cut(p.Repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return owner, name, true
}

// SkipMarker is the file written into a checkout directory once its
// repository is found to be gone. Marked checkouts are never fetched or
// evaluated again.
const SkipMarker = ".skip_eval"

// Dir returns the checkout directory of the project under root.
func (p *EvaluationProject) Dir(root string) (string, bool) {
	owner, name, ok := p.SplitRepo()
	if !ok {
		return "", false
	}
	return filepath.Join(root, owner, name), true
}

// Load reads a persisted dataset.
func Load(path string) ([]EvaluationProject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var projects []EvaluationProject
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}

	return projects, nil
}

// Save writes the dataset as indented JSON, creating parent directories.
func Save(path string, projects []EvaluationProject) error {
	if projects == nil {
		projects = []EvaluationProject{}
	}

	data, err := json.MarshalIndent(projects, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}
