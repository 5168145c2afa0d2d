package dataset

import "iter"

type projectKey struct {
	repo string
	sha  string
}

type projectEntry struct {
	project EvaluationProject
	queries map[string]int // query text -> index into project.Queries
}

// Builder folds annotations into projects keyed by (repo, sha). Projects keep
// the order in which their key was first seen, queries keep the order of their
// first occurrence within the project, and structurally equal results are
// stored once per query.
type Builder struct {
	index   map[projectKey]int
	entries []*projectEntry
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[projectKey]int)}
}

// Add merges one annotation into the dataset.
func (b *Builder) Add(a Annotation) {
	key := projectKey{repo: a.Repo, sha: a.SHA}
	i, ok := b.index[key]
	if !ok {
		i = len(b.entries)
		b.index[key] = i
		b.entries = append(b.entries, &projectEntry{
			project: EvaluationProject{Repo: a.Repo, SHA: a.SHA, Queries: []EvaluationQuery{}},
			queries: make(map[string]int),
		})
	}
	entry := b.entries[i]

	qi, ok := entry.queries[a.Query]
	if !ok {
		qi = len(entry.project.Queries)
		entry.queries[a.Query] = qi
		entry.project.Queries = append(entry.project.Queries, EvaluationQuery{
			Query:           a.Query,
			ExpectedResults: []EvaluationSearchResult{},
		})
	}
	query := &entry.project.Queries[qi]

	result := a.Result()
	for _, existing := range query.ExpectedResults {
		if existing == result {
			return
		}
	}
	query.ExpectedResults = append(query.ExpectedResults, result)
}

// Len returns the number of distinct projects added so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Projects flattens the builder into a list in first-occurrence order.
func (b *Builder) Projects() []EvaluationProject {
	projects := make([]EvaluationProject, 0, len(b.entries))
	for _, e := range b.entries {
		projects = append(projects, e.project)
	}
	return projects
}

// Build folds a whole annotation sequence into projects.
func Build(annotations iter.Seq[Annotation]) []EvaluationProject {
	b := NewBuilder()
	for a := range annotations {
		b.Add(a)
	}
	return b.Projects()
}
