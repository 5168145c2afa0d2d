package dataset

import (
	"math/rand"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func annotation(repo, sha, query, file string, start, end uint32) Annotation {
	return Annotation{Repo: repo, SHA: sha, Query: query, File: file, Lines: LineRange{start, end}}
}

func TestBuilderMergesQueriesAndResults(t *testing.T) {
	b := NewBuilder()
	b.Add(annotation("a/b", "s1", "parse json", "x.go", 1, 5))
	b.Add(annotation("a/b", "s1", "parse json", "x.go", 1, 5))
	b.Add(annotation("a/b", "s1", "parse json", "y.go", 2, 3))
	b.Add(annotation("a/b", "s1", "open file", "z.go", 7, 8))
	b.Add(annotation("a/b", "s2", "parse json", "x.go", 1, 5))

	projects := b.Projects()
	require.Len(t, projects, 2)

	p := projects[0]
	assert.Equal(t, "a/b", p.Repo)
	assert.Equal(t, "s1", p.SHA)
	require.Len(t, p.Queries, 2)
	assert.Equal(t, "parse json", p.Queries[0].Query)
	assert.Equal(t, []EvaluationSearchResult{
		{File: "x.go", Lines: LineRange{1, 5}},
		{File: "y.go", Lines: LineRange{2, 3}},
	}, p.Queries[0].ExpectedResults)
	assert.Equal(t, "open file", p.Queries[1].Query)

	assert.Equal(t, "s2", projects[1].SHA)
}

func TestBuilderFirstOccurrenceOrder(t *testing.T) {
	b := NewBuilder()
	b.Add(annotation("z/z", "1", "q", "f", 1, 2))
	b.Add(annotation("a/a", "1", "q", "f", 1, 2))
	b.Add(annotation("z/z", "1", "q2", "f", 1, 2))
	b.Add(annotation("m/m", "1", "q", "f", 1, 2))

	var repos []string
	for _, p := range b.Projects() {
		repos = append(repos, p.Repo)
	}
	assert.Equal(t, []string{"z/z", "a/a", "m/m"}, repos)
	assert.Equal(t, 3, b.Len())
}

func TestBuildNoDuplicates(t *testing.T) {
	content := "" +
		"Go,q,https://github.com/a/b/blob/s/x.go#L1-L5,3\n" +
		"Go,q,https://github.com/a/b/blob/s/x.go#L1-L5,2\n" +
		"Go,q,https://github.com/a/b/blob/s/x.go#L1-L5,1\n" +
		"Go,q,https://github.com/a/b/blob/s/x.go#L2,1\n"

	projects := Build(ParseAnnotations(content))
	require.Len(t, projects, 1)
	require.Len(t, projects[0].Queries, 1)
	assert.Len(t, projects[0].Queries[0].ExpectedResults, 2)
}

func TestBuildZeroScoreExcluded(t *testing.T) {
	content := "" +
		"Go,q,https://github.com/a/b/blob/s/x.go#L1-L5,0\n" +
		"Go,q,https://github.com/a/b/blob/s/y.go#L1-L5,1\n"

	projects := Build(ParseAnnotations(content))
	require.Len(t, projects, 1)
	for _, q := range projects[0].Queries {
		for _, r := range q.ExpectedResults {
			assert.NotEqual(t, "x.go", r.File)
		}
	}
}

func TestBuildOrderIndependent(t *testing.T) {
	var rows []Annotation
	for _, repo := range []string{"a/a", "b/b", "c/c"} {
		for _, q := range []string{"q1", "q2"} {
			for _, f := range []string{"x.go", "y.go", "z.go"} {
				rows = append(rows, annotation(repo, "sha", q, f, 1, 4))
				rows = append(rows, annotation(repo, "sha", q, f, 1, 4))
			}
		}
	}

	canonical := func(projects []EvaluationProject) map[string][]string {
		out := make(map[string][]string)
		for _, p := range projects {
			for _, q := range p.Queries {
				key := p.Repo + "@" + p.SHA + ":" + q.Query
				for _, r := range q.ExpectedResults {
					out[key] = append(out[key], r.File+"#"+r.Lines.String())
				}
				slices.Sort(out[key])
			}
		}
		return out
	}

	want := canonical(Build(slices.Values(rows)))

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := slices.Clone(rows)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, canonical(Build(slices.Values(shuffled))))
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "evaluations.json")
	projects := []EvaluationProject{{
		Repo: "a/b",
		SHA:  "deadbeef",
		Queries: []EvaluationQuery{{
			Query:           "parse json",
			ExpectedResults: []EvaluationSearchResult{{File: "src/x.go", Lines: LineRange{1, 5}}},
		}},
	}}

	require.NoError(t, Save(path, projects))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, projects, loaded)
}

func TestLineRangeJSON(t *testing.T) {
	data, err := LineRange{10, 14}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[10,14]`, string(data))

	var r LineRange
	assert.Error(t, r.UnmarshalJSON([]byte(`{"start":1}`)))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSplitRepo(t *testing.T) {
	p := EvaluationProject{Repo: "owner/name"}
	owner, name, ok := p.SplitRepo()
	require.True(t, ok)
	assert.Equal(t, "owner", owner)
	assert.Equal(t, "name", name)

	_, _, ok = (&EvaluationProject{Repo: "noslash"}).SplitRepo()
	assert.False(t, ok)
	_, _, ok = (&EvaluationProject{Repo: "a/b/c"}).SplitRepo()
	assert.False(t, ok)
}

func TestProjectDir(t *testing.T) {
	p := EvaluationProject{Repo: "owner/name"}
	dir, ok := p.Dir("repos")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("repos", "owner", "name"), dir)

	_, ok = (&EvaluationProject{Repo: "/name"}).Dir("repos")
	assert.False(t, ok)
}
