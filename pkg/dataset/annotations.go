package dataset

import (
	"iter"
	"math"
	"strconv"
	"strings"
)

const githubPrefix = "https://github.com/"

// Annotation is a single relevant (query, code location) judgment decoded from
// an annotationStore.csv line.
type Annotation struct {
	Repo  string // owner/name
	SHA   string
	Query string
	File  string
	Lines LineRange
}

// Result returns the annotated location as a search result.
func (a Annotation) Result() EvaluationSearchResult {
	return EvaluationSearchResult{File: a.File, Lines: a.Lines}
}

// ParseAnnotations lazily decodes every usable line of content. Lines that are
// malformed, point outside GitHub or carry a zero relevance score are skipped.
// The returned sequence can be ranged over any number of times.
func ParseAnnotations(content string) iter.Seq[Annotation] {
	return func(yield func(Annotation) bool) {
		for line := range strings.Lines(content) {
			a, ok := ParseAnnotation(strings.TrimRight(line, "\r\n"))
			if !ok {
				continue
			}
			if !yield(a) {
				return
			}
		}
	}
}

// ParseAnnotation decodes one CSV line: language, query, permalink, score, ...
func ParseAnnotation(line string) (Annotation, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return Annotation{}, false
	}
	query, url, score := fields[1], fields[2], fields[3]

	if score == "0" {
		return Annotation{}, false
	}

	repo, sha, file, fragment, ok := splitPermalink(url)
	if !ok {
		return Annotation{}, false
	}

	lines, ok := parseLineFragment(fragment)
	if !ok {
		return Annotation{}, false
	}

	return Annotation{
		Repo:  repo,
		SHA:   sha,
		Query: query,
		File:  file,
		Lines: lines,
	}, true
}

// splitPermalink decodes https://github.com/<owner>/<name>/blob/<sha>/<path>#<fragment>.
func splitPermalink(url string) (repo, sha, file, fragment string, ok bool) {
	rest, ok := strings.CutPrefix(url, githubPrefix)
	if !ok {
		return "", "", "", "", false
	}

	rest, fragment, ok = strings.Cut(rest, "#")
	if !ok {
		return "", "", "", "", false
	}

	repo, rest, ok = strings.Cut(rest, "/blob/")
	if !ok {
		return "", "", "", "", false
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", "", "", false
	}

	sha, file, ok = strings.Cut(rest, "/")
	if !ok || sha == "" || file == "" {
		return "", "", "", "", false
	}

	return repo, sha, file, fragment, true
}

// parseLineFragment decodes "L<a>-L<b>" into [a, b) and "L<n>" into [n, n+1).
func parseLineFragment(fragment string) (LineRange, bool) {
	if start, end, found := strings.Cut(fragment, "-"); found {
		a, ok := parseLineRef(start)
		if !ok {
			return LineRange{}, false
		}
		b, ok := parseLineRef(end)
		if !ok {
			return LineRange{}, false
		}
		return LineRange{Start: a, End: b}, true
	}

	n, ok := parseLineRef(fragment)
	if !ok || n == math.MaxUint32 {
		return LineRange{}, false
	}
	return LineRange{Start: n, End: n + 1}, true
}

func parseLineRef(s string) (uint32, bool) {
	digits, ok := strings.CutPrefix(s, "L")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
