package eval

import "github.com/XiaoConstantine/sgrep-evals/pkg/dataset"

// EvaluationQueryOutcome is the scored result of one query. It is never
// modified after Score builds it.
type EvaluationQueryOutcome struct {
	Query              string                           `json:"query"`
	ExpectedResults    []dataset.EvaluationSearchResult `json:"expected_results"`
	ActualResults      []dataset.EvaluationSearchResult `json:"actual_results"`
	CoveredResultCount int                              `json:"covered_result_count"`
	TotalResultCount   int                              `json:"total_result_count"`
}

// Covers reports whether actual spans expected: same path, and both ends of
// the expected range fall inside the actual range.
func Covers(actual, expected dataset.EvaluationSearchResult) bool {
	return actual.File == expected.File &&
		actual.Lines.Contains(expected.Lines.Start) &&
		actual.Lines.Contains(expected.Lines.End)
}

// Score counts how many expected results are covered by at least one actual
// result. Ranking is ignored.
func Score(query dataset.EvaluationQuery, actual []dataset.EvaluationSearchResult) EvaluationQueryOutcome {
	covered := 0
	for _, expected := range query.ExpectedResults {
		for _, a := range actual {
			if Covers(a, expected) {
				covered++
				break
			}
		}
	}

	if actual == nil {
		actual = []dataset.EvaluationSearchResult{}
	}

	return EvaluationQueryOutcome{
		Query:              query.Query,
		ExpectedResults:    query.ExpectedResults,
		ActualResults:      actual,
		CoveredResultCount: covered,
		TotalResultCount:   len(query.ExpectedResults),
	}
}

// Hits marks, per actual rank, whether that result covers any expected result.
func (o EvaluationQueryOutcome) Hits() []bool {
	hits := make([]bool, len(o.ActualResults))
	for i, a := range o.ActualResults {
		for _, expected := range o.ExpectedResults {
			if Covers(a, expected) {
				hits[i] = true
				break
			}
		}
	}
	return hits
}
