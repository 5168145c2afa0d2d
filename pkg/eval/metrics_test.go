package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/XiaoConstantine/sgrep-evals/pkg/dataset"
)

func TestMRR(t *testing.T) {
	assert.Equal(t, 0.0, MRR(nil))
	assert.Equal(t, 0.0, MRR([]bool{false, false}))
	assert.Equal(t, 1.0, MRR([]bool{true, false}))
	assert.InDelta(t, 1.0/3, MRR([]bool{false, false, true, true}), 1e-9)
}

func TestPrecisionAtK(t *testing.T) {
	hits := []bool{true, false, true, false}

	assert.Equal(t, 0.0, PrecisionAtK(hits, 0))
	assert.Equal(t, 1.0, PrecisionAtK(hits, 1))
	assert.Equal(t, 0.5, PrecisionAtK(hits, 4))
	// Missing ranks count as misses.
	assert.Equal(t, 0.25, PrecisionAtK(hits, 8))
}

func TestRecall(t *testing.T) {
	assert.Equal(t, 0.0, Recall(EvaluationQueryOutcome{}))
	assert.Equal(t, 0.5, Recall(EvaluationQueryOutcome{CoveredResultCount: 1, TotalResultCount: 2}))
}

func TestAggregator(t *testing.T) {
	agg := NewAggregator(2)
	assert.Equal(t, Summary{}, agg.Summary())

	agg.Add("a/b", EvaluationQueryOutcome{
		ExpectedResults:    []dataset.EvaluationSearchResult{result("x.go", 2, 3)},
		ActualResults:      []dataset.EvaluationSearchResult{result("x.go", 1, 5)},
		CoveredResultCount: 1,
		TotalResultCount:   1,
	})
	agg.Add("a/b", EvaluationQueryOutcome{
		ExpectedResults:    []dataset.EvaluationSearchResult{result("x.go", 2, 3), result("y.go", 1, 2)},
		ActualResults:      []dataset.EvaluationSearchResult{result("z.go", 0, 9), result("y.go", 0, 9)},
		CoveredResultCount: 1,
		TotalResultCount:   2,
	})
	agg.Add("c/d", EvaluationQueryOutcome{TotalResultCount: 1})

	s := agg.Summary()
	assert.Equal(t, 2, s.NumProjects)
	assert.Equal(t, 3, s.NumQueries)
	assert.Equal(t, 2, s.Covered)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 0.5, s.Coverage)
	assert.InDelta(t, (1.0+0.5+0)/3, s.MeanRecall, 1e-9)
	assert.InDelta(t, (1.0+0.5+0)/3, s.MeanMRR, 1e-9)
	assert.InDelta(t, (0.5+0.5+0)/3, s.MeanPrecisionK, 1e-9)
}
