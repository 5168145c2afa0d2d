package eval

// MRR returns 1/rank of the first hit, or 0 if there is none.
func MRR(hits []bool) float64 {
	for i, h := range hits {
		if h {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// PrecisionAtK computes precision at rank k.
// Precision@k = (hits in top-k) / k
func PrecisionAtK(hits []bool, k int) float64 {
	if k <= 0 {
		return 0
	}
	n := 0
	for i := 0; i < k && i < len(hits); i++ {
		if hits[i] {
			n++
		}
	}
	return float64(n) / float64(k)
}

// Recall is covered / total for one outcome, 0 when nothing was expected.
func Recall(o EvaluationQueryOutcome) float64 {
	if o.TotalResultCount == 0 {
		return 0
	}
	return float64(o.CoveredResultCount) / float64(o.TotalResultCount)
}

// Summary holds aggregated metrics across all scored queries.
type Summary struct {
	NumProjects    int     `json:"num_projects"`
	NumQueries     int     `json:"num_queries"`
	Covered        int     `json:"covered_result_count"`
	Total          int     `json:"total_result_count"`
	Coverage       float64 `json:"coverage"` // Covered / Total over all queries
	MeanRecall     float64 `json:"mean_recall"`
	MeanMRR        float64 `json:"mean_mrr"`
	MeanPrecisionK float64 `json:"mean_precision_at_k"`
}

// Aggregator accumulates a Summary one outcome at a time.
type Aggregator struct {
	k        int
	projects map[string]struct{}
	sum      Summary
}

// NewAggregator returns an aggregator computing precision at rank k.
func NewAggregator(k int) *Aggregator {
	return &Aggregator{k: k, projects: make(map[string]struct{})}
}

// Add records one outcome for the given repo.
func (a *Aggregator) Add(repo string, o EvaluationQueryOutcome) {
	a.projects[repo] = struct{}{}
	hits := o.Hits()

	a.sum.NumQueries++
	a.sum.Covered += o.CoveredResultCount
	a.sum.Total += o.TotalResultCount
	a.sum.MeanRecall += Recall(o)
	a.sum.MeanMRR += MRR(hits)
	a.sum.MeanPrecisionK += PrecisionAtK(hits, a.k)
}

// Summary returns the means over everything added so far.
func (a *Aggregator) Summary() Summary {
	s := a.sum
	s.NumProjects = len(a.projects)
	if s.NumQueries == 0 {
		return s
	}

	n := float64(s.NumQueries)
	s.MeanRecall /= n
	s.MeanMRR /= n
	s.MeanPrecisionK /= n
	if s.Total > 0 {
		s.Coverage = float64(s.Covered) / float64(s.Total)
	}
	return s
}
