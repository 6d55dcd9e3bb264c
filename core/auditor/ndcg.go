package auditor

import (
	"math"
	"sort"
)

// relevance grades how close a margin sits to the ideal margin, in [0,1].
func relevance(margin, idealMargin float64) float64 {
	if idealMargin <= 0 {
		return 0
	}
	rel := 1 - math.Abs(margin-idealMargin)/idealMargin
	if rel < 0 {
		return 0
	}
	return rel
}

// rankingQuality computes DCG/IDCG over the relevance values in evaluation
// order. Defined as 1.0 for at most one candidate or a zero IDCG, and always
// within [0,1].
func rankingQuality(rels []float64) float64 {
	if len(rels) <= 1 {
		return 1.0
	}
	dcg := 0.0
	for i, rel := range rels {
		dcg += rel / math.Log2(float64(i)+2)
	}
	ideal := append([]float64(nil), rels...)
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	idcg := 0.0
	for i, rel := range ideal {
		idcg += rel / math.Log2(float64(i)+2)
	}
	if idcg == 0 {
		return 1.0
	}
	q := dcg / idcg
	if q > 1 {
		q = 1
	}
	if q < 0 {
		q = 0
	}
	return q
}
