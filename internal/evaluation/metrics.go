package evaluation

import (
	"math"
	"sort"
)

// Score computes every per-query metric for a ranked list of document ids.
// relevant is the set of documents judged relevant; k is the rank cutoff.
// RR looks at the full list, all other metrics at the top k.
func Score(ranked []int, relevant map[int]struct{}, k int) MetricReport {
	g := gains(ranked, relevant)

	report := MetricReport{
		K:         k,
		Retrieved: len(ranked),
		Relevant:  len(relevant),
		Hits:      hitsAt(g, k),
	}

	report.PrecisionAtK = Precision(g, k)
	report.RecallAtK = Recall(g, k, len(relevant))
	report.F1AtK = F1(report.PrecisionAtK, report.RecallAtK)
	report.AveragePrecision = AveragePrecision(g, k, len(relevant))
	report.ReciprocalRank = ReciprocalRank(g)
	report.NDCGAtK = NDCG(g, k)

	return report
}

// gains maps a ranked list to binary gains. A document repeated in the list
// only counts at its first rank.
func gains(ranked []int, relevant map[int]struct{}) []int {
	g := make([]int, len(ranked))
	seen := make(map[int]struct{}, len(ranked))
	for i, id := range ranked {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := relevant[id]; ok {
			g[i] = 1
		}
	}
	return g
}

func hitsAt(gains []int, k int) int {
	if k > len(gains) {
		k = len(gains)
	}
	hits := 0
	for i := 0; i < k; i++ {
		hits += gains[i]
	}
	return hits
}

// Precision calculates hits in the top k divided by k. A list shorter than
// k is not padded out of the denominator.
func Precision(gains []int, k int) float64 {
	if k <= 0 {
		return 0
	}
	return float64(hitsAt(gains, k)) / float64(k)
}

// Recall calculates hits in the top k divided by the number of relevant
// documents.
func Recall(gains []int, k, totalRelevant int) float64 {
	if totalRelevant == 0 || k <= 0 {
		return 0
	}
	return float64(hitsAt(gains, k)) / float64(totalRelevant)
}

// F1 is the harmonic mean of precision and recall.
func F1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// AveragePrecision sums precision at every relevant rank within the top k
// and divides by the number of relevant documents.
func AveragePrecision(gains []int, k, totalRelevant int) float64 {
	if totalRelevant == 0 {
		return 0
	}
	if k > len(gains) {
		k = len(gains)
	}

	hits := 0
	sum := 0.0
	for i := 0; i < k; i++ {
		if gains[i] > 0 {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	return sum / float64(totalRelevant)
}

// ReciprocalRank is one over the rank of the first relevant document.
func ReciprocalRank(gains []int) float64 {
	for i, g := range gains {
		if g > 0 {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// NDCG calculates Normalized Discounted Cumulative Gain at k. The ideal
// ordering is the same top-k gains sorted in descending order.
func NDCG(gains []int, k int) float64 {
	if k > len(gains) {
		k = len(gains)
	}
	if k <= 0 {
		return 0
	}

	top := gains[:k]
	ideal := make([]int, k)
	copy(ideal, top)
	sort.Sort(sort.Reverse(sort.IntSlice(ideal)))

	idcg := dcg(ideal)
	if idcg == 0 {
		return 0
	}
	return dcg(top) / idcg
}

func dcg(gains []int) float64 {
	sum := 0.0
	for i, g := range gains {
		sum += float64(g) / math.Log2(float64(i+2))
	}
	return sum
}
