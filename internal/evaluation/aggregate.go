package evaluation

import "sort"

// Aggregate averages the reports of the evaluated queries. Reports for
// queries outside evaluated are ignored, and PerQuery is sorted by query id
// regardless of the order reports arrive in.
func Aggregate(reports []MetricReport, evaluated map[int]struct{}) CorpusReport {
	out := CorpusReport{PerQuery: make([]MetricReport, 0, len(evaluated))}

	for _, r := range reports {
		if _, ok := evaluated[r.QueryID]; !ok {
			continue
		}
		out.PerQuery = append(out.PerQuery, r)
	}
	sort.SliceStable(out.PerQuery, func(i, j int) bool {
		return out.PerQuery[i].QueryID < out.PerQuery[j].QueryID
	})

	out.Evaluated = len(out.PerQuery)
	if out.Evaluated == 0 {
		return out
	}

	for _, r := range out.PerQuery {
		out.MeanPrecisionAtK += r.PrecisionAtK
		out.MeanRecallAtK += r.RecallAtK
		out.MeanF1AtK += r.F1AtK
		out.MAP += r.AveragePrecision
		out.MRR += r.ReciprocalRank
		out.MeanNDCGAtK += r.NDCGAtK
		if r.Degraded {
			out.Degraded++
		}
	}

	n := float64(out.Evaluated)
	out.MeanPrecisionAtK /= n
	out.MeanRecallAtK /= n
	out.MeanF1AtK /= n
	out.MAP /= n
	out.MRR /= n
	out.MeanNDCGAtK /= n

	return out
}
