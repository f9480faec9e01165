// Package evaluation scores ranked result lists against relevance judgments
// and aggregates the scores over a query set.
package evaluation

import "fmt"

// KPolicy decides the rank cutoff for each query.
type KPolicy string

const (
	// KFixed uses the same cutoff for every query.
	KFixed KPolicy = "fixed"

	// KRelevant uses the size of the query's relevant set as its cutoff.
	KRelevant KPolicy = "relevant"
)

// ParseKPolicy validates a policy name.
func ParseKPolicy(s string) (KPolicy, error) {
	switch p := KPolicy(s); p {
	case KFixed, KRelevant:
		return p, nil
	}
	return "", fmt.Errorf("unknown k policy %q (must be fixed or relevant)", s)
}

// Cutoff returns the k to use for a query with the given number of
// relevant documents.
func (p KPolicy) Cutoff(fixedK, relevant int) int {
	if p == KRelevant {
		return relevant
	}
	return fixedK
}

// MetricReport holds the scores of one query.
type MetricReport struct {
	QueryID int `json:"query_id"`

	// K is the cutoff the @k metrics were computed at.
	K int `json:"k"`

	Retrieved int `json:"retrieved"`
	Relevant  int `json:"relevant"`
	Hits      int `json:"hits"` // relevant documents in the top k

	PrecisionAtK     float64 `json:"precision_at_k"`
	RecallAtK        float64 `json:"recall_at_k"`
	F1AtK            float64 `json:"f1_at_k"`
	AveragePrecision float64 `json:"average_precision"`
	ReciprocalRank   float64 `json:"reciprocal_rank"`
	NDCGAtK          float64 `json:"ndcg_at_k"`

	// Degraded is set when the search failed and the query was scored
	// against an empty result list.
	Degraded bool   `json:"degraded,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CorpusReport is the macro-average of MetricReports over the evaluated
// queries. Queries without relevant documents are not evaluated.
type CorpusReport struct {
	KPolicy KPolicy `json:"k_policy"`
	K       int     `json:"k,omitempty"` // fixed cutoff, zero under the relevant policy

	Evaluated int   `json:"evaluated"`
	Degraded  int   `json:"degraded"`
	Skipped   []int `json:"skipped_query_ids"`

	MeanPrecisionAtK float64 `json:"mean_precision_at_k"`
	MeanRecallAtK    float64 `json:"mean_recall_at_k"`
	MeanF1AtK        float64 `json:"mean_f1_at_k"`
	MAP              float64 `json:"map"`
	MRR              float64 `json:"mrr"`
	MeanNDCGAtK      float64 `json:"mean_ndcg_at_k"`

	// PerQuery is sorted by query id.
	PerQuery []MetricReport `json:"per_query"`
}
