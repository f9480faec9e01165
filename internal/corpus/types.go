// Package corpus parses the CISI test collection: documents with their
// citation graph, the query set and the relevance judgments.
package corpus

import "sort"

// Document is one record of the document collection.
type Document struct {
	// ID is the 1-based position of the record in the file. Identifiers
	// written after the record marker are ignored.
	ID int `json:"doc_id"`

	Title  string `json:"title"`
	Author string `json:"author"`
	Text   string `json:"text"`

	// NormalizedText is Text passed through query.Normalize, the same
	// analysis applied to queries.
	NormalizedText string `json:"normalized_text"`

	// Citations lists the document ids from the cross-reference field in
	// file order. They are not checked against the collection.
	Citations []int `json:"citations"`
}

// Query is one record of the query set.
type Query struct {
	// ID is the literal integer from the record marker.
	ID   int    `json:"query_id"`
	Text string `json:"text"`
}

// Judgments maps a query id to the set of documents judged relevant for it.
type Judgments map[int]map[int]struct{}

// Add records docID as relevant for queryID. Duplicates collapse.
func (j Judgments) Add(queryID, docID int) {
	set, ok := j[queryID]
	if !ok {
		set = make(map[int]struct{})
		j[queryID] = set
	}
	set[docID] = struct{}{}
}

// Relevant returns the relevant set for a query, or nil when the query has
// no judgments. The returned map must not be modified.
func (j Judgments) Relevant(queryID int) map[int]struct{} {
	return j[queryID]
}

// Facts returns the number of distinct (query, document) pairs.
func (j Judgments) Facts() int {
	n := 0
	for _, set := range j {
		n += len(set)
	}
	return n
}

// Collection bundles the parsed fixtures for one evaluation run.
// It is read-only after construction and safe for concurrent use.
type Collection struct {
	Documents map[int]Document
	Queries   map[int]Query
	Judgments Judgments
}

// Document looks up a document by id.
func (c *Collection) Document(id int) (Document, bool) {
	doc, ok := c.Documents[id]
	return doc, ok
}

// QueryIDs returns all query ids in ascending order.
func (c *Collection) QueryIDs() []int {
	return sortedKeys(c.Queries)
}

// DanglingCitations returns, per citing document, the cited ids that do not
// exist in the collection. Documents without dangling citations are omitted.
func (c *Collection) DanglingCitations() map[int][]int {
	out := make(map[int][]int)
	for id, doc := range c.Documents {
		for _, cited := range doc.Citations {
			if _, ok := c.Documents[cited]; !ok {
				out[id] = append(out[id], cited)
			}
		}
	}
	return out
}

// Stats summarises the collection.
type Stats struct {
	Documents         int `json:"documents"`
	Citations         int `json:"citations"`
	DanglingCitations int `json:"dangling_citations"`
	Queries           int `json:"queries"`
	JudgedQueries     int `json:"judged_queries"`
	UnjudgedQueries   int `json:"unjudged_queries"`
	JudgmentFacts     int `json:"judgment_facts"`
}

// Stats computes collection statistics.
func (c *Collection) Stats() Stats {
	s := Stats{
		Documents:     len(c.Documents),
		Queries:       len(c.Queries),
		JudgmentFacts: c.Judgments.Facts(),
	}
	for _, doc := range c.Documents {
		s.Citations += len(doc.Citations)
	}
	for _, ids := range c.DanglingCitations() {
		s.DanglingCitations += len(ids)
	}
	for id := range c.Queries {
		if len(c.Judgments.Relevant(id)) > 0 {
			s.JudgedQueries++
		} else {
			s.UnjudgedQueries++
		}
	}
	return s
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
