package search

import "math"

// BM25 parameters. Standard values; b dampens long-document bias, k1 caps
// term-frequency saturation.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// bm25Index scores documents against token-bag queries.
type bm25Index struct {
	docs      [][]string
	docFreq   map[string]int
	docLen    []int
	avgDocLen float64
}

// newBM25Index builds an index over pre-tokenized documents.
func newBM25Index(docs [][]string) *bm25Index {
	idx := &bm25Index{
		docs:    docs,
		docFreq: make(map[string]int),
		docLen:  make([]int, len(docs)),
	}

	totalLen := 0
	for i, doc := range docs {
		idx.docLen[i] = len(doc)
		totalLen += len(doc)

		seen := make(map[string]bool, len(doc))
		for _, token := range doc {
			if !seen[token] {
				seen[token] = true
				idx.docFreq[token]++
			}
		}
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(docs))
	}
	return idx
}

// score computes the BM25 score of one document for the query tokens.
func (idx *bm25Index) score(docIndex int, query []string) float64 {
	if docIndex >= len(idx.docs) || idx.avgDocLen == 0 {
		return 0
	}

	termFreq := make(map[string]int)
	for _, token := range idx.docs[docIndex] {
		termFreq[token]++
	}

	n := float64(len(idx.docs))
	docLen := float64(idx.docLen[docIndex])

	var total float64
	for _, token := range query {
		tf := float64(termFreq[token])
		if tf == 0 {
			continue
		}
		df := float64(idx.docFreq[token])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		total += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*docLen/idx.avgDocLen))
	}
	return total
}
