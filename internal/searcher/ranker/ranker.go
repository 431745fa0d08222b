// Package ranker scores documents against a free-text query with Okapi BM25.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/indexer/tokenizer"
)

const (
	k1 = corpus.BM25K1
	b  = corpus.BM25B
)

type ScoredDoc struct {
	DocKey string  `json:"doc_id"`
	Score  float64 `json:"score"`
}

// Rank tokenizes query, deduplicates its terms and returns every document
// containing at least one of them, ordered by score descending and then by
// key ascending. Documents matching no query term are not returned.
func Rank(idx *index.Index, query string) []ScoredDoc {
	terms := tokenizer.Unique(tokenizer.Tokenize(query))
	return RankTerms(idx, terms)
}

// RankTerms is Rank over already deduplicated terms.
func RankTerms(idx *index.Index, terms []string) []ScoredDoc {
	totalDocs := idx.DocCount()
	if len(terms) == 0 || totalDocs == 0 {
		return []ScoredDoc{}
	}
	avgDocLength := idx.AvgDocLength()
	if avgDocLength == 0 {
		avgDocLength = 1
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		postings := idx.Postings(term)
		if len(postings) == 0 {
			continue
		}
		idf := computeIDF(totalDocs, idx.DocFreq(term))
		for _, posting := range postings {
			tfNorm := computeTFNorm(
				float64(posting.Frequency),
				float64(idx.DocLength(posting.DocKey)),
				avgDocLength,
			)
			scores[posting.DocKey] += idf * tfNorm
		}
	}

	result := make([]ScoredDoc, 0, len(scores))
	for key, score := range scores {
		result = append(result, ScoredDoc{DocKey: key, Score: score})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocKey < result[j].DocKey
	})
	return result
}

func computeIDF(totalDocs int, docFreq int) float64 {
	n := float64(totalDocs)
	df := float64(docFreq)
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	denominator := termFreq + k1*(1-b+b*(docLength/avgDocLength))
	return (termFreq * (k1 + 1)) / denominator
}
