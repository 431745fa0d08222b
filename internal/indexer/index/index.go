// Package index builds the immutable inverted index the ranker scores
// against. An Index is constructed once from a corpus and never modified, so
// it is safe for concurrent readers without locking.
package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus"
)

type Index struct {
	docFreq   map[string]int
	termFreq  map[string]map[string]int
	docLen    map[string]int
	postings  map[string]PostingList
	avgDocLen float64
	docCount  int
}

// Build indexes records. The output depends only on the records' keys and
// token sequences.
func Build(records []corpus.Record) *Index {
	idx := &Index{
		docFreq:  make(map[string]int),
		termFreq: make(map[string]map[string]int, len(records)),
		docLen:   make(map[string]int, len(records)),
		postings: make(map[string]PostingList),
	}

	var totalTokens int
	for _, rec := range records {
		idx.docLen[rec.Key] = len(rec.Tokens)
		totalTokens += len(rec.Tokens)

		local := make(map[string]int)
		for _, term := range rec.Tokens {
			local[term]++
		}
		idx.termFreq[rec.Key] = local
		for term, freq := range local {
			idx.docFreq[term]++
			idx.postings[term] = append(idx.postings[term], Posting{
				DocKey:    rec.Key,
				Frequency: freq,
			})
		}
	}
	idx.docCount = len(records)
	if idx.docCount > 0 {
		idx.avgDocLen = float64(totalTokens) / float64(idx.docCount)
	}

	for _, list := range idx.postings {
		sort.Slice(list, func(i, j int) bool {
			return list[i].DocKey < list[j].DocKey
		})
	}
	return idx
}

// Postings returns the documents containing term, ordered by key. The
// returned slice is shared and must not be modified.
func (idx *Index) Postings(term string) PostingList {
	return idx.postings[term]
}

func (idx *Index) DocFreq(term string) int {
	return idx.docFreq[term]
}

func (idx *Index) DocLength(key string) int {
	return idx.docLen[key]
}

// TermFrequency returns how often term occurs in the document with key.
func (idx *Index) TermFrequency(key, term string) int {
	return idx.termFreq[key][term]
}

func (idx *Index) AvgDocLength() float64 {
	return idx.avgDocLen
}

func (idx *Index) DocCount() int {
	return idx.docCount
}

// TermCount returns the number of distinct terms in the vocabulary.
func (idx *Index) TermCount() int {
	return len(idx.docFreq)
}
