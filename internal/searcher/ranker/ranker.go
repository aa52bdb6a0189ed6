// Package ranker scores matching issues with BM25 over their summary and
// description terms.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/index"
)

const (
	k1 = 1.2
	b  = 0.75
)

type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// RankParams carries corpus-wide statistics so that every shard scores with
// the same IDF. DocFreq is keyed by term; a missing term falls back to the
// length of its posting list.
type RankParams struct {
	TotalDocs    int64
	AvgDocLength float64
	DocFreq      map[string]int64
}

// Rank scores every candidate. Candidates without postings (filter-only
// matches) score zero and still appear, after the scored ones. Ties break on
// doc ID.
func Rank(
	postingsPerTerm map[string]index.PostingList,
	candidates []string,
	params RankParams,
	docLength func(docID string) int,
	limit int,
) []ScoredDoc {
	allowed := make(map[string]struct{}, len(candidates))
	scores := make(map[string]float64, len(candidates))
	for _, id := range candidates {
		allowed[id] = struct{}{}
		scores[id] = 0
	}
	for term, postings := range postingsPerTerm {
		docFreq, ok := params.DocFreq[term]
		if !ok {
			docFreq = int64(len(postings))
		}
		idf := computeIDF(params.TotalDocs, docFreq)
		for _, posting := range postings {
			if _, ok := allowed[posting.DocID]; !ok {
				continue
			}
			tfNorm := computeTFNorm(
				float64(posting.Frequency),
				float64(docLength(posting.DocID)),
				params.AvgDocLength,
			)
			scores[posting.DocID] += idf * tfNorm
		}
	}
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{
			DocID: docID,
			Score: math.Round(score*10000) / 10000,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return Less(result[j], result[i])
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Less orders a below b: lower score, or equal score and larger doc ID.
func Less(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
