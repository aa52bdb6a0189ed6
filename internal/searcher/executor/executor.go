// Package executor runs parsed queries against the index shards and feeds
// the matches to ranking or to the statistics collectors.
package executor

import (
	"context"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/stats"
)

// Shard is the slice of an index engine the executor needs.
type Shard interface {
	Search(term string) (index.PostingList, error)
	Doc(docID string) (index.StoredDoc, bool)
	AllDocIDs() []string
	TextStats() (docs int64, totalLength int64)
	DocLength(docID string) int
}

// ShardSummary reports how many shards answered.
type ShardSummary struct {
	Queried int `json:"queried"`
	Failed  int `json:"failed"`
}

// Partial reports whether some, but not all, shards failed.
func (s ShardSummary) Partial() bool {
	return s.Failed > 0 && s.Failed < s.Queried
}

type SearchHit struct {
	ID          string              `json:"id"`
	Key         string              `json:"key,omitempty"`
	ProjectID   string              `json:"project_id"`
	IssueTypeID string              `json:"issue_type_id"`
	Score       float64             `json:"score"`
	Fields      map[string][]string `json:"fields,omitempty"`
}

type SearchResult struct {
	Query     string         `json:"query"`
	TotalHits int            `json:"total_hits"`
	Results   []SearchHit    `json:"results"`
	TermStats map[string]int `json:"term_stats,omitempty"`
	Shards    ShardSummary   `json:"shards"`
}

type FieldStatsResult struct {
	Query  string                     `json:"query"`
	Stats  stats.OneDimensionalResult `json:"stats"`
	Shards ShardSummary               `json:"shards"`
}

type MatrixStatsResult struct {
	Query  string                     `json:"query"`
	Stats  stats.TwoDimensionalResult `json:"stats"`
	Shards ShardSummary               `json:"shards"`
}

// matchOnShard evaluates plan against one shard and returns the matching
// live doc IDs in ascending order. Positive-term postings are returned too,
// keyed by term, for scoring.
func matchOnShard(ctx context.Context, shard Shard, plan *parser.QueryPlan) ([]string, map[string]index.PostingList, error) {
	postingsPerTerm := make(map[string]index.PostingList, len(plan.Terms))
	if plan.MatchNone() {
		return nil, postingsPerTerm, nil
	}
	var candidates map[string]struct{}

	if plan.MatchAll() {
		ids := shard.AllDocIDs()
		candidates = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			candidates[id] = struct{}{}
		}
	} else {
		for _, term := range plan.Terms {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			postings, err := shard.Search(term)
			if err != nil {
				return nil, nil, fmt.Errorf("searching term %q: %w", term, err)
			}
			postingsPerTerm[term] = postings
		}
		switch plan.Type {
		case parser.QueryOR:
			candidates = unionPostings(postingsPerTerm)
		default:
			candidates = intersectPostings(postingsPerTerm)
		}
	}

	for _, term := range plan.ExcludeTerms {
		postings, err := shard.Search(term)
		if err != nil {
			return nil, nil, fmt.Errorf("searching excluded term %q: %w", term, err)
		}
		for _, p := range postings {
			delete(candidates, p.DocID)
		}
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, postingsPerTerm, nil
}

// collectEvery checks for cancellation this often while feeding collectors.
const collectEvery = 1024

func collect(ctx context.Context, ids []string, c stats.HitCollector) error {
	for i, id := range ids {
		if i%collectEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		c.Collect(id)
	}
	return nil
}

// intersectPostings returns the docs present in every list. A term with no
// postings empties the result.
func intersectPostings(postingsPerTerm map[string]index.PostingList) map[string]struct{} {
	if len(postingsPerTerm) == 0 {
		return make(map[string]struct{})
	}
	var shortestTerm string
	shortestLen := int(^uint(0) >> 1)
	for term, postings := range postingsPerTerm {
		if len(postings) < shortestLen {
			shortestLen = len(postings)
			shortestTerm = term
		}
	}
	candidates := make(map[string]struct{}, shortestLen)
	for _, p := range postingsPerTerm[shortestTerm] {
		candidates[p.DocID] = struct{}{}
	}
	for term, postings := range postingsPerTerm {
		if term == shortestTerm {
			continue
		}
		docSet := make(map[string]struct{}, len(postings))
		for _, p := range postings {
			docSet[p.DocID] = struct{}{}
		}
		for docID := range candidates {
			if _, exists := docSet[docID]; !exists {
				delete(candidates, docID)
			}
		}
	}
	return candidates
}

func unionPostings(postingsPerTerm map[string]index.PostingList) map[string]struct{} {
	result := make(map[string]struct{})
	for _, postings := range postingsPerTerm {
		for _, p := range postings {
			result[p.DocID] = struct{}{}
		}
	}
	return result
}
