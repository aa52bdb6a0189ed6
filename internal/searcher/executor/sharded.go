package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/visibility"
	apperrors "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/tracing"
)

// ShardedExecutor fans every request out to all shards concurrently. Each
// shard runs under its own timeout and builds its own collector, so shards
// share no mutable state; the coordinator merges their results. A request
// fails only when every shard fails.
type ShardedExecutor struct {
	shards  []Shard
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewSharded creates an executor over shards ordered by shard ID. m may be
// nil.
func NewSharded(shards []Shard, timeoutPerShard time.Duration, m *metrics.Metrics) *ShardedExecutor {
	return &ShardedExecutor{
		shards:  shards,
		timeout: timeoutPerShard,
		metrics: m,
		logger:  slog.Default().With("component", "sharded-executor"),
	}
}

type shardOutcome[T any] struct {
	value T
	ok    bool
}

// fanOut runs fn on every shard and returns the successful results in shard
// order.
func fanOut[T any](ctx context.Context, se *ShardedExecutor, op string, fn func(ctx context.Context, shard Shard) (T, error)) ([]T, ShardSummary, error) {
	ctx, span := tracing.StartChildSpan(ctx, op+".fanout")
	defer span.End()
	log := logger.FromContext(ctx)

	outcomes := make([]shardOutcome[T], len(se.shards))
	var g errgroup.Group
	for id, shard := range se.shards {
		g.Go(func() error {
			shardCtx, shardSpan := tracing.StartChildSpan(ctx, op+".shard")
			shardSpan.SetAttr("shard_id", id)
			defer shardSpan.End()

			var value T
			err := resilience.WithTimeout(shardCtx, se.timeout, "shard-"+strconv.Itoa(id), func(ctx context.Context) error {
				v, err := fn(ctx, shard)
				if err != nil {
					return err
				}
				value = v
				return nil
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				shardSpan.SetAttr("error", err.Error())
				log.Warn("shard failed", "op", op, "shard_id", id, "error", err)
				if se.metrics != nil {
					se.metrics.ShardFailures.WithLabelValues(strconv.Itoa(id)).Inc()
				}
				return nil
			}
			outcomes[id] = shardOutcome[T]{value: value, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, ShardSummary{}, fmt.Errorf("%s: %w", op, err)
	}

	summary := ShardSummary{Queried: len(se.shards)}
	results := make([]T, 0, len(se.shards))
	for _, o := range outcomes {
		if !o.ok {
			summary.Failed++
			continue
		}
		results = append(results, o.value)
	}
	span.SetAttr("shards_failed", summary.Failed)
	if summary.Queried > 0 && summary.Failed == summary.Queried {
		return nil, summary, fmt.Errorf("%s: all %d shards failed: %w", op, summary.Queried, apperrors.ErrShardUnavailable)
	}
	return results, summary, nil
}

// FieldStats tallies field over the issues matching plan.
func (se *ShardedExecutor) FieldStats(ctx context.Context, plan *parser.QueryPlan, field string, checker visibility.Checker) (*FieldStatsResult, error) {
	if !issue.IsKnownField(field) {
		return nil, apperrors.Newf(apperrors.ErrUnknownField, http.StatusBadRequest, "unknown field %q", field)
	}
	type shardStats struct {
		result       stats.OneDimensionalResult
		hits, misses int
	}
	parts, summary, err := fanOut(ctx, se, "stats.field", func(ctx context.Context, shard Shard) (shardStats, error) {
		ids, _, err := matchOnShard(ctx, shard, plan)
		if err != nil {
			return shardStats{}, err
		}
		c := stats.NewOneDimensionalCollector(field, shard, checker)
		if err := collect(ctx, ids, c); err != nil {
			return shardStats{}, err
		}
		hits, misses := c.ScopeStats()
		return shardStats{result: c.Result(), hits: hits, misses: misses}, nil
	})
	if err != nil {
		return nil, err
	}

	merged := stats.OneDimensionalResult{Field: field, Counts: make(map[string]int64)}
	var hits, misses int
	for _, p := range parts {
		merged.Merge(p.result)
		hits += p.hits
		misses += p.misses
	}
	se.observeScope(hits, misses)
	logger.FromContext(ctx).Info("field stats computed",
		"query", plan.RawQuery,
		"field", field,
		"total", merged.Total,
		"irrelevant", merged.Irrelevant,
		"no_value", merged.NoValue,
		"buckets", len(merged.Counts),
		"shards_failed", summary.Failed,
	)
	return &FieldStatsResult{Query: plan.RawQuery, Stats: merged, Shards: summary}, nil
}

// MatrixStats cross-tabulates xField against yField over the matches.
func (se *ShardedExecutor) MatrixStats(ctx context.Context, plan *parser.QueryPlan, xField, yField string, checker visibility.Checker) (*MatrixStatsResult, error) {
	for _, f := range []string{xField, yField} {
		if !issue.IsKnownField(f) {
			return nil, apperrors.Newf(apperrors.ErrUnknownField, http.StatusBadRequest, "unknown field %q", f)
		}
	}
	type shardStats struct {
		result       stats.TwoDimensionalResult
		hits, misses int
	}
	parts, summary, err := fanOut(ctx, se, "stats.matrix", func(ctx context.Context, shard Shard) (shardStats, error) {
		ids, _, err := matchOnShard(ctx, shard, plan)
		if err != nil {
			return shardStats{}, err
		}
		c := stats.NewTwoDimensionalCollector(xField, yField, shard, checker)
		if err := collect(ctx, ids, c); err != nil {
			return shardStats{}, err
		}
		hits, misses := c.ScopeStats()
		return shardStats{result: c.Result(), hits: hits, misses: misses}, nil
	})
	if err != nil {
		return nil, err
	}

	merged := stats.NewTwoDimensionalResult(xField, yField)
	var hits, misses int
	for _, p := range parts {
		merged.Merge(p.result)
		hits += p.hits
		misses += p.misses
	}
	se.observeScope(hits, misses)
	logger.FromContext(ctx).Info("matrix stats computed",
		"query", plan.RawQuery,
		"x", xField,
		"y", yField,
		"total", merged.Total,
		"both_irrelevant", merged.BothIrrelevant,
		"shards_failed", summary.Failed,
	)
	return &MatrixStatsResult{Query: plan.RawQuery, Stats: merged, Shards: summary}, nil
}

// Search returns the best limit matches ranked by BM25 over the text terms.
// Term document frequencies and length statistics are summed across shards
// first so every shard scores on the same scale.
func (se *ShardedExecutor) Search(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	type shardMatch struct {
		shard       Shard
		ids         []string
		postings    map[string]index.PostingList
		docs        int64
		totalLength int64
	}
	textTerms := plan.TextTerms()
	matches, summary, err := fanOut(ctx, se, "search", func(ctx context.Context, shard Shard) (shardMatch, error) {
		ids, postings, err := matchOnShard(ctx, shard, plan)
		if err != nil {
			return shardMatch{}, err
		}
		text := make(map[string]index.PostingList, len(textTerms))
		for _, term := range textTerms {
			if p, ok := postings[term]; ok {
				text[term] = p
			}
		}
		docs, totalLength := shard.TextStats()
		return shardMatch{shard: shard, ids: ids, postings: text, docs: docs, totalLength: totalLength}, nil
	})
	if err != nil {
		return nil, err
	}

	params := ranker.RankParams{DocFreq: make(map[string]int64, len(textTerms))}
	var totalLength int64
	termStats := make(map[string]int, len(textTerms))
	totalHits := 0
	for _, m := range matches {
		params.TotalDocs += m.docs
		totalLength += m.totalLength
		totalHits += len(m.ids)
		for term, postings := range m.postings {
			params.DocFreq[term] += int64(len(postings))
			termStats[term] += len(postings)
		}
	}
	if params.TotalDocs > 0 {
		params.AvgDocLength = float64(totalLength) / float64(params.TotalDocs)
	}

	ranked := make([][]ranker.ScoredDoc, 0, len(matches))
	owner := make(map[string]Shard)
	for _, m := range matches {
		top := ranker.Rank(m.postings, m.ids, params, m.shard.DocLength, limit)
		for _, d := range top {
			owner[d.DocID] = m.shard
		}
		ranked = append(ranked, top)
	}
	best := merger.Merge(ranked, limit)

	hits := make([]SearchHit, 0, len(best))
	for _, scored := range best {
		doc, ok := owner[scored.DocID].Doc(scored.DocID)
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{
			ID:          doc.ID,
			Key:         doc.Key,
			ProjectID:   doc.ProjectID,
			IssueTypeID: doc.IssueTypeID,
			Score:       scored.Score,
			Fields:      doc.Fields,
		})
	}
	logger.FromContext(ctx).Info("search executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"total_hits", totalHits,
		"returned", len(hits),
		"shards_failed", summary.Failed,
	)
	return &SearchResult{
		Query:     plan.RawQuery,
		TotalHits: totalHits,
		Results:   hits,
		TermStats: termStats,
		Shards:    summary,
	}, nil
}

func (se *ShardedExecutor) observeScope(hits, misses int) {
	if se.metrics == nil {
		return
	}
	se.metrics.ScopeCacheLookups.WithLabelValues("hit").Add(float64(hits))
	se.metrics.ScopeCacheLookups.WithLabelValues("miss").Add(float64(misses))
}
