// Package handler serves the search and statistics HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/visibility"
	apperrors "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/tracing"
)

// Executor runs queries over the index; *executor.ShardedExecutor
// implements it.
type Executor interface {
	Search(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
	FieldStats(ctx context.Context, plan *parser.QueryPlan, field string, checker visibility.Checker) (*executor.FieldStatsResult, error)
	MatrixStats(ctx context.Context, plan *parser.QueryPlan, xField, yField string, checker visibility.Checker) (*executor.MatrixStatsResult, error)
}

// SnapshotSource supplies the field visibility snapshot for a request.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*visibility.Snapshot, error)
}

// GenerationSource reports the index generation, which changes on every
// index write.
type GenerationSource interface {
	Generation() int64
}

// Tracker receives one analytics event per answered request.
type Tracker interface {
	Track(event analytics.StatsEvent)
}

// Handler serves the API. Cache, tracker and metrics are optional.
type Handler struct {
	executor     Executor
	snapshots    SnapshotSource
	generation   GenerationSource
	cache        *cache.ResultCache
	tracker      Tracker
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

type Options struct {
	Cache        *cache.ResultCache
	Tracker      Tracker
	Metrics      *metrics.Metrics
	DefaultLimit int
	MaxResults   int
}

func New(exec Executor, snapshots SnapshotSource, generation GenerationSource, opts Options) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if opts.MaxResults < opts.DefaultLimit {
		opts.MaxResults = opts.DefaultLimit
	}
	return &Handler{
		executor:     exec,
		snapshots:    snapshots,
		generation:   generation,
		cache:        opts.Cache,
		tracker:      opts.Tracker,
		metrics:      opts.Metrics,
		defaultLimit: opts.DefaultLimit,
		maxResults:   opts.MaxResults,
		logger:       slog.Default().With("component", "stats-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/stats/field", h.FieldStats)
	mux.HandleFunc("GET /api/v1/stats/matrix", h.MatrixStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

type SearchResponse struct {
	*executor.SearchResult
	Partial  bool `json:"partial"`
	CacheHit bool `json:"cache_hit"`
}

type FieldStatsResponse struct {
	Query      string                `json:"query"`
	Field      string                `json:"field"`
	Order      stats.Order           `json:"order"`
	Total      int64                 `json:"total"`
	Irrelevant int64                 `json:"irrelevant"`
	NoValue    int64                 `json:"no_value"`
	Buckets    []stats.Bucket        `json:"buckets"`
	Shards     executor.ShardSummary `json:"shards"`
	Partial    bool                  `json:"partial"`
	CacheHit   bool                  `json:"cache_hit"`
}

type MatrixStatsResponse struct {
	Query          string                      `json:"query"`
	XField         string                      `json:"x_field"`
	YField         string                      `json:"y_field"`
	Total          int64                       `json:"total"`
	BothIrrelevant int64                       `json:"both_irrelevant"`
	XBuckets       []stats.Bucket              `json:"x_buckets"`
	YBuckets       []stats.Bucket              `json:"y_buckets"`
	Cells          map[string]map[string]int64 `json:"cells"`
	XIrrelevant    map[string]int64            `json:"x_irrelevant"`
	YIrrelevant    map[string]int64            `json:"y_irrelevant"`
	Shards         executor.ShardSummary       `json:"shards"`
	Partial        bool                        `json:"partial"`
	CacheHit       bool                        `json:"cache_hit"`
}

// Search serves GET /api/v1/search?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "http.search", logger.RequestID(r.Context()))
	defer endSpan(ctx, span)

	query := r.URL.Query().Get("q")
	plan, err := parser.Parse(query)
	if err != nil {
		h.fail(ctx, w, analytics.KindSearch, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error()))
		return
	}
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.fail(ctx, w, analytics.KindSearch, err)
		return
	}

	key := cache.Key{Kind: string(analytics.KindSearch), Query: plan.Normalized(), Limit: limit}
	result, cacheHit, err := compute(ctx, h, key, func(ctx context.Context) (*executor.SearchResult, bool, error) {
		res, err := h.executor.Search(ctx, plan, limit)
		if err != nil {
			return nil, false, err
		}
		return res, res.Shards.Failed == 0, nil
	})
	if err != nil {
		h.fail(ctx, w, analytics.KindSearch, err)
		return
	}

	h.observe(ctx, analytics.StatsEvent{
		Kind:         analytics.KindSearch,
		Query:        query,
		Hits:         int64(result.TotalHits),
		CacheHit:     cacheHit,
		ShardsFailed: result.Shards.Failed,
	}, start)
	h.writeJSON(w, http.StatusOK, SearchResponse{
		SearchResult: result,
		Partial:      result.Shards.Failed > 0,
		CacheHit:     cacheHit,
	})
}

// FieldStats serves GET /api/v1/stats/field?q=&field=&order=.
func (h *Handler) FieldStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "http.stats.field", logger.RequestID(r.Context()))
	defer endSpan(ctx, span)

	params := r.URL.Query()
	query, field := params.Get("q"), params.Get("field")
	if field == "" {
		h.fail(ctx, w, analytics.KindField, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'field' is required"))
		return
	}
	order, err := stats.ParseOrder(params.Get("order"))
	if err != nil {
		h.fail(ctx, w, analytics.KindField, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error()))
		return
	}
	plan, err := parser.Parse(query)
	if err != nil {
		h.fail(ctx, w, analytics.KindField, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error()))
		return
	}
	snap, err := h.snapshot(ctx)
	if err != nil {
		h.fail(ctx, w, analytics.KindField, err)
		return
	}

	key := cache.Key{
		Kind:              string(analytics.KindField),
		Query:             plan.Normalized(),
		Fields:            []string{field},
		VisibilityVersion: snap.Version(),
	}
	result, cacheHit, err := compute(ctx, h, key, func(ctx context.Context) (*executor.FieldStatsResult, bool, error) {
		res, err := h.executor.FieldStats(ctx, plan, field, snap)
		if err != nil {
			return nil, false, err
		}
		return res, res.Shards.Failed == 0, nil
	})
	if err != nil {
		h.fail(ctx, w, analytics.KindField, err)
		return
	}

	s := result.Stats
	h.observe(ctx, analytics.StatsEvent{
		Kind:         analytics.KindField,
		Query:        query,
		Fields:       []string{field},
		Hits:         s.Total,
		Irrelevant:   s.Irrelevant,
		CacheHit:     cacheHit,
		ShardsFailed: result.Shards.Failed,
	}, start)
	h.writeJSON(w, http.StatusOK, FieldStatsResponse{
		Query:      query,
		Field:      field,
		Order:      order,
		Total:      s.Total,
		Irrelevant: s.Irrelevant,
		NoValue:    s.NoValue,
		Buckets:    s.Buckets(order),
		Shards:     result.Shards,
		Partial:    result.Shards.Failed > 0,
		CacheHit:   cacheHit,
	})
}

// MatrixStats serves GET /api/v1/stats/matrix?q=&x=&y=&order=.
func (h *Handler) MatrixStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "http.stats.matrix", logger.RequestID(r.Context()))
	defer endSpan(ctx, span)

	params := r.URL.Query()
	query, xField, yField := params.Get("q"), params.Get("x"), params.Get("y")
	if xField == "" || yField == "" {
		h.fail(ctx, w, analytics.KindMatrix, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameters 'x' and 'y' are required"))
		return
	}
	order, err := stats.ParseOrder(params.Get("order"))
	if err != nil {
		h.fail(ctx, w, analytics.KindMatrix, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error()))
		return
	}
	plan, err := parser.Parse(query)
	if err != nil {
		h.fail(ctx, w, analytics.KindMatrix, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error()))
		return
	}
	snap, err := h.snapshot(ctx)
	if err != nil {
		h.fail(ctx, w, analytics.KindMatrix, err)
		return
	}

	key := cache.Key{
		Kind:              string(analytics.KindMatrix),
		Query:             plan.Normalized(),
		Fields:            []string{xField, yField},
		VisibilityVersion: snap.Version(),
	}
	result, cacheHit, err := compute(ctx, h, key, func(ctx context.Context) (*executor.MatrixStatsResult, bool, error) {
		res, err := h.executor.MatrixStats(ctx, plan, xField, yField, snap)
		if err != nil {
			return nil, false, err
		}
		return res, res.Shards.Failed == 0, nil
	})
	if err != nil {
		h.fail(ctx, w, analytics.KindMatrix, err)
		return
	}

	s := result.Stats
	h.observe(ctx, analytics.StatsEvent{
		Kind:         analytics.KindMatrix,
		Query:        query,
		Fields:       []string{xField, yField},
		Hits:         s.Total,
		Irrelevant:   s.BothIrrelevant,
		CacheHit:     cacheHit,
		ShardsFailed: result.Shards.Failed,
	}, start)
	h.writeJSON(w, http.StatusOK, MatrixStatsResponse{
		Query:          query,
		XField:         xField,
		YField:         yField,
		Total:          s.Total,
		BothIrrelevant: s.BothIrrelevant,
		XBuckets:       s.XBuckets(order),
		YBuckets:       s.YBuckets(order),
		Cells:          s.Cells,
		XIrrelevant:    s.XIrrelevant,
		YIrrelevant:    s.YIrrelevant,
		Shards:         result.Shards,
		Partial:        result.Shards.Failed > 0,
		CacheHit:       cacheHit,
	})
}

func endSpan(ctx context.Context, span *tracing.Span) {
	span.End()
	span.Log(logger.FromContext(ctx))
}

// compute answers from the cache when one is configured. The index
// generation is read here so a write between requests changes the key.
func compute[T any](ctx context.Context, h *Handler, key cache.Key, fn func(ctx context.Context) (T, bool, error)) (T, bool, error) {
	if h.cache == nil {
		v, _, err := fn(ctx)
		return v, false, err
	}
	key.Generation = h.generation.Generation()
	return cache.GetOrCompute(ctx, h.cache, key, fn)
}

func (h *Handler) snapshot(ctx context.Context) (*visibility.Snapshot, error) {
	snap, err := h.snapshots.Snapshot(ctx)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInternal, http.StatusServiceUnavailable, "field visibility unavailable: %v", err)
	}
	return snap, nil
}

func (h *Handler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
	}
	if n > h.maxResults {
		n = h.maxResults
	}
	return n, nil
}

func (h *Handler) observe(ctx context.Context, event analytics.StatsEvent, start time.Time) {
	elapsed := time.Since(start)
	event.LatencyMs = elapsed.Milliseconds()
	event.RequestID = logger.RequestID(ctx)

	if h.metrics != nil {
		kind := string(event.Kind)
		outcome := "ok"
		if event.ShardsFailed > 0 {
			outcome = "partial"
		}
		cacheStatus := "miss"
		if event.CacheHit {
			cacheStatus = "hit"
		}
		h.metrics.StatsRequestsTotal.WithLabelValues(kind, outcome).Inc()
		h.metrics.StatsLatency.WithLabelValues(kind, cacheStatus).Observe(elapsed.Seconds())
		h.metrics.StatsHits.WithLabelValues(kind).Observe(float64(event.Hits))
		if event.Irrelevant > 0 {
			h.metrics.IrrelevantHits.WithLabelValues(kind).Add(float64(event.Irrelevant))
		}
	}
	if h.tracker != nil {
		h.tracker.Track(event)
	}
	logger.FromContext(ctx).Info("request answered",
		"kind", event.Kind,
		"query", event.Query,
		"fields", event.Fields,
		"hits", event.Hits,
		"cache_hit", event.CacheHit,
		"shards_failed", event.ShardsFailed,
		"latency_ms", event.LatencyMs,
	)
}

// fail maps err to a status code and writes an error body. Client errors
// carry their message; server errors are logged and answered generically.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, kind analytics.Kind, err error) {
	status := apperrors.HTTPStatusCode(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	if h.metrics != nil {
		h.metrics.StatsRequestsTotal.WithLabelValues(string(kind), "error").Inc()
	}

	message := http.StatusText(status)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error("request failed", "kind", kind, "status", status, "error", err)
	} else {
		logger.FromContext(ctx).Info("request rejected", "kind", kind, "status", status, "error", err)
	}
	h.writeError(w, status, message)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": hitRate,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
