// Package shard provides hash-based shard routing for index engines. Each
// shard owns an independent indexer.Engine instance backed by its own data
// directory, and the Router places issues by hashing their IDs.
package shard

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/metrics"
)

// Router maps shard IDs to dedicated indexer.Engine instances. The set of
// engines is fixed at construction.
type Router struct {
	engines []*indexer.Engine
	logger  *slog.Logger
}

// NewRouter creates cfg.NumShards engines, each in its own sub-directory
// under cfg.DataDir.
func NewRouter(cfg config.IndexerConfig) (*Router, error) {
	if cfg.NumShards <= 0 {
		return nil, fmt.Errorf("shard count must be positive, got %d", cfg.NumShards)
	}
	r := &Router{
		engines: make([]*indexer.Engine, 0, cfg.NumShards),
		logger:  slog.Default().With("component", "shard-router"),
	}
	for i := 0; i < cfg.NumShards; i++ {
		shardCfg := cfg
		shardCfg.DataDir = filepath.Join(cfg.DataDir, fmt.Sprintf("shard-%d", i))
		engine, err := indexer.NewEngine(shardCfg)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("creating engine for shard %d: %w", i, err)
		}
		r.engines = append(r.engines, engine)
		r.logger.Info("shard engine initialized",
			"shard_id", i,
			"data_dir", shardCfg.DataDir,
		)
	}
	r.logger.Info("shard router ready", "num_shards", cfg.NumShards)
	return r, nil
}

// WithMetrics counts every shard's segment flushes in m.
func (r *Router) WithMetrics(m *metrics.Metrics) *Router {
	for _, engine := range r.engines {
		engine.SetFlushObserver(func(status string) {
			m.IndexFlushesTotal.WithLabelValues(status).Inc()
		})
	}
	return r
}

// ShardFor returns the shard that owns issueID.
func (r *Router) ShardFor(issueID string) int {
	h := fnv.New32a()
	h.Write([]byte(issueID))
	return int(h.Sum32() % uint32(len(r.engines)))
}

// EngineFor returns the engine that owns issueID.
func (r *Router) EngineFor(issueID string) *indexer.Engine {
	return r.engines[r.ShardFor(issueID)]
}

// Route returns the Engine responsible for the given shard ID.
func (r *Router) Route(shardID int) (*indexer.Engine, error) {
	if shardID < 0 || shardID >= len(r.engines) {
		return nil, fmt.Errorf("unknown shard ID %d (valid range: 0-%d)", shardID, len(r.engines)-1)
	}
	return r.engines[shardID], nil
}

// Engines returns the engines ordered by shard ID.
func (r *Router) Engines() []*indexer.Engine {
	result := make([]*indexer.Engine, len(r.engines))
	copy(result, r.engines)
	return result
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return len(r.engines)
}

// Generation sums the shard generations; it changes whenever any shard's
// visible content changes.
func (r *Router) Generation() int64 {
	var gen int64
	for _, engine := range r.engines {
		gen += engine.Generation()
	}
	return gen
}

// TotalDocs counts live issues across all shards.
func (r *Router) TotalDocs() int64 {
	var total int64
	for _, engine := range r.engines {
		total += engine.GetTotalDocs()
	}
	return total
}

// FlushAll flushes every shard engine to disk.
func (r *Router) FlushAll() error {
	var firstErr error
	for id, engine := range r.engines {
		if err := engine.Flush(); err != nil {
			r.logger.Error("flush failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close flushes and closes every shard engine, returning the first error.
func (r *Router) Close() error {
	var firstErr error
	for id, engine := range r.engines {
		if err := engine.Close(); err != nil {
			r.logger.Error("close failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
