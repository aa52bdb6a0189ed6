package visibility

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/resilience"
)

// Provider hands out the current Snapshot, reloading it from the Store once
// it is older than the refresh interval. Concurrent reloads collapse into one
// Store call. When a reload fails and a snapshot is already held, the stale
// snapshot keeps being served.
type Provider struct {
	store       Store
	ttl         time.Duration
	loadTimeout time.Duration
	breaker     *resilience.CircuitBreaker
	metrics     *metrics.Metrics
	group       singleflight.Group
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.RWMutex
	current  *Snapshot
	loadedAt time.Time
}

func NewProvider(store Store, ttl, loadTimeout time.Duration) *Provider {
	return &Provider{
		store:       store,
		ttl:         ttl,
		loadTimeout: loadTimeout,
		breaker:     resilience.NewCircuitBreaker("visibility-store", resilience.CircuitBreakerConfig{}),
		logger:      slog.Default().With("component", "visibility-provider"),
		now:         time.Now,
	}
}

// WithMetrics records reloads and breaker state in m. Call it before the
// first Snapshot.
func (p *Provider) WithMetrics(m *metrics.Metrics) *Provider {
	p.metrics = m
	p.breaker = resilience.NewCircuitBreaker("visibility-store", resilience.CircuitBreakerConfig{
		OnStateChange: m.BreakerObserver(),
	})
	return p
}

func (p *Provider) observeReload(status string) {
	if p.metrics != nil {
		p.metrics.VisibilityReloads.WithLabelValues(status).Inc()
	}
}

// Snapshot returns a snapshot no older than the refresh interval, or the last
// good one if reloading fails.
func (p *Provider) Snapshot(ctx context.Context) (*Snapshot, error) {
	p.mu.RLock()
	current, loadedAt := p.current, p.loadedAt
	p.mu.RUnlock()
	if current != nil && p.now().Sub(loadedAt) < p.ttl {
		return current, nil
	}

	snap, err := p.reload(ctx)
	if err != nil {
		if current != nil {
			p.logger.Warn("visibility reload failed, serving stale snapshot",
				"version", current.Version(),
				"age", p.now().Sub(loadedAt),
				"error", err,
			)
			return current, nil
		}
		return nil, err
	}
	return snap, nil
}

// Refresh forces a reload regardless of age.
func (p *Provider) Refresh(ctx context.Context) error {
	_, err := p.reload(ctx)
	return err
}

func (p *Provider) reload(ctx context.Context) (*Snapshot, error) {
	val, err, _ := p.group.Do("snapshot", func() (interface{}, error) {
		var layout Layout
		err := p.breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, p.loadTimeout, "visibility-load", func(ctx context.Context) error {
				var loadErr error
				layout, loadErr = p.store.Load(ctx)
				return loadErr
			})
		})
		if err != nil {
			p.observeReload("error")
			return nil, fmt.Errorf("loading visibility layout: %w", err)
		}
		snap, err := NewSnapshot(layout)
		if err != nil {
			p.observeReload("invalid")
			return nil, fmt.Errorf("compiling visibility layout: %w", err)
		}
		p.observeReload("ok")

		p.mu.Lock()
		previous := p.current
		p.current = snap
		p.loadedAt = p.now()
		p.mu.Unlock()
		if previous == nil || previous.Version() != snap.Version() {
			p.logger.Info("visibility snapshot loaded",
				"version", snap.Version(),
				"schemes", len(layout.Schemes),
				"assignments", len(layout.Assignments),
				"contexts", len(layout.Contexts),
			)
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Snapshot), nil
}

// Start refreshes the snapshot every interval until ctx is cancelled.
func (p *Provider) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.Refresh(ctx); err != nil {
					p.logger.Error("periodic visibility refresh failed", "error", err)
				}
			}
		}
	}()
}
