package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/visibility"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/config"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memBackend) Lookup(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value)
	return nil
}

func (m *memBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type trackerFunc func(analytics.StatsEvent)

func (f trackerFunc) Track(e analytics.StatsEvent) { f(e) }

type failingSnapshots struct{}

func (failingSnapshots) Snapshot(ctx context.Context) (*visibility.Snapshot, error) {
	return nil, errors.New("store unreachable")
}

type fixture struct {
	router  *shard.Router
	handler *Handler
	mux     *http.ServeMux
	events  []analytics.StatsEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	router, err := shard.NewRouter(config.IndexerConfig{DataDir: t.TempDir(), NumShards: 2, SegmentMaxSize: 1 << 30})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { router.Close() })

	mk := func(id, project, typ, summary string, fields map[string][]string) *issue.Issue {
		return &issue.Issue{ID: id, ProjectID: project, IssueTypeID: typ, Summary: summary, Fields: fields, Version: 1}
	}
	for _, iss := range []*issue.Issue{
		mk("1", "web", "bug", "Login crash", map[string][]string{issue.FieldStatus: {"Open"}, issue.FieldPriority: {"High"}}),
		mk("2", "web", "bug", "Checkout crash", map[string][]string{issue.FieldStatus: {"Open"}}),
		mk("3", "ops", "bug", "Disk crash", map[string][]string{issue.FieldStatus: {"Done"}, issue.FieldPriority: {"Low"}}),
		mk("4", "web", "story", "Dark mode", map[string][]string{issue.FieldStatus: {"Done"}}),
	} {
		if _, err := router.EngineFor(iss.ID).IndexIssue(iss); err != nil {
			t.Fatal(err)
		}
	}

	shards := make([]executor.Shard, 0, router.NumShards())
	for _, e := range router.Engines() {
		shards = append(shards, e)
	}
	store := visibility.NewMemoryStore(visibility.Layout{
		DefaultSchemeID: "default",
		Schemes: []visibility.Scheme{
			{ID: "default", Name: "Default"},
			{ID: "ops", Name: "Ops", Hidden: []string{issue.FieldPriority}},
		},
		Assignments: []visibility.Assignment{{ProjectID: "ops", SchemeID: "ops"}},
	})

	f := &fixture{router: router, mux: http.NewServeMux()}
	f.handler = New(
		executor.NewSharded(shards, time.Second, nil),
		visibility.NewProvider(store, time.Minute, time.Second),
		router,
		Options{
			Cache:   cache.New(&memBackend{data: make(map[string]string)}, time.Minute, nil),
			Tracker: trackerFunc(func(e analytics.StatsEvent) { f.events = append(f.events, e) }),
		},
	)
	f.handler.Register(f.mux)
	return f
}

func (f *fixture) get(t *testing.T, url string, dst any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if dst != nil && rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return rec.Code
}

func TestFieldStatsEndpoint(t *testing.T) {
	f := newFixture(t)

	var resp FieldStatsResponse
	if code := f.get(t, "/api/v1/stats/field?q=crash&field=priority", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Total != 3 || resp.Irrelevant != 1 || resp.NoValue != 1 {
		t.Errorf("total/irrelevant/no_value = %d/%d/%d", resp.Total, resp.Irrelevant, resp.NoValue)
	}
	if len(resp.Buckets) != 1 || resp.Buckets[0] != (stats.Bucket{Value: "High", Count: 1}) {
		t.Errorf("buckets = %v", resp.Buckets)
	}
	if resp.CacheHit {
		t.Error("first request cannot be a cache hit")
	}

	var again FieldStatsResponse
	f.get(t, "/api/v1/stats/field?q=crash&field=priority", &again)
	if !again.CacheHit || again.Total != resp.Total {
		t.Errorf("second request = %+v, want a cache hit with equal totals", again)
	}

	if _, err := f.router.EngineFor("5").IndexIssue(&issue.Issue{
		ID: "5", ProjectID: "web", IssueTypeID: "bug", Summary: "Another crash", Version: 1,
		Fields: map[string][]string{issue.FieldPriority: {"High"}},
	}); err != nil {
		t.Fatal(err)
	}
	var fresh FieldStatsResponse
	f.get(t, "/api/v1/stats/field?q=crash&field=priority", &fresh)
	if fresh.CacheHit || fresh.Total != 4 {
		t.Errorf("after an index write got cache_hit=%v total=%d", fresh.CacheHit, fresh.Total)
	}

	if len(f.events) != 3 || f.events[0].Kind != analytics.KindField || f.events[0].Irrelevant != 1 {
		t.Errorf("tracked events = %+v", f.events)
	}
}

func TestFieldStatsOrderByValue(t *testing.T) {
	f := newFixture(t)
	var resp FieldStatsResponse
	f.get(t, "/api/v1/stats/field?field=status&order=value", &resp)
	want := []stats.Bucket{{Value: "Done", Count: 2}, {Value: "Open", Count: 2}}
	if len(resp.Buckets) != 2 || resp.Buckets[0] != want[0] || resp.Buckets[1] != want[1] {
		t.Errorf("buckets = %v, want %v", resp.Buckets, want)
	}
	if resp.Total != 4 {
		t.Errorf("empty query should match all issues, total = %d", resp.Total)
	}
}

func TestMatrixStatsEndpoint(t *testing.T) {
	f := newFixture(t)
	var resp MatrixStatsResponse
	if code := f.get(t, "/api/v1/stats/matrix?q=crash&x=status&y=priority", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Total != 3 {
		t.Errorf("total = %d", resp.Total)
	}
	if resp.Cells["Open"]["High"] != 1 || resp.Cells["Open"][stats.NoValue] != 1 {
		t.Errorf("cells = %v", resp.Cells)
	}
	if resp.YIrrelevant["Done"] != 1 {
		t.Errorf("y irrelevant = %v", resp.YIrrelevant)
	}
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t)
	var resp SearchResponse
	if code := f.get(t, "/api/v1/search?q=crash&limit=2", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.TotalHits != 3 || len(resp.Results) != 2 {
		t.Errorf("total=%d returned=%d", resp.TotalHits, len(resp.Results))
	}
}

func TestRequestErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		url  string
		want int
	}{
		{"missing field", "/api/v1/stats/field?q=crash", http.StatusBadRequest},
		{"unknown field", "/api/v1/stats/field?field=nonsense", http.StatusBadRequest},
		{"bad order", "/api/v1/stats/field?field=status&order=random", http.StatusBadRequest},
		{"unterminated quote", "/api/v1/stats/field?field=status&q=%22open", http.StatusBadRequest},
		{"missing axis", "/api/v1/stats/matrix?x=status", http.StatusBadRequest},
		{"bad limit", "/api/v1/search?q=crash&limit=zero", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := f.get(t, tt.url, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestVisibilityUnavailable(t *testing.T) {
	f := newFixture(t)
	f.handler.snapshots = failingSnapshots{}
	if code := f.get(t, "/api/v1/stats/field?field=status", nil); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t)
	f.get(t, "/api/v1/stats/field?field=status", nil)
	f.get(t, "/api/v1/stats/field?field=status", nil)

	var cacheStats map[string]any
	f.get(t, "/api/v1/cache/stats", &cacheStats)
	if cacheStats["hits"].(float64) != 1 || cacheStats["misses"].(float64) != 1 {
		t.Errorf("cache stats = %v", cacheStats)
	}

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("invalidate status = %d", rec.Code)
	}
	var resp FieldStatsResponse
	f.get(t, "/api/v1/stats/field?field=status", &resp)
	if resp.CacheHit {
		t.Error("request after invalidation must miss")
	}
}
