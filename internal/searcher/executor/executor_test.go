package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/errors"
)

type hideInProject map[string]string

func (h hideInProject) Visible(fieldID, projectID, issueTypeID string) bool {
	return h[projectID] != fieldID
}

func testIssues() []*issue.Issue {
	mk := func(id, project, typ, summary string, fields map[string][]string) *issue.Issue {
		return &issue.Issue{ID: id, Key: "K-" + id, ProjectID: project, IssueTypeID: typ, Summary: summary, Fields: fields, Version: 1}
	}
	return []*issue.Issue{
		mk("1", "web", "bug", "Login page crash", map[string][]string{issue.FieldStatus: {"Open"}, issue.FieldPriority: {"High"}}),
		mk("2", "web", "bug", "Checkout crash on submit", map[string][]string{issue.FieldStatus: {"Open"}, issue.FieldPriority: {"Low"}}),
		mk("3", "ops", "task", "Rotate certificates", map[string][]string{issue.FieldStatus: {"Done"}, issue.FieldPriority: {"High"}}),
		mk("4", "ops", "bug", "Login service crash crash", map[string][]string{issue.FieldStatus: {"Open"}}),
		mk("5", "web", "story", "Dark mode", map[string][]string{issue.FieldStatus: {"Done"}, issue.FieldLabels: {"ui"}}),
	}
}

func newShards(t *testing.T) []Shard {
	t.Helper()
	router, err := shard.NewRouter(config.IndexerConfig{DataDir: t.TempDir(), NumShards: 3, SegmentMaxSize: 1 << 30})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { router.Close() })
	for _, iss := range testIssues() {
		if _, err := router.EngineFor(iss.ID).IndexIssue(iss); err != nil {
			t.Fatal(err)
		}
	}
	shards := make([]Shard, 0, router.NumShards())
	for _, e := range router.Engines() {
		shards = append(shards, e)
	}
	return shards
}

func mustParse(t *testing.T, q string) *parser.QueryPlan {
	t.Helper()
	plan, err := parser.Parse(q)
	if err != nil {
		t.Fatal(err)
	}
	return plan
}

func TestFieldStats(t *testing.T) {
	se := NewSharded(newShards(t), time.Second, nil)
	checker := hideInProject{"ops": issue.FieldPriority}

	res, err := se.FieldStats(context.Background(), mustParse(t, "crash"), issue.FieldPriority, checker)
	if err != nil {
		t.Fatal(err)
	}
	s := res.Stats
	if s.Total != 3 || s.Irrelevant != 1 || s.NoValue != 0 {
		t.Errorf("total/irrelevant/novalue = %d/%d/%d", s.Total, s.Irrelevant, s.NoValue)
	}
	if s.Counts["High"] != 1 || s.Counts["Low"] != 1 {
		t.Errorf("counts = %v", s.Counts)
	}
	if res.Shards.Queried != 3 || res.Shards.Failed != 0 {
		t.Errorf("shards = %+v", res.Shards)
	}

	all, err := se.FieldStats(context.Background(), mustParse(t, ""), issue.FieldStatus, checker)
	if err != nil {
		t.Fatal(err)
	}
	if all.Stats.Total != 5 || all.Stats.Counts["Open"] != 3 || all.Stats.Counts["Done"] != 2 {
		t.Errorf("all = %+v", all.Stats)
	}
}

func TestStopWordQueryCollectsNothing(t *testing.T) {
	se := NewSharded(newShards(t), time.Second, nil)
	ctx := context.Background()

	field, err := se.FieldStats(ctx, mustParse(t, "of the"), issue.FieldStatus, hideInProject{})
	if err != nil {
		t.Fatal(err)
	}
	if field.Stats.Total != 0 || len(field.Stats.Counts) != 0 {
		t.Errorf("field stats = %+v, want empty", field.Stats)
	}
	matrix, err := se.MatrixStats(ctx, mustParse(t, "the"), issue.FieldPriority, issue.FieldStatus, hideInProject{})
	if err != nil {
		t.Fatal(err)
	}
	if matrix.Stats.Total != 0 {
		t.Errorf("matrix total = %d, want 0", matrix.Stats.Total)
	}
	search, err := se.Search(ctx, mustParse(t, "the"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if search.TotalHits != 0 || len(search.Results) != 0 {
		t.Errorf("search = %+v, want no hits", search)
	}
}

func TestFieldStatsUnknownField(t *testing.T) {
	se := NewSharded(newShards(t), time.Second, nil)
	_, err := se.FieldStats(context.Background(), mustParse(t, ""), "colour", hideInProject{})
	if !errors.Is(err, apperrors.ErrUnknownField) {
		t.Fatalf("err = %v", err)
	}
}

func TestMatrixStats(t *testing.T) {
	se := NewSharded(newShards(t), time.Second, nil)
	checker := hideInProject{"ops": issue.FieldPriority}
	res, err := se.MatrixStats(context.Background(), mustParse(t, "NOT status:done"), issue.FieldPriority, issue.FieldStatus, checker)
	if err != nil {
		t.Fatal(err)
	}
	s := res.Stats
	if s.Total != 3 {
		t.Errorf("Total = %d", s.Total)
	}
	if s.Cell("High", "Open") != 1 || s.Cell("Low", "Open") != 1 {
		t.Errorf("cells = %v", s.Cells)
	}
	if s.XIrrelevant["Open"] != 1 || s.YTotals["Open"] != 3 {
		t.Errorf("x irrelevant = %v, y totals = %v", s.XIrrelevant, s.YTotals)
	}
}

func TestSearchRanksAcrossShards(t *testing.T) {
	se := NewSharded(newShards(t), time.Second, nil)
	res, err := se.Search(context.Background(), mustParse(t, "login crash"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 2 || len(res.Results) != 2 {
		t.Fatalf("hits = %d, results = %+v", res.TotalHits, res.Results)
	}
	ids := map[string]bool{}
	for i, hit := range res.Results {
		ids[hit.ID] = true
		if i > 0 && hit.Score > res.Results[i-1].Score {
			t.Errorf("results not sorted by score: %+v", res.Results)
		}
	}
	if !ids["1"] || !ids["4"] {
		t.Errorf("ids = %v", ids)
	}
	if res.TermStats["crash"] != 3 {
		t.Errorf("term stats = %v", res.TermStats)
	}

	limited, err := se.Search(context.Background(), mustParse(t, ""), 2)
	if err != nil {
		t.Fatal(err)
	}
	if limited.TotalHits != 5 || len(limited.Results) != 2 {
		t.Errorf("limited = %d hits, %d results", limited.TotalHits, len(limited.Results))
	}
}

type brokenShard struct {
	Shard
	delay time.Duration
}

func (b brokenShard) Search(term string) (index.PostingList, error) {
	if b.delay > 0 {
		time.Sleep(b.delay)
		return nil, nil
	}
	return nil, errors.New("segment unreadable")
}

func TestPartialAndTotalShardFailure(t *testing.T) {
	shards := newShards(t)
	partial := append([]Shard{brokenShard{Shard: shards[0]}}, shards[1:]...)
	se := NewSharded(partial, time.Second, nil)
	res, err := se.FieldStats(context.Background(), mustParse(t, "crash"), issue.FieldStatus, hideInProject{})
	if err != nil {
		t.Fatalf("partial failure must still answer: %v", err)
	}
	if res.Shards.Failed != 1 || !res.Shards.Partial() {
		t.Errorf("shards = %+v", res.Shards)
	}

	allBroken := []Shard{brokenShard{Shard: shards[0]}, brokenShard{Shard: shards[1], delay: 200 * time.Millisecond}}
	se = NewSharded(allBroken, 20*time.Millisecond, nil)
	_, err = se.FieldStats(context.Background(), mustParse(t, "crash"), issue.FieldStatus, hideInProject{})
	if !errors.Is(err, apperrors.ErrShardUnavailable) {
		t.Fatalf("err = %v, want ErrShardUnavailable", err)
	}
}
