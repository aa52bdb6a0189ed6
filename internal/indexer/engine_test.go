package indexer

import (
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/config"
)

func testConfig(t *testing.T) config.IndexerConfig {
	t.Helper()
	return config.IndexerConfig{
		DataDir:        t.TempDir(),
		NumShards:      1,
		SegmentMaxSize: 1 << 30,
	}
}

func bug(id string, version int64, status string) *issue.Issue {
	return &issue.Issue{
		ID:          id,
		ProjectID:   "web",
		IssueTypeID: "bug",
		Summary:     "payment failure",
		Fields:      map[string][]string{issue.FieldStatus: {status}},
		Version:     version,
	}
}

func mustIndex(t *testing.T, e *Engine, iss *issue.Issue) {
	t.Helper()
	if _, err := e.IndexIssue(iss); err != nil {
		t.Fatalf("IndexIssue(%s) error = %v", iss.ID, err)
	}
}

func TestEngineNewerRevisionShadowsSegment(t *testing.T) {
	e, err := NewEngine(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	mustIndex(t, e, bug("1", 1, "open"))
	mustIndex(t, e, bug("2", 1, "open"))
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	mustIndex(t, e, bug("1", 2, "closed"))

	open, err := e.Search(tokenizer.FieldTerm(issue.FieldStatus, "open"))
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].DocID != "2" {
		t.Errorf("status=open = %+v, want only doc 2", open)
	}
	doc, ok := e.Doc("1")
	if !ok || doc.Version != 2 || doc.Fields[issue.FieldStatus][0] != "closed" {
		t.Errorf("Doc(1) = %+v, %v", doc, ok)
	}
	text, _ := e.Search("payment")
	if len(text) != 2 {
		t.Errorf("text search = %+v, want 2 docs", text)
	}
}

func TestEngineIgnoresStaleRevision(t *testing.T) {
	e, err := NewEngine(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	mustIndex(t, e, bug("1", 5, "closed"))
	changed, err := e.IndexIssue(bug("1", 4, "open"))
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("stale revision must not change the index")
	}
	doc, _ := e.Doc("1")
	if doc.Fields[issue.FieldStatus][0] != "closed" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestEngineDeleteAndRecover(t *testing.T) {
	cfg := testConfig(t)
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	mustIndex(t, e, bug("1", 1, "open"))
	mustIndex(t, e, bug("2", 1, "open"))
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	gen := e.Generation()
	if _, err := e.DeleteIssue("1", index.Revision{Version: 2}); err != nil {
		t.Fatal(err)
	}
	if e.Generation() == gen {
		t.Error("delete must bump the generation")
	}
	if _, ok := e.Doc("1"); ok {
		t.Error("deleted doc still visible")
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if got := reopened.AllDocIDs(); len(got) != 1 || got[0] != "2" {
		t.Errorf("AllDocIDs() after recovery = %v, want [2]", got)
	}
	if reopened.SegmentCount() != 2 {
		t.Errorf("SegmentCount() = %d, want 2", reopened.SegmentCount())
	}
	open, _ := reopened.Search(tokenizer.FieldTerm(issue.FieldStatus, "open"))
	if len(open) != 1 || open[0].DocID != "2" {
		t.Errorf("status=open after recovery = %+v", open)
	}
	if reopened.GetTotalDocs() != 1 {
		t.Errorf("GetTotalDocs() = %d", reopened.GetTotalDocs())
	}
}

func TestEngineFlushesWhenFull(t *testing.T) {
	cfg := testConfig(t)
	cfg.SegmentMaxSize = 1
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	mustIndex(t, e, bug("1", 1, "open"))
	if e.SegmentCount() != 1 {
		t.Errorf("SegmentCount() = %d, want 1", e.SegmentCount())
	}
	if _, ok := e.Doc("1"); !ok {
		t.Error("doc lost after automatic flush")
	}
}

func TestEngineRejectsMissingID(t *testing.T) {
	e, err := NewEngine(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if _, err := e.IndexIssue(&issue.Issue{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEngineTextStatsTrackLiveRevisions(t *testing.T) {
	cfg := testConfig(t)
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	mustIndex(t, e, bug("1", 1, "open"))
	mustIndex(t, e, bug("2", 1, "open"))
	long := bug("1", 2, "open")
	long.Summary = "payment failure during checkout flow"
	mustIndex(t, e, long)

	docs, total := e.TextStats()
	wantLen := int64(e.DocLength("1") + e.DocLength("2"))
	if docs != 2 || total != wantLen {
		t.Errorf("TextStats() = %d, %d; want 2, %d", docs, total, wantLen)
	}
	if e.DocLength("1") <= e.DocLength("2") {
		t.Errorf("DocLength(1) = %d should exceed DocLength(2) = %d", e.DocLength("1"), e.DocLength("2"))
	}

	if _, err := e.DeleteIssue("2", index.Revision{Version: 2}); err != nil {
		t.Fatal(err)
	}
	docs, total = e.TextStats()
	if docs != 1 || total != int64(e.DocLength("1")) {
		t.Errorf("after delete TextStats() = %d, %d", docs, total)
	}
	e.Close()

	reopened, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	rdocs, rtotal := reopened.TextStats()
	if rdocs != docs || rtotal != total {
		t.Errorf("recovered TextStats() = %d, %d; want %d, %d", rdocs, rtotal, docs, total)
	}
}

func TestEngineDeleteRevisionRules(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	stamped := func(version int64, at time.Time) *issue.Issue {
		iss := bug("1", version, "open")
		iss.UpdatedAt = at
		return iss
	}
	tests := []struct {
		name      string
		live      *issue.Issue
		tombstone index.Revision
		deleted   bool
	}{
		{"same version, earlier stamp", stamped(3, ts), index.Revision{Version: 3, Stamp: ts.Add(-time.Hour).UnixNano()}, true},
		{"same revision", stamped(3, ts), index.Revision{Version: 3, Stamp: ts.UnixNano()}, true},
		{"older version", stamped(3, ts), index.Revision{Version: 2, Stamp: ts.Add(time.Hour).UnixNano()}, false},
		{"unversioned, later", stamped(3, ts), index.Revision{Stamp: ts.Add(time.Minute).UnixNano()}, true},
		{"unversioned, earlier", stamped(3, ts), index.Revision{Stamp: ts.Add(-time.Minute).UnixNano()}, false},
		{"unversioned both", stamped(0, ts), index.Revision{Stamp: ts.UnixNano()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine(testConfig(t))
			if err != nil {
				t.Fatal(err)
			}
			defer e.Close()
			mustIndex(t, e, tt.live)
			changed, err := e.DeleteIssue("1", tt.tombstone)
			if err != nil {
				t.Fatal(err)
			}
			if changed != tt.deleted {
				t.Errorf("DeleteIssue() changed = %v, want %v", changed, tt.deleted)
			}
			if _, ok := e.Doc("1"); ok == tt.deleted {
				t.Errorf("Doc(1) visible = %v after delete", ok)
			}
		})
	}
}

func TestEngineReplayAfterDeleteIsStale(t *testing.T) {
	cfg := testConfig(t)
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	live := bug("1", 3, "open")
	live.UpdatedAt = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mustIndex(t, e, live)
	if _, err := e.DeleteIssue("1", index.Revision{Version: 3}); err != nil {
		t.Fatal(err)
	}
	if rev, _ := e.LiveRevision("1"); rev.Version != 3 || rev.Stamp != live.UpdatedAt.UnixNano() {
		t.Errorf("LiveRevision() = %+v, want the deleted revision", rev)
	}
	if changed, _ := e.IndexIssue(live); changed {
		t.Error("replay of the deleted revision must be stale")
	}
	mustIndex(t, e, bug("1", 4, "reopened"))
	if _, ok := e.Doc("1"); !ok {
		t.Error("a newer version must bring the issue back")
	}
	e.Close()

	reopened, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	doc, ok := reopened.Doc("1")
	if !ok || doc.Fields[issue.FieldStatus][0] != "reopened" {
		t.Errorf("Doc(1) after recovery = %+v, %v", doc, ok)
	}
}
