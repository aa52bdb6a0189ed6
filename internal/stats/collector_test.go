package stats

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/visibility"
)

type docMap map[string]index.StoredDoc

func (m docMap) Doc(id string) (index.StoredDoc, bool) {
	d, ok := m[id]
	return d, ok
}

// hiddenIn hides fields per project.
type hiddenIn map[string][]string

func (h hiddenIn) Visible(fieldID, projectID, issueTypeID string) bool {
	for _, f := range h[projectID] {
		if f == fieldID {
			return false
		}
	}
	return true
}

func doc(id, project string, fields map[string][]string) index.StoredDoc {
	return index.StoredDoc{ID: id, ProjectID: project, IssueTypeID: "bug", Fields: fields, Version: 1}
}

func sampleDocs() docMap {
	return docMap{
		"1": doc("1", "web", map[string][]string{issue.FieldPriority: {"high"}, issue.FieldLabels: {"ui", "css", "ui"}}),
		"2": doc("2", "web", map[string][]string{issue.FieldPriority: {"low"}, issue.FieldLabels: {"ui"}}),
		"3": doc("3", "web", map[string][]string{issue.FieldPriority: {"high"}}),
		"4": doc("4", "ops", map[string][]string{issue.FieldLabels: {"infra"}}),
		"5": doc("5", "ops", nil),
	}
}

func TestOneDimensionalCollector(t *testing.T) {
	checker := hiddenIn{"ops": {issue.FieldPriority}}
	docs := sampleDocs()

	tests := []struct {
		name       string
		field      string
		wantTotal  int64
		wantIrrel  int64
		wantNoVal  int64
		wantCounts map[string]int64
	}{
		{
			name:       "priority hidden in ops",
			field:      issue.FieldPriority,
			wantTotal:  5,
			wantIrrel:  2,
			wantNoVal:  0,
			wantCounts: map[string]int64{"high": 2, "low": 1},
		},
		{
			name:       "labels fan out per distinct value",
			field:      issue.FieldLabels,
			wantTotal:  5,
			wantIrrel:  0,
			wantNoVal:  2,
			wantCounts: map[string]int64{"ui": 2, "css": 1, "infra": 1},
		},
		{
			name:       "project is always relevant",
			field:      issue.FieldProject,
			wantTotal:  5,
			wantCounts: map[string]int64{"web": 3, "ops": 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOneDimensionalCollector(tt.field, docs, checker)
			for _, id := range []string{"1", "2", "3", "4", "5", "missing"} {
				c.Collect(id)
			}
			got := c.Result()
			if got.Total != tt.wantTotal || got.Irrelevant != tt.wantIrrel || got.NoValue != tt.wantNoVal {
				t.Errorf("total/irrelevant/novalue = %d/%d/%d, want %d/%d/%d",
					got.Total, got.Irrelevant, got.NoValue, tt.wantTotal, tt.wantIrrel, tt.wantNoVal)
			}
			if len(got.Counts) != len(tt.wantCounts) {
				t.Fatalf("counts = %v, want %v", got.Counts, tt.wantCounts)
			}
			for v, n := range tt.wantCounts {
				if got.Counts[v] != n {
					t.Errorf("counts[%q] = %d, want %d", v, got.Counts[v], n)
				}
			}
		})
	}
}

func TestOneDimensionalCollectorMemoisesVisibility(t *testing.T) {
	c := NewOneDimensionalCollector(issue.FieldPriority, sampleDocs(), hiddenIn{})
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		c.Collect(id)
	}
	hits, misses := c.ScopeStats()
	if misses != 2 || hits != 3 {
		t.Errorf("hits/misses = %d/%d, want 3/2", hits, misses)
	}
}

func TestTwoDimensionalCollector(t *testing.T) {
	docs := docMap{
		"a": doc("a", "web", map[string][]string{issue.FieldPriority: {"high"}, issue.FieldStatus: {"open"}}),
		"b": doc("b", "web", map[string][]string{issue.FieldPriority: {"high"}}),
		"c": doc("c", "ops", map[string][]string{issue.FieldStatus: {"open"}}),
		"d": doc("d", "legacy", map[string][]string{issue.FieldPriority: {"low"}}),
		"e": doc("e", "none", map[string][]string{issue.FieldPriority: {"low"}, issue.FieldStatus: {"done"}}),
	}
	checker := hiddenIn{
		"ops":    {issue.FieldPriority},
		"legacy": {issue.FieldStatus},
		"none":   {issue.FieldPriority, issue.FieldStatus},
	}
	c := NewTwoDimensionalCollector(issue.FieldPriority, issue.FieldStatus, docs, checker)
	for _, id := range []string{"a", "b", "c", "d", "e", "zzz"} {
		c.Collect(id)
	}
	r := c.Result()

	if r.Total != 5 {
		t.Errorf("Total = %d, want 5", r.Total)
	}
	if r.BothIrrelevant != 1 {
		t.Errorf("BothIrrelevant = %d, want 1", r.BothIrrelevant)
	}
	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"cell high/open", r.Cell("high", "open"), 1},
		{"cell high/none", r.Cell("high", NoValue), 1},
		{"x irrelevant at open", r.XIrrelevant["open"], 1},
		{"y irrelevant at low", r.YIrrelevant["low"], 1},
		{"x total high", r.XTotals["high"], 2},
		{"x total low", r.XTotals["low"], 1},
		{"y total open", r.YTotals["open"], 2},
		{"y total none", r.YTotals[NoValue], 1},
		{"y total done", r.YTotals["done"], 0},
	}
	for _, ch := range checks {
		if ch.got != ch.want {
			t.Errorf("%s = %d, want %d", ch.name, ch.got, ch.want)
		}
	}
}

func TestResultMergeAndBuckets(t *testing.T) {
	var merged OneDimensionalResult
	merged.Merge(OneDimensionalResult{Field: "status", Total: 3, NoValue: 1, Counts: map[string]int64{"open": 2}})
	merged.Merge(OneDimensionalResult{Field: "status", Total: 4, Irrelevant: 1, Counts: map[string]int64{"open": 1, "done": 2, "": 0}})

	if merged.Field != "status" || merged.Total != 7 || merged.NoValue != 1 || merged.Irrelevant != 1 {
		t.Fatalf("merged = %+v", merged)
	}

	byCount := merged.Buckets(OrderCount)
	wantCount := []Bucket{{"open", 3}, {"done", 2}, {"", 0}}
	byValue := merged.Buckets(OrderValue)
	wantValue := []Bucket{{"done", 2}, {"open", 3}, {"", 0}}
	for i := range wantCount {
		if byCount[i] != wantCount[i] {
			t.Errorf("count order[%d] = %+v, want %+v", i, byCount[i], wantCount[i])
		}
		if byValue[i] != wantValue[i] {
			t.Errorf("value order[%d] = %+v, want %+v", i, byValue[i], wantValue[i])
		}
	}
}

func TestTwoDimensionalMerge(t *testing.T) {
	docs := sampleDocs()
	left := NewTwoDimensionalCollector(issue.FieldPriority, issue.FieldLabels, docs, hiddenIn{})
	right := NewTwoDimensionalCollector(issue.FieldPriority, issue.FieldLabels, docs, hiddenIn{})
	left.Collect("1")
	left.Collect("2")
	right.Collect("3")
	right.Collect("1")

	var merged TwoDimensionalResult
	merged.Merge(left.Result())
	merged.Merge(right.Result())

	if merged.Total != 4 {
		t.Errorf("Total = %d", merged.Total)
	}
	if merged.Cell("high", "ui") != 2 || merged.Cell("high", NoValue) != 1 {
		t.Errorf("cells = %v", merged.Cells)
	}
	if merged.XTotals["high"] != 3 || merged.XField != issue.FieldPriority {
		t.Errorf("x totals = %v field %q", merged.XTotals, merged.XField)
	}
}

func TestParseOrder(t *testing.T) {
	for in, want := range map[string]Order{"": OrderCount, "count": OrderCount, "value": OrderValue} {
		got, err := ParseOrder(in)
		if err != nil || got != want {
			t.Errorf("ParseOrder(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOrder("random"); err == nil {
		t.Error("expected error")
	}
}

var _ visibility.Checker = hiddenIn{}
var _ HitCollector = (*OneDimensionalCollector)(nil)
var _ HitCollector = (*TwoDimensionalCollector)(nil)
