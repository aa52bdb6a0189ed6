package visibility

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
)

const (
	storyPoints = "customfield_10002"
	severity    = "customfield_10003"
)

func sampleLayout() Layout {
	return Layout{
		DefaultSchemeID: "default",
		Schemes: []Scheme{
			{ID: "default", Name: "Default"},
			{ID: "ops", Name: "Ops", Hidden: []string{issue.FieldPriority, issue.FieldProject}},
			{ID: "ops-tasks", Name: "Ops tasks", Hidden: []string{issue.FieldAssignee}},
		},
		Assignments: []Assignment{
			{ProjectID: "ops", SchemeID: "ops"},
			{ProjectID: "ops", IssueTypeID: "task", SchemeID: "ops-tasks"},
		},
		Contexts: []FieldContext{
			{FieldID: storyPoints, ProjectIDs: []string{"web"}},
			{FieldID: storyPoints, ProjectIDs: []string{"ops"}, IssueTypeIDs: []string{"story"}},
		},
	}
}

func TestSnapshotVisible(t *testing.T) {
	snap, err := NewSnapshot(sampleLayout())
	if err != nil {
		t.Fatalf("NewSnapshot() error = %v", err)
	}
	tests := []struct {
		name                     string
		field, project, issueTyp string
		want                     bool
	}{
		{"default scheme shows priority", issue.FieldPriority, "web", "bug", true},
		{"project scheme hides priority", issue.FieldPriority, "ops", "bug", false},
		{"issue type assignment overrides project", issue.FieldPriority, "ops", "task", true},
		{"issue type scheme hides assignee", issue.FieldAssignee, "ops", "task", false},
		{"project field can never be hidden", issue.FieldProject, "ops", "bug", true},
		{"context allows web", storyPoints, "web", "bug", true},
		{"context restricts ops to stories", storyPoints, "ops", "bug", false},
		{"second context matches", storyPoints, "ops", "story", true},
		{"field without context is global", severity, "mobile", "bug", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snap.Visible(tt.field, tt.project, tt.issueTyp); got != tt.want {
				t.Errorf("Visible(%s, %s, %s) = %v, want %v", tt.field, tt.project, tt.issueTyp, got, tt.want)
			}
		})
	}
}

func TestNewSnapshotValidation(t *testing.T) {
	bad := []Layout{
		{DefaultSchemeID: "missing"},
		{Schemes: []Scheme{{ID: "a"}, {ID: "a"}}},
		{Schemes: []Scheme{{ID: "a"}}, Assignments: []Assignment{{ProjectID: "p", SchemeID: "b"}}},
		{Schemes: []Scheme{{ID: ""}}},
	}
	for i, layout := range bad {
		if _, err := NewSnapshot(layout); err == nil {
			t.Errorf("layout %d: expected error", i)
		}
	}
}

func TestSnapshotVersionIsOrderIndependent(t *testing.T) {
	a := sampleLayout()
	b := sampleLayout()
	b.Schemes[0], b.Schemes[2] = b.Schemes[2], b.Schemes[0]
	b.Assignments[0], b.Assignments[1] = b.Assignments[1], b.Assignments[0]

	sa, _ := NewSnapshot(a)
	sb, _ := NewSnapshot(b)
	if sa.Version() != sb.Version() {
		t.Errorf("versions differ: %s vs %s", sa.Version(), sb.Version())
	}
	b.Schemes[0].Hidden = append(b.Schemes[0].Hidden, issue.FieldLabels)
	sc, _ := NewSnapshot(b)
	if sc.Version() == sa.Version() {
		t.Error("content change must change the version")
	}
}

type countingChecker struct {
	calls int
}

func (c *countingChecker) Visible(fieldID, projectID, issueTypeID string) bool {
	c.calls++
	return projectID != "hidden"
}

func TestScopeCacheMemoises(t *testing.T) {
	checker := &countingChecker{}
	cache := NewScopeCache(checker)
	for i := 0; i < 100; i++ {
		if !cache.Visible(issue.FieldStatus, "web", "bug") {
			t.Fatal("expected visible")
		}
		if cache.Visible(issue.FieldStatus, "hidden", "bug") {
			t.Fatal("expected hidden")
		}
	}
	if checker.calls != 2 {
		t.Errorf("checker called %d times, want 2", checker.calls)
	}
	hits, misses := cache.Stats()
	if hits != 198 || misses != 2 || cache.Len() != 2 {
		t.Errorf("stats = %d hits, %d misses, len %d", hits, misses, cache.Len())
	}
}

type flakyStore struct {
	layout Layout
	fail   atomic.Bool
	loads  atomic.Int32
}

func (s *flakyStore) Load(ctx context.Context) (Layout, error) {
	s.loads.Add(1)
	if s.fail.Load() {
		return Layout{}, errors.New("database down")
	}
	return s.layout, nil
}

func TestProviderCachesAndServesStale(t *testing.T) {
	store := &flakyStore{layout: sampleLayout()}
	p := NewProvider(store, time.Minute, time.Second)
	now := time.Now()
	p.now = func() time.Time { return now }

	ctx := context.Background()
	first, err := p.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Snapshot(ctx); err != nil {
		t.Fatal(err)
	}
	if store.loads.Load() != 1 {
		t.Errorf("loads = %d, want 1 while fresh", store.loads.Load())
	}

	store.fail.Store(true)
	now = now.Add(2 * time.Minute)
	stale, err := p.Snapshot(ctx)
	if err != nil {
		t.Fatalf("expected stale snapshot, got error %v", err)
	}
	if stale != first {
		t.Error("stale snapshot should be the previously loaded one")
	}
}

func TestProviderErrorsWithoutSnapshot(t *testing.T) {
	store := &flakyStore{}
	store.fail.Store(true)
	p := NewProvider(store, time.Minute, time.Second)
	if _, err := p.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestMemoryStoreRemoveProject(t *testing.T) {
	store := NewMemoryStore(sampleLayout())
	if err := store.RemoveProject(context.Background(), "ops"); err != nil {
		t.Fatal(err)
	}
	layout, _ := store.Load(context.Background())
	if len(layout.Assignments) != 0 {
		t.Errorf("assignments = %+v", layout.Assignments)
	}
}
