package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
)

func buildSnapshot() index.Snapshot {
	m := index.NewMemoryIndex()
	m.AddIssue(&issue.Issue{
		ID: "1", ProjectID: "web", IssueTypeID: "bug", Summary: "checkout timeout",
		Fields: map[string][]string{issue.FieldStatus: {"open"}}, Version: 3,
	})
	m.AddIssue(&issue.Issue{
		ID: "2", ProjectID: "web", IssueTypeID: "task", Summary: "update checkout copy",
		Fields: map[string][]string{issue.FieldStatus: {"closed"}}, Version: 1,
	})
	m.Delete("3", index.Revision{Version: 9})
	return m.Snapshot()
}

func TestWriteAndReadSegment(t *testing.T) {
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(buildSnapshot())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if filepath.Ext(name) != FileExt {
		t.Errorf("segment name %q lacks %s extension", name, FileExt)
	}

	r, err := OpenReader(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer r.Close()

	if r.DocCount() != 3 {
		t.Errorf("DocCount() = %d, want 3", r.DocCount())
	}
	postings, err := r.Search("checkout")
	if err != nil {
		t.Fatal(err)
	}
	if len(postings) != 2 {
		t.Fatalf("checkout postings = %+v", postings)
	}
	open, _ := r.Search(tokenizer.FieldTerm(issue.FieldStatus, "open"))
	if len(open) != 1 || open[0].DocID != "1" || open[0].Version != 3 {
		t.Errorf("status=open postings = %+v", open)
	}
	if missing, _ := r.Search("nonexistent"); missing != nil {
		t.Errorf("unexpected postings %+v", missing)
	}

	doc, ok := r.Doc("1")
	if !ok || doc.ProjectID != "web" || doc.Fields[issue.FieldStatus][0] != "open" {
		t.Errorf("Doc(1) = %+v, %v", doc, ok)
	}
	tomb, ok := r.Doc("3")
	if !ok || !tomb.Deleted {
		t.Errorf("Doc(3) = %+v, %v", tomb, ok)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestOpenReaderDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(buildSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a byte inside the stored-docs section, just before the footer.
	data[len(data)-FooterSize-2] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReader(path); err == nil {
		t.Fatal("expected checksum error")
	}
}

func TestWriteEmptySnapshot(t *testing.T) {
	if _, err := NewWriter(t.TempDir()).Write(index.Snapshot{}); err == nil {
		t.Fatal("expected error for empty snapshot")
	}
}
