package index

import "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"

// Revision orders the revisions of one document: by Version, then by Stamp
// (nanoseconds since the epoch). Unversioned revisions have Version 0, so
// any explicitly versioned revision outranks them.
type Revision struct {
	Version int64
	Stamp   int64
}

// After reports whether r is strictly newer than o.
func (r Revision) After(o Revision) bool {
	if r.Version != o.Version {
		return r.Version > o.Version
	}
	return r.Stamp > o.Stamp
}

// IssueRevision is the revision an issue is indexed under: its version and
// its UpdatedAt time.
func IssueRevision(iss *issue.Issue) Revision {
	rev := Revision{Version: iss.Version}
	if !iss.UpdatedAt.IsZero() {
		rev.Stamp = iss.UpdatedAt.UnixNano()
	}
	return rev
}

// Posting records one document's occurrence of a term. Version and Stamp tie
// the posting to the document revision that produced it; postings of
// superseded revisions are ignored at search time.
type Posting struct {
	DocID     string `json:"id"`
	Version   int64  `json:"v"`
	Stamp     int64  `json:"s,omitempty"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p,omitempty"`
}

func (p Posting) Revision() Revision {
	return Revision{Version: p.Version, Stamp: p.Stamp}
}

type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}

// StoredDoc is the forward (per-document) record the statistics collectors
// read field values from. A Deleted doc is a tombstone that shadows older
// revisions in earlier segments.
type StoredDoc struct {
	ID          string              `json:"id"`
	Key         string              `json:"key,omitempty"`
	ProjectID   string              `json:"project,omitempty"`
	IssueTypeID string              `json:"type,omitempty"`
	Fields      map[string][]string `json:"fields,omitempty"`
	Version     int64               `json:"v"`
	Stamp       int64               `json:"s,omitempty"`
	Length      int                 `json:"len,omitempty"`
	Deleted     bool                `json:"del,omitempty"`
}

// Snapshot is the full content of a memory index, ready to be written as a
// segment.
type Snapshot struct {
	Terms []TermEntry
	Docs  []StoredDoc
}

// Empty reports whether the snapshot holds nothing worth writing.
func (s Snapshot) Empty() bool {
	return len(s.Terms) == 0 && len(s.Docs) == 0
}

func (d StoredDoc) Revision() Revision {
	return Revision{Version: d.Version, Stamp: d.Stamp}
}

// Values returns the stored values of fieldID. Project and issue type come
// from their dedicated columns.
func (d StoredDoc) Values(fieldID string) []string {
	switch fieldID {
	case issue.FieldProject:
		if d.ProjectID == "" {
			return nil
		}
		return []string{d.ProjectID}
	case issue.FieldIssueType:
		if d.IssueTypeID == "" {
			return nil
		}
		return []string{d.IssueTypeID}
	}
	return d.Fields[fieldID]
}
