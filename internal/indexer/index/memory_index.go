package index

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
)

// MemoryIndex is the mutable in-memory part of an engine. Each document
// appears at most once: re-adding a document replaces its previous postings.
type MemoryIndex struct {
	mu       sync.RWMutex
	index    map[string]map[string]*Posting
	docs     map[string]*StoredDoc
	docTerms map[string][]string
	docSizes map[string]int64
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index:    make(map[string]map[string]*Posting),
		docs:     make(map[string]*StoredDoc),
		docTerms: make(map[string][]string),
		docSizes: make(map[string]int64),
	}
}

// AddIssue indexes the issue's text tokens and field terms under its
// revision and returns the document length in text tokens.
func (m *MemoryIndex) AddIssue(iss *issue.Issue) int {
	rev := IssueRevision(iss)
	termData := make(map[string]*Posting)
	tokens := tokenizer.Tokenize(iss.Summary + " " + iss.Description)
	for _, token := range tokens {
		p, exists := termData[token.Term]
		if !exists {
			p = &Posting{
				DocID:     iss.ID,
				Version:   rev.Version,
				Stamp:     rev.Stamp,
				Positions: make([]int, 0, 4),
			}
			termData[token.Term] = p
		}
		p.Frequency++
		p.Positions = append(p.Positions, token.Position)
	}

	fields := make(map[string][]string, len(iss.Fields))
	addField := func(fieldID string, values []string) {
		for _, v := range values {
			term := tokenizer.FieldTerm(fieldID, v)
			if _, exists := termData[term]; !exists {
				termData[term] = &Posting{DocID: iss.ID, Version: rev.Version, Stamp: rev.Stamp, Frequency: 1}
			}
		}
	}
	addField(issue.FieldProject, iss.FieldValues(issue.FieldProject))
	addField(issue.FieldIssueType, iss.FieldValues(issue.FieldIssueType))
	for _, fieldID := range iss.FieldIDs() {
		values := iss.FieldValues(fieldID)
		if len(values) == 0 {
			continue
		}
		fields[fieldID] = values
		addField(fieldID, values)
	}

	doc := &StoredDoc{
		ID:          iss.ID,
		Key:         iss.Key,
		ProjectID:   iss.ProjectID,
		IssueTypeID: iss.IssueTypeID,
		Fields:      fields,
		Version:     rev.Version,
		Stamp:       rev.Stamp,
		Length:      len(tokens),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(iss.ID)

	terms := make([]string, 0, len(termData))
	size := docSize(doc)
	for term, posting := range termData {
		if _, exists := m.index[term]; !exists {
			m.index[term] = make(map[string]*Posting)
		}
		m.index[term][iss.ID] = posting
		terms = append(terms, term)
		size += int64(len(term) + len(iss.ID) + len(posting.Positions)*8 + 64)
	}
	m.docTerms[iss.ID] = terms
	m.docs[iss.ID] = doc
	m.docSizes[iss.ID] = size
	m.size += size
	return doc.Length
}

// Delete replaces any postings of docID with a tombstone at rev.
func (m *MemoryIndex) Delete(docID string, rev Revision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(docID)
	doc := &StoredDoc{ID: docID, Version: rev.Version, Stamp: rev.Stamp, Deleted: true}
	m.docs[docID] = doc
	m.docSizes[docID] = docSize(doc)
	m.size += m.docSizes[docID]
}

func (m *MemoryIndex) removeLocked(docID string) {
	for _, term := range m.docTerms[docID] {
		if docs, ok := m.index[term]; ok {
			delete(docs, docID)
			if len(docs) == 0 {
				delete(m.index, term)
			}
		}
	}
	delete(m.docTerms, docID)
	delete(m.docs, docID)
	m.size -= m.docSizes[docID]
	delete(m.docSizes, docID)
}

func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[term]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// Doc returns the stored record for docID, tombstones included.
func (m *MemoryIndex) Doc(docID string) (StoredDoc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[docID]
	if !ok {
		return StoredDoc{}, false
	}
	return *doc, true
}

// Docs returns every stored record, tombstones included, ordered by ID.
func (m *MemoryIndex) Docs() []StoredDoc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedDocsLocked()
}

func (m *MemoryIndex) sortedDocsLocked() []StoredDoc {
	docs := make([]StoredDoc, 0, len(m.docs))
	for _, doc := range m.docs {
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})
	return docs
}

func (m *MemoryIndex) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return Snapshot{Terms: entries, Docs: m.sortedDocsLocked()}
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// DocCount counts stored records, tombstones included.
func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[string]*Posting)
	m.docs = make(map[string]*StoredDoc)
	m.docTerms = make(map[string][]string)
	m.docSizes = make(map[string]int64)
	m.size = 0
}

func docSize(doc *StoredDoc) int64 {
	size := int64(len(doc.ID) + len(doc.Key) + len(doc.ProjectID) + len(doc.IssueTypeID) + 48)
	for field, values := range doc.Fields {
		size += int64(len(field))
		for _, v := range values {
			size += int64(len(v) + 16)
		}
	}
	return size
}
