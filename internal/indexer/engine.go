// Package indexer maintains a per-shard issue index: a mutable memory index
// flushed into immutable segments, plus the live-version table that decides
// which revision of each issue is visible.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/config"
)

// docState is the newest known revision of a document.
type docState struct {
	rev     index.Revision
	deleted bool
	length  int
}

type Engine struct {
	memIndex *index.MemoryIndex
	writer   *segment.Writer
	cfg      config.IndexerConfig
	logger   *slog.Logger

	// writeMu serialises writers with Flush so no update lands between the
	// snapshot and the reset of the memory index.
	writeMu sync.Mutex

	readerMu sync.RWMutex
	readers  []*segment.Reader

	stateMu     sync.RWMutex
	live        map[string]docState
	liveDocs    int64
	totalLength int64

	generation atomic.Int64

	onFlush func(status string)
}

func NewEngine(cfg config.IndexerConfig) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		memIndex: index.NewMemoryIndex(),
		writer:   segment.NewWriter(cfg.DataDir),
		cfg:      cfg,
		logger:   slog.Default().With("component", "indexer", "data_dir", cfg.DataDir),
		live:     make(map[string]docState),
	}
	if err := e.loadExistingSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

// IndexIssue stores iss unless the same or a newer revision is already known.
// It reports whether the index changed.
func (e *Engine) IndexIssue(iss *issue.Issue) (bool, error) {
	if iss == nil || iss.ID == "" {
		return false, fmt.Errorf("indexing issue: missing id")
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	rev := index.IssueRevision(iss)
	if !e.isNewer(iss.ID, rev) {
		e.logger.Debug("stale issue revision ignored", "issue_id", iss.ID, "version", iss.Version)
		return false, nil
	}
	length := e.memIndex.AddIssue(iss)
	e.advance(iss.ID, rev, false, length)
	e.generation.Add(1)
	e.logger.Debug("issue indexed in memory",
		"issue_id", iss.ID,
		"version", iss.Version,
		"mem_size", e.memIndex.Size(),
	)
	return true, e.flushIfFullLocked()
}

// DeleteIssue hides issueID up to rev. The tombstone also removes a live
// revision carrying the same version whatever its stamp, and an unversioned
// tombstone removes any live revision stamped no later than it.
func (e *Engine) DeleteIssue(issueID string, rev index.Revision) (bool, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	applied, ok := e.advance(issueID, rev, true, 0)
	if !ok {
		return false, nil
	}
	e.memIndex.Delete(issueID, applied)
	e.generation.Add(1)
	e.logger.Debug("issue deleted", "issue_id", issueID, "version", applied.Version)
	return true, e.flushIfFullLocked()
}

func (e *Engine) isNewer(docID string, rev index.Revision) bool {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	cur, ok := e.live[docID]
	return !ok || rev.After(cur.rev)
}

// supersedes reports whether rev (a tombstone when deleted) replaces cur.
// Tombstones win ties against live revisions.
func supersedes(cur docState, rev index.Revision, deleted bool) bool {
	if rev.After(cur.rev) {
		return true
	}
	if !deleted || cur.deleted {
		return false
	}
	if rev.Version == 0 {
		return rev.Stamp >= cur.rev.Stamp
	}
	return rev.Version == cur.rev.Version
}

// advance records rev as the live revision of docID if it supersedes the
// current one and returns the revision stored. A tombstone never moves
// either component backwards, so replays of the deleted revision stay stale.
func (e *Engine) advance(docID string, rev index.Revision, deleted bool, length int) (index.Revision, bool) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	cur, ok := e.live[docID]
	if ok && !supersedes(cur, rev, deleted) {
		return cur.rev, false
	}
	if ok && deleted {
		rev.Version = max(rev.Version, cur.rev.Version)
		rev.Stamp = max(rev.Stamp, cur.rev.Stamp)
	}
	if ok && !cur.deleted {
		e.liveDocs--
		e.totalLength -= int64(cur.length)
	}
	e.live[docID] = docState{rev: rev, deleted: deleted, length: length}
	if !deleted {
		e.liveDocs++
		e.totalLength += int64(length)
	}
	return rev, true
}

func (e *Engine) flushIfFullLocked() error {
	if e.memIndex.Size() < e.cfg.SegmentMaxSize {
		return nil
	}
	e.logger.Info("memory index reached max size, flushing to disk",
		"size", e.memIndex.Size(),
		"threshold", e.cfg.SegmentMaxSize,
	)
	if err := e.flushLocked(); err != nil {
		return fmt.Errorf("flushing memory index: %w", err)
	}
	return nil
}

// SetFlushObserver registers fn to be told "ok" or "error" after every
// flush that had something to write. Call it before indexing starts.
func (e *Engine) SetFlushObserver(fn func(status string)) {
	e.onFlush = fn
}

func (e *Engine) Flush() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.flushLocked()
}

func (e *Engine) flushLocked() error {
	snapshot := e.memIndex.Snapshot()
	if snapshot.Empty() {
		return nil
	}
	err := e.writeSegment(snapshot)
	if e.onFlush != nil {
		if err != nil {
			e.onFlush("error")
		} else {
			e.onFlush("ok")
		}
	}
	return err
}

func (e *Engine) writeSegment(snapshot index.Snapshot) error {
	segmentName, err := e.writer.Write(snapshot)
	if err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}

	segPath := filepath.Join(e.cfg.DataDir, segmentName)
	reader, err := segment.OpenReader(segPath)
	if err != nil {
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	active := len(e.readers)
	e.readerMu.Unlock()
	e.memIndex.Reset()
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", active,
	)
	return nil
}

// Search returns the postings of term belonging to live revisions, ordered by
// doc ID.
func (e *Engine) Search(term string) (index.PostingList, error) {
	allPostings := e.memIndex.Search(term)
	for _, reader := range e.snapshotReaders() {
		postings, err := reader.Search(term)
		if err != nil {
			return nil, fmt.Errorf("searching segment %s: %w", filepath.Base(reader.Path()), err)
		}
		allPostings = append(allPostings, postings...)
	}
	return e.liveOnly(allPostings), nil
}

// liveOnly keeps one posting per live document, dropping postings of
// superseded or deleted revisions.
func (e *Engine) liveOnly(postings index.PostingList) index.PostingList {
	if len(postings) == 0 {
		return postings
	}
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	seen := make(map[string]struct{}, len(postings))
	result := make(index.PostingList, 0, len(postings))
	for _, p := range postings {
		state, ok := e.live[p.DocID]
		if !ok || state.deleted || state.rev != p.Revision() {
			continue
		}
		if _, dup := seen[p.DocID]; dup {
			continue
		}
		seen[p.DocID] = struct{}{}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// Doc returns the live revision of docID.
func (e *Engine) Doc(docID string) (index.StoredDoc, bool) {
	e.stateMu.RLock()
	state, ok := e.live[docID]
	e.stateMu.RUnlock()
	if !ok || state.deleted {
		return index.StoredDoc{}, false
	}
	if doc, ok := e.memIndex.Doc(docID); ok && doc.Revision() == state.rev {
		return doc, true
	}
	readers := e.snapshotReaders()
	for i := len(readers) - 1; i >= 0; i-- {
		if doc, ok := readers[i].Doc(docID); ok && doc.Revision() == state.rev {
			return doc, true
		}
	}
	return index.StoredDoc{}, false
}

// AllDocIDs returns the IDs of every live document, sorted.
func (e *Engine) AllDocIDs() []string {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	ids := make([]string, 0, len(e.live))
	for id, state := range e.live {
		if !state.deleted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// LiveRevision returns the newest known revision of docID, deleted or not.
func (e *Engine) LiveRevision(docID string) (index.Revision, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	state, ok := e.live[docID]
	return state.rev, ok
}

func (e *Engine) GetTotalDocs() int64 {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.liveDocs
}

// TextStats returns the live document count and their summed text length,
// the inputs to length-normalised scoring.
func (e *Engine) TextStats() (docs int64, totalLength int64) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.liveDocs, e.totalLength
}

// DocLength returns the text length of the live revision of docID.
func (e *Engine) DocLength(docID string) int {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	state := e.live[docID]
	if state.deleted {
		return 0
	}
	return state.length
}

// Generation changes whenever the visible content of the engine changes.
func (e *Engine) Generation() int64 {
	return e.generation.Load()
}

func (e *Engine) SegmentCount() int {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return len(e.readers)
}

func (e *Engine) snapshotReaders() []*segment.Reader {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	readers := make([]*segment.Reader, len(e.readers))
	copy(readers, e.readers)
	return readers
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if e.memIndex.DocCount() > 0 {
					if err := e.Flush(); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
	return nil
}

// loadExistingSegments opens every segment in name (creation) order and
// rebuilds the live-version table from their stored docs.
func (e *Engine) loadExistingSegments() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.FileExt) {
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Strings(segFiles)

	for _, name := range segFiles {
		path := filepath.Join(e.cfg.DataDir, name)
		reader, err := segment.OpenReader(path)
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		reader.Docs(func(doc index.StoredDoc) {
			e.advance(doc.ID, doc.Revision(), doc.Deleted, doc.Length)
		})
		e.readers = append(e.readers, reader)
		e.logger.Info("loaded existing segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	e.logger.Info("segment recovery complete", "segments_loaded", len(e.readers))
	return nil
}
