package visibility

import (
	"context"
	"sync"
)

// Store loads the current field layout configuration.
type Store interface {
	Load(ctx context.Context) (Layout, error)
}

// MemoryStore keeps a layout in process. It backs tests and deployments
// without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	layout Layout
}

func NewMemoryStore(layout Layout) *MemoryStore {
	return &MemoryStore{layout: layout}
}

func (s *MemoryStore) Load(ctx context.Context) (Layout, error) {
	if err := ctx.Err(); err != nil {
		return Layout{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout, nil
}

// Set replaces the stored layout.
func (s *MemoryStore) Set(layout Layout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layout = layout
}

// RemoveProject drops every scheme assignment of projectID.
func (s *MemoryStore) RemoveProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.layout.Assignments[:0:0]
	for _, a := range s.layout.Assignments {
		if a.ProjectID != projectID {
			kept = append(kept, a)
		}
	}
	s.layout.Assignments = kept
	return nil
}
