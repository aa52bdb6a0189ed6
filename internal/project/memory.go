package project

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	apperrors "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/errors"
)

// MemoryRepository keeps projects in process. Names compare case-insensitively
// like the Postgres unique index.
type MemoryRepository struct {
	mu       sync.RWMutex
	projects map[string]issue.Project
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{projects: make(map[string]issue.Project)}
}

func (r *MemoryRepository) Create(ctx context.Context, p issue.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.projects[p.ID]; exists || r.conflictLocked(p) {
		return apperrors.ErrProjectExists
	}
	r.projects[p.ID] = p
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, p issue.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.projects[p.ID]; !exists {
		return apperrors.ErrProjectNotFound
	}
	if r.conflictLocked(p) {
		return apperrors.ErrProjectExists
	}
	r.projects[p.ID] = p
	return nil
}

func (r *MemoryRepository) conflictLocked(p issue.Project) bool {
	for id, other := range r.projects {
		if id == p.ID {
			continue
		}
		if other.Key == p.Key || strings.EqualFold(other.Name, p.Name) {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.projects[id]; !exists {
		return apperrors.ErrProjectNotFound
	}
	delete(r.projects, id)
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (issue.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return issue.Project{}, apperrors.ErrProjectNotFound
	}
	return p, nil
}

func (r *MemoryRepository) GetByKey(ctx context.Context, key string) (issue.Project, error) {
	return r.find(func(p issue.Project) bool { return p.Key == key })
}

func (r *MemoryRepository) GetByName(ctx context.Context, name string) (issue.Project, error) {
	return r.find(func(p issue.Project) bool { return strings.EqualFold(p.Name, name) })
}

func (r *MemoryRepository) find(match func(issue.Project) bool) (issue.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.projects {
		if match(p) {
			return p, nil
		}
	}
	return issue.Project{}, apperrors.ErrProjectNotFound
}

// List returns projects ordered by key.
func (r *MemoryRepository) List(ctx context.Context) ([]issue.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]issue.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
