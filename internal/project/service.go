// Package project manages the project registry: validated create, update
// and delete over a Postgres or in-memory repository.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	apperrors "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/metrics"
)

const (
	MaxKeyLength  = 10
	MaxNameLength = 80
)

var keyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]+$`)

// Repository stores projects. Lookups of missing projects return
// apperrors.ErrProjectNotFound; key or name collisions return
// apperrors.ErrProjectExists.
type Repository interface {
	Create(ctx context.Context, p issue.Project) error
	Update(ctx context.Context, p issue.Project) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (issue.Project, error)
	GetByKey(ctx context.Context, key string) (issue.Project, error)
	GetByName(ctx context.Context, name string) (issue.Project, error)
	List(ctx context.Context) ([]issue.Project, error)
}

// LayoutCleaner drops a deleted project's field layout assignments; the
// visibility stores implement it.
type LayoutCleaner interface {
	RemoveProject(ctx context.Context, projectID string) error
}

// Input carries the caller-editable project attributes.
type Input struct {
	Key          string             `json:"key"`
	Name         string             `json:"name"`
	Lead         string             `json:"lead"`
	Description  string             `json:"description"`
	URL          string             `json:"url"`
	AssigneeType issue.AssigneeType `json:"assignee_type"`
}

func (in Input) normalized() Input {
	in.Key = strings.TrimSpace(in.Key)
	in.Name = strings.TrimSpace(in.Name)
	in.Lead = strings.TrimSpace(in.Lead)
	in.URL = strings.TrimSpace(in.URL)
	if in.AssigneeType == "" {
		in.AssigneeType = issue.AssigneeUnassigned
	}
	return in
}

type Service struct {
	repo    Repository
	cleaner LayoutCleaner
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// NewService creates a service over repo. cleaner and m may be nil.
func NewService(repo Repository, cleaner LayoutCleaner, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		cleaner: cleaner,
		metrics: m,
		now:     time.Now,
		logger:  slog.Default().With("component", "project-service"),
	}
}

func (s *Service) Create(ctx context.Context, in Input) (issue.Project, error) {
	in = in.normalized()
	if err := s.validate(ctx, in, ""); err != nil {
		s.observe("create", err)
		return issue.Project{}, err
	}
	now := s.now().UTC()
	p := issue.Project{
		ID:           uuid.NewString(),
		Key:          in.Key,
		Name:         in.Name,
		Lead:         in.Lead,
		Description:  in.Description,
		URL:          in.URL,
		AssigneeType: in.AssigneeType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		s.observe("create", err)
		return issue.Project{}, fmt.Errorf("creating project %s: %w", p.Key, err)
	}
	s.observe("create", nil)
	logger.FromContext(ctx).Info("project created", "project_id", p.ID, "key", p.Key)
	return p, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input) (issue.Project, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		s.observe("update", err)
		return issue.Project{}, err
	}
	in = in.normalized()
	if err := s.validate(ctx, in, id); err != nil {
		s.observe("update", err)
		return issue.Project{}, err
	}
	current.Key = in.Key
	current.Name = in.Name
	current.Lead = in.Lead
	current.Description = in.Description
	current.URL = in.URL
	current.AssigneeType = in.AssigneeType
	current.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, current); err != nil {
		s.observe("update", err)
		return issue.Project{}, fmt.Errorf("updating project %s: %w", id, err)
	}
	s.observe("update", nil)
	logger.FromContext(ctx).Info("project updated", "project_id", id, "key", current.Key)
	return current, nil
}

// Delete removes the project and then its field layout assignments. A
// failure to clean the layout is logged; the project stays deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.observe("delete", err)
		return err
	}
	s.observe("delete", nil)
	log := logger.FromContext(ctx)
	if s.cleaner != nil {
		if err := s.cleaner.RemoveProject(ctx, id); err != nil {
			log.Error("removing field layout assignments failed", "project_id", id, "error", err)
		}
	}
	log.Info("project deleted", "project_id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (issue.Project, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]issue.Project, error) {
	return s.repo.List(ctx)
}

// validate collects every problem with in. selfID excludes the project being
// updated from the uniqueness checks.
func (s *Service) validate(ctx context.Context, in Input, selfID string) error {
	verr := apperrors.NewValidationError()

	switch {
	case in.Key == "":
		verr.Add("key", "project key is required")
	case utf8.RuneCountInString(in.Key) > MaxKeyLength:
		verr.Add("key", fmt.Sprintf("project key must be at most %d characters", MaxKeyLength))
	case !keyPattern.MatchString(in.Key):
		verr.Add("key", "project key must start with an uppercase letter followed by uppercase letters, digits or underscores")
	}

	switch {
	case in.Name == "":
		verr.Add("name", "project name is required")
	case utf8.RuneCountInString(in.Name) > MaxNameLength:
		verr.Add("name", fmt.Sprintf("project name must be at most %d characters", MaxNameLength))
	}

	if in.Lead == "" {
		verr.Add("lead", "project lead is required")
	}
	if in.URL != "" && !validURL(in.URL) {
		verr.Add("url", "url must be an absolute http or https address")
	}
	if !in.AssigneeType.Valid() {
		verr.Add("assignee_type", fmt.Sprintf("assignee type must be %s or %s", issue.AssigneeProjectLead, issue.AssigneeUnassigned))
	}

	if _, bad := verr.Fields["key"]; !bad {
		taken, err := s.taken(ctx, s.repo.GetByKey, in.Key, selfID)
		if err != nil {
			return err
		}
		if taken {
			verr.Add("key", fmt.Sprintf("project key %s is already in use", in.Key))
		}
	}
	if _, bad := verr.Fields["name"]; !bad {
		taken, err := s.taken(ctx, s.repo.GetByName, in.Name, selfID)
		if err != nil {
			return err
		}
		if taken {
			verr.Add("name", fmt.Sprintf("project name %q is already in use", in.Name))
		}
	}
	return verr.OrNil()
}

func (s *Service) taken(ctx context.Context, lookup func(context.Context, string) (issue.Project, error), value, selfID string) (bool, error) {
	existing, err := lookup(ctx, value)
	if errors.Is(err, apperrors.ErrProjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking project uniqueness: %w", err)
	}
	return existing.ID != selfID, nil
}

func (s *Service) observe(op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrInvalidInput):
		status = "invalid"
	case errors.Is(err, apperrors.ErrProjectNotFound):
		status = "not_found"
	case errors.Is(err, apperrors.ErrProjectExists):
		status = "conflict"
	default:
		status = "error"
	}
	s.metrics.ProjectOperations.WithLabelValues(op, status).Inc()
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
