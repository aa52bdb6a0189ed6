// Package visibility decides whether a field is relevant for an issue's
// project and issue type. Field layout schemes hide fields, scheme
// assignments pick a layout per (project, issue type), and custom field
// contexts restrict where a custom field applies at all.
package visibility

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
)

// AnyIssueType in an Assignment matches every issue type of the project.
const AnyIssueType = "*"

// Checker answers field visibility questions.
type Checker interface {
	Visible(fieldID, projectID, issueTypeID string) bool
}

// Scheme is a field layout scheme: the set of fields it hides.
type Scheme struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Hidden []string `json:"hidden"`
}

// Assignment selects the scheme used by a project, optionally narrowed to one
// issue type.
type Assignment struct {
	ProjectID   string `json:"project_id"`
	IssueTypeID string `json:"issue_type_id"`
	SchemeID    string `json:"scheme_id"`
}

// FieldContext limits a custom field to some projects and issue types. Empty
// lists mean "all".
type FieldContext struct {
	FieldID      string   `json:"field_id"`
	ProjectIDs   []string `json:"project_ids,omitempty"`
	IssueTypeIDs []string `json:"issue_type_ids,omitempty"`
}

// Layout is the raw configuration a Store loads.
type Layout struct {
	DefaultSchemeID string         `json:"default_scheme_id,omitempty"`
	Schemes         []Scheme       `json:"schemes"`
	Assignments     []Assignment   `json:"assignments"`
	Contexts        []FieldContext `json:"contexts"`
}

type scopeKey struct {
	projectID   string
	issueTypeID string
}

type compiledContext struct {
	projects   map[string]struct{}
	issueTypes map[string]struct{}
}

func (c compiledContext) matches(projectID, issueTypeID string) bool {
	if len(c.projects) > 0 {
		if _, ok := c.projects[projectID]; !ok {
			return false
		}
	}
	if len(c.issueTypes) > 0 {
		if _, ok := c.issueTypes[issueTypeID]; !ok {
			return false
		}
	}
	return true
}

// Snapshot is an immutable, compiled Layout. It is safe for concurrent use.
type Snapshot struct {
	version       string
	defaultScheme string
	hidden        map[string]map[string]struct{}
	assignments   map[scopeKey]string
	contexts      map[string][]compiledContext
}

// NewSnapshot compiles layout, rejecting references to unknown schemes.
func NewSnapshot(layout Layout) (*Snapshot, error) {
	s := &Snapshot{
		defaultScheme: layout.DefaultSchemeID,
		hidden:        make(map[string]map[string]struct{}, len(layout.Schemes)),
		assignments:   make(map[scopeKey]string, len(layout.Assignments)),
		contexts:      make(map[string][]compiledContext),
	}
	for _, scheme := range layout.Schemes {
		if scheme.ID == "" {
			return nil, fmt.Errorf("scheme with empty id")
		}
		if _, dup := s.hidden[scheme.ID]; dup {
			return nil, fmt.Errorf("duplicate scheme %q", scheme.ID)
		}
		fields := make(map[string]struct{}, len(scheme.Hidden))
		for _, f := range scheme.Hidden {
			fields[f] = struct{}{}
		}
		s.hidden[scheme.ID] = fields
	}
	if s.defaultScheme != "" {
		if _, ok := s.hidden[s.defaultScheme]; !ok {
			return nil, fmt.Errorf("default scheme %q not defined", s.defaultScheme)
		}
	}
	for _, a := range layout.Assignments {
		if _, ok := s.hidden[a.SchemeID]; !ok {
			return nil, fmt.Errorf("assignment for project %q references unknown scheme %q", a.ProjectID, a.SchemeID)
		}
		issueType := a.IssueTypeID
		if issueType == "" {
			issueType = AnyIssueType
		}
		s.assignments[scopeKey{a.ProjectID, issueType}] = a.SchemeID
	}
	for _, c := range layout.Contexts {
		s.contexts[c.FieldID] = append(s.contexts[c.FieldID], compiledContext{
			projects:   toSet(c.ProjectIDs),
			issueTypes: toSet(c.IssueTypeIDs),
		})
	}
	s.version = layoutVersion(layout)
	return s, nil
}

// Version identifies the layout content; equal layouts share a version.
func (s *Snapshot) Version() string {
	return s.version
}

// SchemeFor resolves the scheme for a scope: exact (project, issue type),
// then (project, any), then the default. "" means no scheme applies.
func (s *Snapshot) SchemeFor(projectID, issueTypeID string) string {
	if id, ok := s.assignments[scopeKey{projectID, issueTypeID}]; ok {
		return id
	}
	if id, ok := s.assignments[scopeKey{projectID, AnyIssueType}]; ok {
		return id
	}
	return s.defaultScheme
}

// Visible reports whether fieldID applies to issues of the given scope.
func (s *Snapshot) Visible(fieldID, projectID, issueTypeID string) bool {
	if issue.AlwaysVisible(fieldID) {
		return true
	}
	if scheme := s.SchemeFor(projectID, issueTypeID); scheme != "" {
		if _, hidden := s.hidden[scheme][fieldID]; hidden {
			return false
		}
	}
	contexts, restricted := s.contexts[fieldID]
	if !restricted {
		return true
	}
	for _, c := range contexts {
		if c.matches(projectID, issueTypeID) {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// layoutVersion hashes a canonical encoding of layout.
func layoutVersion(layout Layout) string {
	canon := Layout{
		DefaultSchemeID: layout.DefaultSchemeID,
		Schemes:         append([]Scheme(nil), layout.Schemes...),
		Assignments:     append([]Assignment(nil), layout.Assignments...),
		Contexts:        append([]FieldContext(nil), layout.Contexts...),
	}
	for i := range canon.Schemes {
		hidden := append([]string(nil), canon.Schemes[i].Hidden...)
		sort.Strings(hidden)
		canon.Schemes[i].Hidden = hidden
	}
	sort.Slice(canon.Schemes, func(i, j int) bool { return canon.Schemes[i].ID < canon.Schemes[j].ID })
	sort.Slice(canon.Assignments, func(i, j int) bool {
		a, b := canon.Assignments[i], canon.Assignments[j]
		if a.ProjectID != b.ProjectID {
			return a.ProjectID < b.ProjectID
		}
		return a.IssueTypeID < b.IssueTypeID
	})
	sort.SliceStable(canon.Contexts, func(i, j int) bool { return canon.Contexts[i].FieldID < canon.Contexts[j].FieldID })

	data, _ := json.Marshal(canon)
	h := fnv.New64a()
	h.Write(data)
	return strconv.FormatUint(h.Sum64(), 16)
}
