// Package issue defines the issue, project and issue-event types shared by
// the indexer, the statistics collectors and the event pipeline.
package issue

import (
	"sort"
	"strings"
	"time"
)

// System field IDs. Custom fields use the "customfield_NNNNN" form.
const (
	FieldProject     = "project"
	FieldIssueType   = "issuetype"
	FieldStatus      = "status"
	FieldPriority    = "priority"
	FieldAssignee    = "assignee"
	FieldReporter    = "reporter"
	FieldResolution  = "resolution"
	FieldLabels      = "labels"
	FieldComponents  = "components"
	FieldFixVersions = "fixVersions"

	CustomFieldPrefix = "customfield_"
)

// alwaysVisible lists fields that no layout can hide.
var alwaysVisible = map[string]struct{}{
	FieldProject:   {},
	FieldIssueType: {},
}

// AlwaysVisible reports whether fieldID is visible regardless of scope.
func AlwaysVisible(fieldID string) bool {
	_, ok := alwaysVisible[fieldID]
	return ok
}

var systemFields = map[string]struct{}{
	FieldProject: {}, FieldIssueType: {}, FieldStatus: {}, FieldPriority: {},
	FieldAssignee: {}, FieldReporter: {}, FieldResolution: {}, FieldLabels: {},
	FieldComponents: {}, FieldFixVersions: {},
}

// IsKnownField reports whether fieldID is a system field or has the shape of
// a custom field ID.
func IsKnownField(fieldID string) bool {
	if _, ok := systemFields[fieldID]; ok {
		return true
	}
	return IsCustomField(fieldID)
}

// IsCustomField reports whether fieldID names a custom field.
func IsCustomField(fieldID string) bool {
	return strings.HasPrefix(fieldID, CustomFieldPrefix) && len(fieldID) > len(CustomFieldPrefix)
}

// Issue is the indexed representation of an issue.
type Issue struct {
	ID          string              `json:"id"`
	Key         string              `json:"key"`
	ProjectID   string              `json:"project_id"`
	IssueTypeID string              `json:"issue_type_id"`
	Summary     string              `json:"summary"`
	Description string              `json:"description,omitempty"`
	Fields      map[string][]string `json:"fields,omitempty"`
	Version     int64               `json:"version"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// FieldValues returns the distinct non-empty values of fieldID in first-seen
// order. Project and issue type are answered from their dedicated columns.
func (i *Issue) FieldValues(fieldID string) []string {
	switch fieldID {
	case FieldProject:
		return nonEmpty(i.ProjectID)
	case FieldIssueType:
		return nonEmpty(i.IssueTypeID)
	}
	return Distinct(i.Fields[fieldID])
}

// FieldIDs returns the sorted IDs of populated fields.
func (i *Issue) FieldIDs() []string {
	ids := make([]string, 0, len(i.Fields))
	for id, values := range i.Fields {
		if len(values) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Distinct drops empty strings and duplicates, keeping first-seen order.
func Distinct(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func nonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

// AssigneeType controls who new issues in a project are assigned to.
type AssigneeType string

const (
	AssigneeProjectLead AssigneeType = "PROJECT_LEAD"
	AssigneeUnassigned  AssigneeType = "UNASSIGNED"
)

// Valid reports whether t is a known assignee type.
func (t AssigneeType) Valid() bool {
	return t == AssigneeProjectLead || t == AssigneeUnassigned
}

// Project groups issues and selects their field layout.
type Project struct {
	ID           string       `json:"id"`
	Key          string       `json:"key"`
	Name         string       `json:"name"`
	Lead         string       `json:"lead"`
	Description  string       `json:"description,omitempty"`
	URL          string       `json:"url,omitempty"`
	AssigneeType AssigneeType `json:"assignee_type"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
