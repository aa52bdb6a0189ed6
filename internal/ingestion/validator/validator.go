// Package validator checks ingestion batches before they enter the event
// pipeline and reports every problem per field.
package validator

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	apperrors "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/errors"
)

const (
	MaxBatchSize   = 500
	maxIssueIDLen  = 255
	maxFieldValues = 1000
)

// ValidateIngestRequest returns an *apperrors.ValidationError keyed by
// "events[i].field" when the batch cannot be accepted.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	verr := apperrors.NewValidationError()
	switch {
	case len(req.Events) == 0:
		verr.Add("events", "at least one event is required")
	case len(req.Events) > MaxBatchSize:
		verr.Add("events", fmt.Sprintf("at most %d events per request", MaxBatchSize))
	}
	for i := range req.Events {
		validateEvent(verr, fmt.Sprintf("events[%d]", i), &req.Events[i])
	}
	return verr.OrNil()
}

func validateEvent(verr *apperrors.ValidationError, prefix string, ev *issue.Event) {
	if !ev.TypeID.IsKnown() {
		verr.Add(prefix+".type_id", fmt.Sprintf("unknown event type %d", int64(ev.TypeID)))
	}

	id := ev.IssueID
	if ev.Issue != nil {
		if id == "" {
			id = ev.Issue.ID
		} else if ev.Issue.ID != "" && ev.Issue.ID != id {
			verr.Add(prefix+".issue.id", "issue payload id does not match issue_id")
		}
	}
	switch {
	case id == "":
		verr.Add(prefix+".issue_id", "issue id is required")
	case len(id) > maxIssueIDLen:
		verr.Add(prefix+".issue_id", fmt.Sprintf("issue id must be at most %d characters", maxIssueIDLen))
	}

	if !ev.TypeID.ChangesContent() {
		return
	}
	if ev.Issue == nil {
		verr.Add(prefix+".issue", fmt.Sprintf("%s events must carry the issue", ev.TypeID))
		return
	}
	if ev.Issue.ProjectID == "" {
		verr.Add(prefix+".issue.project_id", "project id is required")
	}
	if ev.Issue.IssueTypeID == "" {
		verr.Add(prefix+".issue.issue_type_id", "issue type id is required")
	}
	if ev.Issue.Version < 0 {
		verr.Add(prefix+".issue.version", "version must not be negative")
	}
	for fieldID, values := range ev.Issue.Fields {
		if fieldID == "" {
			verr.Add(prefix+".issue.fields", "field ids must not be empty")
		}
		if len(values) > maxFieldValues {
			verr.Add(prefix+".issue.fields."+fieldID, fmt.Sprintf("at most %d values per field", maxFieldValues))
		}
	}
}
