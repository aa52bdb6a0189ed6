package validator

import (
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	apperrors "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/errors"
)

func created(id string) issue.Event {
	return issue.Event{
		TypeID:  issue.EventIssueCreated,
		IssueID: id,
		Issue:   &issue.Issue{ID: id, ProjectID: "ops", IssueTypeID: "bug", Summary: "Broken"},
	}
}

func TestValidateIngestRequest(t *testing.T) {
	tests := []struct {
		name    string
		events  []issue.Event
		wantKey string
	}{
		{"valid", []issue.Event{created("1")}, ""},
		{"delete without payload", []issue.Event{{TypeID: issue.EventIssueDeleted, IssueID: "1"}}, ""},
		{"worklog without payload", []issue.Event{{TypeID: issue.EventIssueWorklogged, IssueID: "1"}}, ""},
		{"id from payload", []issue.Event{func() issue.Event { e := created("1"); e.IssueID = ""; return e }()}, ""},
		{"empty batch", nil, "events"},
		{"unknown type", []issue.Event{{TypeID: 99, IssueID: "1"}}, "events[0].type_id"},
		{"missing id", []issue.Event{{TypeID: issue.EventIssueDeleted}}, "events[0].issue_id"},
		{"mismatched id", []issue.Event{func() issue.Event { e := created("1"); e.IssueID = "2"; return e }()}, "events[0].issue.id"},
		{"content without payload", []issue.Event{{TypeID: issue.EventIssueUpdated, IssueID: "1"}}, "events[0].issue"},
		{"missing project", []issue.Event{func() issue.Event { e := created("1"); e.Issue.ProjectID = ""; return e }()}, "events[0].issue.project_id"},
		{"missing issue type", []issue.Event{created("1"), func() issue.Event { e := created("2"); e.Issue.IssueTypeID = ""; return e }()}, "events[1].issue.issue_type_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestRequest(&ingestion.IngestRequest{Events: tt.events})
			if tt.wantKey == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *apperrors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := verr.Fields[tt.wantKey]; !ok {
				t.Errorf("expected error for %q, got %v", tt.wantKey, verr.Fields)
			}
		})
	}
}

func TestValidateBatchLimit(t *testing.T) {
	events := make([]issue.Event, MaxBatchSize+1)
	for i := range events {
		events[i] = issue.Event{TypeID: issue.EventIssueDeleted, IssueID: "x"}
	}
	err := ValidateIngestRequest(&ingestion.IngestRequest{Events: events})
	var verr *apperrors.ValidationError
	if !errors.As(err, &verr) || verr.Fields["events"] == "" {
		t.Fatalf("expected batch size error, got %v", err)
	}
}
