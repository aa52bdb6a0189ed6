package issue

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventType identifies what happened to an issue. The numeric IDs are stable
// and travel on the wire.
type EventType int64

const (
	EventIssueCreated        EventType = 1
	EventIssueUpdated        EventType = 2
	EventIssueAssigned       EventType = 3
	EventIssueResolved       EventType = 4
	EventIssueClosed         EventType = 5
	EventIssueCommented      EventType = 6
	EventIssueReopened       EventType = 7
	EventIssueDeleted        EventType = 8
	EventIssueMoved          EventType = 9
	EventIssueWorklogged     EventType = 10
	EventIssueWorkStarted    EventType = 11
	EventIssueWorkStopped    EventType = 12
	EventIssueGeneric        EventType = 13
	EventIssueCommentEdited  EventType = 14
	EventIssueWorklogUpdated EventType = 15
	EventIssueWorklogDeleted EventType = 16
	EventIssueCommentDeleted EventType = 17
)

var eventTypeNames = map[EventType]string{
	EventIssueCreated:        "issue_created",
	EventIssueUpdated:        "issue_updated",
	EventIssueAssigned:       "issue_assigned",
	EventIssueResolved:       "issue_resolved",
	EventIssueClosed:         "issue_closed",
	EventIssueCommented:      "issue_commented",
	EventIssueReopened:       "issue_reopened",
	EventIssueDeleted:        "issue_deleted",
	EventIssueMoved:          "issue_moved",
	EventIssueWorklogged:     "issue_worklogged",
	EventIssueWorkStarted:    "issue_work_started",
	EventIssueWorkStopped:    "issue_work_stopped",
	EventIssueGeneric:        "issue_generic",
	EventIssueCommentEdited:  "issue_comment_edited",
	EventIssueWorklogUpdated: "issue_worklog_updated",
	EventIssueWorklogDeleted: "issue_worklog_deleted",
	EventIssueCommentDeleted: "issue_comment_deleted",
}

// EventTypes returns every known event type in ID order.
func EventTypes() []EventType {
	types := make([]EventType, 0, len(eventTypeNames))
	for t := EventIssueCreated; t <= EventIssueCommentDeleted; t++ {
		types = append(types, t)
	}
	return types
}

// IsKnown reports whether t is one of the defined event types.
func (t EventType) IsKnown() bool {
	_, ok := eventTypeNames[t]
	return ok
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown(" + strconv.FormatInt(int64(t), 10) + ")"
}

// ParseEventType accepts either a numeric ID or a name such as
// "issue_resolved".
func ParseEventType(s string) (EventType, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := EventType(id)
		if !t.IsKnown() {
			return 0, fmt.Errorf("unknown event type id %d", id)
		}
		return t, nil
	}
	for t, name := range eventTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

// ChangesContent reports whether events of this type carry a new issue
// state that should replace the indexed one.
func (t EventType) ChangesContent() bool {
	switch t {
	case EventIssueDeleted, EventIssueWorklogged, EventIssueWorkStarted, EventIssueWorkStopped,
		EventIssueWorklogUpdated, EventIssueWorklogDeleted:
		return false
	}
	return t.IsKnown()
}

// Event describes a change to an issue and is delivered to listeners.
type Event struct {
	TypeID    EventType `json:"type_id"`
	IssueID   string    `json:"issue_id"`
	Issue     *Issue    `json:"issue,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
