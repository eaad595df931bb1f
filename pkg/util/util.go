package util

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/weworkmcp/pkg/model"
)

// TaskKeyProperty is the private extended property that ties a calendar event to a task.
const TaskKeyProperty = "wework_task_key"

const (
	prefixDone    = "✓"
	prefixFailed  = "✗"
	prefixOverdue = "!"
)

// EventKey identifies a task across projects.
func EventKey(projectID string, rec model.TaskRecord) string {
	return projectID + ":" + rec.Key
}

// EventSummary is the event title for rec as of now.
func EventSummary(rec model.TaskRecord, now time.Time) string {
	title := rec.TaskName
	if rec.SubtaskName != "" {
		if title != "" {
			title += " / "
		}
		title += rec.SubtaskName
	}

	prefix := ""
	switch rec.Status {
	case model.StatusDone:
		prefix = prefixDone
	case model.StatusFailed:
		prefix = prefixFailed
	case model.StatusInProgress:
		if deadline, err := time.ParseInLocation(DateLayout, rec.Deadline, now.Location()); err == nil {
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			if deadline.Before(today) {
				prefix = prefixOverdue
			}
		}
	}
	if prefix == "" {
		return title
	}
	return prefix + " " + title
}

// ConvertRecordToCalendarEvent builds an all-day event on the record's deadline date.
func ConvertRecordToCalendarEvent(projectID string, rec model.TaskRecord, colorID string, now time.Time) (*calendar.Event, error) {
	if rec.Deadline == "" {
		return nil, fmt.Errorf("task %q has no deadline", rec.Key)
	}
	day, err := time.Parse(DateLayout, rec.Deadline)
	if err != nil {
		return nil, fmt.Errorf("task %q has invalid deadline %q: %w", rec.Key, rec.Deadline, err)
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "Status: %s\n", rec.Status)
	if rec.TaskType != "" {
		fmt.Fprintf(&desc, "Type: %s\n", rec.TaskType)
	}
	if rec.Assignee != "" {
		fmt.Fprintf(&desc, "Assignee: %s\n", rec.Assignee)
	}
	if rec.Followers != "" {
		fmt.Fprintf(&desc, "Followers: %s\n", rec.Followers)
	}
	if rec.StartDate != "" {
		fmt.Fprintf(&desc, "Started: %s\n", rec.StartDate)
	}
	if rec.CompletedDate != "" {
		fmt.Fprintf(&desc, "Completed: %s\n", rec.CompletedDate)
	}
	if rec.Result != "" {
		fmt.Fprintf(&desc, "\nResult:\n%s\n", rec.Result)
	}
	if rec.FailedReason != "" {
		fmt.Fprintf(&desc, "\nFailed reason:\n%s\n", rec.FailedReason)
	}
	if rec.Description != "" {
		fmt.Fprintf(&desc, "\nDescription:\n%s\n", rec.Description)
	}

	return &calendar.Event{
		Summary:     EventSummary(rec, now),
		Description: desc.String(),
		ColorId:     colorID,
		Start:       &calendar.EventDateTime{Date: day.Format(DateLayout)},
		End:         &calendar.EventDateTime{Date: day.AddDate(0, 0, 1).Format(DateLayout)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				TaskKeyProperty: EventKey(projectID, rec),
			},
		},
	}, nil
}

// EventNeedsUpdate returns a patch holding the fields of target that differ from existing,
// or nil when the event is already current.
func EventNeedsUpdate(existing, target *calendar.Event) *calendar.Event {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}
	if eventDate(existing.Start) != eventDate(target.Start) || eventDate(existing.End) != eventDate(target.End) {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if needsUpdate {
		return patch
	}
	return nil
}

// eventDate reduces an event boundary to its calendar date. Timed boundaries from events
// edited by hand compare by their date part.
func eventDate(dt *calendar.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.Date != "" {
		return dt.Date
	}
	if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
		return t.Format(DateLayout)
	}
	return dt.DateTime
}
