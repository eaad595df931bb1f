package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/harrisonrobin/weworkmcp/pkg/analysis"
	"github.com/harrisonrobin/weworkmcp/pkg/colors"
	"github.com/harrisonrobin/weworkmcp/pkg/index"
	"github.com/harrisonrobin/weworkmcp/pkg/model"
	"github.com/harrisonrobin/weworkmcp/pkg/util"
)

// SyncReport summarizes one deadline sync.
type SyncReport struct {
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// Synced is the number of rows whose event now matches the task.
func (r SyncReport) Synced() int { return r.Created + r.Updated + r.Unchanged }

// Syncer mirrors task deadlines into a calendar as all-day events.
type Syncer struct {
	api    CalendarAPI
	index  *index.EventIndex
	colors *colors.ColorCache
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewSyncer builds a Syncer. idx and cache may be nil; without an index every lookup
// searches the calendar, without a cache events keep the calendar color.
func NewSyncer(api CalendarAPI, idx *index.EventIndex, cache *colors.ColorCache, logger logrus.FieldLogger) *Syncer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Syncer{api: api, index: idx, colors: cache, logger: logger, now: time.Now}
}

// SyncTable syncs every row of table that has a deadline. Rows without one are skipped.
// Failures on one row are recorded and do not stop the others.
func (s *Syncer) SyncTable(ctx context.Context, projectID string, table *analysis.Table) SyncReport {
	report := SyncReport{Errors: []string{}}
	if table != nil {
		for _, rec := range table.Rows {
			if rec.Deadline == "" {
				report.Skipped++
				continue
			}
			result, err := s.syncRecord(ctx, projectID, rec)
			if err != nil {
				s.logger.WithFields(logrus.Fields{
					"project": projectID,
					"task":    rec.Key,
				}).WithError(err).Warn("deadline sync failed")
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rec.Key, err))
				continue
			}
			switch result {
			case outcomeCreated:
				report.Created++
			case outcomeUpdated:
				report.Updated++
			default:
				report.Unchanged++
			}
		}
	}

	if s.index != nil {
		if err := s.index.Save(); err != nil {
			s.logger.WithError(err).Warn("could not save event index")
		}
	}
	if s.colors != nil {
		if err := s.colors.Save(); err != nil {
			s.logger.WithError(err).Warn("could not save color cache")
		}
	}
	return report
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
)

// syncRecord creates the record's event or patches it when it drifted.
func (s *Syncer) syncRecord(ctx context.Context, projectID string, rec model.TaskRecord) (outcome, error) {
	colorID := ""
	if s.colors != nil {
		colorID = s.colors.ColorID(rec.Assignee)
	}
	event, err := util.ConvertRecordToCalendarEvent(projectID, rec, colorID, s.now())
	if err != nil {
		return outcomeUnchanged, err
	}
	key := util.EventKey(projectID, rec)

	existing, err := s.lookup(ctx, key)
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("error searching for event: %w", err)
	}

	if existing == nil {
		created, err := s.api.InsertEvent(ctx, event)
		if err != nil {
			return outcomeUnchanged, fmt.Errorf("could not create event: %w", err)
		}
		s.remember(key, created.Id)
		return outcomeCreated, nil
	}

	s.remember(key, existing.Id)
	patch := util.EventNeedsUpdate(existing, event)
	if patch == nil {
		return outcomeUnchanged, nil
	}
	if _, err := s.api.PatchEvent(ctx, existing.Id, patch); err != nil {
		return outcomeUnchanged, fmt.Errorf("could not patch event %s: %w", existing.Id, err)
	}
	return outcomeUpdated, nil
}

// lookup tries the local index first and falls back to a property search, dropping index
// entries whose event is gone.
func (s *Syncer) lookup(ctx context.Context, key string) (*calendar.Event, error) {
	if s.index != nil {
		if eventID := s.index.Get(key); eventID != "" {
			event, err := s.api.GetEvent(ctx, eventID)
			switch {
			case err == nil && event.Status != "cancelled":
				return event, nil
			case err == nil || isNotFound(err):
				s.index.Remove(key)
			default:
				s.logger.WithError(err).WithField("event", eventID).Debug("indexed event lookup failed")
			}
		}
	}
	return s.api.FindEventByKey(ctx, key)
}

func (s *Syncer) remember(key, eventID string) {
	if s.index != nil && eventID != "" {
		s.index.Set(key, eventID)
	}
}

func isNotFound(err error) bool {
	var ae *googleapi.Error
	return errors.As(err, &ae) && (ae.Code == http.StatusNotFound || ae.Code == http.StatusGone)
}
