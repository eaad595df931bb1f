package google

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/weworkmcp/pkg/auth"
	"github.com/harrisonrobin/weworkmcp/pkg/util"
)

// CalendarAPI is the slice of the Calendar API used by deadline sync, scoped to one
// calendar.
type CalendarAPI interface {
	GetEvent(ctx context.Context, eventID string) (*calendar.Event, error)
	FindEventByKey(ctx context.Context, key string) (*calendar.Event, error)
	InsertEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error)
	PatchEvent(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error)
}

// CalendarClient implements CalendarAPI over the Google Calendar service.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
}

func NewCalendarClient(srv *calendar.Service, calendarID string) *CalendarClient {
	return &CalendarClient{srv: srv, calendarID: calendarID}
}

// NewClient authorizes with the credentials in configDir and resolves calendarName to
// its id.
func NewClient(ctx context.Context, configDir, calendarName string, logger logrus.FieldLogger) (*CalendarClient, error) {
	httpClient, err := auth.GetClient(ctx, configDir, auth.CalendarScopes, logger)
	if err != nil {
		return nil, err
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}

	calendarList, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	for _, item := range calendarList.Items {
		if item.Summary == calendarName {
			return NewCalendarClient(srv, item.Id), nil
		}
	}
	return nil, fmt.Errorf("calendar '%s' not found", calendarName)
}

func (c *CalendarClient) GetEvent(ctx context.Context, eventID string) (*calendar.Event, error) {
	return c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
}

// FindEventByKey searches for the event whose private task key property equals key.
func (c *CalendarClient) FindEventByKey(ctx context.Context, key string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", util.TaskKeyProperty, key)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}

func (c *CalendarClient) InsertEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error) {
	return c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
}

func (c *CalendarClient) PatchEvent(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	return c.srv.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do()
}
