// Package calendar builds Microsoft Graph calendar event payloads.
package calendar

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

// graphDateTime is the zone-less layout Graph expects alongside a timeZone.
const graphDateTime = "2006-01-02T15:04:05"

// onlineMeetingProvider is the only provider available to work accounts.
const onlineMeetingProvider = "teamsForBusiness"

// Meeting is the body of POST /users/{user}/events. Optional attributes are
// pointers or omitempty slices and are only populated by their With method,
// so an unset attribute never reaches the wire.
type Meeting struct {
	Subject               string       `json:"subject"`
	Start                 DateTimeZone `json:"start"`
	End                   DateTimeZone `json:"end"`
	Body                  *ItemBody    `json:"body,omitempty"`
	Location              *Location    `json:"location,omitempty"`
	Attendees             []Attendee   `json:"attendees,omitempty"`
	IsOnlineMeeting       *bool        `json:"isOnlineMeeting,omitempty"`
	OnlineMeetingProvider *string      `json:"onlineMeetingProvider,omitempty"`
}

// ItemBody contains body content.
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// DateTimeZone contains a date-time with time zone.
type DateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// Location contains location information.
type Location struct {
	DisplayName string `json:"displayName"`
}

// EmailAddress contains email address information.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Attendee represents an event attendee.
type Attendee struct {
	Type         string       `json:"type"`
	EmailAddress EmailAddress `json:"emailAddress"`
}

// NewMeeting creates a meeting from start to end in the named time zone.
// tz may be an IANA name, which is used to render the wall-clock times, or a
// Windows zone name, which Graph accepts but Go cannot load; the times are
// then rendered in their own location. An empty tz means UTC.
func NewMeeting(subject string, start, end time.Time, tz string) (*Meeting, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: meeting subject is required", domain.ErrInvalidInput)
	}
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: meeting start and end are required", domain.ErrInvalidInput)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: meeting must end after it starts", domain.ErrInvalidInput)
	}

	if tz == "" {
		tz = "UTC"
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		start = start.In(loc)
		end = end.In(loc)
	}

	return &Meeting{
		Subject: subject,
		Start:   DateTimeZone{DateTime: start.Format(graphDateTime), TimeZone: tz},
		End:     DateTimeZone{DateTime: end.Format(graphDateTime), TimeZone: tz},
	}, nil
}

// WithLocation sets the location display name. Empty names are ignored.
func (m *Meeting) WithLocation(name string) *Meeting {
	if name != "" {
		m.Location = &Location{DisplayName: name}
	}
	return m
}

// WithBody sets an HTML body. Empty content is ignored.
func (m *Meeting) WithBody(content string) *Meeting {
	if content != "" {
		m.Body = &ItemBody{ContentType: "HTML", Content: content}
	}
	return m
}

// WithAttendees adds required attendees by address. Blank addresses are skipped.
func (m *Meeting) WithAttendees(addresses ...string) *Meeting {
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		m.Attendees = append(m.Attendees, Attendee{
			Type:         "required",
			EmailAddress: EmailAddress{Address: addr},
		})
	}
	return m
}

// WithOnlineMeeting attaches a Teams meeting link.
func (m *Meeting) WithOnlineMeeting() *Meeting {
	online := true
	provider := onlineMeetingProvider
	m.IsOnlineMeeting = &online
	m.OnlineMeetingProvider = &provider
	return m
}

// EventsPath returns the events collection of user.
func EventsPath(user string) string {
	return "users/" + url.PathEscape(user) + "/events"
}

// CalendarViewPath returns the calendar view of user between start and end.
// Graph requires both bounds; they are sent in UTC.
func CalendarViewPath(user string, start, end time.Time) string {
	q := url.Values{}
	q.Set("startDateTime", start.UTC().Format(time.RFC3339))
	q.Set("endDateTime", end.UTC().Format(time.RFC3339))
	return "users/" + url.PathEscape(user) + "/calendarView?" + q.Encode()
}
