package agenda

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// Event is a VEVENT before recurrence expansion.
type Event struct {
	FeedID   string
	UID      string
	Summary  string
	Location string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on overrides of a single recurring instance.
	RecurrenceID *time.Time
}

// Parse decodes an ICS body. Events that cannot be decoded are skipped and
// reported in the joined error; the others are still returned.
func Parse(feedID string, body []byte) ([]Event, error) {
	if len(body) == 0 {
		return nil, errors.New("agenda: empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agenda: parse %q: %w", feedID, err)
	}

	var (
		events []Event
		errs   []error
	)
	for _, ve := range cal.Events() {
		ev, err := parseEvent(ve)
		if err != nil {
			errs = append(errs, fmt.Errorf("agenda: %q: %w", feedID, err))
			continue
		}
		ev.FeedID = feedID
		events = append(events, ev)
	}
	return events, errors.Join(errs...)
}

func parseEvent(ve *ical.VEvent) (Event, error) {
	var ev Event
	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("event without UID")
	}
	ev.UID = uid.Value
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return ev, fmt.Errorf("event %s without DTSTART", ev.UID)
	}
	ev.AllDay = isDate(dtstart)
	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("event %s: DTSTART: %w", ev.UID, err)
	}
	ev.Start = start
	if ev.AllDay {
		ev.Start = midnight(start)
	}
	if end, err := ve.GetEndAt(); err == nil && end.After(ev.Start) {
		ev.End = end
	} else if ev.AllDay {
		ev.End = ev.Start.AddDate(0, 0, 1)
	} else {
		ev.End = ev.Start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RRule = p.Value
	}
	loc := ev.Start.Location()
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		pl := paramLocation(p, loc)
		for _, v := range strings.Split(p.Value, ",") {
			if t, err := parseTime(v, pl); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseTime(p.Value, paramLocation(p, loc)); err == nil {
			ev.RecurrenceID = &t
		}
	}
	return ev, nil
}

func isDate(p *ical.IANAProperty) bool {
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func paramLocation(p *ical.IANAProperty, def *time.Location) *time.Location {
	if tz := p.ICalParameters["TZID"]; len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	return def
}

// parseTime accepts the DATE, floating DATE-TIME and UTC DATE-TIME forms.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
