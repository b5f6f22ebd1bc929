package agenda

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"epd2271/internal/log"
)

// maxPerEvent caps expansion of a single recurring event.
const maxPerEvent = 500

// Occurrence is one concrete instance of an event in the display zone.
type Occurrence struct {
	FeedID   string
	UID      string
	Summary  string
	Location string
	AllDay   bool
	Start    time.Time
	End      time.Time
}

// Expand returns the occurrences overlapping [from, to), converted to loc and
// sorted by start time, all-day events first within a day.
func Expand(events []Event, from, to time.Time, loc *time.Location) []Occurrence {
	if loc == nil {
		loc = time.Local
	}
	overrides := make(map[string][]Event)
	var bases []Event
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	var out []Occurrence
	for _, ev := range bases {
		for _, start := range instances(ev, from, to) {
			inst := ev
			inst.Start, inst.End = start, start.Add(ev.End.Sub(ev.Start))
			if o, ok := override(overrides[ev.UID], start); ok {
				inst = o
			}
			if !overlaps(inst.Start, inst.End, from, to) {
				continue
			}
			out = append(out, Occurrence{
				FeedID:   inst.FeedID,
				UID:      inst.UID,
				Summary:  inst.Summary,
				Location: inst.Location,
				AllDay:   inst.AllDay,
				Start:    inst.Start.In(loc),
				End:      inst.End.In(loc),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.AllDay != b.AllDay {
			return a.AllDay
		}
		return a.Summary < b.Summary
	})
	return out
}

// instances returns the start times of ev that may overlap [from, to).
func instances(ev Event, from, to time.Time) []time.Time {
	if ev.RRule == "" {
		return []time.Time{ev.Start}
	}
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		log.Warn("agenda: bad RRULE, using first instance only", "uid", ev.UID, "rrule", ev.RRule, "err", err)
		return []time.Time{ev.Start}
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}
	// Widen the window by the duration so events started before from but
	// still running are included.
	dur := ev.End.Sub(ev.Start)
	starts := set.Between(from.Add(-dur).In(ev.Start.Location()), to.In(ev.Start.Location()), true)
	if len(starts) > maxPerEvent {
		log.Warn("agenda: recurrence truncated", "uid", ev.UID, "count", len(starts), "cap", maxPerEvent)
		starts = starts[:maxPerEvent]
	}
	return starts
}

func override(candidates []Event, start time.Time) (Event, bool) {
	for _, o := range candidates {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return Event{}, false
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Equal(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
