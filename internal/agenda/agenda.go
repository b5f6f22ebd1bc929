// Package agenda builds the list of upcoming events shown on the panel from
// ICS subscriptions.
package agenda

import (
	"context"
	"errors"
	"time"

	"epd2271/internal/log"
)

// Agenda loads and expands a set of feeds.
type Agenda struct {
	Feeds   []Feed
	Fetcher *Fetcher
	// Location is the display zone; days start at midnight in it.
	Location *time.Location
	// Days is the number of days shown, starting today.
	Days int
}

// Load fetches every feed and returns the occurrences between today's
// midnight and Days days later. Feeds that fail are logged and skipped; an
// error is returned only when every feed failed.
func (a *Agenda) Load(ctx context.Context, now time.Time) ([]Occurrence, error) {
	loc := a.Location
	if loc == nil {
		loc = time.Local
	}
	days := a.Days
	if days <= 0 {
		days = 1
	}
	from := midnight(now.In(loc))
	to := from.AddDate(0, 0, days)

	var (
		events []Event
		errs   []error
		ok     int
	)
	for _, feed := range a.Feeds {
		body, err := a.Fetcher.Fetch(ctx, feed)
		if err != nil {
			log.Error("agenda: feed skipped", err, "feed", feed.ID)
			errs = append(errs, err)
			continue
		}
		evs, err := Parse(feed.ID, body)
		if err != nil {
			// Partial results are still usable.
			log.Warn("agenda: parse problems", "feed", feed.ID, "err", err)
			if len(evs) == 0 {
				errs = append(errs, err)
				continue
			}
		}
		ok++
		events = append(events, evs...)
	}
	if ok == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	occ := Expand(events, from, to, loc)
	log.Info("agenda: loaded", "feeds", len(a.Feeds), "events", len(events), "occurrences", len(occ))
	return occ, nil
}
