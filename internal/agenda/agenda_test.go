package agenda

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const testICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//epd2271//test//EN
BEGIN:VEVENT
UID:single@test
DTSTART:20260303T100000Z
DTEND:20260303T110000Z
SUMMARY:Dentist
LOCATION:Main St
END:VEVENT
BEGIN:VEVENT
UID:allday@test
DTSTART;VALUE=DATE:20260304
DTEND;VALUE=DATE:20260305
SUMMARY:Holiday
END:VEVENT
BEGIN:VEVENT
UID:daily@test
DTSTART:20260223T090000Z
DTEND:20260223T093000Z
RRULE:FREQ=DAILY;COUNT=20
EXDATE:20260305T090000Z
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:daily@test
RECURRENCE-ID:20260306T090000Z
DTSTART:20260306T120000Z
DTEND:20260306T123000Z
SUMMARY:Standup (moved)
END:VEVENT
BEGIN:VEVENT
UID:past@test
DTSTART:20260101T100000Z
DTEND:20260101T110000Z
SUMMARY:Past
END:VEVENT
END:VCALENDAR
`

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func summaries(occ []Occurrence) []string {
	var out []string
	for _, o := range occ {
		out = append(out, o.Summary)
	}
	return out
}

func TestParse(t *testing.T) {
	events, err := Parse("cal", []byte(strings.ReplaceAll(testICS, "\n", "\r\n")))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("Parse() returned %d events, want 5", len(events))
	}
	byUID := map[string]Event{}
	for _, ev := range events {
		if ev.FeedID != "cal" {
			t.Errorf("event %s has feed %q", ev.UID, ev.FeedID)
		}
		if ev.RecurrenceID == nil {
			byUID[ev.UID] = ev
		}
	}
	if ev := byUID["allday@test"]; !ev.AllDay || ev.End.Sub(ev.Start) != 24*time.Hour {
		t.Errorf("all-day event = %+v", ev)
	}
	daily := byUID["daily@test"]
	if daily.RRule != "FREQ=DAILY;COUNT=20" || len(daily.ExDates) != 1 {
		t.Errorf("recurring event = %+v", daily)
	}
	if single := byUID["single@test"]; single.Location != "Main St" || single.AllDay {
		t.Errorf("single event = %+v", single)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse("x", nil); err == nil {
		t.Error("Parse(nil) succeeded")
	}
	body := strings.Replace(testICS, "UID:past@test\n", "", 1)
	events, err := Parse("x", []byte(body))
	if err == nil {
		t.Error("Parse() with a UID-less event reported no error")
	}
	if len(events) != 4 {
		t.Errorf("Parse() kept %d events, want 4", len(events))
	}
}

func TestExpand(t *testing.T) {
	events, err := Parse("cal", []byte(testICS))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	occ := Expand(events, from, from.AddDate(0, 0, 7), time.UTC)

	want := []string{
		"Standup",
		"Standup",
		"Dentist",
		"Holiday",
		"Standup",
		"Standup (moved)",
		"Standup",
		"Standup",
	}
	if diff := cmp.Diff(summaries(occ), want); diff != "" {
		t.Errorf("Expand() summaries (-got +want):\n%s", diff)
	}
	for _, o := range occ {
		if o.Summary == "Standup (moved)" && o.Start.Hour() != 12 {
			t.Errorf("override starts at %s, want 12:00", o.Start)
		}
		if o.Summary == "Standup" && o.Start.Weekday() == time.Thursday {
			t.Errorf("excluded instance on %s still expanded", o.Start)
		}
		if o.Start.Location() != time.UTC {
			t.Errorf("occurrence not converted to display zone: %s", o.Start)
		}
	}
}

func TestExpandRunningEvent(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	events := []Event{{
		UID:     "night@test",
		Summary: "Night shift",
		Start:   from.Add(-2 * time.Hour),
		End:     from.Add(6 * time.Hour),
	}}
	if got := Expand(events, from, from.AddDate(0, 0, 1), time.UTC); len(got) != 1 {
		t.Errorf("Expand() = %d occurrences, want the event still running at midnight", len(got))
	}
}

func TestFetcherConditional(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(testICS))
	}))

	f := NewFetcher(t.TempDir())
	feed := Feed{ID: "cal", URL: srv.URL + "/private/token.ics"}
	ctx := context.Background()

	for i := range 2 {
		body, err := f.Fetch(ctx, feed)
		if err != nil {
			t.Fatalf("Fetch() #%d = %v", i, err)
		}
		if string(body) != testICS {
			t.Fatalf("Fetch() #%d returned unexpected body", i)
		}
	}
	if hits.Load() != 2 || notModified.Load() != 1 {
		t.Errorf("hits=%d notModified=%d, want 2 and 1", hits.Load(), notModified.Load())
	}

	srv.Close()
	body, err := f.Fetch(ctx, feed)
	if err != nil || string(body) != testICS {
		t.Errorf("Fetch() with server down = %v, want cached body", err)
	}
}

func TestFetcherNoCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()
	if _, err := NewFetcher("").Fetch(context.Background(), Feed{ID: "x", URL: srv.URL}); err == nil {
		t.Error("Fetch() of a 410 without cache succeeded")
	}
	if _, err := NewFetcher("").Fetch(context.Background(), Feed{ID: "x", URL: "gopher://example.com/x"}); err == nil {
		t.Error("Fetch() with unsupported scheme succeeded")
	}
}

func TestAgendaLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "cal.ics")
	if err := os.WriteFile(good, []byte(testICS), 0o600); err != nil {
		t.Fatal(err)
	}
	a := &Agenda{
		Feeds: []Feed{
			{ID: "cal", URL: good},
			{ID: "missing", URL: filepath.Join(dir, "missing.ics")},
		},
		Fetcher:  NewFetcher(""),
		Location: time.UTC,
		Days:     1,
	}
	occ, err := a.Load(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if diff := cmp.Diff(summaries(occ), []string{"Standup"}); diff != "" {
		t.Errorf("Load() (-got +want):\n%s", diff)
	}

	a.Feeds = a.Feeds[1:]
	if _, err := a.Load(context.Background(), testNow); err == nil {
		t.Error("Load() with only failing feeds succeeded")
	}
}

func TestRedactURL(t *testing.T) {
	if got := redactURL("https://calendar.example.com/ical/secret/basic.ics?token=abc"); got != "https://calendar.example.com/...(redacted)" {
		t.Errorf("redactURL() = %q", got)
	}
}
