package ical

import (
	"strings"
	"testing"
	"time"
)

const sampleFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:evt-1@google.com\r\n" +
	"SUMMARY:App Consulenza Rossi\r\n" +
	"DTSTART:20260914T090000Z\r\n" +
	"DTEND:20260914T100000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:evt-2@google.com\r\n" +
	"SUMMARY:Ferie\r\n" +
	"DTSTART;VALUE=DATE:20260915\r\n" +
	"DTEND;VALUE=DATE:20260916\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:evt-3@google.com\r\n" +
	"SUMMARY:App udienza\r\n" +
	" prolungata\r\n" +
	"DTSTART;TZID=Europe/Rome:20260916T143000\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParse(t *testing.T) {
	events, err := Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Parse() returned %d events, want 3", len(events))
	}

	first := events[0]
	if first.UID != "evt-1@google.com" {
		t.Errorf("UID = %q", first.UID)
	}
	if first.Summary != "App Consulenza Rossi" {
		t.Errorf("Summary = %q", first.Summary)
	}
	want := time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)
	if !first.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", first.Start, want)
	}
	if !first.End.Equal(want.Add(time.Hour)) {
		t.Errorf("End = %v", first.End)
	}
	if first.AllDay {
		t.Error("first event should not be all-day")
	}
}

func TestParseAllDay(t *testing.T) {
	events, err := Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	allDay := events[1]
	if !allDay.AllDay {
		t.Fatal("expected all-day event")
	}
	if got := allDay.Start; got.Hour() != 0 || got.Day() != 15 {
		t.Errorf("all-day Start = %v", got)
	}
}

func TestParseFoldedLineAndTZID(t *testing.T) {
	events, err := Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	zoned := events[2]
	if zoned.Summary != "App udienzaprolungata" {
		t.Errorf("folded Summary = %q", zoned.Summary)
	}
	rome, _ := time.LoadLocation("Europe/Rome")
	want := time.Date(2026, 9, 16, 14, 30, 0, 0, rome)
	if !zoned.Start.Equal(want) {
		t.Errorf("zoned Start = %v, want %v", zoned.Start, want)
	}
	if !zoned.End.IsZero() {
		t.Errorf("missing DTEND should stay zero, got %v", zoned.End)
	}
}

func TestParseSkipsEventWithoutStart(t *testing.T) {
	feed := "BEGIN:VCALENDAR\nBEGIN:VEVENT\nUID:x\nSUMMARY:broken\nEND:VEVENT\nEND:VCALENDAR\n"
	events, err := Parse(strings.NewReader(feed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected broken event to be skipped, got %d", len(events))
	}
}

func TestInviteEncode(t *testing.T) {
	start := time.Date(2026, 10, 5, 10, 0, 0, 0, time.UTC)
	inv := Invite{
		UID:            "booking-42",
		Summary:        "Consulenza legale",
		Description:    "Con allegati, note; dettagli",
		Location:       "Via Roma 1, Milano",
		Start:          start,
		End:            start.Add(time.Hour),
		ReminderBefore: time.Hour,
	}

	out := string(inv.Encode())

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"UID:booking-42",
		"DTSTART:20261005T100000Z",
		"DTEND:20261005T110000Z",
		"SUMMARY:Consulenza legale",
		"DESCRIPTION:Con allegati\\, note\\; dettagli",
		"LOCATION:Via Roma 1\\, Milano",
		"TRIGGER:-PT60M",
		"END:VCALENDAR",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Encode() missing %q", want)
		}
	}

	// The invite must round-trip through our own parser.
	events, err := Parse(strings.NewReader(out))
	if err != nil || len(events) != 1 {
		t.Fatalf("round-trip parse failed: events=%d err=%v", len(events), err)
	}
	if events[0].Summary != "Consulenza legale" {
		t.Errorf("round-trip Summary = %q", events[0].Summary)
	}
}
