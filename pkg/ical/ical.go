// Package ical implements the small subset of RFC 5545 the booking engine
// needs: parsing VEVENT blocks out of a subscribed feed, and generating a
// single-event invite for confirmation emails.
package ical

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// Event is one VEVENT from a parsed feed.
type Event struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time // zero when the feed omits DTEND
	AllDay  bool
}

// Parse reads an iCalendar stream and returns its events. Properties other
// than UID, SUMMARY, DTSTART and DTEND are ignored. Malformed events are
// skipped rather than failing the whole feed.
func Parse(r io.Reader) ([]Event, error) {
	lines, err := unfold(r)
	if err != nil {
		return nil, err
	}

	var events []Event
	var cur *Event

	for _, line := range lines {
		switch {
		case line == "BEGIN:VEVENT":
			cur = &Event{}
		case line == "END:VEVENT":
			if cur != nil && !cur.Start.IsZero() {
				events = append(events, *cur)
			}
			cur = nil
		case cur != nil:
			name, params, value, ok := splitProperty(line)
			if !ok {
				continue
			}
			switch name {
			case "UID":
				cur.UID = value
			case "SUMMARY":
				cur.Summary = unescape(value)
			case "DTSTART":
				t, allDay, err := parseDateTime(params, value)
				if err == nil {
					cur.Start = t
					cur.AllDay = allDay
				}
			case "DTEND":
				t, _, err := parseDateTime(params, value)
				if err == nil {
					cur.End = t
				}
			}
		}
	}

	return events, nil
}

// unfold joins RFC 5545 folded lines (continuations start with a space or tab).
func unfold(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ical stream: %w", err)
	}
	return lines, nil
}

// splitProperty splits "NAME;PARAM=V;PARAM=V:value" into its parts.
func splitProperty(line string) (name string, params map[string]string, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", nil, "", false
	}
	head, value := line[:idx], line[idx+1:]

	parts := strings.Split(head, ";")
	name = strings.ToUpper(parts[0])
	params = make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		if kv := strings.SplitN(p, "=", 2); len(kv) == 2 {
			params[strings.ToUpper(kv[0])] = kv[1]
		}
	}
	return name, params, value, true
}

// parseDateTime handles the three DTSTART/DTEND shapes feeds produce:
// UTC ("...Z"), zoned (TZID param), and all-day dates (VALUE=DATE).
func parseDateTime(params map[string]string, value string) (time.Time, bool, error) {
	if params["VALUE"] == "DATE" || (len(value) == 8 && !strings.Contains(value, "T")) {
		t, err := time.ParseInLocation("20060102", value, time.UTC)
		return t, true, err
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		return t, false, err
	}

	loc := time.UTC
	if tzid := params["TZID"]; tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", value, loc)
	return t, false, err
}

// Invite describes the single appointment event written by Encode.
type Invite struct {
	UID         string
	Summary     string
	Description string
	Location    string
	URL         string
	Organizer   string
	Start       time.Time
	End         time.Time
	// ReminderBefore adds a display alarm; zero disables it.
	ReminderBefore time.Duration
}

// Encode renders the invite as an .ics attachment body.
func (inv Invite) Encode() []byte {
	var b strings.Builder

	writeLine := func(s string) {
		b.WriteString(s)
		b.WriteString("\r\n")
	}

	writeLine("BEGIN:VCALENDAR")
	writeLine("VERSION:2.0")
	writeLine("PRODID:-//Studio Legale//Booking//IT")
	writeLine("CALSCALE:GREGORIAN")
	writeLine("METHOD:PUBLISH")
	writeLine("BEGIN:VEVENT")
	writeLine("UID:" + inv.UID)
	writeLine("DTSTAMP:" + inv.Start.UTC().Format("20060102T150405Z"))
	writeLine("DTSTART:" + inv.Start.UTC().Format("20060102T150405Z"))
	writeLine("DTEND:" + inv.End.UTC().Format("20060102T150405Z"))
	writeLine("SUMMARY:" + escape(inv.Summary))
	if inv.Description != "" {
		writeLine("DESCRIPTION:" + escape(inv.Description))
	}
	if inv.Location != "" {
		writeLine("LOCATION:" + escape(inv.Location))
	}
	if inv.URL != "" {
		writeLine("URL:" + inv.URL)
	}
	if inv.Organizer != "" {
		writeLine("ORGANIZER;CN=" + escape(inv.Organizer) + ":mailto:" + inv.Organizer)
	}
	if inv.ReminderBefore > 0 {
		writeLine("BEGIN:VALARM")
		writeLine("ACTION:DISPLAY")
		writeLine("DESCRIPTION:" + escape(inv.Summary))
		writeLine(fmt.Sprintf("TRIGGER:-PT%dM", int(inv.ReminderBefore.Minutes())))
		writeLine("END:VALARM")
	}
	writeLine("END:VEVENT")
	writeLine("END:VCALENDAR")

	return []byte(b.String())
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\,", ",")
	s = strings.ReplaceAll(s, "\\;", ";")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}
