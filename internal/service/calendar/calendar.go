// Package calendar adapts an external iCalendar feed into busy intervals the
// booking engine treats as blocked time. All feed failures are soft: the
// adapter logs and degrades to "no external busy intervals".
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/studiolegale/sld_backend/config"
	"github.com/studiolegale/sld_backend/internal/store"
	"github.com/studiolegale/sld_backend/pkg/ical"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// FeedFetcher retrieves the raw feed events. The HTTP implementation backs
// production; tests substitute a fake.
type FeedFetcher interface {
	Fetch(ctx context.Context) ([]ical.Event, error)
}

type httpFetcher struct {
	url    string
	client *http.Client
}

func NewHTTPFetcher(url string, timeout time.Duration) FeedFetcher {
	return &httpFetcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (f *httpFetcher) Fetch(ctx context.Context) ([]ical.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFeedUnavailable, res.StatusCode)
	}
	events, err := ical.Parse(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedMalformed, err)
	}
	return events, nil
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	// Sync merges the feed into storage, debounced by the SyncState unless
	// force is set. Returns whether a sync actually ran.
	Sync(ctx context.Context, force bool) bool
	// BlockedSlots returns the slot start-times on date covered by synced
	// busy intervals, aligned down to the slot boundary.
	BlockedSlots(ctx context.Context, date time.Time) ([]store.TimeOfDay, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type calendarService struct {
	store   store.Store
	fetcher FeedFetcher
	state   SyncState
	logger  *slog.Logger

	titlePrefix  string
	slotDuration time.Duration
	location     *time.Location

	now func() time.Time
}

func New(st store.Store, fetcher FeedFetcher, state SyncState, cfg config.CalendarConfig, slotDuration time.Duration, logger *slog.Logger) (Service, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load calendar timezone %q: %w", cfg.Timezone, err)
	}
	return &calendarService{
		store:        st,
		fetcher:      fetcher,
		state:        state,
		logger:       logger,
		titlePrefix:  strings.ToLower(cfg.TitlePrefix),
		slotDuration: slotDuration,
		location:     loc,
		now:          time.Now,
	}, nil
}

func (s *calendarService) Sync(ctx context.Context, force bool) bool {
	if s.fetcher == nil {
		return false
	}
	claimed := false
	if !force {
		due, err := s.state.Due(ctx)
		if err != nil {
			// Debounce storage down: sync anyway rather than serving stale
			// intervals, the feed fetch has its own timeout.
			s.logger.Warn("sync debounce check failed", "error", err)
		} else if !due {
			return false
		} else {
			claimed = true
		}
	}

	events, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.logger.Warn("calendar feed fetch failed", "error", err)
		s.releaseClaim(ctx, claimed)
		return false
	}

	intervals := s.normalize(events)
	if err := s.store.SyncBusyIntervals(ctx, intervals); err != nil {
		s.logger.Error("persist busy intervals", "error", err)
		s.releaseClaim(ctx, claimed)
		return false
	}

	s.logger.Info("calendar feed synced", "intervals", len(intervals))
	return true
}

// releaseClaim reopens the debounce window after a failed sync so the next
// caller retries without waiting out the TTL.
func (s *calendarService) releaseClaim(ctx context.Context, claimed bool) {
	if !claimed {
		return
	}
	if err := s.state.Release(ctx); err != nil {
		s.logger.Warn("release sync window", "error", err)
	}
}

// normalize filters events by the title prefix, fills missing ends and maps
// all-day events to whole local days, keeping only intervals ending today or
// later.
func (s *calendarService) normalize(events []ical.Event) []store.BusyInterval {
	// The cutoff is local midnight, not the local date pinned to UTC; in
	// zones ahead of UTC the two differ by the zone offset.
	nowLocal := s.now().In(s.location)
	dayStart := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, s.location)
	var out []store.BusyInterval
	for _, ev := range events {
		if ev.UID == "" || ev.Start.IsZero() {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(ev.Summary), s.titlePrefix) {
			continue
		}

		start, end := ev.Start, ev.End
		if ev.AllDay {
			local := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, s.location)
			start = local
			if end.IsZero() || !end.After(start) {
				end = local.AddDate(0, 0, 1)
			} else {
				end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, s.location)
			}
		} else if end.IsZero() || !end.After(start) {
			end = start.Add(s.slotDuration)
		}

		if end.Before(dayStart) {
			continue
		}
		out = append(out, store.BusyInterval{
			ExternalID: ev.UID,
			Start:      start.UTC(),
			End:        end.UTC(),
		})
	}
	return out
}

func (s *calendarService) BlockedSlots(ctx context.Context, date time.Time) ([]store.TimeOfDay, error) {
	s.Sync(ctx, false)

	intervals, err := s.store.BusyIntervals(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load busy intervals: %w", err)
	}

	day := store.Date(date)
	seen := make(map[store.TimeOfDay]bool)
	var out []store.TimeOfDay
	for _, iv := range intervals {
		start := iv.Start.In(s.location)
		end := iv.End.In(s.location)

		// Clamp to the requested day, then align the start down to the slot
		// boundary: the engine blocks the whole slot containing the event's
		// start and every subsequent overlapping slot.
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.location)
		dayEnd := dayStart.AddDate(0, 0, 1)
		if start.Before(dayStart) {
			start = dayStart
		}
		if end.After(dayEnd) {
			end = dayEnd
		}
		if !start.Before(end) {
			continue
		}

		t := store.TimeOfDay(start.Hour()*60 + start.Minute()).AlignDown(s.slotDuration)
		for cursor := t.At(day, s.location); cursor.Before(end); cursor = cursor.Add(s.slotDuration) {
			tod := store.TimeOfDay(cursor.Hour()*60 + cursor.Minute())
			if !seen[tod] {
				seen[tod] = true
				out = append(out, tod)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
