package calendar

import (
	"context"
	"testing"
	"time"

	"clipflow/internal/fault"
	"clipflow/internal/recur"
	"clipflow/internal/schedule"
)

type staticSource []*schedule.Schedule

func (s staticSource) Active(ctx context.Context) ([]*schedule.Schedule, error) {
	out := make([]*schedule.Schedule, 0, len(s))
	for _, sch := range s {
		if sch.Status == schedule.StatusActive {
			out = append(out, sch)
		}
	}
	return out, nil
}

func sched(id string, freq recur.Frequency, ref time.Time) *schedule.Schedule {
	return &schedule.Schedule{
		ID:          id,
		Status:      schedule.StatusActive,
		Frequency:   freq,
		ScheduledAt: ref,
		Subject:     "clip " + id,
		Recipient:   schedule.Recipient{Email: id + "@example.com"},
	}
}

func TestEventsInRejectsBadWindows(t *testing.T) {
	t.Parallel()
	m := New(staticSource{})
	at := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct{ start, end time.Time }{
		{time.Time{}, at},
		{at, time.Time{}},
		{at, at},
		{at.Add(time.Hour), at},
	}
	for i, tc := range cases {
		if _, err := m.EventsIn(context.Background(), tc.start, tc.end); !fault.IsValidation(err) {
			t.Errorf("case %d: want validation fault, got %v", i, err)
		}
	}
}

func TestEventsInOnce(t *testing.T) {
	t.Parallel()
	ref := time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)
	m := New(staticSource{sched("s1", recur.FreqOnce, ref)})
	ctx := context.Background()

	in, err := m.EventsIn(ctx, ref.AddDate(0, 0, -7), ref.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(in) != 1 || !in[0].At.Equal(ref) {
		t.Fatalf("in-window once: %v", in)
	}

	out, _ := m.EventsIn(ctx, ref.AddDate(0, 0, 1), ref.AddDate(0, 0, 7))
	if len(out) != 0 {
		t.Fatalf("out-of-window once: %v", out)
	}

	// Boundary instants are inclusive.
	edge, _ := m.EventsIn(ctx, ref, ref.Add(time.Minute))
	if len(edge) != 1 {
		t.Fatalf("start-boundary once: %v", edge)
	}
}

func TestEventsInDailyWindow(t *testing.T) {
	t.Parallel()
	ref := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	m := New(staticSource{sched("s1", recur.FreqDaily, ref)})

	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 13, 0, 0, 0, 0, time.UTC)
	got, err := m.EventsIn(context.Background(), start, end)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (Sep 10, 11, 12 at 08:00)", len(got))
	}
	for i, o := range got {
		if o.At.Before(start) || o.At.After(end) {
			t.Fatalf("occurrence %d at %v outside window", i, o.At)
		}
		if o.At.Hour() != 8 {
			t.Fatalf("occurrence %d lost the anchor wall-clock: %v", i, o.At)
		}
	}
}

func TestEventsInStartsAtAnchorNotWindow(t *testing.T) {
	t.Parallel()
	// Anchor inside the window: nothing before it is emitted.
	ref := time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)
	m := New(staticSource{sched("s1", recur.FreqDaily, ref)})

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)
	got, _ := m.EventsIn(context.Background(), start, end)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (Sep 10 and 11)", len(got))
	}
	if !got[0].At.Equal(ref) {
		t.Fatalf("first occurrence %v, want the anchor", got[0].At)
	}
}

func TestEventsInOrderingAndTieBreak(t *testing.T) {
	t.Parallel()
	ref := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	m := New(staticSource{
		sched("s-b", recur.FreqDaily, ref),
		sched("s-a", recur.FreqDaily, ref),
		sched("s-c", recur.FreqDaily, ref.Add(time.Hour)),
	})

	got, err := m.EventsIn(context.Background(), ref, ref.Add(24*time.Hour+30*time.Minute))
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	// 09:00 pair (tie-broken by id), 10:00, then next day's 09:00 pair.
	wantIDs := []string{"s-a", "s-b", "s-c", "s-a", "s-b"}
	if len(got) != len(wantIDs) {
		t.Fatalf("len = %d, want %d: %v", len(got), len(wantIDs), got)
	}
	for i, want := range wantIDs {
		if got[i].ScheduleID != want {
			t.Fatalf("position %d: got %s, want %s", i, got[i].ScheduleID, want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].At.Before(got[i-1].At) {
			t.Fatalf("occurrences out of order at %d", i)
		}
	}
}

func TestEventsInCustomCron(t *testing.T) {
	t.Parallel()
	ref := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	s := sched("s1", recur.FreqCustom, ref)
	s.CustomSpec = "0 9 * * 1" // Mondays 09:00
	m := New(staticSource{s})

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 30, 23, 59, 0, 0, time.UTC)
	got, err := m.EventsIn(context.Background(), start, end)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	// September 2026 Mondays: 7, 14, 21, 28.
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4 Mondays: %v", len(got), got)
	}
	if got[0].At.Day() != 7 || got[0].At.Weekday() != time.Monday {
		t.Fatalf("first = %v", got[0].At)
	}
}

func TestEventsInSkipsInactive(t *testing.T) {
	t.Parallel()
	ref := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	paused := sched("s-p", recur.FreqDaily, ref)
	paused.Status = schedule.StatusPaused
	m := New(staticSource{paused, sched("s-a", recur.FreqDaily, ref)})

	got, _ := m.EventsIn(context.Background(), ref, ref.Add(time.Minute))
	if len(got) != 1 || got[0].ScheduleID != "s-a" {
		t.Fatalf("got %v, paused schedules must not materialize", got)
	}
}

func TestEventsInDenormalizedFields(t *testing.T) {
	t.Parallel()
	ref := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	m := New(staticSource{sched("s1", recur.FreqWeekly, ref)})

	got, _ := m.EventsIn(context.Background(), ref, ref.Add(time.Minute))
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	o := got[0]
	if o.Title != "clip s1" || o.RecipientEmail != "s1@example.com" {
		t.Fatalf("display fields not copied: %+v", o)
	}
	if o.Frequency != recur.FreqWeekly || o.Status != schedule.StatusActive {
		t.Fatalf("rule fields not copied: %+v", o)
	}
}
