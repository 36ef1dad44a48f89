// Package calendar expands active schedules into concrete occurrences over
// a finite display window. It reads the schedule registry only; the
// dispatcher's live timers are never touched.
package calendar

import (
	"context"
	"sort"
	"time"

	"clipflow/internal/fault"
	"clipflow/internal/recur"
	"clipflow/internal/schedule"
)

// Occurrence is one displayable fire instance. Display fields are copied
// from the owning schedule at materialization time and never persisted.
type Occurrence struct {
	ScheduleID     string          `json:"schedule_id"`
	At             time.Time       `json:"at"`
	Title          string          `json:"title"`
	RecipientEmail string          `json:"recipient_email"`
	Status         schedule.Status `json:"status"`
	Frequency      recur.Frequency `json:"frequency"`
}

// ScheduleSource is the slice of the registry the materializer needs.
type ScheduleSource interface {
	Active(ctx context.Context) ([]*schedule.Schedule, error)
}

type Materializer struct {
	schedules ScheduleSource
}

func New(schedules ScheduleSource) *Materializer {
	return &Materializer{schedules: schedules}
}

// EventsIn returns every occurrence of every active schedule inside
// [start, end], ascending by instant with schedule id as tie-break. The
// window must be finite and non-inverted; unbounded expansion is a
// validation fault, never an infinite walk.
func (m *Materializer) EventsIn(ctx context.Context, start, end time.Time) ([]Occurrence, error) {
	if start.IsZero() || end.IsZero() {
		return nil, fault.Validation("calendar window must have both start and end")
	}
	if !end.After(start) {
		return nil, fault.Validation("calendar window end %v is not after start %v", end, start)
	}

	active, err := m.schedules.Active(ctx)
	if err != nil {
		return nil, err
	}

	var out []Occurrence
	for _, s := range active {
		out = appendOccurrences(out, s, start, end)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].ScheduleID < out[j].ScheduleID
	})
	return out, nil
}

func appendOccurrences(out []Occurrence, s *schedule.Schedule, start, end time.Time) []Occurrence {
	rule := s.Rule()
	ref := s.ScheduledAt.In(rule.Location())

	if s.Frequency == recur.FreqOnce {
		if !ref.Before(start) && !ref.After(end) {
			out = append(out, occurrence(s, ref))
		}
		return out
	}

	// Walk forward from the anchor; the first in-window instant is reached
	// with one NextFire jump instead of stepping one period at a time.
	t := ref
	if t.Before(start) {
		next, err := recur.NextFire(rule, start.Add(-time.Nanosecond))
		if err != nil {
			return out
		}
		t = next
	}
	for !t.After(end) {
		if !t.Before(start) {
			out = append(out, occurrence(s, t))
		}
		t = recur.Step(rule, t)
		if t.IsZero() {
			break
		}
	}
	return out
}

func occurrence(s *schedule.Schedule, at time.Time) Occurrence {
	return Occurrence{
		ScheduleID:     s.ID,
		At:             at,
		Title:          s.Subject,
		RecipientEmail: s.Recipient.Email,
		Status:         s.Status,
		Frequency:      s.Frequency,
	}
}
