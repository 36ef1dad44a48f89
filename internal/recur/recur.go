// Package recur computes when a schedule fires next.
//
// All arithmetic is calendar-aware and runs in the rule's own timezone, so
// daily/weekly steps stay anchored to the reference wall-clock time across
// DST shifts, and monthly steps clamp to the last day of shorter months.
package recur

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"clipflow/internal/fault"
)

// Frequency selects the recurrence pattern.
type Frequency string

const (
	FreqOnce    Frequency = "once"
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqCustom  Frequency = "custom"
)

// cronParser accepts the classic 5-field minute-granularity syntax.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case FreqOnce, FreqDaily, FreqWeekly, FreqMonthly, FreqCustom:
		return f, nil
	default:
		return "", fault.Validation("unknown frequency %q", s)
	}
}

// Rule is a complete recurrence description. Reference is the anchor
// instant: the first intended occurrence, carrying the wall-clock time that
// every later occurrence repeats.
type Rule struct {
	Frequency  Frequency
	CustomSpec string // 5-field cron expression, custom only
	Reference  time.Time
	Timezone   string // IANA name; empty means UTC
}

// Validate checks the rule is complete and computable.
func (r Rule) Validate() error {
	if _, err := ParseFrequency(string(r.Frequency)); err != nil {
		return err
	}
	if r.Reference.IsZero() {
		return fault.Validation("reference time is required")
	}
	if _, err := loadLocation(r.Timezone); err != nil {
		return fault.Validation("unknown timezone %q", r.Timezone)
	}
	if r.Frequency == FreqCustom {
		spec := strings.TrimSpace(r.CustomSpec)
		if len(strings.Fields(spec)) != 5 {
			return fault.Validation("custom spec must have 5 fields, got %q", r.CustomSpec)
		}
		if _, err := cronParser.Parse(spec); err != nil {
			return fault.Validation("invalid cron spec %q: %v", r.CustomSpec, err)
		}
	} else if strings.TrimSpace(r.CustomSpec) != "" {
		return fault.Validation("custom spec is only valid with the custom frequency")
	}
	return nil
}

// Location resolves the rule's timezone, falling back to UTC.
func (r Rule) Location() *time.Location {
	loc, err := loadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func loadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// NextFire returns the next occurrence after now.
//
// For once, that is the reference itself while it is still in the future; an
// already-due one-shot returns now so it fires immediately rather than
// never. Periodic occurrences are generated from the reference, never from
// now, so the anchor's wall-clock time is preserved and the cadence cannot
// drift.
func NextFire(r Rule, now time.Time) (time.Time, error) {
	loc := r.Location()
	ref := r.Reference.In(loc)
	now = now.In(loc)

	switch r.Frequency {
	case FreqOnce:
		if ref.After(now) {
			return ref, nil
		}
		return now, nil

	case FreqDaily:
		return stepDays(ref, now, 1), nil

	case FreqWeekly:
		return stepDays(ref, now, 7), nil

	case FreqMonthly:
		t := ref
		for !t.After(now) {
			t = addMonthsClamped(ref, monthsBetween(ref, t)+1, loc)
		}
		return t, nil

	case FreqCustom:
		sched, err := cronParser.Parse(strings.TrimSpace(r.CustomSpec))
		if err != nil {
			return time.Time{}, fault.Validation("invalid cron spec %q: %v", r.CustomSpec, err)
		}
		from := now
		if ref.After(now) {
			// Nothing fires before the anchor.
			from = ref.Add(-time.Second)
		}
		return sched.Next(from), nil
	}
	return time.Time{}, fault.Validation("unknown frequency %q", r.Frequency)
}

// Step returns the occurrence after t, used by calendar materialization to
// walk a window. t must itself be an occurrence (or the reference).
func Step(r Rule, t time.Time) time.Time {
	loc := r.Location()
	t = t.In(loc)
	switch r.Frequency {
	case FreqDaily:
		return t.AddDate(0, 0, 1)
	case FreqWeekly:
		return t.AddDate(0, 0, 7)
	case FreqMonthly:
		ref := r.Reference.In(loc)
		return addMonthsClamped(ref, monthsBetween(ref, t)+1, loc)
	case FreqCustom:
		sched, err := cronParser.Parse(strings.TrimSpace(r.CustomSpec))
		if err != nil {
			return time.Time{}
		}
		return sched.Next(t)
	}
	return time.Time{}
}

// stepDays advances from ref in fixed day periods until the result passes
// now. The bulk of the distance is jumped in one AddDate call; the loop then
// settles DST wobble.
func stepDays(ref, now time.Time, period int) time.Time {
	t := ref
	if now.After(ref) {
		days := int(now.Sub(ref).Hours()/24) / period * period
		if days > period {
			t = ref.AddDate(0, 0, days-period)
		}
	}
	for !t.After(now) {
		t = t.AddDate(0, 0, period)
	}
	return t
}

// addMonthsClamped lands months after the reference, keeping the reference's
// day-of-month where the target month allows it and clamping to the last day
// where it doesn't. Stepping is always computed from the reference so a
// day-31 anchor recovers day 31 in long months rather than drifting.
func addMonthsClamped(ref time.Time, months int, loc *time.Location) time.Time {
	y, m, d := ref.Date()
	hh, mm, ss := ref.Clock()

	tm := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, loc)
	if last := daysIn(tm.Year(), tm.Month(), loc); d > last {
		d = last
	}
	return time.Date(tm.Year(), tm.Month(), d, hh, mm, ss, ref.Nanosecond(), loc)
}

func monthsBetween(ref, t time.Time) int {
	ry, rm, _ := ref.Date()
	ty, tm, _ := t.Date()
	return (ty-ry)*12 + int(tm-rm)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
