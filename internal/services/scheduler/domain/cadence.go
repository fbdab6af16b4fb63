// Package domain holds the scheduler's cadence model and job types
package domain

import (
	"fmt"
	"time"
)

// Cadence computes the next activation strictly after now. Implementations
// are pure; the scheduler owns the clock.
type Cadence interface {
	Next(now time.Time) time.Time
	String() string
}

// DailyAt fires every day at hh:mm in loc
func DailyAt(hour, minute int, loc *time.Location) Cadence {
	return daily{hour: hour, minute: minute, loc: loc}
}

type daily struct {
	hour, minute int
	loc          *time.Location
}

func (d daily) Next(now time.Time) time.Time {
	local := now.In(d.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (d daily) String() string { return fmt.Sprintf("daily %02d:%02d", d.hour, d.minute) }

// WeeklyAt fires every week on weekday at hh:mm in loc
func WeeklyAt(weekday time.Weekday, hour, minute int, loc *time.Location) Cadence {
	return weekly{weekday: weekday, hour: hour, minute: minute, loc: loc}
}

type weekly struct {
	weekday      time.Weekday
	hour, minute int
	loc          *time.Location
}

func (w weekly) Next(now time.Time) time.Time {
	local := now.In(w.loc)
	days := (int(w.weekday) - int(local.Weekday()) + 7) % 7
	next := time.Date(local.Year(), local.Month(), local.Day(), w.hour, w.minute, 0, 0, w.loc).
		AddDate(0, 0, days)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

func (w weekly) String() string {
	return fmt.Sprintf("weekly %s %02d:%02d", w.weekday, w.hour, w.minute)
}

// MonthlyAt fires every month on day-of-month at hh:mm in loc. Days past the
// end of a month clamp to its last day, so day 31 still fires in February.
func MonthlyAt(day, hour, minute int, loc *time.Location) Cadence {
	return monthly{day: day, hour: hour, minute: minute, loc: loc}
}

type monthly struct {
	day, hour, minute int
	loc               *time.Location
}

func (m monthly) Next(now time.Time) time.Time {
	local := now.In(m.loc)
	next := m.inMonth(local.Year(), local.Month())
	if !next.After(now) {
		next = m.inMonth(local.Year(), local.Month()+1)
	}
	return next
}

func (m monthly) inMonth(year int, month time.Month) time.Time {
	day := m.day
	if last := lastDay(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, m.hour, m.minute, 0, 0, m.loc)
}

func lastDay(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (m monthly) String() string {
	return fmt.Sprintf("monthly day %d %02d:%02d", m.day, m.hour, m.minute)
}

// Every fires on a fixed interval from whenever the scheduler asks
func Every(d time.Duration) Cadence { return every{d: d} }

type every struct{ d time.Duration }

func (e every) Next(now time.Time) time.Time { return now.Add(e.d) }

func (e every) String() string { return fmt.Sprintf("every %s", e.d) }
