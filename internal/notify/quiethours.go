package notify

import "time"

// QuietHours is the minute-of-day gating window:
// messages at or below MaxLevel are deferred while the current local
// time falls in [StartMin, EndMin), wrap-around aware.
type QuietHours struct {
	StartMin int
	EndMin   int
	MaxLevel int
	SpreadMs int64
}

const minutesPerDay = 24 * 60

// enabled reports whether the quiet-hours window is active at all.
// Disabled when: non-positive tick interval, start==end, free window
// under 4 hours, or spread exceeding the free window.
func (q *QuietHours) enabled(tickIntervalMs int64) bool {
	if q == nil || tickIntervalMs <= 0 {
		return false
	}
	if q.StartMin == q.EndMin {
		return false
	}
	free := freeWindowMinutes(q.StartMin, q.EndMin)
	if free < 4*60 {
		return false
	}
	if q.SpreadMs > int64(free)*60_000 {
		return false
	}
	return true
}

// freeWindowMinutes returns the length, in minutes, of the time NOT
// covered by the quiet window [start, end).
func freeWindowMinutes(start, end int) int {
	quiet := wrapMinutes(end - start)
	return minutesPerDay - quiet
}

// wrapMinutes normalizes m into [0, minutesPerDay).
func wrapMinutes(m int) int {
	m %= minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return m
}

// inWindow reports whether minuteOfDay falls in [start, end), handling
// the overnight wrap (e.g. start=22:00, end=06:00).
func inWindow(minuteOfDay, start, end int) bool {
	if start < end {
		return minuteOfDay >= start && minuteOfDay < end
	}
	return minuteOfDay >= start || minuteOfDay < end
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// shouldDefer reports whether a message at the given level should be
// deferred at instant now, per q and the scheduler's tick interval.
func (q *QuietHours) shouldDefer(now time.Time, level int, tickIntervalMs int64) bool {
	if !q.enabled(tickIntervalMs) {
		return false
	}
	if level > q.MaxLevel {
		return false
	}
	return inWindow(minuteOfDay(now), q.StartMin, q.EndMin)
}

// nextWindowEnd returns the next local instant at which minute-of-day
// equals q.EndMin, strictly after now.
func (q *QuietHours) nextWindowEnd(now time.Time) time.Time {
	loc := now.Location()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	end := midnight.Add(time.Duration(q.EndMin) * time.Minute)
	if !end.After(now) {
		end = end.Add(24 * time.Hour)
	}
	return end
}

// deferTarget computes the notifyAt a deferred message should be pushed
// to: the end of the quiet window plus uniform jitter in [0, SpreadMs).
func (q *QuietHours) deferTarget(now time.Time, jitter int64) time.Time {
	target := q.nextWindowEnd(now)
	if q.SpreadMs > 0 {
		target = target.Add(time.Duration(jitter) * time.Millisecond)
	}
	return target
}
