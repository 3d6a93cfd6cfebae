// Package timemodel maps wall-clock instants to channel offsets and back,
// and defines the 3 a.m. programming-day boundary used only by the guide.
package timemodel

import (
	"math"
	"time"
)

// ProgrammingDayBoundaryHour is the local hour at which a programming day
// rolls over. Display-only: playback never resets at this boundary.
const ProgrammingDayBoundaryHour = 3

// Clock is the single seam over time.Now(), so tests can advance wall-clock
// time deterministically instead of sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, at millisecond resolution per spec §4.F.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().Truncate(time.Millisecond)
}

// Offset returns (now - epoch) in seconds. Negative results (clock
// regression) are the caller's responsibility to clamp, per spec §7.
func Offset(now, epoch time.Time) float64 {
	return now.Sub(epoch).Seconds()
}

// Phase returns offset mod total, the channel's position within a single
// loop of its compiled program, in seconds, in [0, total).
func Phase(offsetSeconds, total float64) float64 {
	if total <= 0 {
		return 0
	}
	phase := math.Mod(offsetSeconds, total)
	if phase < 0 {
		phase += total
	}
	return phase
}

// Previous3AM returns the most recent 03:00 local-time instant at or before now.
func Previous3AM(now time.Time) time.Time {
	boundary := time.Date(now.Year(), now.Month(), now.Day(), ProgrammingDayBoundaryHour, 0, 0, 0, now.Location())
	if boundary.After(now) {
		boundary = boundary.AddDate(0, 0, -1)
	}
	return boundary
}

// Next3AM returns the next 03:00 local-time instant strictly after now.
func Next3AM(now time.Time) time.Time {
	boundary := time.Date(now.Year(), now.Month(), now.Day(), ProgrammingDayBoundaryHour, 0, 0, 0, now.Location())
	if !boundary.After(now) {
		boundary = boundary.AddDate(0, 0, 1)
	}
	return boundary
}
