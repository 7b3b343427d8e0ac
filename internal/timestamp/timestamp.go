// Package timestamp turns presentation times into SubRip timestamps. Two
// frames belong to the same segment exactly when their timestamps are equal
// as strings, so precision finer than a millisecond never starts a cue.
package timestamp

import (
	"fmt"
	"math"
)

// Sentinel is the previous-timestamp value before any frame has been seen
const Sentinel = "00:00:00,000"

// Quantize formats a position in milliseconds as HH:MM:SS,mmm. Each field
// is truncated, so 1999.9ms formats as 00:00:01,999. Negative and NaN
// positions are treated as zero.
func Quantize(ms float64) string {
	if math.IsNaN(ms) || ms < 0 {
		ms = 0
	}
	if math.IsInf(ms, 1) {
		ms = math.MaxInt32
	}

	seconds, millis := divmod(ms, 1000)
	minutes, seconds := divmod(seconds, 60)
	hours, minutes := divmod(minutes, 60)

	return fmt.Sprintf("%02d:%02d:%02d,%03d", int64(hours), int64(minutes), int64(seconds), int64(millis))
}

// IsBoundary reports whether current starts a new segment after previous
func IsBoundary(previous, current string) bool {
	return previous != current
}

// divmod is floor division with the remainder taken by fmod, so the
// remainder is exact for non-negative x
func divmod(x, y float64) (float64, float64) {
	mod := math.Mod(x, y)
	div := (x - mod) / y
	floor := math.Floor(div)
	if div-floor > 0.5 {
		floor++
	}
	return floor, mod
}

// Tracker holds the previous timestamp across frames
type Tracker struct {
	previous string
}

// NewTracker starts at the sentinel
func NewTracker() *Tracker {
	return &Tracker{previous: Sentinel}
}

// Observe quantizes pos and reports whether it closes a segment. On a
// boundary it returns the segment's start (the previous timestamp) and end.
// The tracker always advances to the new timestamp.
func (t *Tracker) Observe(pos float64) (start, end string, boundary bool) {
	current := Quantize(pos)
	start = t.previous
	boundary = IsBoundary(start, current)
	t.previous = current
	return start, current, boundary
}

// Previous returns the last observed timestamp
func (t *Tracker) Previous() string {
	return t.previous
}
