// Package temporal derives duration and calendar features from the
// token and scan timestamps.
package temporal

import (
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Analysis holds the temporal features of one scan.
type Analysis struct {
	// TimeFromStartMin is (scan - createdAt) in minutes, signed.
	// Negative when the scan precedes token creation; never clamped.
	TimeFromStartMin float64

	// UsedWithinValidity is 1 iff scan <= expiresAt. IsExpiredAtUse is
	// its complement.
	UsedWithinValidity int
	IsExpiredAtUse     int

	TokenStartHour int // 0-23
	UsageHour      int // 0-23
	UsageWeekday   int // 0-6, 0 = Monday
}

// Analyzer computes temporal features. The injected clock supplies the
// "now" instant used when timestamps are unparseable.
type Analyzer struct {
	clock clockwork.Clock
}

// NewAnalyzer creates an analyzer. A nil clock means the real clock.
func NewAnalyzer(clock clockwork.Clock) *Analyzer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Analyzer{clock: clock}
}

// Analyze computes temporal features from the three event timestamps.
// If any of the three fails to parse, all three default to the same
// "now" instant: zero duration, used-within-validity. Deliberate
// fail-open policy, never an error.
func (a *Analyzer) Analyze(createdAt, expiresAt, scanTime string) Analysis {
	created, err1 := ParseTimestamp(createdAt)
	expires, err2 := ParseTimestamp(expiresAt)
	scan, err3 := ParseTimestamp(scanTime)

	if err1 != nil || err2 != nil || err3 != nil {
		now := a.clock.Now()
		created, expires, scan = now, now, now
	}

	res := Analysis{
		TimeFromStartMin: scan.Sub(created).Minutes(),
		TokenStartHour:   created.Hour(),
		UsageHour:        scan.Hour(),
		UsageWeekday:     mondayWeekday(scan),
	}

	if !scan.After(expires) {
		res.UsedWithinValidity = 1
	} else {
		res.IsExpiredAtUse = 1
	}

	return res
}

// timestampLayouts are tried in order. A trailing "Z" is handled by
// RFC 3339; the bare layout accepts offset-less ISO-8601 strings.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an ISO-8601 timestamp, accepting a trailing
// literal "Z" as UTC and offset-less local forms.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// mondayWeekday converts Go's Sunday-based weekday to 0 = Monday.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
