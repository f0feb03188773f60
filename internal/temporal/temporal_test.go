package temporal

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestAnalyzeValidTimestamps(t *testing.T) {
	a := NewAnalyzer(nil)

	// Token created Wednesday 10:00, scanned 10:02, expires 10:03.
	res := a.Analyze(
		"2025-06-04T10:00:00Z",
		"2025-06-04T10:03:00Z",
		"2025-06-04T10:02:30Z",
	)

	if math.Abs(res.TimeFromStartMin-2.5) > 1e-9 {
		t.Errorf("TimeFromStartMin = %f, want 2.5", res.TimeFromStartMin)
	}
	if res.UsedWithinValidity != 1 || res.IsExpiredAtUse != 0 {
		t.Errorf("expected within validity, got %+v", res)
	}
	if res.TokenStartHour != 10 || res.UsageHour != 10 {
		t.Errorf("hours = %d/%d, want 10/10", res.TokenStartHour, res.UsageHour)
	}
	// 2025-06-04 is a Wednesday: Monday-based weekday 2.
	if res.UsageWeekday != 2 {
		t.Errorf("UsageWeekday = %d, want 2", res.UsageWeekday)
	}
}

func TestAnalyzeExpiredToken(t *testing.T) {
	a := NewAnalyzer(nil)

	res := a.Analyze(
		"2025-06-04T10:00:00Z",
		"2025-06-04T10:03:00Z",
		"2025-06-04T10:05:00Z",
	)

	if res.UsedWithinValidity != 0 || res.IsExpiredAtUse != 1 {
		t.Errorf("expected expired at use, got %+v", res)
	}
}

func TestAnalyzeScanAtExactExpiry(t *testing.T) {
	a := NewAnalyzer(nil)

	// Scan exactly at expiry still counts as within validity.
	res := a.Analyze(
		"2025-06-04T10:00:00Z",
		"2025-06-04T10:03:00Z",
		"2025-06-04T10:03:00Z",
	)

	if res.UsedWithinValidity != 1 {
		t.Errorf("scan at expiry should be within validity, got %+v", res)
	}
}

func TestAnalyzeNegativeDuration(t *testing.T) {
	a := NewAnalyzer(nil)

	res := a.Analyze(
		"2025-06-04T10:00:00Z",
		"2025-06-04T10:03:00Z",
		"2025-06-04T09:58:00Z",
	)

	if res.TimeFromStartMin != -2 {
		t.Errorf("TimeFromStartMin = %f, want -2", res.TimeFromStartMin)
	}
}

func TestAnalyzeUnparseableFallsBackToNow(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC) // a Monday
	a := NewAnalyzer(clockwork.NewFakeClockAt(now))

	tests := []struct {
		name               string
		created, exp, scan string
	}{
		{"bad created", "not-a-date", "2025-06-04T10:03:00Z", "2025-06-04T10:02:00Z"},
		{"bad expires", "2025-06-04T10:00:00Z", "", "2025-06-04T10:02:00Z"},
		{"bad scan", "2025-06-04T10:00:00Z", "2025-06-04T10:03:00Z", "garbage"},
		{"all bad", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Analyze(tt.created, tt.exp, tt.scan)

			// All three collapse to now: zero duration, within validity.
			if res.TimeFromStartMin != 0 {
				t.Errorf("TimeFromStartMin = %f, want 0", res.TimeFromStartMin)
			}
			if res.UsedWithinValidity != 1 {
				t.Errorf("expected within validity, got %+v", res)
			}
			if res.TokenStartHour != 14 || res.UsageHour != 14 {
				t.Errorf("hours = %d/%d, want 14/14", res.TokenStartHour, res.UsageHour)
			}
			if res.UsageWeekday != 0 {
				t.Errorf("UsageWeekday = %d, want 0 (Monday)", res.UsageWeekday)
			}
		})
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	tests := []string{
		"2025-06-04T10:00:00Z",
		"2025-06-04T10:00:00+03:00",
		"2025-06-04T10:00:00",
		"2025-06-04T10:00:00.123456",
		"2025-06-04 10:00:00",
	}

	for _, s := range tests {
		if _, err := ParseTimestamp(s); err != nil {
			t.Errorf("ParseTimestamp(%q) failed: %v", s, err)
		}
	}

	if _, err := ParseTimestamp("04/06/2025"); err == nil {
		t.Error("expected error for non-ISO timestamp")
	}
}

func TestMondayWeekday(t *testing.T) {
	// 2025-06-01 is a Sunday.
	sunday := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := mondayWeekday(sunday); got != 6 {
		t.Errorf("Sunday = %d, want 6", got)
	}
	if got := mondayWeekday(sunday.AddDate(0, 0, 1)); got != 0 {
		t.Errorf("Monday = %d, want 0", got)
	}
}
