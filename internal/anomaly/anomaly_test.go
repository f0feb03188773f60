package anomaly

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shadowid-platform/saqr/internal/domain"
)

func cleanEvent() *domain.ScanEvent {
	return &domain.ScanEvent{
		User: domain.UserInfo{NationalID: "1234567890", PersonType: "Citizen", Nationality: "Saudi"},
		ShadowID: domain.ShadowIDInfo{
			CreatedAt:          "2025-06-04T10:00:00Z",
			ExpiresAt:          "2025-06-04T10:03:00Z",
			DeviceFingerprint:  "dev-1",
			GenerationLocation: "24.7136,46.6753",
		},
		Scan: domain.ScanInfo{
			Location:          "24.7136,46.6753",
			Timestamp:         "2025-06-04T10:01:00Z",
			DeviceFingerprint: "dev-1",
		},
	}
}

func staticCounter(n int64, err error) GenerationCounter {
	return func(ctx context.Context, tenantID, nationalID string, since time.Time) (int64, error) {
		return n, err
	}
}

func TestDetectCleanEvent(t *testing.T) {
	d := NewDetector(staticCounter(1, nil), nil, nil)

	flags, alerts := d.Detect(context.Background(), "t1", cleanEvent())

	if flags != (domain.AnomalyFlags{}) {
		t.Errorf("clean event flagged: %+v", flags)
	}
	if len(alerts) != 0 {
		t.Errorf("unexpected alerts: %v", alerts)
	}
}

func TestDetectDeviceHopping(t *testing.T) {
	tests := []struct {
		name    string
		genFP   string
		scanFP  string
		hopping bool
	}{
		{"same device", "dev-1", "dev-1", false},
		{"different device", "dev-1", "dev-2", true},
		{"missing scan fingerprint", "dev-1", "", true},
		{"no generation fingerprint", "", "dev-2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := cleanEvent()
			ev.ShadowID.DeviceFingerprint = tt.genFP
			ev.Scan.DeviceFingerprint = tt.scanFP

			d := NewDetector(nil, nil, nil)
			flags, _ := d.Detect(context.Background(), "t1", ev)

			if flags.DeviceHopping != tt.hopping {
				t.Errorf("DeviceHopping = %v, want %v", flags.DeviceHopping, tt.hopping)
			}
		})
	}
}

func TestDetectImpossibleTravel(t *testing.T) {
	// Riyadh to Jeddah (~850 km) in 30 minutes.
	ev := cleanEvent()
	ev.ShadowID.GenerationLocation = "24.7136,46.6753"
	ev.Scan.Location = "21.4858,39.1925"
	ev.Scan.Timestamp = "2025-06-04T10:30:00Z"

	d := NewDetector(nil, nil, nil)
	flags, alerts := d.Detect(context.Background(), "t1", ev)

	if !flags.ImpossibleTravel {
		t.Fatal("impossible travel not flagged")
	}
	found := false
	for _, a := range alerts {
		if strings.HasPrefix(a, "Impossible travel") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing impossible travel alert: %v", alerts)
	}
}

func TestDetectPlausibleTravelNotFlagged(t *testing.T) {
	// Riyadh to Jeddah over 5 hours is fine.
	ev := cleanEvent()
	ev.Scan.Location = "21.4858,39.1925"
	ev.Scan.Timestamp = "2025-06-04T15:00:00Z"

	d := NewDetector(nil, nil, nil)
	flags, _ := d.Detect(context.Background(), "t1", ev)

	if flags.ImpossibleTravel {
		t.Error("plausible travel flagged")
	}
}

func TestDetectSuspiciousTravelUnknownDistance(t *testing.T) {
	// Named locations have no coordinates: short gap across differing
	// locations is suspicious on its own.
	ev := cleanEvent()
	ev.ShadowID.GenerationLocation = "Riyadh office"
	ev.Scan.Location = "Jeddah branch"
	ev.Scan.Timestamp = "2025-06-04T10:05:00Z"

	d := NewDetector(nil, nil, nil)
	flags, alerts := d.Detect(context.Background(), "t1", ev)

	if !flags.ImpossibleTravel {
		t.Fatal("suspicious travel not flagged")
	}
	if !strings.HasPrefix(alerts[0], "Suspicious travel") {
		t.Errorf("unexpected alert: %v", alerts)
	}
}

func TestDetectTravelSkippedWithoutLocations(t *testing.T) {
	ev := cleanEvent()
	ev.ShadowID.GenerationLocation = ""
	ev.Scan.Location = "21.4858,39.1925"
	ev.Scan.Timestamp = "2025-06-04T10:01:00Z"

	d := NewDetector(nil, nil, nil)
	flags, _ := d.Detect(context.Background(), "t1", ev)

	if flags.ImpossibleTravel {
		t.Error("travel check should be skipped without a generation location")
	}
}

func TestDetectFrequentGeneration(t *testing.T) {
	d := NewDetector(staticCounter(3, nil), nil, nil)

	flags, alerts := d.Detect(context.Background(), "t1", cleanEvent())

	if !flags.FrequentGeneration {
		t.Fatal("frequent generation not flagged at threshold")
	}
	if !strings.HasPrefix(alerts[0], "Frequent generation") {
		t.Errorf("unexpected alert: %v", alerts)
	}
}

func TestDetectFrequentGenerationBelowThreshold(t *testing.T) {
	d := NewDetector(staticCounter(2, nil), nil, nil)

	flags, _ := d.Detect(context.Background(), "t1", cleanEvent())

	if flags.FrequentGeneration {
		t.Error("two generations should not trigger the check")
	}
}

func TestDetectCounterErrorFailsOpen(t *testing.T) {
	d := NewDetector(staticCounter(0, errors.New("db down")), nil, nil)

	flags, _ := d.Detect(context.Background(), "t1", cleanEvent())

	if flags.FrequentGeneration {
		t.Error("counter error must not flag the event")
	}
}

func TestDetectTokenReuse(t *testing.T) {
	ev := cleanEvent()
	ev.ShadowID.Used = true

	d := NewDetector(nil, nil, nil)
	flags, alerts := d.Detect(context.Background(), "t1", ev)

	if !flags.TokenReuse {
		t.Fatal("token reuse not flagged")
	}
	if !strings.Contains(alerts[0], "already used") {
		t.Errorf("unexpected alert: %v", alerts)
	}
}

func TestDetectMergesUpstreamFlags(t *testing.T) {
	ev := cleanEvent()
	ev.Anomalies.ImpossibleTravel = true

	d := NewDetector(nil, nil, nil)
	flags, _ := d.Detect(context.Background(), "t1", ev)

	if !flags.ImpossibleTravel {
		t.Error("upstream flag lost in merge")
	}
}

func TestRuleScore(t *testing.T) {
	tests := []struct {
		flags domain.AnomalyFlags
		want  int
	}{
		{domain.AnomalyFlags{}, 0},
		{domain.AnomalyFlags{DeviceHopping: true}, 50},
		{domain.AnomalyFlags{ImpossibleTravel: true}, 30},
		{domain.AnomalyFlags{FrequentGeneration: true}, 20},
		{domain.AnomalyFlags{TokenReuse: true}, 40},
		{domain.AnomalyFlags{DeviceHopping: true, TokenReuse: true}, 90},
		{domain.AnomalyFlags{DeviceHopping: true, ImpossibleTravel: true, FrequentGeneration: true, TokenReuse: true}, 100},
	}

	for _, tt := range tests {
		if got := RuleScore(tt.flags); got != tt.want {
			t.Errorf("RuleScore(%+v) = %d, want %d", tt.flags, got, tt.want)
		}
	}
}

func TestRuleLevel(t *testing.T) {
	tests := []struct {
		score int
		want  domain.RiskLevel
	}{
		{0, domain.RiskLow},
		{19, domain.RiskLow},
		{20, domain.RiskMedium},
		{49, domain.RiskMedium},
		{50, domain.RiskHigh},
		{100, domain.RiskHigh},
	}

	for _, tt := range tests {
		if got := RuleLevel(tt.score); got != tt.want {
			t.Errorf("RuleLevel(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
