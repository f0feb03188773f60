// Package anomaly runs the rule-based anomaly checks that feed the
// feature vector and the alert stream.
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shadowid-platform/saqr/internal/domain"
	"github.com/shadowid-platform/saqr/internal/geo"
	"github.com/shadowid-platform/saqr/internal/temporal"
)

// GenerationCounter counts how many tokens a user generated since a
// given instant. Backed by the repository in production.
type GenerationCounter func(ctx context.Context, tenantID, nationalID string, since time.Time) (int64, error)

// Detection thresholds.
const (
	maxRealisticSpeedKmh  = 300
	travelWindowMinutes   = 60
	suspiciousGapMinutes  = 10
	generationWindow      = 2 * time.Minute
	frequentGenerationMin = 3
)

// Detector evaluates the four anomaly rules for a scan event.
type Detector struct {
	counter GenerationCounter
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewDetector creates a detector. A nil counter disables the frequent
// generation check; nil clock and logger get defaults.
func NewDetector(counter GenerationCounter, clock clockwork.Clock, logger *slog.Logger) *Detector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{counter: counter, clock: clock, logger: logger}
}

// Detect runs all rules and returns the flags plus human-readable
// alerts, one per triggered rule. Pre-set flags on the event are kept:
// callers may merge upstream detections with local ones.
func (d *Detector) Detect(ctx context.Context, tenantID string, ev *domain.ScanEvent) (domain.AnomalyFlags, []string) {
	flags := domain.AnomalyFlags{}
	var alerts []string

	if d.deviceHopping(ev) {
		flags.DeviceHopping = true
		alerts = append(alerts, "Device mismatch: token generated on a different device")
	}

	if msg := d.impossibleTravel(ev); msg != "" {
		flags.ImpossibleTravel = true
		alerts = append(alerts, msg)
	}

	if msg := d.frequentGeneration(ctx, tenantID, ev); msg != "" {
		flags.FrequentGeneration = true
		alerts = append(alerts, msg)
	}

	if ev.ShadowID.Used {
		flags.TokenReuse = true
		alerts = append(alerts, "Token already used: one-time use only")
	}

	return flags.Or(ev.Anomalies), alerts
}

// deviceHopping fires when the token carries a fingerprint and the
// scanning device reports none or a different one.
func (d *Detector) deviceHopping(ev *domain.ScanEvent) bool {
	gen := ev.ShadowID.DeviceFingerprint
	return gen != "" && ev.Scan.DeviceFingerprint != gen
}

// impossibleTravel checks whether moving between the generation and
// scan locations within the elapsed time would require an unrealistic
// speed. With unparseable coordinates a short gap between differing
// locations is treated as suspicious on its own.
func (d *Detector) impossibleTravel(ev *domain.ScanEvent) string {
	genLoc, scanLoc := ev.ShadowID.GenerationLocation, ev.Scan.Location
	if genLoc == "" || scanLoc == "" || genLoc == scanLoc {
		return ""
	}

	created, err1 := temporal.ParseTimestamp(ev.ShadowID.CreatedAt)
	scanned, err2 := temporal.ParseTimestamp(ev.Scan.Timestamp)
	if err1 != nil || err2 != nil {
		return ""
	}

	gapMin := scanned.Sub(created).Minutes()
	dist := geo.Distance(genLoc, scanLoc)

	if dist > 0 && gapMin > 0 {
		speed := dist / gapMin * 60
		if speed > maxRealisticSpeedKmh && gapMin < travelWindowMinutes {
			return fmt.Sprintf("Impossible travel: %s -> %s (%.0f km in %.0f min = %.0f km/h)",
				genLoc, scanLoc, dist, gapMin, speed)
		}
	} else if gapMin < suspiciousGapMinutes && dist == geo.UnknownDistanceKm {
		return fmt.Sprintf("Suspicious travel: %s -> %s in %.0f minutes", genLoc, scanLoc, gapMin)
	}

	return ""
}

// frequentGeneration fires when the user generated at least three
// tokens (including this one) in the two minutes before creation.
// Counter errors are logged and treated as no anomaly.
func (d *Detector) frequentGeneration(ctx context.Context, tenantID string, ev *domain.ScanEvent) string {
	if d.counter == nil {
		return ""
	}

	created, err := temporal.ParseTimestamp(ev.ShadowID.CreatedAt)
	if err != nil {
		created = d.clock.Now()
	}

	count, err := d.counter(ctx, tenantID, ev.User.NationalID, created.Add(-generationWindow))
	if err != nil {
		d.logger.Warn("generation count failed",
			"error", err,
			"national_id", ev.User.NationalID)
		return ""
	}

	if count >= frequentGenerationMin {
		return fmt.Sprintf("Frequent generation: %d tokens generated in last 2 minutes", count)
	}
	return ""
}

// Rule-based score weights, used as the advisory score alongside the
// model verdict.
const (
	weightDeviceHopping      = 50
	weightImpossibleTravel   = 30
	weightFrequentGeneration = 20
	weightTokenReuse         = 40
)

// RuleScore computes the additive rule-based score, capped at 100.
func RuleScore(flags domain.AnomalyFlags) int {
	score := 0
	if flags.DeviceHopping {
		score += weightDeviceHopping
	}
	if flags.ImpossibleTravel {
		score += weightImpossibleTravel
	}
	if flags.FrequentGeneration {
		score += weightFrequentGeneration
	}
	if flags.TokenReuse {
		score += weightTokenReuse
	}
	if score > 100 {
		score = 100
	}
	return score
}

// RuleLevel maps a rule-based score to a risk level.
func RuleLevel(score int) domain.RiskLevel {
	switch {
	case score < 20:
		return domain.RiskLow
	case score < 50:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}
