package assess

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shadowid-platform/saqr/internal/domain"
	"github.com/shadowid-platform/saqr/internal/features"
	"github.com/shadowid-platform/saqr/internal/model"
	"github.com/shadowid-platform/saqr/internal/temporal"
)

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	a, err := model.LoadArtifacts("../model/testdata")
	if err != nil {
		t.Fatalf("LoadArtifacts: %v", err)
	}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	builder := features.NewBuilder(temporal.NewAnalyzer(clock))
	return NewPipeline(model.NewCascade(a), builder, nil)
}

func benignEvent() *domain.ScanEvent {
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

func TestScoreLowIsAlwaysZero(t *testing.T) {
	for _, probs := range [][]float64{
		{1, 0, 0},
		{0.5, 0.3, 0.2},
		{0.01, 0.5, 0.49},
	} {
		r := Score("Low", probs)
		if r.RiskScore != 0 {
			t.Errorf("Low with probs %v scored %d, want 0", probs, r.RiskScore)
		}
		if r.RiskLevel != domain.RiskLow {
			t.Errorf("level = %s, want Low", r.RiskLevel)
		}
	}
}

func TestScoreScalesByConfidence(t *testing.T) {
	tests := []struct {
		label string
		probs []float64
		want  int
	}{
		{"Medium", []float64{0.1, 0.8, 0.1}, 40},
		{"High", []float64{0.0, 0.1, 0.9}, 90},
		{"High", []float64{0.0, 0.0, 1.0}, 100},
		// Flooring, not rounding.
		{"High", []float64{0.0, 0.001, 0.999}, 99},
	}

	for _, tt := range tests {
		r := Score(tt.label, tt.probs)
		if r.RiskScore != tt.want {
			t.Errorf("Score(%s, %v) = %d, want %d", tt.label, tt.probs, r.RiskScore, tt.want)
		}
	}
}

func TestScoreMissingProbabilitiesDefaultToHalf(t *testing.T) {
	r := Score("High", []float64{0.2})

	if r.RiskProbability[domain.RiskLow] != 0.2 {
		t.Errorf("Low prob = %v, want 0.2", r.RiskProbability[domain.RiskLow])
	}
	if r.RiskProbability[domain.RiskMedium] != 0.5 || r.RiskProbability[domain.RiskHigh] != 0.5 {
		t.Errorf("missing probs should default to 0.5: %v", r.RiskProbability)
	}
	if r.RiskScore != 50 {
		t.Errorf("score = %d, want 50 (100 * 0.5 default)", r.RiskScore)
	}
}

func TestScoreProbabilityMapComplete(t *testing.T) {
	r := Score("Medium", []float64{0.3, 0.6, 0.1})

	var sum float64
	for _, l := range []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh} {
		p, ok := r.RiskProbability[l]
		if !ok {
			t.Fatalf("probability map missing %s", l)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("probabilities sum to %v", sum)
	}
}

func TestPipelineBenignScoresLowZero(t *testing.T) {
	p := testPipeline(t)

	res := p.Run(context.Background(), benignEvent())
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Assessment.RiskLevel != domain.RiskLow || res.Assessment.RiskScore != 0 {
		t.Errorf("benign event: %s/%d, want Low/0", res.Assessment.RiskLevel, res.Assessment.RiskScore)
	}
}

func TestPipelineSuspiciousEscalates(t *testing.T) {
	p := testPipeline(t)

	ev := benignEvent()
	ev.Anomalies.TokenReuse = true

	res := p.Run(context.Background(), ev)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Assessment.RiskLevel != domain.RiskHigh {
		t.Errorf("token reuse scored %s, want High", res.Assessment.RiskLevel)
	}
	if res.Assessment.RiskScore <= 0 {
		t.Errorf("High verdict with zero score: %d", res.Assessment.RiskScore)
	}
}

func TestPipelineAnomalyMonotonicity(t *testing.T) {
	p := testPipeline(t)

	clean := p.Run(context.Background(), benignEvent())

	ev := benignEvent()
	ev.Anomalies = domain.AnomalyFlags{
		DeviceHopping:      true,
		ImpossibleTravel:   true,
		FrequentGeneration: true,
		TokenReuse:         true,
	}
	dirty := p.Run(context.Background(), ev)

	if dirty.Assessment.RiskScore < clean.Assessment.RiskScore {
		t.Errorf("anomalies lowered the score: %d < %d",
			dirty.Assessment.RiskScore, clean.Assessment.RiskScore)
	}
	if dirty.Assessment.RiskLevel.Rank() < clean.Assessment.RiskLevel.Rank() {
		t.Errorf("anomalies lowered the level: %s < %s",
			dirty.Assessment.RiskLevel, clean.Assessment.RiskLevel)
	}
}

func TestPipelineCanceledContext(t *testing.T) {
	p := testPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.Run(ctx, benignEvent())
	if res.Err == nil || res.Code != CodeCanceled {
		t.Errorf("expected canceled result, got %+v", res)
	}
}

func TestAssessDegradesToFallback(t *testing.T) {
	p := testPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, code := p.Assess(ctx, benignEvent())

	want := domain.FallbackAssessment()
	if got.RiskScore != want.RiskScore || got.RiskLevel != want.RiskLevel {
		t.Errorf("fallback = %+v, want %+v", got, want)
	}
	if got.RiskProbability[domain.RiskLow] != 1 {
		t.Errorf("fallback Low probability = %v, want 1", got.RiskProbability[domain.RiskLow])
	}
	if code != CodeCanceled {
		t.Errorf("code = %q, want %q", code, CodeCanceled)
	}
}

func TestAssessHappyPathCodeEmpty(t *testing.T) {
	p := testPipeline(t)

	_, code := p.Assess(context.Background(), benignEvent())
	if code != CodeNone {
		t.Errorf("code = %q, want empty", code)
	}
}

func TestFallbackDeterministic(t *testing.T) {
	a, b := domain.FallbackAssessment(), domain.FallbackAssessment()

	if a.RiskScore != 0 || a.RiskLevel != domain.RiskLow {
		t.Errorf("fallback = %+v", a)
	}
	if a.RiskScore != b.RiskScore || a.RiskLevel != b.RiskLevel {
		t.Error("fallback not deterministic")
	}
}
