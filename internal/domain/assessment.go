package domain

import (
	"time"
)

// RiskLevel is the three-level verdict scale.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Rank orders risk levels for escalation checks (Low < Medium < High).
// Unknown levels rank below Low.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// RiskAssessment is the verdict contract of the scoring pipeline.
// RiskProbability always carries all three levels; the values come from
// the classifier (or its 0.5 defaults) and are not required to sum to 1.
type RiskAssessment struct {
	RiskScore       int                   `json:"riskScore"` // 0-100
	RiskLevel       RiskLevel             `json:"riskLevel"`
	RiskProbability map[RiskLevel]float64 `json:"riskProbability"`
}

// FallbackAssessment is the fixed result substituted when the pipeline
// fails anywhere past input parsing. The caller cannot distinguish it
// from a genuine low-risk verdict; that trade-off is deliberate.
func FallbackAssessment() RiskAssessment {
	return RiskAssessment{
		RiskScore: 0,
		RiskLevel: RiskLow,
		RiskProbability: map[RiskLevel]float64{
			RiskLow:    1.0,
			RiskMedium: 0.0,
			RiskHigh:   0.0,
		},
	}
}

// Assessment is the persisted record of one completed assessment.
type Assessment struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenantId"`
	ScanID    string             `json:"scanId"`
	Verdict   RiskAssessment     `json:"verdict"`
	Anomalies AnomalyFlags       `json:"anomalies"`
	Alerts    []string           `json:"alerts,omitempty"`
	Policies  []string           `json:"policies,omitempty"` // escalation policy IDs applied
	Timestamp time.Time          `json:"timestamp"`
	Metadata  AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata carries processing information.
type AssessmentMetadata struct {
	TraceID       string `json:"traceId"`
	PipelineMs    int64  `json:"pipelineMs"`
	TotalMs       int64  `json:"totalMs"`
	Fallback      bool   `json:"fallback"`
	FallbackCode  string `json:"fallbackCode,omitempty"`
	RuleScore     int    `json:"ruleScore"` // advisory rule-based score from anomaly flags
	EngineVersion string `json:"engineVersion"`
}

// AssessmentResponse is the API response for POST /assess.
type AssessmentResponse struct {
	AssessmentID    string                `json:"assessmentId"`
	ScanID          string                `json:"scanId"`
	RiskScore       int                   `json:"riskScore"`
	RiskLevel       RiskLevel             `json:"riskLevel"`
	RiskProbability map[RiskLevel]float64 `json:"riskProbability"`
	Anomalies       AnomalyFlags          `json:"anomalies"`
	Alerts          []string              `json:"alerts,omitempty"`
	Metadata        AssessmentMetadata    `json:"metadata"`
}

// ToResponse converts a stored assessment to its API shape.
func (a *Assessment) ToResponse() *AssessmentResponse {
	return &AssessmentResponse{
		AssessmentID:    a.ID,
		ScanID:          a.ScanID,
		RiskScore:       a.Verdict.RiskScore,
		RiskLevel:       a.Verdict.RiskLevel,
		RiskProbability: a.Verdict.RiskProbability,
		Anomalies:       a.Anomalies,
		Alerts:          a.Alerts,
		Metadata:        a.Metadata,
	}
}
