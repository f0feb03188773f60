package assess

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/shadowid-platform/saqr/internal/anomaly"
	"github.com/shadowid-platform/saqr/internal/domain"
	"github.com/shadowid-platform/saqr/internal/geo"
	"github.com/shadowid-platform/saqr/internal/observability"
	"github.com/shadowid-platform/saqr/internal/policy"
	"github.com/shadowid-platform/saqr/internal/repository"
	"github.com/shadowid-platform/saqr/internal/temporal"
)

// EngineVersion identifies the assessment engine in stored metadata.
const EngineVersion = "saqr-1.0"

const assessmentCacheTTL = 15 * time.Minute

// Service orchestrates one full assessment: anomaly detection, the
// model pipeline, policy escalation, persistence, caching and event
// publication. Storage failures fail the assessment; cache and bus
// failures are logged and ignored.
type Service struct {
	detector *anomaly.Detector
	pipeline *Pipeline
	policies *policy.Engine
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	metrics  *observability.Metrics
	temporal *temporal.Analyzer
	clock    clockwork.Clock
	logger   *slog.Logger
}

// ServiceConfig wires the service dependencies. Detector and Pipeline
// are required; everything else is optional and degrades gracefully.
type ServiceConfig struct {
	Detector *anomaly.Detector
	Pipeline *Pipeline
	Policies *policy.Engine
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Metrics  *observability.Metrics
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// NewService creates the orchestration service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Detector == nil {
		return nil, fmt.Errorf("anomaly detector is required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("assessment pipeline is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		detector: cfg.Detector,
		pipeline: cfg.Pipeline,
		policies: cfg.Policies,
		repo:     cfg.Repo,
		cache:    cfg.Cache,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
		temporal: temporal.NewAnalyzer(clock),
		clock:    clock,
		logger:   logger,
	}, nil
}

// AssessScan runs the full assessment for one scan event and persists
// the outcome. The returned assessment always carries a verdict: model
// failures degrade to the fixed Low fallback and are marked in the
// metadata rather than surfaced as errors.
func (s *Service) AssessScan(ctx context.Context, tenantID, traceID string, ev *domain.ScanEvent) (*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if ev == nil {
		return nil, fmt.Errorf("scan event is required")
	}

	start := s.clock.Now()

	flags, alerts := s.detector.Detect(ctx, tenantID, ev)
	s.observeAnomalies(flags)

	// Detected flags feed the feature vector the same way caller-supplied
	// ones do.
	ev.Anomalies = flags

	pipelineStart := s.clock.Now()
	verdict, fallbackCode := s.pipeline.Assess(ctx, ev)
	pipelineMs := s.clock.Now().Sub(pipelineStart).Milliseconds()

	ruleScore := anomaly.RuleScore(flags)
	analysis := s.temporal.Analyze(ev.ShadowID.CreatedAt, ev.ShadowID.ExpiresAt, ev.Scan.Timestamp)

	var policyIDs []string
	if s.policies != nil {
		level, fired := s.policies.Apply(&policy.Input{
			RiskScore:   verdict.RiskScore,
			RiskLevel:   verdict.RiskLevel,
			RuleScore:   ruleScore,
			Anomalies:   flags,
			Nationality: ev.User.Nationality,
			PersonType:  ev.User.PersonType,
			City:        geo.CityName(ev.Scan.Location),
			Expired:     analysis.IsExpiredAtUse == 1,
		})
		for _, esc := range fired {
			policyIDs = append(policyIDs, esc.PolicyID)
			alerts = append(alerts, fmt.Sprintf("Policy %s: escalated %s -> %s (%s)",
				esc.PolicyName, esc.From, esc.To, esc.Reason))
			s.metrics.ObserveEscalation()
		}
		verdict.RiskLevel = level
	}

	scan := s.buildScanRecord(tenantID, ev)

	assessment := &domain.Assessment{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		ScanID:    scan.ID,
		Verdict:   verdict,
		Anomalies: flags,
		Alerts:    alerts,
		Policies:  policyIDs,
		Timestamp: s.clock.Now().UTC(),
		Metadata: domain.AssessmentMetadata{
			TraceID:       traceID,
			PipelineMs:    pipelineMs,
			TotalMs:       s.clock.Now().Sub(start).Milliseconds(),
			Fallback:      fallbackCode != "",
			FallbackCode:  fallbackCode,
			RuleScore:     ruleScore,
			EngineVersion: EngineVersion,
		},
	}

	if s.repo != nil {
		if err := s.repo.SaveScan(ctx, tenantID, scan); err != nil {
			return nil, fmt.Errorf("failed to save scan: %w", err)
		}
		if err := s.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			return nil, fmt.Errorf("failed to save assessment: %w", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.SetAssessment(ctx, tenantID, assessment.ID, assessment, assessmentCacheTTL); err != nil {
			s.logger.Warn("failed to cache assessment",
				"error", err,
				"assessment_id", assessment.ID)
		}
	}

	s.publish(ctx, tenantID, assessment)

	s.metrics.ObserveAssessment(string(verdict.RiskLevel), fallbackCode != "",
		float64(pipelineMs)/1000.0)

	s.logger.Info("assessment completed",
		"tenant_id", tenantID,
		"assessment_id", assessment.ID,
		"scan_id", scan.ID,
		"risk_level", verdict.RiskLevel,
		"risk_score", verdict.RiskScore,
		"rule_score", ruleScore,
		"fallback", fallbackCode != "")

	return assessment, nil
}

// buildScanRecord converts the raw event into its persisted form. The
// timestamps fall back to now when unparseable, matching the temporal
// analyzer's fail-open behavior.
func (s *Service) buildScanRecord(tenantID string, ev *domain.ScanEvent) *domain.ScanRecord {
	now := s.clock.Now().UTC()

	generatedAt, err := temporal.ParseTimestamp(ev.ShadowID.CreatedAt)
	if err != nil {
		generatedAt = now
	}
	scannedAt, err := temporal.ParseTimestamp(ev.Scan.Timestamp)
	if err != nil {
		scannedAt = now
	}

	return &domain.ScanRecord{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		NationalID:  ev.User.NationalID,
		Event:       *ev,
		GeneratedAt: generatedAt.UTC(),
		ScannedAt:   scannedAt.UTC(),
		CreatedAt:   now,
	}
}

func (s *Service) observeAnomalies(flags domain.AnomalyFlags) {
	if flags.DeviceHopping {
		s.metrics.ObserveAnomaly("device_hopping")
	}
	if flags.ImpossibleTravel {
		s.metrics.ObserveAnomaly("impossible_travel")
	}
	if flags.FrequentGeneration {
		s.metrics.ObserveAnomaly("frequent_generation")
	}
	if flags.TokenReuse {
		s.metrics.ObserveAnomaly("token_reuse")
	}
}

// publish emits the completed assessment and, for high-risk or alerting
// verdicts, an alert event. Bus failures never fail the assessment.
func (s *Service) publish(ctx context.Context, tenantID string, a *domain.Assessment) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(a)
	if err != nil {
		s.logger.Warn("failed to marshal assessment event", "error", err)
		return
	}

	if err := s.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, payload); err != nil {
		s.logger.Warn("failed to publish assessment event",
			"error", err,
			"assessment_id", a.ID)
	}

	if a.Verdict.RiskLevel == domain.RiskHigh || len(a.Alerts) > 0 {
		if err := s.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			s.logger.Warn("failed to publish alert event",
				"error", err,
				"assessment_id", a.ID)
		}
	}
}

// GetAssessment fetches an assessment, checking the cache before the
// repository and backfilling the cache on a miss.
func (s *Service) GetAssessment(ctx context.Context, tenantID, assessmentID string) (*domain.Assessment, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetAssessment(ctx, tenantID, assessmentID); err == nil && cached != nil {
			return cached, nil
		}
	}

	if s.repo == nil {
		return nil, repository.ErrNotFound
	}

	a, err := s.repo.GetAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetAssessment(ctx, tenantID, assessmentID, a, assessmentCacheTTL); err != nil {
			s.logger.Warn("failed to backfill assessment cache",
				"error", err,
				"assessment_id", assessmentID)
		}
	}
	return a, nil
}
