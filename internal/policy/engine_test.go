package policy

import (
	"testing"

	"github.com/shadowid-platform/saqr/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func policyConfig(id, expr string, target domain.RiskLevel) *domain.PolicyConfig {
	return &domain.PolicyConfig{
		ID:         id,
		TenantID:   "t1",
		Name:       id,
		Expression: expr,
		EscalateTo: target,
		Reason:     "test policy " + id,
		Enabled:    true,
	}
}

func TestLoadPolicyValidExpression(t *testing.T) {
	e := newTestEngine(t)

	err := e.LoadPolicy(policyConfig("p1", "token_reuse && impossible_travel", domain.RiskHigh))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if e.PoliciesCount() != 1 {
		t.Errorf("PoliciesCount = %d, want 1", e.PoliciesCount())
	}
}

func TestLoadPolicyRejectsNonBool(t *testing.T) {
	e := newTestEngine(t)

	if err := e.LoadPolicy(policyConfig("p1", "risk_score + 1", domain.RiskHigh)); err == nil {
		t.Error("expected error for non-bool expression")
	}
}

func TestLoadPolicyRejectsBadSyntax(t *testing.T) {
	e := newTestEngine(t)

	if err := e.LoadPolicy(policyConfig("p1", "risk_score >", domain.RiskHigh)); err == nil {
		t.Error("expected error for invalid syntax")
	}
}

func TestLoadPolicyRejectsUnknownTarget(t *testing.T) {
	e := newTestEngine(t)

	if err := e.LoadPolicy(policyConfig("p1", "token_reuse", "Critical")); err == nil {
		t.Error("expected error for unknown escalation target")
	}
}

func TestValidatePolicyDoesNotLoad(t *testing.T) {
	e := newTestEngine(t)

	if err := e.ValidatePolicy(policyConfig("p1", "expired", domain.RiskMedium)); err != nil {
		t.Fatalf("ValidatePolicy: %v", err)
	}
	if e.PoliciesCount() != 0 {
		t.Errorf("validation must not load the policy, count = %d", e.PoliciesCount())
	}
}

func TestApplyEscalates(t *testing.T) {
	e := newTestEngine(t)
	if err := e.LoadPolicy(policyConfig("reuse-travel", "token_reuse && impossible_travel", domain.RiskHigh)); err != nil {
		t.Fatal(err)
	}

	level, fired := e.Apply(&Input{
		RiskLevel: domain.RiskLow,
		Anomalies: domain.AnomalyFlags{TokenReuse: true, ImpossibleTravel: true},
	})

	if level != domain.RiskHigh {
		t.Errorf("level = %s, want High", level)
	}
	if len(fired) != 1 || fired[0].PolicyID != "reuse-travel" {
		t.Errorf("unexpected escalations: %+v", fired)
	}
	if fired[0].From != domain.RiskLow || fired[0].To != domain.RiskHigh {
		t.Errorf("escalation record wrong: %+v", fired[0])
	}
}

func TestApplyNeverLowers(t *testing.T) {
	e := newTestEngine(t)
	if err := e.LoadPolicy(policyConfig("p1", "device_hopping", domain.RiskMedium)); err != nil {
		t.Fatal(err)
	}

	level, fired := e.Apply(&Input{
		RiskLevel: domain.RiskHigh,
		Anomalies: domain.AnomalyFlags{DeviceHopping: true},
	})

	if level != domain.RiskHigh {
		t.Errorf("level lowered to %s", level)
	}
	if len(fired) != 0 {
		t.Errorf("no-op escalation recorded: %+v", fired)
	}
}

func TestApplyNonMatchingPolicy(t *testing.T) {
	e := newTestEngine(t)
	if err := e.LoadPolicy(policyConfig("p1", "risk_score > 80", domain.RiskHigh)); err != nil {
		t.Fatal(err)
	}

	level, fired := e.Apply(&Input{RiskScore: 10, RiskLevel: domain.RiskLow})

	if level != domain.RiskLow || len(fired) != 0 {
		t.Errorf("policy fired unexpectedly: %s %+v", level, fired)
	}
}

func TestApplyScoreAndAttributeVariables(t *testing.T) {
	e := newTestEngine(t)
	err := e.LoadPolicy(policyConfig("p1",
		`rule_score >= 40 && person_type == "Resident" && city == "Jeddah"`,
		domain.RiskMedium))
	if err != nil {
		t.Fatal(err)
	}

	level, _ := e.Apply(&Input{
		RiskLevel:  domain.RiskLow,
		RuleScore:  40,
		PersonType: "Resident",
		City:       "Jeddah",
	})

	if level != domain.RiskMedium {
		t.Errorf("level = %s, want Medium", level)
	}
}

func TestApplyChainedEscalation(t *testing.T) {
	e := newTestEngine(t)
	if err := e.LoadPolicies([]*domain.PolicyConfig{
		policyConfig("to-medium", "expired", domain.RiskMedium),
		policyConfig("to-high", "token_reuse", domain.RiskHigh),
	}); err != nil {
		t.Fatal(err)
	}

	level, fired := e.Apply(&Input{
		RiskLevel: domain.RiskLow,
		Expired:   true,
		Anomalies: domain.AnomalyFlags{TokenReuse: true},
	})

	if level != domain.RiskHigh {
		t.Errorf("level = %s, want High", level)
	}
	// Map iteration order varies, so either one or two records are
	// valid, but the final level must be High.
	for _, esc := range fired {
		if esc.To.Rank() <= esc.From.Rank() {
			t.Errorf("non-monotone escalation: %+v", esc)
		}
	}
}

func TestLoadPoliciesSkipsDisabled(t *testing.T) {
	e := newTestEngine(t)

	disabled := policyConfig("p1", "token_reuse", domain.RiskHigh)
	disabled.Enabled = false

	if err := e.LoadPolicies([]*domain.PolicyConfig{disabled}); err != nil {
		t.Fatal(err)
	}
	if e.PoliciesCount() != 0 {
		t.Errorf("disabled policy loaded, count = %d", e.PoliciesCount())
	}
}

func TestReloadPoliciesReplacesSet(t *testing.T) {
	e := newTestEngine(t)
	if err := e.LoadPolicy(policyConfig("old", "token_reuse", domain.RiskHigh)); err != nil {
		t.Fatal(err)
	}

	err := e.ReloadPolicies([]*domain.PolicyConfig{
		policyConfig("new", "expired", domain.RiskMedium),
	})
	if err != nil {
		t.Fatal(err)
	}

	loaded := e.GetLoadedPolicies()
	if len(loaded) != 1 || loaded[0].ID != "new" {
		t.Errorf("reload did not replace the set: %+v", loaded)
	}
}

func TestCloseClearsPolicies(t *testing.T) {
	e := newTestEngine(t)
	if err := e.LoadPolicy(policyConfig("p1", "token_reuse", domain.RiskHigh)); err != nil {
		t.Fatal(err)
	}

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if e.PoliciesCount() != 0 {
		t.Error("Close did not clear policies")
	}
}
