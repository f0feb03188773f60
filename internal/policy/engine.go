// Package policy provides the CEL-Go based escalation policy engine.
// Policies run after the model verdict and may only raise the risk
// level, never lower it.
package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/shadowid-platform/saqr/internal/domain"
)

// Engine compiles and evaluates escalation policies.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledPolicy
}

// CompiledPolicy holds a pre-compiled CEL program with its config.
type CompiledPolicy struct {
	Config  *domain.PolicyConfig
	Program cel.Program
}

// NewEngine creates a policy engine with the assessment variable set.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("risk_score", cel.IntType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("rule_score", cel.IntType),
		cel.Variable("device_hopping", cel.BoolType),
		cel.Variable("impossible_travel", cel.BoolType),
		cel.Variable("frequent_generation", cel.BoolType),
		cel.Variable("token_reuse", cel.BoolType),
		cel.Variable("nationality", cel.StringType),
		cel.Variable("person_type", cel.StringType),
		cel.Variable("city", cel.StringType),
		cel.Variable("expired", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*CompiledPolicy),
	}, nil
}

// ValidatePolicy compiles a policy without loading it.
func (e *Engine) ValidatePolicy(cfg *domain.PolicyConfig) error {
	if cfg == nil {
		return fmt.Errorf("policy config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compilePolicy(cfg)
	return err
}

// LoadPolicy compiles and loads a single policy.
func (e *Engine) LoadPolicy(cfg *domain.PolicyConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compilePolicy(cfg)
	if err != nil {
		return err
	}

	e.compiled[cfg.ID] = compiled
	return nil
}

// LoadPolicies loads all enabled policies.
func (e *Engine) LoadPolicies(configs []*domain.PolicyConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadPolicy(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadPolicies atomically replaces the loaded set with the enabled
// subset of configs. Enables hot reload from the database.
func (e *Engine) ReloadPolicies(configs []*domain.PolicyConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledPolicy)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compilePolicy(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	e.compiled = next
	return nil
}

// Input holds the evaluated assessment exposed to policy expressions.
type Input struct {
	RiskScore   int
	RiskLevel   domain.RiskLevel
	RuleScore   int
	Anomalies   domain.AnomalyFlags
	Nationality string
	PersonType  string
	City        string
	Expired     bool
}

// Escalation records one policy that fired.
type Escalation struct {
	PolicyID   string            `json:"policyId"`
	PolicyName string            `json:"policyName"`
	From       domain.RiskLevel  `json:"from"`
	To         domain.RiskLevel  `json:"to"`
	Reason     string            `json:"reason"`
}

// Apply evaluates all loaded policies against the input and returns
// the possibly escalated level plus a record per fired policy. A
// policy whose target does not outrank the current level is a no-op;
// evaluation errors skip the policy. Escalation is monotone: the
// returned level never ranks below the input level.
func (e *Engine) Apply(input *Input) (domain.RiskLevel, []Escalation) {
	e.mu.RLock()
	policies := make([]*CompiledPolicy, 0, len(e.compiled))
	for _, p := range e.compiled {
		policies = append(policies, p)
	}
	e.mu.RUnlock()

	activation := map[string]any{
		"risk_score":          input.RiskScore,
		"risk_level":          string(input.RiskLevel),
		"rule_score":          input.RuleScore,
		"device_hopping":      input.Anomalies.DeviceHopping,
		"impossible_travel":   input.Anomalies.ImpossibleTravel,
		"frequent_generation": input.Anomalies.FrequentGeneration,
		"token_reuse":         input.Anomalies.TokenReuse,
		"nationality":         input.Nationality,
		"person_type":         input.PersonType,
		"city":                input.City,
		"expired":             input.Expired,
	}

	level := input.RiskLevel
	var fired []Escalation

	for _, p := range policies {
		out, _, err := p.Program.Eval(activation)
		if err != nil {
			continue
		}
		matched, ok := out.(types.Bool)
		if !ok || !bool(matched) {
			continue
		}
		if p.Config.EscalateTo.Rank() <= level.Rank() {
			continue
		}

		fired = append(fired, Escalation{
			PolicyID:   p.Config.ID,
			PolicyName: p.Config.Name,
			From:       level,
			To:         p.Config.EscalateTo,
			Reason:     p.Config.Reason,
		})
		level = p.Config.EscalateTo
	}

	return level, fired
}

// PoliciesCount returns the number of loaded policies.
func (e *Engine) PoliciesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// GetLoadedPolicies returns the currently loaded configurations.
func (e *Engine) GetLoadedPolicies() []*domain.PolicyConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.PolicyConfig, 0, len(e.compiled))
	for _, p := range e.compiled {
		out = append(out, p.Config)
	}
	return out
}

// Close clears the loaded set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledPolicy)
	return nil
}

func (e *Engine) compilePolicy(cfg *domain.PolicyConfig) (*CompiledPolicy, error) {
	if cfg.EscalateTo.Rank() == 0 {
		return nil, fmt.Errorf("policy %s: invalid escalation target %q", cfg.ID, cfg.EscalateTo)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", cfg.ID, err)
	}

	return &CompiledPolicy{Config: cfg, Program: program}, nil
}
