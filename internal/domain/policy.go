package domain

import (
	"time"
)

// PolicyConfig is a tenant-configurable post-verdict escalation rule.
// The expression is a CEL program over the scan event and the model
// verdict; when it evaluates true the verdict is escalated to EscalateTo
// (escalation only - a policy can never lower a verdict).
type PolicyConfig struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Expression  string    `json:"expression"`
	EscalateTo  RiskLevel `json:"escalateTo"`
	Reason      string    `json:"reason"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}
