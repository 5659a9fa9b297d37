package models

import "time"

// AuditDecision is the outcome recorded for an authorization decision.
type AuditDecision string

const (
	AuditDecisionAllow AuditDecision = "allow"
	AuditDecisionDeny  AuditDecision = "deny"
)

// AuditRecord captures a single allow/deny decision for the audit sink.
type AuditRecord struct {
	CorrelationID string        `json:"correlation_id"`
	UserID        string        `json:"user_id"`
	TenantID      string        `json:"tenant_id"`
	Decision      AuditDecision `json:"decision"`
	Reason        string        `json:"reason"`
	Method        string        `json:"method"`
	Path          string        `json:"path"`
	OccurredAt    time.Time     `json:"occurred_at"`
}
