package types

import (
	"time"
)

// Goal is an optimization objective a strategy can serve
type Goal struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"` // e.g. "workload_balancing"
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	DeletedAt   time.Time `json:"deleted_at,omitzero"` // soft delete marker
}

// Deleted reports whether the goal was soft-deleted
func (g *Goal) Deleted() bool {
	return !g.DeletedAt.IsZero()
}

// StrategyRecord is the persisted description of a registered strategy
type StrategyRecord struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"` // registry key, e.g. "workload_balance"
	GoalName    string          `json:"goal_name"`
	DisplayName string          `json:"display_name"`
	Parameters  []ParameterSpec `json:"parameters,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   time.Time       `json:"deleted_at,omitzero"`
}

// Deleted reports whether the strategy was soft-deleted
func (s *StrategyRecord) Deleted() bool {
	return !s.DeletedAt.IsZero()
}

// ParameterSpec is one entry of a strategy's parameter schema
type ParameterSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "number", "string", "array" or "object"
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// AuditType defines how an audit is run
type AuditType string

const (
	AuditTypeOneShot    AuditType = "ONESHOT"    // run once
	AuditTypeContinuous AuditType = "CONTINUOUS" // re-run every Interval
)

// AuditState represents the state of an audit
type AuditState string

const (
	AuditStatePending   AuditState = "PENDING"
	AuditStateOngoing   AuditState = "ONGOING"
	AuditStateSucceeded AuditState = "SUCCEEDED"
	AuditStateFailed    AuditState = "FAILED"
	AuditStateCancelled AuditState = "CANCELLED"
)

// Audit is a request to run a strategy against the current cluster model
type Audit struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         AuditType      `json:"type"`
	State        AuditState     `json:"state"`
	StateReason  string         `json:"state_reason,omitempty"` // why the last run failed
	GoalName     string         `json:"goal_name"`
	StrategyName string         `json:"strategy_name,omitempty"` // empty: first strategy for the goal
	Parameters   map[string]any `json:"parameters,omitempty"`
	Interval     time.Duration  `json:"interval,omitempty"` // continuous audits only
	LastRunAt    time.Time      `json:"last_run_at,omitzero"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    time.Time      `json:"deleted_at,omitzero"`
}

// Deleted reports whether the audit was soft-deleted
func (a *Audit) Deleted() bool {
	return !a.DeletedAt.IsZero()
}

// Due reports whether a continuous audit should run again at now
func (a *Audit) Due(now time.Time) bool {
	if a.Type != AuditTypeContinuous {
		return false
	}
	if a.State != AuditStatePending && a.State != AuditStateOngoing {
		return false
	}
	return a.LastRunAt.IsZero() || now.Sub(a.LastRunAt) >= a.Interval
}

// ActionPlanState represents the state of an action plan
type ActionPlanState string

const (
	ActionPlanStateRecommended ActionPlanState = "RECOMMENDED"
	ActionPlanStateSuperseded  ActionPlanState = "SUPERSEDED" // a newer plan exists for the audit
)

// ActionPlan is the persisted outcome of a successful audit run
type ActionPlan struct {
	ID           string             `json:"id"`
	AuditID      string             `json:"audit_id"`
	StrategyName string             `json:"strategy_name"`
	State        ActionPlanState    `json:"state"`
	Actions      []*Action          `json:"actions"`
	Indicators   map[string]float64 `json:"indicators,omitempty"` // efficacy indicators
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	DeletedAt    time.Time          `json:"deleted_at,omitzero"`
}

// Deleted reports whether the plan was soft-deleted
func (p *ActionPlan) Deleted() bool {
	return !p.DeletedAt.IsZero()
}

// ActionState represents the state of a planned action
type ActionState string

const (
	ActionStatePending ActionState = "PENDING"
)

// Action is one recommended step of an action plan
type Action struct {
	ID         string            `json:"id"`
	Index      int               `json:"index"` // position within the plan
	Type       string            `json:"type"`  // e.g. "migrate"
	ResourceID string            `json:"resource_id"`
	State      ActionState       `json:"state"`
	Parameters map[string]string `json:"parameters,omitempty"`
}
