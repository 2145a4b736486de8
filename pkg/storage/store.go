package storage

import (
	"fmt"

	"github.com/containerd/errdefs"

	"github.com/cuemby/rebalancer/pkg/types"
)

// Store defines the interface for decision engine persistence.
// It holds no business rules: callers decide states and transitions.
// Soft-deleted records are hidden: Get returns not found, List skips them.
type Store interface {
	// Goals
	PutGoal(goal *types.Goal) error
	GetGoal(name string) (*types.Goal, error)
	ListGoals() ([]*types.Goal, error)
	SoftDeleteGoal(name string) error

	// Strategies
	PutStrategy(strategy *types.StrategyRecord) error
	GetStrategy(name string) (*types.StrategyRecord, error)
	ListStrategies() ([]*types.StrategyRecord, error)
	SoftDeleteStrategy(name string) error

	// Audits
	CreateAudit(audit *types.Audit) error
	GetAudit(id string) (*types.Audit, error)
	ListAudits() ([]*types.Audit, error)
	UpdateAudit(audit *types.Audit) error
	// ModifyAudit reads, changes and writes an audit in one transaction.
	// An error from fn aborts the write and is returned as is.
	ModifyAudit(id string, fn func(*types.Audit) error) (*types.Audit, error)
	SoftDeleteAudit(id string) error

	// Action plans
	CreateActionPlan(plan *types.ActionPlan) error
	GetActionPlan(id string) (*types.ActionPlan, error)
	GetActionPlanByAudit(auditID string) (*types.ActionPlan, error)
	ListActionPlans() ([]*types.ActionPlan, error)
	UpdateActionPlan(plan *types.ActionPlan) error

	// Utility
	Close() error
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, errdefs.ErrNotFound)
}

func alreadyExists(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, errdefs.ErrAlreadyExists)
}
