package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cuemby/rebalancer/pkg/collector"
	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/metrics"
	"github.com/cuemby/rebalancer/pkg/model"
	"github.com/cuemby/rebalancer/pkg/storage"
	"github.com/cuemby/rebalancer/pkg/strategy"
	"github.com/cuemby/rebalancer/pkg/types"
)

const tracerName = "github.com/cuemby/rebalancer/pkg/audit"

// Overflow selects what Trigger does when the queue is full
type Overflow string

const (
	// OverflowReject fails the trigger with ErrQueueFull
	OverflowReject Overflow = "reject"
	// OverflowBlock waits for a free queue slot
	OverflowBlock Overflow = "block"
)

var (
	// ErrQueueFull is returned by Trigger when the queue is full and the
	// overflow policy is OverflowReject
	ErrQueueFull = errors.New("audit queue is full")

	// ErrStopped is returned by Trigger once the dispatcher is stopped
	ErrStopped = errors.New("audit dispatcher is stopped")

	// ErrAuditCancelled is returned when running a cancelled audit
	ErrAuditCancelled = errors.New("audit is cancelled")
)

// Config sizes the worker pool
type Config struct {
	Workers   int
	QueueSize int
	Overflow  Overflow
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		QueueSize: 64,
		Overflow:  OverflowReject,
	}
}

// Dispatcher runs audits: synchronously through RunAudit, or queued to a
// bounded worker pool through Trigger
type Dispatcher struct {
	store      storage.Store
	collectors *collector.Registry
	executor   *strategy.Executor
	cfg        Config
	tracer     trace.Tracer

	queue    chan string
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// audits queued or running, so repeated triggers coalesce
	mu      sync.Mutex
	pending map[string]bool
}

// NewDispatcher creates a dispatcher. Workers are started by Start.
func NewDispatcher(store storage.Store, collectors *collector.Registry, executor *strategy.Executor, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Overflow == "" {
		cfg.Overflow = OverflowReject
	}
	return &Dispatcher{
		store:      store,
		collectors: collectors,
		executor:   executor,
		cfg:        cfg,
		tracer:     otel.Tracer(tracerName),
		queue:      make(chan string, cfg.QueueSize),
		stopCh:     make(chan struct{}),
		pending:    make(map[string]bool),
	}
}

// SetTracerProvider replaces the tracer provider spans are created with
func (d *Dispatcher) SetTracerProvider(tp trace.TracerProvider) {
	d.tracer = tp.Tracer(tracerName)
}

// Start launches the worker pool
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	log.Logger.Info().
		Int("workers", d.cfg.Workers).
		Int("queue_size", d.cfg.QueueSize).
		Str("overflow", string(d.cfg.Overflow)).
		Msg("Audit dispatcher started")
}

// Stop stops the workers and waits for running audits to finish. Queued
// audits that did not start stay in their current state.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.wg.Wait()
}

// Trigger queues an audit without waiting for it to run. Triggering an
// audit that is already queued or running is a no-op.
func (d *Dispatcher) Trigger(auditID string) error {
	select {
	case <-d.stopCh:
		return ErrStopped
	default:
	}

	d.mu.Lock()
	if d.pending[auditID] {
		d.mu.Unlock()
		logger := log.WithAuditID(auditID)
		logger.Debug().Msg("Audit already queued")
		return nil
	}
	d.pending[auditID] = true
	d.mu.Unlock()

	if err := d.enqueue(auditID); err != nil {
		d.release(auditID)
		return err
	}
	metrics.AuditQueueDepth.Set(float64(len(d.queue)))
	return nil
}

func (d *Dispatcher) enqueue(auditID string) error {
	if d.cfg.Overflow == OverflowBlock {
		select {
		case d.queue <- auditID:
			return nil
		case <-d.stopCh:
			return ErrStopped
		}
	}

	select {
	case d.queue <- auditID:
		return nil
	default:
		return fmt.Errorf("%w (%d queued)", ErrQueueFull, d.cfg.QueueSize)
	}
}

func (d *Dispatcher) release(auditID string) {
	d.mu.Lock()
	delete(d.pending, auditID)
	d.mu.Unlock()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case id := <-d.queue:
			metrics.AuditQueueDepth.Set(float64(len(d.queue)))
			// Audits run to completion, detached from whoever triggered them
			if _, err := d.RunAudit(context.Background(), id); err != nil {
				logger := log.WithAuditID(id)
				logger.Error().Err(err).Msg("Audit failed")
			}
			d.release(id)
		case <-d.stopCh:
			return
		}
	}
}

// RunAudit runs one audit synchronously: it snapshots the default
// collector's model, executes the audit's strategy and persists the
// resulting action plan. A failed run marks the audit FAILED with a reason
// and stores no plan.
func (d *Dispatcher) RunAudit(ctx context.Context, auditID string) (*types.ActionPlan, error) {
	ctx, span := d.tracer.Start(ctx, "audit.run", trace.WithAttributes(attribute.String("audit_id", auditID)))
	defer span.End()

	logger := log.WithAuditID(auditID)

	audit, err := d.store.ModifyAudit(auditID, func(a *types.Audit) error {
		if a.State == types.AuditStateCancelled {
			return fmt.Errorf("audit %s: %w", auditID, ErrAuditCancelled)
		}
		now := time.Now()
		a.State = types.AuditStateOngoing
		a.StateReason = ""
		a.LastRunAt = now
		a.UpdatedAt = now
		return nil
	})
	if errors.Is(err, ErrAuditCancelled) {
		return nil, err
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to start audit: %w", err)
	}

	plan, err := d.execute(ctx, audit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.fail(audit.ID, err)
		return nil, err
	}

	audit, err = d.store.ModifyAudit(auditID, func(a *types.Audit) error {
		if a.State == types.AuditStateCancelled {
			return nil
		}
		if a.Type == types.AuditTypeOneShot {
			a.State = types.AuditStateSucceeded
		}
		a.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update audit: %w", err)
	}
	metrics.AuditsTotal.WithLabelValues(string(types.AuditStateSucceeded)).Inc()

	span.SetAttributes(attribute.Int("actions", len(plan.Actions)))
	logger.Info().
		Str("strategy", plan.StrategyName).
		Str("action_plan", plan.ID).
		Int("actions", len(plan.Actions)).
		Str("state", string(audit.State)).
		Msg("Audit completed")
	return plan, nil
}

func (d *Dispatcher) execute(ctx context.Context, audit *types.Audit) (*types.ActionPlan, error) {
	name, err := d.selectStrategy(audit)
	if err != nil {
		return nil, err
	}

	entry, ok := d.collectors.Default()
	if !ok {
		return nil, fmt.Errorf("no collector registered: %w", model.ErrClusterStateUndefined)
	}
	snapshot, err := entry.Slot.Latest()
	if err != nil {
		return nil, err
	}

	solution, err := d.executor.Execute(ctx, name, strategy.Parameters(audit.Parameters), snapshot)
	if err != nil {
		return nil, err
	}

	prev, err := d.store.GetActionPlanByAudit(audit.ID)
	if err != nil && !errdefs.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load previous action plan: %w", err)
	}

	plan := newActionPlan(audit.ID, name, solution)
	if err := d.store.CreateActionPlan(plan); err != nil {
		return nil, fmt.Errorf("failed to store action plan: %w", err)
	}
	if prev != nil && prev.State == types.ActionPlanStateRecommended {
		prev.State = types.ActionPlanStateSuperseded
		prev.UpdatedAt = time.Now()
		if err := d.store.UpdateActionPlan(prev); err != nil {
			return nil, fmt.Errorf("failed to supersede action plan %s: %w", prev.ID, err)
		}
	}
	return plan, nil
}

// selectStrategy returns the audit's strategy, or the first registered one
// for its goal
func (d *Dispatcher) selectStrategy(audit *types.Audit) (string, error) {
	registry := d.executor.Registry()
	if audit.StrategyName != "" {
		info, ok := registry.Get(audit.StrategyName)
		if !ok {
			return "", fmt.Errorf("strategy %s: %w", audit.StrategyName, model.ErrEntityNotFound)
		}
		if audit.GoalName != "" && info.Goal != audit.GoalName {
			return "", fmt.Errorf("strategy %s does not serve goal %s", info.Name, audit.GoalName)
		}
		return info.Name, nil
	}

	candidates := registry.ForGoal(audit.GoalName)
	if len(candidates) == 0 {
		return "", fmt.Errorf("no strategy for goal %q: %w", audit.GoalName, model.ErrEntityNotFound)
	}
	return candidates[0].Name, nil
}

// fail marks an audit FAILED unless it was cancelled meanwhile
func (d *Dispatcher) fail(auditID string, cause error) {
	_, err := d.store.ModifyAudit(auditID, func(a *types.Audit) error {
		if a.State == types.AuditStateCancelled {
			return nil
		}
		a.State = types.AuditStateFailed
		a.StateReason = cause.Error()
		a.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		logger := log.WithAuditID(auditID)
		logger.Error().Err(err).Msg("Failed to record audit failure")
	}
	metrics.AuditsTotal.WithLabelValues(string(types.AuditStateFailed)).Inc()
}

func newActionPlan(auditID, strategyName string, solution *strategy.Solution) *types.ActionPlan {
	now := time.Now()
	plan := &types.ActionPlan{
		ID:           uuid.New().String(),
		AuditID:      auditID,
		StrategyName: strategyName,
		State:        types.ActionPlanStateRecommended,
		Actions:      []*types.Action{},
		Indicators:   solution.Indicators(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, a := range solution.Actions() {
		plan.Actions = append(plan.Actions, &types.Action{
			ID:         uuid.New().String(),
			Index:      i,
			Type:       a.Type,
			ResourceID: a.ResourceID,
			State:      types.ActionStatePending,
			Parameters: a.Parameters,
		})
	}
	return plan
}
