package reconciler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rebalancer/pkg/audit"
	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/metrics"
	"github.com/cuemby/rebalancer/pkg/types"
)

// DefaultInterval is how often continuous audits are checked
const DefaultInterval = 10 * time.Second

// AuditLister lists stored audits
type AuditLister interface {
	ListAudits() ([]*types.Audit, error)
}

// Trigger queues an audit run
type Trigger interface {
	Trigger(auditID string) error
}

// Reconciler re-runs continuous audits whose interval has elapsed
type Reconciler struct {
	audits   AuditLister
	trigger  Trigger
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReconciler creates a new reconciler
func NewReconciler(audits AuditLister, trigger Trigger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		audits:   audits,
		trigger:  trigger,
		interval: interval,
		now:      time.Now,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop stops the reconciler and waits for the loop to exit
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}

// run is the main reconciliation loop
func (r *Reconciler) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.Reconcile(); err != nil {
				r.logger.Error().Err(err).Msg("Reconciliation failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Reconcile performs one cycle and returns the ids of the audits it
// triggered
func (r *Reconciler) Reconcile() ([]string, error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	audits, err := r.audits.ListAudits()
	if err != nil {
		return nil, fmt.Errorf("failed to list audits: %w", err)
	}

	now := r.now()
	var triggered []string
	for _, a := range audits {
		if !a.Due(now) {
			continue
		}
		if err := r.trigger.Trigger(a.ID); err != nil {
			if errors.Is(err, audit.ErrQueueFull) {
				// Retried next cycle
				r.logger.Warn().Str("audit_id", a.ID).Msg("Audit queue full, deferring continuous audit")
				continue
			}
			return triggered, fmt.Errorf("failed to trigger audit %s: %w", a.ID, err)
		}
		triggered = append(triggered, a.ID)
	}

	if len(triggered) > 0 {
		r.logger.Debug().Strs("audits", triggered).Msg("Triggered continuous audits")
	}
	return triggered, nil
}
