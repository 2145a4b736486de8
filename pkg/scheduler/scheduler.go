package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/rebalancer/pkg/collector"
	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/metrics"
	"github.com/cuemby/rebalancer/pkg/model"
)

// Failure reasons recorded in rebalancer_collection_failures_total
const (
	ReasonTimeout = "timeout"
	ReasonError   = "error"
)

// Scheduler rebuilds every registered collector's model on its period
type Scheduler struct {
	registry *collector.Registry
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// name -> *sync.Mutex, serializes runs of the same collector
	runMu sync.Map
}

// NewScheduler creates a new collection scheduler
func NewScheduler(registry *collector.Registry) *Scheduler {
	return &Scheduler{
		registry: registry,
		stopCh:   make(chan struct{}),
	}
}

// Start launches one loop per collector. Each loop runs immediately, then
// on every period tick.
func (s *Scheduler) Start() {
	for _, e := range s.registry.All() {
		s.wg.Add(1)
		go s.run(e)
	}
}

// Stop stops every loop and waits for them to exit. A fetch still in flight
// is abandoned; its result is discarded.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// SyncNow runs one rebuild of the named collector synchronously
func (s *Scheduler) SyncNow(ctx context.Context, name string) error {
	e, ok := s.registry.Get(name)
	if !ok {
		return fmt.Errorf("collector %q: %w", name, model.ErrEntityNotFound)
	}
	return s.sync(ctx, e)
}

func (s *Scheduler) run(e *collector.Entry) {
	defer s.wg.Done()

	ticker := time.NewTicker(e.Collector.Period())
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	_ = s.sync(ctx, e)

	for {
		select {
		case <-ticker.C:
			_ = s.sync(ctx, e)
		case <-s.stopCh:
			return
		}
	}
}

type result struct {
	model *model.ClusterModel
	err   error
}

// await waits for a rebuild result. A result that is ready when the
// deadline fires still wins.
func await(ctx context.Context, done <-chan result) result {
	select {
	case r := <-done:
		return r
	case <-ctx.Done():
	}
	select {
	case r := <-done:
		return r
	default:
		return result{err: ctx.Err()}
	}
}

// sync performs one rebuild bounded by the collector period
func (s *Scheduler) sync(parent context.Context, e *collector.Entry) error {
	name := e.Collector.Name()
	v, _ := s.runMu.LoadOrStore(name, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	logger := log.WithCollector(name)
	timer := metrics.NewTimer()
	e.Slot.BeginSync()

	ctx, cancel := context.WithTimeout(parent, e.Collector.Period())
	defer cancel()

	// The fetch runs on its own goroutine so the deadline can abandon it.
	done := make(chan result, 1)
	go func() {
		m, err := e.Collector.Execute(ctx)
		done <- result{model: m, err: err}
	}()

	r := await(ctx, done)
	err := r.err
	if err == nil && r.model == nil {
		err = errors.New("collector returned no model")
	}
	if err == nil {
		e.Slot.Publish(r.model)
	}
	timer.ObserveDurationVec(metrics.CollectionDuration, name)

	// shutting down or caller gave up: not a collector failure
	if err != nil && parent.Err() != nil {
		logger.Debug().Err(err).Msg("Cluster model rebuild abandoned")
		return parent.Err()
	}

	component := "collector." + name
	if err != nil {
		reason := ReasonError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonTimeout
			err = fmt.Errorf("%w after %s", model.ErrCollectionTimeout, e.Collector.Period())
		}
		e.Slot.MarkStale(err)
		metrics.CollectionFailures.WithLabelValues(name, reason).Inc()
		metrics.ModelStale.WithLabelValues(name).Set(1)
		metrics.UpdateComponent(component, false, err.Error())
		logger.Error().Err(err).Str("reason", reason).Msg("Cluster model rebuild failed, model marked stale")
		return err
	}

	metrics.ModelStale.WithLabelValues(name).Set(0)
	metrics.ModelGeneration.WithLabelValues(name).Set(float64(e.Slot.Generation()))
	metrics.UpdateComponent(component, true, "")
	logger.Info().Dur("duration", timer.Duration()).Uint64("generation", e.Slot.Generation()).Msg("Cluster model rebuilt")
	return nil
}
