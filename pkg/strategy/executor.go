package strategy

import (
	"context"
	"fmt"
	"math/rand/v2"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/metrics"
	"github.com/cuemby/rebalancer/pkg/model"
	"github.com/cuemby/rebalancer/pkg/telemetry"
)

const tracerName = "github.com/cuemby/rebalancer/pkg/strategy"

// Executor runs strategies against a model
type Executor struct {
	registry  *Registry
	telemetry telemetry.Aggregator
	tracer    trace.Tracer
	rand      *rand.Rand
}

// NewExecutor creates an executor using the global tracer provider
func NewExecutor(registry *Registry, agg telemetry.Aggregator) *Executor {
	return &Executor{
		registry:  registry,
		telemetry: agg,
		tracer:    otel.Tracer(tracerName),
	}
}

// SetTracerProvider replaces the tracer provider spans are created with
func (e *Executor) SetTracerProvider(tp trace.TracerProvider) {
	e.tracer = tp.Tracer(tracerName)
}

// SetRand fixes the random source handed to strategies
func (e *Executor) SetRand(r *rand.Rand) {
	e.rand = r
}

// Registry returns the strategy registry
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute builds the named strategy and runs its three phases against m.
// The model is mutated by the run; callers pass a private copy.
func (e *Executor) Execute(ctx context.Context, name string, params Parameters, m *model.ClusterModel) (*Solution, error) {
	ctx, span := e.tracer.Start(ctx, "strategy.execute", trace.WithAttributes(attribute.String("strategy", name)))
	defer span.End()

	logger := log.WithStrategy(name)

	s, err := e.registry.New(name, Deps{Model: m, Telemetry: e.telemetry, Rand: e.rand}, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("goal", s.Goal()))

	timer := metrics.NewTimer()
	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"pre_execute", s.PreExecute},
		{"do_execute", s.DoExecute},
		{"post_execute", s.PostExecute},
	}
	for _, p := range phases {
		if err := e.phase(ctx, p.name, p.fn); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error().Err(err).Str("phase", p.name).Msg("Strategy failed")
			return nil, fmt.Errorf("strategy %s %s: %w", name, p.name, err)
		}
	}
	timer.ObserveDurationVec(metrics.StrategyDuration, name)

	solution := s.Solution()
	for _, a := range solution.Actions() {
		metrics.ActionsPlanned.WithLabelValues(name, a.Type).Inc()
	}
	span.SetAttributes(attribute.Int("actions", solution.Len()))

	logger.Info().
		Int("actions", solution.Len()).
		Dur("duration", timer.Duration()).
		Msg("Strategy completed")
	return solution, nil
}

func (e *Executor) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "strategy."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
