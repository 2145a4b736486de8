package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ResourceLabel is the series label carrying the host or instance id
const ResourceLabel = "resource_id"

// Querier is the subset of the Prometheus HTTP API used here
type Querier interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...v1.Option) (model.Value, v1.Warnings, error)
}

// Prometheus aggregates telemetry through PromQL range functions
type Prometheus struct {
	api Querier
	now func() time.Time
}

// NewPrometheus creates an aggregator for a Prometheus server address
func NewPrometheus(address string) (*Prometheus, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	return NewPrometheusWithQuerier(v1.NewAPI(client)), nil
}

// NewPrometheusWithQuerier wraps an existing query API
func NewPrometheusWithQuerier(q Querier) *Prometheus {
	return &Prometheus{api: q, now: time.Now}
}

// BuildQuery renders <agg>_over_time(<metric>{resource_id="<id>"}[<window>]).
// Dots in meter names become underscores.
func BuildQuery(resourceID, metric string, window time.Duration, agg Aggregation) string {
	name := strings.NewReplacer(".", "_", "-", "_").Replace(metric)
	return fmt.Sprintf("%s_over_time(%s{%s=%q}[%s])",
		agg, name, ResourceLabel, resourceID, model.Duration(window))
}

// Aggregate implements Aggregator
func (p *Prometheus) Aggregate(ctx context.Context, resourceID, metric string, window time.Duration, agg Aggregation) (float64, bool, error) {
	if err := validate(agg, window); err != nil {
		return 0, false, err
	}

	query := BuildQuery(resourceID, metric, window, agg)
	log.Logger.Debug().Str("query", query).Msg("Executing Prometheus query")

	result, warnings, err := p.api.Query(ctx, query, p.now())
	if err != nil {
		return 0, false, fmt.Errorf("prometheus query failed: %w", err)
	}
	if len(warnings) > 0 {
		log.Logger.Warn().Strs("warnings", warnings).Str("query", query).Msg("Prometheus query warnings")
	}

	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, false, nil
		}
		return float64(v[0].Value), true, nil
	case *model.Scalar:
		return float64(v.Value), true, nil
	default:
		return 0, false, fmt.Errorf("unsupported result type: %T", result)
	}
}
