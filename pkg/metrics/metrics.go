package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Model metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rebalancer_nodes_total",
			Help: "Total number of compute nodes in the published model by collector and state",
		},
		[]string{"collector", "state"},
	)

	WorkloadsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rebalancer_workloads_total",
			Help: "Total number of workloads in the published model by collector and state",
		},
		[]string{"collector", "state"},
	)

	// Collection metrics
	CollectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rebalancer_collection_duration_seconds",
			Help:    "Cluster model rebuild duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collector"},
	)

	CollectionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_collection_failures_total",
			Help: "Total number of failed model rebuilds by collector and reason",
		},
		[]string{"collector", "reason"},
	)

	ModelStale = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rebalancer_model_stale",
			Help: "Whether the published model is stale (1 = stale, 0 = fresh)",
		},
		[]string{"collector"},
	)

	ModelGeneration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rebalancer_model_generation",
			Help: "Number of models published by the collector",
		},
		[]string{"collector"},
	)

	// Synchronizer metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_notifications_total",
			Help: "Total number of notifications applied by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	// Strategy metrics
	StrategyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rebalancer_strategy_duration_seconds",
			Help:    "Strategy execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	ActionsPlanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_actions_planned_total",
			Help: "Total number of actions planned by strategy and action type",
		},
		[]string{"strategy", "action"},
	)

	// Audit metrics
	AuditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_audits_total",
			Help: "Total number of audit runs by resulting state",
		},
		[]string{"state"},
	)

	AuditQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rebalancer_audit_queue_depth",
			Help: "Number of audit triggers waiting for a worker",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rebalancer_reconciliation_duration_seconds",
			Help:    "Continuous audit reconciliation cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rebalancer_reconciliation_cycles_total",
			Help: "Total number of continuous audit reconciliation cycles",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rebalancer_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Backend probe metrics
	BackendProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_backend_probes_total",
			Help: "Total number of backend probes by backend and result",
		},
		[]string{"backend", "result"},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(WorkloadsTotal)
	prometheus.MustRegister(CollectionDuration)
	prometheus.MustRegister(CollectionFailures)
	prometheus.MustRegister(ModelStale)
	prometheus.MustRegister(ModelGeneration)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(StrategyDuration)
	prometheus.MustRegister(ActionsPlanned)
	prometheus.MustRegister(AuditsTotal)
	prometheus.MustRegister(AuditQueueDepth)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(BackendProbesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
