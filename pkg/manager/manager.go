package manager

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/cuemby/rebalancer/pkg/api"
	"github.com/cuemby/rebalancer/pkg/audit"
	"github.com/cuemby/rebalancer/pkg/catalog"
	"github.com/cuemby/rebalancer/pkg/collector"
	"github.com/cuemby/rebalancer/pkg/compute"
	"github.com/cuemby/rebalancer/pkg/config"
	"github.com/cuemby/rebalancer/pkg/events"
	"github.com/cuemby/rebalancer/pkg/health"
	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/metrics"
	"github.com/cuemby/rebalancer/pkg/notification"
	"github.com/cuemby/rebalancer/pkg/reconciler"
	"github.com/cuemby/rebalancer/pkg/scheduler"
	"github.com/cuemby/rebalancer/pkg/storage"
	"github.com/cuemby/rebalancer/pkg/strategy"
	"github.com/cuemby/rebalancer/pkg/telemetry"
)

// Manager wires every component of a rebalancer server
type Manager struct {
	cfg    *config.Config
	logger zerolog.Logger

	store         *storage.BoltStore
	facts         compute.Facts
	telemetry     telemetry.Aggregator
	collectors    *collector.Registry
	scheduler     *scheduler.Scheduler
	broker        *events.Broker
	notifications *notification.Dispatcher
	strategies    *strategy.Registry
	executor      *strategy.Executor
	audits        *audit.Dispatcher
	reconciler    *reconciler.Reconciler
	gauges        *metrics.Collector
	probes        *health.Monitor
	api           *api.Server

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errCh   chan error
	started bool
}

// NewManager creates a manager from a validated configuration
func NewManager(cfg *config.Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	metrics.RegisterComponent("store", true, "")

	facts, err := NewFacts(cfg.Compute)
	if err != nil {
		store.Close()
		return nil, err
	}

	agg, err := NewTelemetry(cfg.Telemetry)
	if err != nil {
		store.Close()
		closeFacts(facts)
		return nil, err
	}

	collectors := collector.NewRegistry()
	entry, err := collectors.Register(collector.NewComputeCollector(facts, cfg.CollectorPeriod(collector.DefaultName)))
	if err != nil {
		store.Close()
		closeFacts(facts)
		return nil, err
	}
	metrics.SetCritical("collector." + collector.DefaultName)

	strategies := strategy.NewDefaultRegistry()
	executor := strategy.NewExecutor(strategies, agg)
	audits := audit.NewDispatcher(store, collectors, executor, cfg.AuditPool())
	broker := events.NewBroker()

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:           cfg,
		logger:        log.WithComponent("manager"),
		store:         store,
		facts:         facts,
		telemetry:     agg,
		collectors:    collectors,
		scheduler:     scheduler.NewScheduler(collectors),
		broker:        broker,
		notifications: notification.NewDispatcher(notification.NewEndpoints(entry.Slot, facts)...),
		strategies:    strategies,
		executor:      executor,
		audits:        audits,
		reconciler:    reconciler.NewReconciler(store, audits, cfg.Reconciler.Interval),
		gauges:        metrics.NewCollector(collectors),
		probes:        NewProbes(cfg),
		api:           api.NewServer(store, audits, strategies, broker),
		ctx:           ctx,
		cancel:        cancel,
		errCh:         make(chan error, 1),
	}
	return m, nil
}

// NewFacts opens the configured compute inventory
func NewFacts(cfg config.ComputeConfig) (compute.Facts, error) {
	switch cfg.Driver {
	case config.ComputeEtcd:
		inv, err := compute.NewEtcdInventory(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to etcd inventory: %w", err)
		}
		return inv, nil
	case config.ComputeStatic:
		if cfg.InventoryFile == "" {
			return compute.NewStaticInventory(compute.Inventory{}), nil
		}
		inv, err := compute.LoadStaticInventory(cfg.InventoryFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load inventory: %w", err)
		}
		return inv, nil
	default:
		return nil, fmt.Errorf("unknown compute driver %q", cfg.Driver)
	}
}

// NewTelemetry creates the configured telemetry aggregator
func NewTelemetry(cfg config.TelemetryConfig) (telemetry.Aggregator, error) {
	switch cfg.Driver {
	case config.TelemetryPrometheus:
		p, err := telemetry.NewPrometheus(cfg.PrometheusURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus client: %w", err)
		}
		return p, nil
	case config.TelemetryStatic:
		if cfg.StaticFile == "" {
			return telemetry.NewStatic(), nil
		}
		s, err := telemetry.LoadStatic(cfg.StaticFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load telemetry: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown telemetry driver %q", cfg.Driver)
	}
}

// NewProbes creates the health monitor for the configured backends
func NewProbes(cfg *config.Config) *health.Monitor {
	mon := health.NewMonitor(cfg.ProbeSettings())
	if cfg.Telemetry.Driver == config.TelemetryPrometheus {
		u := strings.TrimRight(cfg.Telemetry.PrometheusURL, "/") + "/-/healthy"
		mon.Add("telemetry.prometheus", health.NewHTTPChecker(u))
	}
	if cfg.Compute.Driver == config.ComputeEtcd {
		for _, ep := range cfg.Compute.Etcd.Endpoints {
			addr := hostPort(ep)
			mon.Add("compute.etcd "+addr, health.NewTCPChecker(addr))
		}
	}
	return mon
}

// hostPort strips the scheme of an etcd endpoint
func hostPort(endpoint string) string {
	if !strings.Contains(endpoint, "://") {
		return endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}

// Start syncs the catalog and starts every component. The API is served in
// the background; serve failures are reported on Errors.
func (m *Manager) Start() error {
	report, err := catalog.Sync(m.store, m.strategies)
	if err != nil {
		return fmt.Errorf("failed to sync catalog: %w", err)
	}
	m.logger.Info().
		Int("goals", len(m.strategies.Goals())).
		Int("strategies", len(m.strategies.List())).
		Bool("changed", report.Changed()).
		Msg("Strategy catalog ready")

	m.started = true
	m.broker.Start()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.notifications.Run(m.ctx, m.broker)
	}()

	if inv, ok := m.facts.(*compute.EtcdInventory); ok {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			inv.Watch(m.ctx, m.broker)
		}()
	}

	m.scheduler.Start()
	m.audits.Start()
	m.reconciler.Start()
	m.gauges.Start()
	m.probes.Start()

	metrics.RegisterComponent("api", true, "")
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.api.Start(m.cfg.API.Addr); err != nil {
			metrics.UpdateComponent("api", false, err.Error())
			m.errCh <- err
		}
	}()

	m.logger.Info().
		Str("api", m.cfg.API.Addr).
		Str("data_dir", m.cfg.DataDir).
		Str("compute", m.cfg.Compute.Driver).
		Str("telemetry", m.cfg.Telemetry.Driver).
		Msg("Rebalancer started")
	return nil
}

// Errors reports background failures that should stop the process
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Stop shuts every component down in reverse dependency order and returns
// every error met on the way. A manager that never started only releases
// the store and the inventory.
func (m *Manager) Stop(ctx context.Context) error {
	var errs error

	if m.started {
		if err := m.api.Stop(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to stop API: %w", err))
		}
		m.reconciler.Stop()
		m.audits.Stop()
		m.scheduler.Stop()
		m.gauges.Stop()
		m.probes.Stop()
	}

	m.cancel()
	m.wg.Wait()
	if m.started {
		m.broker.Stop()
	}

	errs = multierr.Append(errs, closeFacts(m.facts))
	if err := m.store.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to close store: %w", err))
	}

	if errs != nil {
		m.logger.Error().Err(errs).Msg("Rebalancer stopped with errors")
	} else {
		m.logger.Info().Msg("Rebalancer stopped")
	}
	return errs
}

func closeFacts(facts compute.Facts) error {
	closer, ok := facts.(interface{ Close() error })
	if !ok {
		return nil
	}
	if err := closer.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close compute inventory: %w", err)
	}
	return nil
}

// Store returns the persistence layer
func (m *Manager) Store() storage.Store {
	return m.store
}

// Collectors returns the collector registry
func (m *Manager) Collectors() *collector.Registry {
	return m.collectors
}

// Scheduler returns the collection scheduler
func (m *Manager) Scheduler() *scheduler.Scheduler {
	return m.scheduler
}

// Audits returns the audit dispatcher
func (m *Manager) Audits() *audit.Dispatcher {
	return m.audits
}

// Broker returns the notification broker
func (m *Manager) Broker() *events.Broker {
	return m.broker
}

// Strategies returns the strategy registry
func (m *Manager) Strategies() *strategy.Registry {
	return m.strategies
}
