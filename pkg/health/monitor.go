package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/metrics"
)

// Monitor probes backends on an interval and publishes their health to the
// component registry served by /health and /ready
type Monitor struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	probes map[string]*probe

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type probe struct {
	checker Checker
	status  *Status
}

// NewMonitor creates a monitor. Zero fields of cfg take DefaultConfig values.
func NewMonitor(cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = def.Retries
	}
	return &Monitor{
		cfg:    cfg,
		logger: log.WithComponent("health"),
		probes: make(map[string]*probe),
		stopCh: make(chan struct{}),
	}
}

// Add registers a backend under name. The component is reported healthy
// until the first probes fail.
func (m *Monitor) Add(name string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = &probe{checker: checker, status: NewStatus()}
	metrics.RegisterComponent(name, true, "not probed yet")
}

// Names returns the registered backends in order
func (m *Monitor) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status returns a copy of a backend's status
func (m *Monitor) Status(name string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.probes[name]
	if !ok {
		return Status{}, false
	}
	return *p.status, true
}

// Start probes every backend once, then again on each interval
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
	m.logger.Info().
		Dur("interval", m.cfg.Interval).
		Int("backends", len(m.Names())).
		Msg("Backend monitor started")
}

// Stop stops probing and waits for the running round
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.CheckAll(ctx)
	for {
		select {
		case <-ticker.C:
			m.CheckAll(ctx)
		case <-m.stopCh:
			return
		}
	}
}

// CheckAll probes every backend once and publishes the results
func (m *Monitor) CheckAll(ctx context.Context) {
	for _, name := range m.Names() {
		m.mu.Lock()
		p, ok := m.probes[name]
		m.mu.Unlock()
		if !ok {
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		result := p.checker.Check(checkCtx)
		cancel()

		m.mu.Lock()
		changed := p.status.Update(result, m.cfg.Retries)
		healthy := p.status.Healthy
		m.mu.Unlock()

		outcome := "success"
		if !result.Healthy {
			outcome = "failure"
		}
		metrics.BackendProbesTotal.WithLabelValues(name, outcome).Inc()
		metrics.UpdateComponent(name, healthy, result.Message)

		if !changed {
			continue
		}
		if healthy {
			m.logger.Info().Str("backend", name).Str("type", string(p.checker.Type())).Msg("Backend recovered")
		} else {
			m.logger.Warn().
				Str("backend", name).
				Str("type", string(p.checker.Type())).
				Str("reason", result.Message).
				Msg("Backend unhealthy")
		}
	}
}
