package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/rebalancer/pkg/audit"
	"github.com/cuemby/rebalancer/pkg/collector"
	"github.com/cuemby/rebalancer/pkg/health"
)

// Compute drivers
const (
	ComputeStatic = "static"
	ComputeEtcd   = "etcd"
)

// Telemetry drivers
const (
	TelemetryPrometheus = "prometheus"
	TelemetryStatic     = "static"
)

// Config is the rebalancer configuration file
type Config struct {
	Log        LogConfig         `yaml:"log"`
	DataDir    string            `yaml:"data_dir"`
	API        APIConfig         `yaml:"api"`
	Collectors []CollectorConfig `yaml:"collectors"`
	Compute    ComputeConfig     `yaml:"compute"`
	Telemetry  TelemetryConfig   `yaml:"telemetry"`
	Audit      AuditConfig       `yaml:"audit"`
	Reconciler ReconcilerConfig  `yaml:"reconciler"`
	Probes     ProbeConfig       `yaml:"probes"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

// CollectorConfig sets the rebuild period of a collector
type CollectorConfig struct {
	Name   string        `yaml:"name"`
	Period time.Duration `yaml:"period"`
}

type ComputeConfig struct {
	Driver        string     `yaml:"driver"`
	InventoryFile string     `yaml:"inventory_file"`
	Etcd          EtcdConfig `yaml:"etcd"`
}

type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type TelemetryConfig struct {
	Driver        string `yaml:"driver"`
	PrometheusURL string `yaml:"prometheus_url"`
	StaticFile    string `yaml:"static_file"`
}

type AuditConfig struct {
	Workers   int            `yaml:"workers"`
	QueueSize int            `yaml:"queue_size"`
	Overflow  audit.Overflow `yaml:"overflow"`
}

type ReconcilerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ProbeConfig controls backend health probes
type ProbeConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	pool := audit.DefaultConfig()
	probes := health.DefaultConfig()
	return &Config{
		Log:     LogConfig{Level: "info"},
		DataDir: "./rebalancer-data",
		API:     APIConfig{Addr: "127.0.0.1:9322"},
		Collectors: []CollectorConfig{
			{Name: collector.DefaultName, Period: collector.DefaultPeriod},
		},
		Compute: ComputeConfig{
			Driver: ComputeStatic,
			Etcd: EtcdConfig{
				Endpoints:   []string{"127.0.0.1:2379"},
				DialTimeout: 5 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{
			Driver:        TelemetryPrometheus,
			PrometheusURL: "http://127.0.0.1:9090",
		},
		Audit: AuditConfig{
			Workers:   pool.Workers,
			QueueSize: pool.QueueSize,
			Overflow:  pool.Overflow,
		},
		Reconciler: ReconcilerConfig{Interval: 10 * time.Second},
		Probes: ProbeConfig{
			Interval: probes.Interval,
			Timeout:  probes.Timeout,
			Retries:  probes.Retries,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// CollectorPeriod returns the configured period of a collector, or zero
func (c *Config) CollectorPeriod(name string) time.Duration {
	for _, cc := range c.Collectors {
		if cc.Name == name {
			return cc.Period
		}
	}
	return 0
}

// AuditPool returns the audit worker pool configuration
func (c *Config) AuditPool() audit.Config {
	return audit.Config{
		Workers:   c.Audit.Workers,
		QueueSize: c.Audit.QueueSize,
		Overflow:  c.Audit.Overflow,
	}
}

// ProbeSettings returns the backend probe configuration
func (c *Config) ProbeSettings() health.Config {
	return health.Config{
		Interval: c.Probes.Interval,
		Timeout:  c.Probes.Timeout,
		Retries:  c.Probes.Retries,
	}
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	if c.DataDir == "" {
		add("data_dir is required")
	}
	if c.API.Addr == "" {
		add("api.addr is required")
	}

	seen := make(map[string]bool)
	for i, cc := range c.Collectors {
		switch {
		case cc.Name != collector.DefaultName:
			add("collectors[%d]: unknown collector %q", i, cc.Name)
		case seen[cc.Name]:
			add("collectors[%d]: duplicate collector %q", i, cc.Name)
		}
		seen[cc.Name] = true
		if cc.Period <= 0 {
			add("collectors[%d]: period must be positive", i)
		}
	}

	switch c.Compute.Driver {
	case ComputeStatic:
	case ComputeEtcd:
		if len(c.Compute.Etcd.Endpoints) == 0 {
			add("compute.etcd.endpoints is required for the etcd driver")
		}
	default:
		add("compute.driver: unknown driver %q", c.Compute.Driver)
	}

	switch c.Telemetry.Driver {
	case TelemetryPrometheus:
		if c.Telemetry.PrometheusURL == "" {
			add("telemetry.prometheus_url is required for the prometheus driver")
		}
	case TelemetryStatic:
	default:
		add("telemetry.driver: unknown driver %q", c.Telemetry.Driver)
	}

	if c.Audit.Workers <= 0 {
		add("audit.workers must be positive")
	}
	if c.Audit.QueueSize <= 0 {
		add("audit.queue_size must be positive")
	}
	if c.Audit.Overflow != audit.OverflowReject && c.Audit.Overflow != audit.OverflowBlock {
		add("audit.overflow: unknown policy %q", c.Audit.Overflow)
	}
	if c.Reconciler.Interval <= 0 {
		add("reconciler.interval must be positive")
	}
	if c.Probes.Interval <= 0 || c.Probes.Timeout <= 0 {
		add("probes.interval and probes.timeout must be positive")
	}
	if c.Probes.Retries <= 0 {
		add("probes.retries must be positive")
	}

	if errs != nil {
		return errors.Join(ErrInvalid, errs)
	}
	return nil
}

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")
