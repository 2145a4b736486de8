package strategy

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/cuemby/rebalancer/pkg/model"
	"github.com/cuemby/rebalancer/pkg/telemetry"
)

// Host choice methods for workload stabilization
const (
	HostChoiceCycle      = "cycle"
	HostChoiceRetry      = "retry"
	HostChoiceFullSearch = "fullsearch"
)

// Indicators reported by workload stabilization
const (
	IndicatorSDBefore = "standard_deviation_before"
	IndicatorSDAfter  = "standard_deviation_after"
)

var workloadStabilizationInfo = Info{
	Name:        "workload_stabilization",
	Goal:        GoalWorkloadBalancing,
	DisplayName: "Workload stabilization",
	Schema: []ParamSpec{
		{Name: "metrics", Type: TypeArray, Default: []any{telemetry.MeterCPUUtil, telemetry.MeterMemoryResident},
			Description: "metrics used for the standard deviation"},
		{Name: "thresholds", Type: TypeObject, Default: map[string]any{telemetry.MeterCPUUtil: 0.2, telemetry.MeterMemoryResident: 0.2},
			Description: "standard deviation above which a metric is unbalanced"},
		{Name: "weights", Type: TypeObject, Default: map[string]any{telemetry.MeterCPUUtil + "_weight": 1.0, telemetry.MeterMemoryResident + "_weight": 1.0},
			Description: "weight of each metric in the combined standard deviation, keyed <metric>_weight"},
		{Name: "instance_metrics", Type: TypeObject, Default: map[string]any{telemetry.MeterCPUUtil: telemetry.MeterHostCPUUtil, telemetry.MeterMemoryResident: telemetry.MeterHostMemoryUsed},
			Description: "host meter read for each workload metric"},
		{Name: "host_choice", Type: TypeString, Default: HostChoiceRetry,
			Description: "destination choice: cycle, retry or fullsearch"},
		{Name: "retry_count", Type: TypeNumber, Default: 1.0,
			Description: "number of random destinations tried per workload with retry"},
		{Name: "period", Type: TypeObject, Default: map[string]any{"instance": 120.0, "node": 60.0},
			Description: "aggregate time period of telemetry in seconds, for instances and nodes"},
	},
}

// WorkloadStabilization lowers the weighted standard deviation of host
// load. Each round simulates every candidate move and commits the single
// best one that strictly improves the score.
type WorkloadStabilization struct {
	Base

	metrics         []string
	thresholds      map[string]float64
	weights         map[string]float64
	instanceMetrics map[string]string
	hostChoice      string
	retryCount      int
	nodePeriod      time.Duration
	instancePeriod  time.Duration
	rand            *rand.Rand
}

func newWorkloadStabilization(deps Deps, params Parameters) (Strategy, error) {
	r := deps.Rand
	if r == nil {
		r = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &WorkloadStabilization{
		Base: newBase(workloadStabilizationInfo, deps, params),
		rand: r,
	}, nil
}

// hostVector is the load of one host per metric
type hostVector struct {
	vcpus  float64
	memory float64
	load   map[string]float64
}

type hostLoads map[string]*hostVector

func (h hostLoads) clone() hostLoads {
	c := make(hostLoads, len(h))
	for id, v := range h {
		c[id] = &hostVector{vcpus: v.vcpus, memory: v.memory, load: maps.Clone(v.load)}
	}
	return c
}

// PreExecute checks the model and validates the parameter combination
func (s *WorkloadStabilization) PreExecute(ctx context.Context) error {
	if err := s.Base.PreExecute(ctx); err != nil {
		return err
	}

	var err error
	s.metrics = s.params.Strings("metrics")
	if len(s.metrics) == 0 {
		return fmt.Errorf("%w: metrics must not be empty", ErrInvalidParameter)
	}
	if s.thresholds, err = s.params.FloatMap("thresholds"); err != nil {
		return err
	}
	if s.weights, err = s.params.FloatMap("weights"); err != nil {
		return err
	}
	if s.instanceMetrics, err = s.params.StringMap("instance_metrics"); err != nil {
		return err
	}
	for _, m := range s.metrics {
		if _, ok := s.thresholds[m]; !ok {
			return fmt.Errorf("%w: no threshold for metric %s", ErrInvalidParameter, m)
		}
		if _, ok := s.weights[m+"_weight"]; !ok {
			return fmt.Errorf("%w: no weight for metric %s", ErrInvalidParameter, m)
		}
		if _, ok := s.instanceMetrics[m]; !ok {
			return fmt.Errorf("%w: no host meter for metric %s", ErrInvalidParameter, m)
		}
	}

	s.hostChoice = s.params.String("host_choice")
	switch s.hostChoice {
	case HostChoiceCycle, HostChoiceRetry, HostChoiceFullSearch:
	default:
		return fmt.Errorf("%w: unknown host_choice %q", ErrInvalidParameter, s.hostChoice)
	}
	s.retryCount = int(s.params.Float("retry_count"))
	if s.retryCount < 1 {
		return fmt.Errorf("%w: retry_count must be at least 1", ErrInvalidParameter)
	}

	periods, err := s.params.FloatMap("period")
	if err != nil {
		return err
	}
	s.nodePeriod = seconds(valueOr(periods, "node", 60))
	s.instancePeriod = seconds(valueOr(periods, "instance", 120))
	return nil
}

func valueOr(m map[string]float64, key string, def float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

// DoExecute commits improving moves until every metric is balanced or no
// move improves the score
func (s *WorkloadStabilization) DoExecute(ctx context.Context) error {
	hosts, err := s.hostsLoad(ctx)
	if err != nil {
		return err
	}
	if len(hosts) < 2 {
		s.logger.Debug().Msg("Fewer than two hosts, nothing to stabilize")
		return nil
	}

	score := s.weightedSD(hosts)
	s.solution.SetIndicator(IndicatorSDBefore, score)
	defer func() {
		s.solution.SetIndicator(IndicatorSDAfter, s.weightedSD(hosts))
	}()

	for round := 0; round < len(s.model.Workloads()); round++ {
		if s.balanced(hosts) {
			s.logger.Debug().Int("round", round).Msg("Cluster balanced")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		best, err := s.bestMove(ctx, hosts, score)
		if err != nil {
			return err
		}
		if best == nil {
			s.logger.Debug().Int("round", round).Msg("No move improves the standard deviation")
			return nil
		}

		if err := s.migrate(best.workload, best.src, best.dst); err != nil {
			s.logger.Warn().Err(err).Msg("Relocation refused")
			return nil
		}
		hosts, score = best.hosts, best.score
	}
	return nil
}

type move struct {
	workload string
	src      string
	dst      string
	score    float64
	hosts    hostLoads
}

// bestMove simulates every eligible (workload, destination) pair and returns
// the lowest scoring one that beats current, or nil
func (s *WorkloadStabilization) bestMove(ctx context.Context, hosts hostLoads, current float64) (*move, error) {
	var best *move
	nodes := s.hostIDs(hosts)
	disk := s.model.Resource(model.ResourceDisk)

	for _, src := range nodes {
		next := s.destinations(nodes, src)
		for _, w := range s.model.WorkloadsOf(src) {
			wl, ok := s.model.LookupWorkload(w)
			if !ok || (wl.State != model.WorkloadStateActive && wl.State != model.WorkloadStatePaused) {
				continue
			}
			load, ok, err := s.instanceLoad(ctx, w)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			for _, dst := range next() {
				node, _ := s.model.LookupNode(dst)
				if node == nil || !node.Available() {
					continue
				}
				if available(s.model, dst).Disk < disk.CapacityOrZero(w) {
					continue
				}
				simulated := s.simulate(hosts, load, src, dst)
				sc := s.weightedSD(simulated)
				if sc < current && (best == nil || sc < best.score) {
					best = &move{workload: w, src: src, dst: dst, score: sc, hosts: simulated}
				}
			}
		}
	}
	return best, nil
}

// destinations returns a generator of candidate destinations for workloads
// leaving src, following the configured host choice
func (s *WorkloadStabilization) destinations(nodes []string, src string) func() []string {
	candidates := make([]string, 0, len(nodes)-1)
	for _, n := range nodes {
		if n != src {
			candidates = append(candidates, n)
		}
	}

	switch s.hostChoice {
	case HostChoiceCycle:
		i := 0
		return func() []string {
			if len(candidates) == 0 {
				return nil
			}
			c := candidates[i%len(candidates)]
			i++
			return []string{c}
		}
	case HostChoiceRetry:
		return func() []string {
			k := min(s.retryCount, len(candidates))
			perm := s.rand.Perm(len(candidates))[:k]
			out := make([]string, k)
			for i, p := range perm {
				out[i] = candidates[p]
			}
			return out
		}
	default:
		return func() []string {
			return candidates
		}
	}
}

// hostsLoad reads the current load of every host with known cores. Hosts
// missing any meter are left out of the balance, with a warning.
func (s *WorkloadStabilization) hostsLoad(ctx context.Context) (hostLoads, error) {
	cores := s.model.Resource(model.ResourceCPUCores)
	memory := s.model.Resource(model.ResourceMemory)

	hosts := make(hostLoads)
	for _, id := range s.model.Nodes() {
		vcpus, ok := cores.Capacity(id)
		if !ok || vcpus <= 0 {
			s.logger.Warn().Str("node", id).Msg("No cores capacity for host, skipping")
			continue
		}
		v, err := s.hostVector(ctx, id, vcpus, memory.CapacityOrZero(id))
		if errors.Is(err, model.ErrMetricUnavailable) {
			s.logger.Warn().Err(err).Msg("Skipping host")
			continue
		}
		if err != nil {
			return nil, err
		}
		hosts[id] = v
	}
	return hosts, nil
}

func (s *WorkloadStabilization) hostVector(ctx context.Context, id string, vcpus, memory float64) (*hostVector, error) {
	v := &hostVector{vcpus: vcpus, memory: memory, load: make(map[string]float64, len(s.metrics))}
	for _, m := range s.metrics {
		meter := s.instanceMetrics[m]
		value, ok, err := s.telemetry.Aggregate(ctx, id, meter, s.nodePeriod, telemetry.Avg)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s for %s: %w", meter, id, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s for host %s", model.ErrMetricUnavailable, meter, id)
		}
		v.load[m] = value
	}
	return v, nil
}

type workloadLoad struct {
	vcpus float64
	load  map[string]float64
}

// instanceLoad reads a workload's metrics. It is read again for every
// round; ok is false when any metric has no data.
func (s *WorkloadStabilization) instanceLoad(ctx context.Context, workloadID string) (workloadLoad, bool, error) {
	l := workloadLoad{
		vcpus: s.model.Resource(model.ResourceCPUCores).CapacityOrZero(workloadID),
		load:  make(map[string]float64, len(s.metrics)),
	}
	for _, m := range s.metrics {
		value, ok, err := s.telemetry.Aggregate(ctx, workloadID, m, s.instancePeriod, telemetry.Min)
		if err != nil {
			return l, false, fmt.Errorf("failed to read %s for %s: %w", m, workloadID, err)
		}
		if !ok {
			s.logger.Debug().Str("workload", workloadID).Str("metric", m).Msg("No data for workload, skipping")
			return l, false, nil
		}
		l.load[m] = value
	}
	return l, true, nil
}

// simulate returns the host loads after moving one workload from src to dst
func (s *WorkloadStabilization) simulate(hosts hostLoads, w workloadLoad, src, dst string) hostLoads {
	next := hosts.clone()
	for _, m := range s.metrics {
		if m == telemetry.MeterCPUUtil {
			next[src].load[m] -= w.load[m] * w.vcpus / next[src].vcpus
			next[dst].load[m] += w.load[m] * w.vcpus / next[dst].vcpus
			continue
		}
		next[src].load[m] -= w.load[m]
		next[dst].load[m] += w.load[m]
	}
	return next
}

// normalized returns one metric across hosts in comparable units: cpu as a
// fraction, memory as a share of host memory
func (s *WorkloadStabilization) normalized(hosts hostLoads, metric string) []float64 {
	ids := s.hostIDs(hosts)
	values := make([]float64, 0, len(ids))
	for _, id := range ids {
		v := hosts[id]
		value := v.load[metric]
		switch metric {
		case telemetry.MeterCPUUtil:
			value /= 100
		case telemetry.MeterMemoryResident:
			if v.memory > 0 {
				value /= v.memory
			}
		}
		values = append(values, value)
	}
	return values
}

func (s *WorkloadStabilization) sd(hosts hostLoads, metric string) float64 {
	_, std := stat.PopMeanStdDev(s.normalized(hosts, metric), nil)
	return std
}

func (s *WorkloadStabilization) weightedSD(hosts hostLoads) float64 {
	var total float64
	for _, m := range s.metrics {
		total += s.sd(hosts, m) * s.weights[m+"_weight"]
	}
	return total
}

func (s *WorkloadStabilization) balanced(hosts hostLoads) bool {
	for _, m := range s.metrics {
		if s.sd(hosts, m) > s.thresholds[m] {
			return false
		}
	}
	return true
}

// hostIDs returns the hosts in model order
func (s *WorkloadStabilization) hostIDs(hosts hostLoads) []string {
	ids := make([]string, 0, len(hosts))
	for _, id := range s.model.Nodes() {
		if _, ok := hosts[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
