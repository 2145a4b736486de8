package strategy

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rebalancer/pkg/model"
	"github.com/cuemby/rebalancer/pkg/telemetry"
)

func migrations(s *Solution) [][3]string {
	var out [][3]string
	for _, a := range s.Actions() {
		out = append(out, [3]string{a.ResourceID, a.Parameters["source_node"], a.Parameters["destination_node"]})
	}
	return out
}

func placedOn(t *testing.T, m *model.ClusterModel, workload string) string {
	t.Helper()
	node, ok := m.NodeOf(workload)
	require.True(t, ok)
	return node
}

func TestWorkloadBalance(t *testing.T) {
	hosts := []hostSpec{
		{id: "host-a", cores: 10, memory: 32768, disk: 200},
		{id: "host-b", cores: 40, memory: 131072, disk: 800},
	}

	tests := []struct {
		name      string
		vms       []vmSpec
		cpuUtil   map[string]float64
		threshold float64
		want      [][3]string
	}{
		{
			// host-a carries 9 of 10 cores (90%), host-b 4 of 40 (10%)
			name: "overloaded host sheds one workload",
			vms: []vmSpec{
				{id: "vm-1", host: "host-a", cores: 4, memory: 2048, disk: 10},
				{id: "vm-2", host: "host-a", cores: 5, memory: 2048, disk: 10},
				{id: "vm-3", host: "host-b", cores: 4, memory: 2048, disk: 10},
			},
			cpuUtil:   map[string]float64{"vm-1": 100, "vm-2": 100, "vm-3": 100},
			threshold: 80,
			want:      [][3]string{{"vm-1", "host-a", "host-b"}},
		},
		{
			// average load 4, host-a excess 4: vm-2 (load 2) fits the
			// excess, vm-1 (load 6) overshoots it
			name: "donor closest to the cluster average",
			vms: []vmSpec{
				{id: "vm-1", host: "host-a", cores: 6, memory: 2048, disk: 10},
				{id: "vm-2", host: "host-a", cores: 2, memory: 2048, disk: 10},
			},
			cpuUtil:   map[string]float64{"vm-1": 100, "vm-2": 100},
			threshold: 50,
			want:      [][3]string{{"vm-2", "host-a", "host-b"}},
		},
		{
			name: "host exactly at threshold is over",
			vms: []vmSpec{
				{id: "vm-1", host: "host-a", cores: 8, memory: 2048, disk: 10},
			},
			cpuUtil:   map[string]float64{"vm-1": 100},
			threshold: 80,
			want:      [][3]string{{"vm-1", "host-a", "host-b"}},
		},
		{
			name: "host just under threshold is left alone",
			vms: []vmSpec{
				{id: "vm-1", host: "host-a", cores: 8, memory: 2048, disk: 10},
			},
			cpuUtil:   map[string]float64{"vm-1": 100},
			threshold: 81,
		},
		{
			name: "destination would cross threshold",
			vms: []vmSpec{
				{id: "vm-1", host: "host-a", cores: 9, memory: 2048, disk: 10},
				{id: "vm-3", host: "host-b", cores: 20, memory: 2048, disk: 10},
			},
			cpuUtil:   map[string]float64{"vm-1": 100, "vm-3": 100},
			threshold: 70,
		},
		{
			name: "workloads without telemetry are ignored",
			vms: []vmSpec{
				{id: "vm-1", host: "host-a", cores: 9, memory: 2048, disk: 10},
			},
			cpuUtil:   map[string]float64{},
			threshold: 80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := buildModel(t, hosts, tt.vms)
			agg := telemetry.NewStatic()
			for vm, util := range tt.cpuUtil {
				agg.Set(vm, telemetry.MeterCPUUtil, util)
			}

			solution, err := run(t, "workload_balance", Parameters{"threshold": tt.threshold}, m, agg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, migrations(solution))
			assert.Equal(t, float64(len(tt.want)), solution.Indicators()[IndicatorMigrations])
			for _, mig := range tt.want {
				assert.Equal(t, mig[2], placedOn(t, solution.Model, mig[0]))
			}
		})
	}
}

func TestSingleEmptyHost(t *testing.T) {
	for _, info := range NewDefaultRegistry().List() {
		t.Run(info.Name, func(t *testing.T) {
			m := buildModel(t, []hostSpec{{id: "host-a", cores: 16, memory: 65536, disk: 500}}, nil)
			agg := telemetry.NewStatic()
			agg.Set("host-a", telemetry.MeterOutletTemp, 50)
			agg.Set("host-a", telemetry.MeterAirflow, 900)

			solution, err := run(t, info.Name, nil, m, agg)
			require.NoError(t, err)
			assert.Zero(t, solution.Len())
		})
	}
}

func TestWorkloadBalanceSkipsHostWithoutCores(t *testing.T) {
	m := buildModel(t,
		[]hostSpec{
			{id: "host-a", cores: 10, memory: 32768, disk: 200},
			{id: "host-b", cores: 40, memory: 131072, disk: 800},
		},
		[]vmSpec{{id: "vm-1", host: "host-a", cores: 9, memory: 2048, disk: 10}})
	m.Resource(model.ResourceCPUCores).Remove("host-b")

	agg := telemetry.NewStatic()
	agg.Set("vm-1", telemetry.MeterCPUUtil, 100)

	solution, err := run(t, "workload_balance", Parameters{"threshold": 80.0}, m, agg)
	require.NoError(t, err)
	assert.Zero(t, solution.Len(), "host-b has unknown capacity and cannot be a target")
}

func TestOutletTemperature(t *testing.T) {
	tests := []struct {
		name  string
		hosts []hostSpec
		vms   []vmSpec
		temps map[string]float64
		want  [][3]string
	}{
		{
			name: "hottest host to coolest host",
			hosts: []hostSpec{
				{id: "host-a", cores: 16, memory: 65536, disk: 500},
				{id: "host-b", cores: 16, memory: 65536, disk: 500},
				{id: "host-c", cores: 16, memory: 65536, disk: 500},
			},
			vms: []vmSpec{
				{id: "vm-1", host: "host-a", cores: 2, memory: 2048, disk: 20},
			},
			temps: map[string]float64{"host-a": 40, "host-b": 20, "host-c": 30},
			want:  [][3]string{{"vm-1", "host-a", "host-b"}},
		},
		{
			name: "coolest host too small",
			hosts: []hostSpec{
				{id: "host-a", cores: 16, memory: 65536, disk: 500},
				{id: "host-b", cores: 1, memory: 65536, disk: 500},
				{id: "host-c", cores: 16, memory: 65536, disk: 500},
			},
			vms: []vmSpec{
				{id: "vm-1", host: "host-a", cores: 2, memory: 2048, disk: 20},
			},
			temps: map[string]float64{"host-a": 40, "host-b": 20, "host-c": 30},
			want:  [][3]string{{"vm-1", "host-a", "host-c"}},
		},
		{
			name: "only active workloads move",
			hosts: []hostSpec{
				{id: "host-a", cores: 16, memory: 65536, disk: 500},
				{id: "host-b", cores: 16, memory: 65536, disk: 500},
			},
			vms: []vmSpec{
				{id: "vm-1", host: "host-a", cores: 2, memory: 2048, disk: 20, state: model.WorkloadStateStopped},
				{id: "vm-2", host: "host-a", cores: 2, memory: 2048, disk: 20},
			},
			temps: map[string]float64{"host-a": 35, "host-b": 20},
			want:  [][3]string{{"vm-2", "host-a", "host-b"}},
		},
		{
			name: "host without data is not a target",
			hosts: []hostSpec{
				{id: "host-a", cores: 16, memory: 65536, disk: 500},
				{id: "host-b", cores: 16, memory: 65536, disk: 500},
			},
			vms: []vmSpec{
				{id: "vm-1", host: "host-a", cores: 2, memory: 2048, disk: 20},
			},
			temps: map[string]float64{"host-a": 40},
		},
		{
			name: "every host under threshold",
			hosts: []hostSpec{
				{id: "host-a", cores: 16, memory: 65536, disk: 500},
				{id: "host-b", cores: 16, memory: 65536, disk: 500},
			},
			vms: []vmSpec{
				{id: "vm-1", host: "host-a", cores: 2, memory: 2048, disk: 20},
			},
			temps: map[string]float64{"host-a": 34, "host-b": 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := buildModel(t, tt.hosts, tt.vms)
			agg := telemetry.NewStatic()
			for host, temp := range tt.temps {
				agg.Set(host, telemetry.MeterOutletTemp, temp)
			}

			solution, err := run(t, "outlet_temperature", nil, m, agg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, migrations(solution))
		})
	}
}

func TestUniformAirflow(t *testing.T) {
	hosts := []hostSpec{
		{id: "host-a", cores: 16, memory: 65536, disk: 500},
		{id: "host-b", cores: 4, memory: 65536, disk: 500},
		{id: "host-c", cores: 8, memory: 65536, disk: 500},
	}
	vms := []vmSpec{
		{id: "vm-1", host: "host-a", cores: 2, memory: 2048, disk: 20},
		{id: "vm-2", host: "host-a", cores: 4, memory: 2048, disk: 20},
	}

	airflow := func(agg *telemetry.Static) {
		agg.Set("host-a", telemetry.MeterAirflow, 500)
		agg.Set("host-b", telemetry.MeterAirflow, 100)
		agg.Set("host-c", telemetry.MeterAirflow, 200)
	}

	t.Run("hardware fault evacuates the host largest first", func(t *testing.T) {
		agg := telemetry.NewStatic()
		airflow(agg)
		agg.Set("host-a", telemetry.MeterPower, 100)
		agg.Set("host-a", telemetry.MeterInletTemp, 20)

		solution, err := run(t, "uniform_airflow", nil, buildModel(t, hosts, vms), agg)
		require.NoError(t, err)
		// vm-2 fills host-b, so vm-1 lands on the next lowest airflow host
		assert.Equal(t, [][3]string{
			{"vm-2", "host-a", "host-b"},
			{"vm-1", "host-a", "host-c"},
		}, migrations(solution))
		assert.Empty(t, solution.Model.WorkloadsOf("host-a"))
	})

	t.Run("hardware fault leaves inactive workloads", func(t *testing.T) {
		mixed := []vmSpec{
			{id: "vm-1", host: "host-a", cores: 2, memory: 2048, disk: 20},
			{id: "vm-dead", host: "host-a", cores: 4, memory: 2048, disk: 20, state: model.WorkloadStateDeleted},
			{id: "vm-err", host: "host-a", cores: 4, memory: 2048, disk: 20, state: model.WorkloadStateError},
		}
		agg := telemetry.NewStatic()
		airflow(agg)
		agg.Set("host-a", telemetry.MeterPower, 100)
		agg.Set("host-a", telemetry.MeterInletTemp, 20)

		solution, err := run(t, "uniform_airflow", nil, buildModel(t, hosts, mixed), agg)
		require.NoError(t, err)
		assert.Equal(t, [][3]string{{"vm-1", "host-a", "host-b"}}, migrations(solution))
		assert.ElementsMatch(t, []string{"vm-dead", "vm-err"}, solution.Model.WorkloadsOf("host-a"))
	})

	t.Run("high power moves a single workload", func(t *testing.T) {
		agg := telemetry.NewStatic()
		airflow(agg)
		agg.Set("host-a", telemetry.MeterPower, 400)
		agg.Set("host-a", telemetry.MeterInletTemp, 20)

		solution, err := run(t, "uniform_airflow", nil, buildModel(t, hosts, vms), agg)
		require.NoError(t, err)
		assert.Equal(t, [][3]string{{"vm-1", "host-a", "host-b"}}, migrations(solution))
	})

	t.Run("evacuation is all or nothing", func(t *testing.T) {
		small := []hostSpec{
			{id: "host-a", cores: 16, memory: 65536, disk: 500},
			{id: "host-b", cores: 4, memory: 65536, disk: 500},
			{id: "host-c", cores: 1, memory: 65536, disk: 500},
		}
		agg := telemetry.NewStatic()
		airflow(agg)
		agg.Set("host-a", telemetry.MeterPower, 100)
		agg.Set("host-a", telemetry.MeterInletTemp, 20)

		m := buildModel(t, small, vms)
		solution, err := run(t, "uniform_airflow", nil, m, agg)
		require.NoError(t, err)
		assert.Zero(t, solution.Len())
		assert.Equal(t, "host-a", placedOn(t, m, "vm-1"))
		assert.Equal(t, "host-a", placedOn(t, m, "vm-2"))
	})
}

// stabilizationTelemetry describes two 8 core hosts: host-1 at 80% cpu,
// host-2 at 20%, memory evenly used
func stabilizationTelemetry() *telemetry.Static {
	agg := telemetry.NewStatic()
	agg.Set("host-1", telemetry.MeterHostCPUUtil, 80)
	agg.Set("host-2", telemetry.MeterHostCPUUtil, 20)
	agg.Set("host-1", telemetry.MeterHostMemoryUsed, 8192)
	agg.Set("host-2", telemetry.MeterHostMemoryUsed, 8192)

	agg.Set("vm-1", telemetry.MeterCPUUtil, 60)
	agg.Set("vm-1", telemetry.MeterMemoryResident, 1024)
	agg.Set("vm-2", telemetry.MeterCPUUtil, 40)
	agg.Set("vm-2", telemetry.MeterMemoryResident, 512)
	return agg
}

func stabilizationModel(t *testing.T, host2Disk float64) *model.ClusterModel {
	return buildModel(t,
		[]hostSpec{
			{id: "host-1", cores: 8, memory: 16384, disk: 100},
			{id: "host-2", cores: 8, memory: 16384, disk: host2Disk},
		},
		[]vmSpec{
			{id: "vm-1", host: "host-1", cores: 4, memory: 1024, disk: 10},
			{id: "vm-2", host: "host-1", cores: 2, memory: 512, disk: 2, state: model.WorkloadStatePaused},
		})
}

func TestWorkloadStabilization(t *testing.T) {
	for _, choice := range []string{HostChoiceFullSearch, HostChoiceCycle, HostChoiceRetry} {
		t.Run("best move/"+choice, func(t *testing.T) {
			executor := NewExecutor(NewDefaultRegistry(), stabilizationTelemetry())
			executor.SetRand(rand.New(rand.NewPCG(1, 2)))

			solution, err := executor.Execute(context.Background(), "workload_stabilization",
				Parameters{"host_choice": choice}, stabilizationModel(t, 100))
			require.NoError(t, err)

			// moving vm-1 evens cpu (50/50) and costs little memory balance
			assert.Equal(t, [][3]string{{"vm-1", "host-1", "host-2"}}, migrations(solution))
			indicators := solution.Indicators()
			assert.InDelta(t, 0.3, indicators[IndicatorSDBefore], 1e-9)
			assert.InDelta(t, 0.0625, indicators[IndicatorSDAfter], 1e-9)
			assert.Equal(t, 1.0, indicators[IndicatorMigrations])
		})
	}

	t.Run("destination disk gate", func(t *testing.T) {
		// host-2 has 5 GB of disk: vm-1 (10 GB) cannot go, vm-2 (2 GB) can
		solution, err := run(t, "workload_stabilization",
			Parameters{"host_choice": HostChoiceFullSearch, "thresholds": map[string]any{"cpu_util": 0.25, "memory.resident": 0.25}},
			stabilizationModel(t, 5), stabilizationTelemetry())
		require.NoError(t, err)
		assert.Equal(t, [][3]string{{"vm-2", "host-1", "host-2"}}, migrations(solution))
	})

	t.Run("already balanced", func(t *testing.T) {
		agg := stabilizationTelemetry()
		agg.Set("host-1", telemetry.MeterHostCPUUtil, 50)
		agg.Set("host-2", telemetry.MeterHostCPUUtil, 50)

		solution, err := run(t, "workload_stabilization", nil, stabilizationModel(t, 100), agg)
		require.NoError(t, err)
		assert.Zero(t, solution.Len())
		assert.InDelta(t, 0.0, solution.Indicators()[IndicatorSDBefore], 1e-9)
	})

	t.Run("host without telemetry is skipped", func(t *testing.T) {
		agg := stabilizationTelemetry()
		agg.Delete("host-2", telemetry.MeterHostCPUUtil)

		// host-2 drops out, leaving a single host and nothing to compare
		solution, err := run(t, "workload_stabilization", nil, stabilizationModel(t, 100), agg)
		require.NoError(t, err)
		assert.Zero(t, solution.Len())
	})

	t.Run("invalid parameters", func(t *testing.T) {
		for _, params := range []Parameters{
			{"host_choice": "random"},
			{"retry_count": 0},
			{"metrics": []string{"cpu_util", "disk.usage"}},
			{"weights": map[string]any{"cpu_util_weight": 1.0}},
		} {
			_, err := run(t, "workload_stabilization", params, stabilizationModel(t, 100), stabilizationTelemetry())
			assert.ErrorIs(t, err, ErrInvalidParameter, "params %v", params)
		}
	})
}
