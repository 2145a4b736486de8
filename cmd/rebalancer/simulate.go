package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/rebalancer/pkg/collector"
	"github.com/cuemby/rebalancer/pkg/compute"
	"github.com/cuemby/rebalancer/pkg/strategy"
	"github.com/cuemby/rebalancer/pkg/telemetry"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a strategy once against files, without a server",
	Long: `Build a cluster model from an inventory file, run one strategy against
it with telemetry read from a metrics file, and print the plan it would
recommend. Nothing is stored.

Parameter values are parsed as YAML, so numbers, lists and maps work:

Examples:
  rebalancer simulate -i inventory.yaml -m metrics.yaml \
    --strategy workload_balance --param threshold=70

  rebalancer simulate -i inventory.yaml -m metrics.yaml \
    --strategy workload_stabilization \
    --param 'metrics=[cpu_util]' --param 'thresholds={cpu_util: 0.1}'`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringP("inventory", "i", "", "Inventory file (YAML, required)")
	simulateCmd.Flags().StringP("metrics", "m", "", "Telemetry samples file (YAML)")
	simulateCmd.Flags().StringP("strategy", "s", "", "Strategy to run (required)")
	simulateCmd.Flags().StringArrayP("param", "p", nil, "Strategy parameter as key=value (repeatable)")
	simulateCmd.Flags().Bool("yaml", false, "Print the plan as YAML")
	_ = simulateCmd.MarkFlagRequired("inventory")
	_ = simulateCmd.MarkFlagRequired("strategy")

	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	invPath, _ := cmd.Flags().GetString("inventory")
	metricsPath, _ := cmd.Flags().GetString("metrics")
	name, _ := cmd.Flags().GetString("strategy")
	raw, _ := cmd.Flags().GetStringArray("param")
	yamlOut, _ := cmd.Flags().GetBool("yaml")

	params, err := parseParams(raw)
	if err != nil {
		return err
	}

	facts, err := compute.LoadStaticInventory(invPath)
	if err != nil {
		return fmt.Errorf("failed to load inventory: %w", err)
	}
	agg := telemetry.NewStatic()
	if metricsPath != "" {
		if agg, err = telemetry.LoadStatic(metricsPath); err != nil {
			return fmt.Errorf("failed to load metrics: %w", err)
		}
	}

	ctx := cmd.Context()
	m, err := collector.NewComputeCollector(facts, collector.DefaultPeriod).Execute(ctx)
	if err != nil {
		return fmt.Errorf("failed to build cluster model: %w", err)
	}

	executor := strategy.NewExecutor(strategy.NewDefaultRegistry(), agg)
	sol, err := executor.Execute(ctx, name, params, m)
	if err != nil {
		return fmt.Errorf("strategy %s failed: %w", name, err)
	}

	if yamlOut {
		return printYAML(os.Stdout, map[string]any{
			"strategy":   sol.Strategy,
			"actions":    sol.Actions(),
			"indicators": sol.Indicators(),
		})
	}
	fmt.Printf("Strategy %s planned %d action(s)\n", sol.Strategy, sol.Len())
	return printActions(os.Stdout, sol.Actions(), sol.Indicators())
}

// parseParams turns key=value pairs into strategy parameters. Each value
// is decoded as a YAML document.
func parseParams(pairs []string) (strategy.Parameters, error) {
	params := make(strategy.Parameters, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("invalid value for parameter %s: %w", key, err)
		}
		params[key] = v
	}
	return params, nil
}
