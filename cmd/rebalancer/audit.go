package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/rebalancer/pkg/strategy"
	"github.com/cuemby/rebalancer/pkg/types"
)

// Audit commands
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Manage audits on a running server",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audits",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		audits, err := c.ListAudits()
		if err != nil {
			return fmt.Errorf("failed to list audits: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATE\tGOAL\tSTRATEGY\tLAST RUN")
		for _, a := range audits {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				a.ID, a.Name, a.Type, a.State, a.GoalName, orDash(a.StrategyName), formatTime(a.LastRunAt))
		}
		return w.Flush()
	},
}

var auditShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show an audit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		a, err := c.GetAudit(args[0])
		if err != nil {
			return fmt.Errorf("failed to get audit: %w", err)
		}
		return printYAML(os.Stdout, a)
	},
}

var auditTriggerCmd = &cobra.Command{
	Use:   "trigger ID",
	Short: "Queue an audit run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		a, err := c.TriggerAudit(args[0])
		if err != nil {
			return fmt.Errorf("failed to trigger audit: %w", err)
		}
		fmt.Printf("✓ Audit queued: %s (state=%s)\n", a.ID, a.State)
		return nil
	},
}

var auditCancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel an audit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		a, err := c.CancelAudit(args[0])
		if err != nil {
			return fmt.Errorf("failed to cancel audit: %w", err)
		}
		fmt.Printf("✓ Audit cancelled: %s\n", a.ID)
		return nil
	},
}

var auditDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an audit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		if err := c.DeleteAudit(args[0]); err != nil {
			return fmt.Errorf("failed to delete audit: %w", err)
		}
		fmt.Printf("✓ Audit deleted: %s\n", args[0])
		return nil
	},
}

var auditPlanCmd = &cobra.Command{
	Use:   "plan ID",
	Short: "Show the latest action plan of an audit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		plan, err := c.GetActionPlan(args[0])
		if err != nil {
			return fmt.Errorf("failed to get action plan: %w", err)
		}
		if yamlOut, _ := cmd.Flags().GetBool("yaml"); yamlOut {
			return printYAML(os.Stdout, plan)
		}

		fmt.Printf("Plan %s (%s, strategy %s)\n", plan.ID, plan.State, plan.StrategyName)
		actions := make([]strategy.Action, 0, len(plan.Actions))
		for _, a := range plan.Actions {
			actions = append(actions, strategy.Action{Type: a.Type, ResourceID: a.ResourceID, Parameters: a.Parameters})
		}
		return printActions(os.Stdout, actions, plan.Indicators)
	},
}

func init() {
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditTriggerCmd)
	auditCmd.AddCommand(auditCancelCmd)
	auditCmd.AddCommand(auditDeleteCmd)
	auditCmd.AddCommand(auditPlanCmd)

	auditPlanCmd.Flags().Bool("yaml", false, "Print the full plan as YAML")

	rootCmd.AddCommand(auditCmd)
}

// Goal commands
var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Inspect optimization goals",
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the goals known to the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		goals, err := c.ListGoals()
		if err != nil {
			return fmt.Errorf("failed to list goals: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDISPLAY NAME\tID")
		for _, g := range goals {
			fmt.Fprintf(w, "%s\t%s\t%s\n", g.Name, g.DisplayName, g.ID)
		}
		return w.Flush()
	},
}

func init() {
	goalCmd.AddCommand(goalListCmd)
	rootCmd.AddCommand(goalCmd)
}

// Strategy commands
var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Inspect placement strategies",
}

var strategyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List strategies and their parameters",
	Long: `List the built-in strategies with their goal and parameter schema.

With --remote the list is read from the server named by --server instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		goal, _ := cmd.Flags().GetString("goal")
		remote, _ := cmd.Flags().GetBool("remote")

		var infos []strategy.Info
		if remote {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if infos, err = c.ListStrategies(goal); err != nil {
				return fmt.Errorf("failed to list strategies: %w", err)
			}
		} else {
			reg := strategy.NewDefaultRegistry()
			if goal != "" {
				infos = reg.ForGoal(goal)
			} else {
				infos = reg.List()
			}
		}
		return printStrategies(os.Stdout, infos)
	},
}

func init() {
	strategyListCmd.Flags().String("goal", "", "Only list strategies serving this goal")
	strategyListCmd.Flags().Bool("remote", false, "Read the list from the server")

	strategyCmd.AddCommand(strategyListCmd)
	rootCmd.AddCommand(strategyCmd)
}

func printStrategies(out io.Writer, infos []strategy.Info) error {
	for i, info := range infos {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s (%s)\n", info.Name, info.DisplayName)
		fmt.Fprintf(out, "  Goal: %s\n", info.Goal)
		if len(info.Schema) == 0 {
			continue
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  PARAMETER\tTYPE\tDEFAULT\tDESCRIPTION")
		for _, p := range info.Schema {
			fmt.Fprintf(w, "  %s\t%s\t%v\t%s\n", p.Name, p.Type, formatDefault(p.Default), p.Description)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func printActions(out io.Writer, actions []strategy.Action, indicators map[string]float64) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTYPE\tRESOURCE\tSOURCE\tDESTINATION")
	for i, a := range actions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			i, a.Type, a.ResourceID, orDash(a.Parameters["source_node"]), orDash(a.Parameters["destination_node"]))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	names := make([]string, 0, len(indicators))
	for name := range indicators {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s: %g\n", name, indicators[name])
	}
	return nil
}

// printYAML prints v as block YAML using its JSON field names
func printYAML(out io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func formatDefault(v any) string {
	switch d := v.(type) {
	case nil:
		return "-"
	case []string:
		return "[" + strings.Join(d, ",") + "]"
	default:
		return fmt.Sprintf("%v", d)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// auditSummary is the one-line form used by apply
func auditSummary(a *types.Audit) string {
	if a.StrategyName != "" {
		return fmt.Sprintf("%s (goal=%s, strategy=%s)", a.ID, a.GoalName, a.StrategyName)
	}
	return fmt.Sprintf("%s (goal=%s)", a.ID, a.GoalName)
}
