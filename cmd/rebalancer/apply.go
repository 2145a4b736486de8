package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/rebalancer/pkg/api"
	"github.com/cuemby/rebalancer/pkg/client"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a configuration file",
	Long: `Create the resources described in a YAML file on a running server.

A file may hold several documents separated by "---".

Examples:
  # Create a nightly balancing audit and run it right away (--trigger=false to only create it)
  rebalancer apply -f audit.yaml

  apiVersion: rebalancer/v1
  kind: Audit
  metadata:
    name: nightly-balance
  spec:
    type: CONTINUOUS
    goal: workload_balancing
    strategy: workload_balance
    interval: 24h
    parameters:
      threshold: 70`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	applyCmd.Flags().Bool("trigger", true, "Trigger every created audit")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// Resource is one document of an apply file
type Resource struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   ResourceMetadata       `yaml:"metadata"`
	Spec       api.CreateAuditRequest `yaml:"spec"`
}

type ResourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	trigger, _ := cmd.Flags().GetBool("trigger")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	resources, err := parseResources(data)
	if err != nil {
		return err
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	for _, r := range resources {
		if err := applyAudit(c, r, trigger); err != nil {
			return err
		}
	}
	return nil
}

// parseResources decodes every document of an apply file
func parseResources(data []byte) ([]*Resource, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []*Resource
	for {
		var r Resource
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if r.Kind == "" {
			continue
		}
		if r.Kind != "Audit" {
			return nil, fmt.Errorf("unsupported resource kind: %s", r.Kind)
		}
		if r.Spec.Name == "" {
			r.Spec.Name = r.Metadata.Name
		}
		out = append(out, &r)
	}
	if len(out) == 0 {
		return nil, errors.New("no resources found")
	}
	return out, nil
}

func applyAudit(c *client.Client, r *Resource, trigger bool) error {
	fmt.Printf("Creating audit: %s\n", r.Spec.Name)
	a, err := c.CreateAudit(r.Spec)
	if err != nil {
		return fmt.Errorf("failed to create audit %s: %w", r.Spec.Name, err)
	}
	fmt.Printf("✓ Audit created: %s\n", auditSummary(a))

	if !trigger {
		return nil
	}
	if _, err := c.TriggerAudit(a.ID); err != nil {
		return fmt.Errorf("failed to trigger audit %s: %w", a.ID, err)
	}
	fmt.Printf("✓ Audit queued: %s\n", a.ID)
	return nil
}
