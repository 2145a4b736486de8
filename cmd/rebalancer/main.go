package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/cuemby/rebalancer/pkg/client"
	"github.com/cuemby/rebalancer/pkg/config"
	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/manager"
	"github.com/cuemby/rebalancer/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rebalancer",
	Short: "Rebalancer - workload placement optimizer for compute clusters",
	Long: `Rebalancer keeps an in-memory model of a compute cluster, runs
placement strategies against it on demand or on a schedule, and stores the
resulting action plans for an operator or an applier to execute.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOut, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.ParseLevel(level), JSONOutput: jsonOut, Output: os.Stderr})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Rebalancer version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().String("server", "127.0.0.1:9322", "Rebalancer API address")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rebalancer server",
	Long: `Run the rebalancer server: the collection scheduler, the notification
synchronizer, the audit workers, the continuous audit reconciler and the
HTTP API.

Flags override the matching values of the configuration file.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Configuration file (YAML)")
	serveCmd.Flags().String("api-addr", "", "Address for the HTTP API")
	serveCmd.Flags().String("data-dir", "", "Data directory for persisted state")
}

func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("api-addr") {
		cfg.API.Addr, _ = cmd.Flags().GetString("api-addr")
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	if !cmd.Flags().Changed("log-level") && cfg.Log.Level != "" {
		log.Init(log.Config{Level: log.ParseLevel(cfg.Log.Level), JSONOutput: cfg.Log.JSON, Output: os.Stderr})
	}
	metrics.SetVersion(Version)

	mgr, err := manager.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	if err := mgr.Start(); err != nil {
		return multierr.Append(
			fmt.Errorf("failed to start manager: %w", err),
			mgr.Stop(context.Background()),
		)
	}

	fmt.Printf("✓ Rebalancer running (API %s, data %s). Press Ctrl+C to stop.\n", cfg.API.Addr, cfg.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case runErr = <-mgr.Errors():
		fmt.Fprintf(os.Stderr, "\nError: %v\n", runErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := multierr.Append(runErr, mgr.Stop(ctx)); err != nil {
		return err
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		metrics.SetVersion(Version)
		fmt.Printf("Rebalancer version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

// newClient connects to the server named by --server
func newClient(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("server")
	c, err := client.NewClient(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rebalancer: %w", err)
	}
	return c, nil
}
