package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/geoflow/pipeline/internal/config"
	"github.com/geoflow/pipeline/internal/engine"
	"github.com/geoflow/pipeline/internal/manager"
)

type runOptions struct {
	workflowPath  string
	checkpointDir string
	logLevel      string
	continueOnErr bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workflow to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.workflowPath, "workflow", "", "path to the workflow YAML file")
	cmd.Flags().StringVar(&opts.checkpointDir, "checkpoint-dir", "./.geoflow/checkpoints", "checkpoint root directory")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.continueOnErr, "continue-on-error", true, "keep processing remaining items after an item-level failure")
	cmd.MarkFlagRequired("workflow") //nolint:errcheck

	return cmd
}

func runWorkflow(cmd *cobra.Command, opts *runOptions) error {
	def, err := config.LoadWorkflow(opts.workflowPath)
	if err != nil {
		return err
	}

	m, err := manager.New(def, opts.checkpointDir, opts.logLevel, manager.WithContinueOnError(opts.continueOnErr))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	result, results, err := m.Execute(ctx)
	if err != nil && result == nil && results == nil {
		return err
	}

	if result != nil {
		fmt.Fprintln(cmd.OutOrStdout(), result.Summary)
		if result.Status == engine.StatusFailed {
			return fmt.Errorf("workflow %q failed", def.Name)
		}
		return nil
	}

	failed := false
	for i, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "matrix entry %d: %s\n", i, r.Summary)
		if r.Status == engine.StatusFailed {
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("workflow %q failed for at least one matrix entry", def.Name)
	}
	return nil
}
