package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/geoflow/pipeline/internal/config"
	"github.com/geoflow/pipeline/internal/engine"
)

func newValidateCmd() *cobra.Command {
	var workflowPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse and DAG-validate a workflow without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := config.LoadWorkflow(workflowPath)
			if err != nil {
				return err
			}

			graph, err := engine.BuildDAG(def.Steps)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid. execution order: %s\n", def.Name, strings.Join(graph.ExecutionOrder(), " -> "))
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowPath, "workflow", "", "path to the workflow YAML file")
	cmd.MarkFlagRequired("workflow") //nolint:errcheck

	return cmd
}
