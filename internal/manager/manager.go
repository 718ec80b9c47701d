// Package manager exposes the workflow core's single public entry
// point: given a parsed WorkflowDefinition, run it to completion,
// dispatching to a single Pipeline or to the Matrix Executor depending
// on whether the workflow declares strategy.matrix.
package manager

import (
	"context"

	"github.com/geoflow/pipeline/internal/checkpoint"
	"github.com/geoflow/pipeline/internal/config"
	"github.com/geoflow/pipeline/internal/engine"
	"github.com/geoflow/pipeline/internal/logger"
	"github.com/geoflow/pipeline/internal/matrix"
	"github.com/geoflow/pipeline/internal/workflow"
)

// Manager owns the checkpoint and logger wiring for one workflow run and
// decides single-pipeline vs. matrix dispatch.
type Manager struct {
	def             *config.WorkflowDefinition
	checkpointRoot  string
	logger          *logger.Logger
	checkpoint      *checkpoint.Manager
	continueOnError bool
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithContinueOnError controls whether an item-level failure (a
// DataProcessingError or ValidationError from a Modifier) is absorbed by
// the Failure Collector and processing continues (the default), or is
// escalated to a critical, run-aborting error. New defaults it to true.
func WithContinueOnError(continueOnError bool) Option {
	return func(m *Manager) { m.continueOnError = continueOnError }
}

// New builds a Manager for def, rooting its checkpoint files under
// checkpointRoot/<def.Name> and logging at logLevel.
func New(def *config.WorkflowDefinition, checkpointRoot, logLevel string, opts ...Option) (*Manager, error) {
	log, err := logger.New(logger.Options{Level: logLevel})
	if err != nil {
		return nil, err
	}
	cp := checkpoint.NewManager(checkpointRoot, def.Name)
	m := &Manager{def: def, checkpointRoot: checkpointRoot, logger: log, checkpoint: cp, continueOnError: true}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Execute validates the DAG, then runs either a single Pipeline or the
// Matrix Executor, per spec.md §4.I. The second return value is
// populated only for a matrix workflow; the first only for a
// non-matrix one.
func (m *Manager) Execute(ctx context.Context) (*engine.Result, []engine.Result, error) {
	if _, err := engine.BuildDAG(m.def.Steps); err != nil {
		return nil, nil, err
	}

	root := workflow.New(ctx, m.def.Name, m.logger, m.checkpoint)
	root.Data["continue_on_error"] = m.continueOnError

	if m.def.Strategy == nil || len(m.def.Strategy.Matrix) == 0 {
		pipeline, err := engine.BuildPipeline(m.def, root)
		if err != nil {
			return nil, nil, err
		}
		result, err := pipeline.Run()
		return &result, nil, err
	}

	results, err := matrix.Run(m.def, root)
	if err != nil {
		return nil, nil, err
	}
	return nil, results, nil
}
