// Package matrix fans a single workflow definition out over the
// `strategy.matrix` entries declared in its WorkflowDefinition, running
// one isolated pipeline per entry concurrently.
package matrix

import (
	"golang.org/x/sync/errgroup"

	"github.com/geoflow/pipeline/internal/config"
	"github.com/geoflow/pipeline/internal/engine"
	"github.com/geoflow/pipeline/internal/workflow"
)

// Run forks parentCtx once per entry in def.Strategy.Matrix, builds and
// runs an independent Pipeline against each fork, and returns one
// engine.Result per entry in matrix-entry order. A critical error from
// any one entry does not cancel its siblings; it is reported only in
// that entry's Result (Status failed, error text in Summary). The
// returned error is always nil.
func Run(def *config.WorkflowDefinition, parentCtx *workflow.Context) ([]engine.Result, error) {
	entries := def.Strategy.Matrix
	results := make([]engine.Result, len(entries))

	g := new(errgroup.Group)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			childCtx := parentCtx.Fork(entry)

			pipeline, err := engine.BuildPipeline(def, childCtx)
			if err != nil {
				results[i] = engine.Result{
					Status:      engine.StatusFailed,
					MatrixEntry: childCtx.MatrixEntry,
					Summary:     err.Error(),
				}
				return nil
			}

			result, _ := pipeline.Run()
			results[i] = result
			return nil
		})
	}

	// Errors are folded into each entry's Result rather than propagated,
	// per spec.md §4.H: one child's critical failure does not cancel its
	// siblings unless the outer caller cancels parentCtx itself.
	_ = g.Wait()

	return results, nil
}
